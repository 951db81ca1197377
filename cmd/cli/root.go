package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "captura",
		Short: "Captura capture-session daemon",
		Long: `Captura brokers consent-gated screen capture sessions: it obtains user
consent once, keeps the portal's single-use restore tokens encrypted at rest,
and re-establishes capture sessions headlessly on every call.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
		},
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewSourcesCommand())
	rootCmd.AddCommand(NewRevokeCommand())
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
