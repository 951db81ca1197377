package cli

import (
	"context"
	"fmt"

	"github.com/captura-dev/captura/internal/config"
	"github.com/captura-dev/captura/internal/initialization"

	"github.com/spf13/cobra"
)

func NewRevokeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <source-id>",
		Short: "Delete the stored restore credential for a source",
		Long: `Delete the stored restore credential for a source. The next capture for
this source falls back to full-display capture until it is primed again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}

			container, err := initialization.NewContainer(cfg)
			if err != nil {
				return err
			}
			defer container.Close()

			existed, err := container.Broker.Revoke(context.Background(), args[0])
			if err != nil {
				return err
			}

			if existed {
				fmt.Printf("Revoked credential for %q\n", args[0])
			} else {
				fmt.Printf("No stored credential for %q\n", args[0])
			}
			return nil
		},
	}
}
