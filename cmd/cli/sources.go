package cli

import (
	"context"
	"fmt"

	"github.com/captura-dev/captura/internal/config"
	"github.com/captura-dev/captura/internal/initialization"

	"github.com/spf13/cobra"
)

func NewSourcesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List primed capture sources",
		Long:  `List source ids that hold a stored restore credential.`,
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

			sources, err := container.Broker.ListPrimedSources(context.Background())
			if err != nil {
				return err
			}

			for _, source := range sources {
				fmt.Println(source)
			}
			return nil
		},
	}
}
