package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/captura-dev/captura/internal/config"
	"github.com/captura-dev/captura/internal/initialization"
	"github.com/captura-dev/captura/internal/server"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the capture-session daemon",
		Long:  `Start the HTTP daemon that exposes the prime and capture operations.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	container, err := initialization.NewContainer(cfg)
	if err != nil {
		return err
	}
	defer container.Close()

	app := server.NewHTTPServer(server.HTTPServerDependencies{
		CaptureController: container.CaptureController,
		APIKey:            cfg.APIKey,
	})

	log.Info().
		Str("address", cfg.HTTPAddress).
		Str("vault_db", cfg.VaultDBPath).
		Msg("Starting capture-session daemon")

	if err := app.Listen(cfg.HTTPAddress, fiber.ListenConfig{
		GracefulContext:       ctx,
		DisableStartupMessage: true,
	}); err != nil {
		log.Error().Err(err).Msg("HTTP server failed")
		return err
	}

	log.Info().Msg("Capture-session daemon stopped")
	return nil
}
