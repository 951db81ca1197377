// Package initialization wires configuration, storage, the credential vault,
// the portal client, and the session broker into a runnable container.
package initialization

import (
	"fmt"

	"github.com/captura-dev/captura/internal/config"
	"github.com/captura-dev/captura/internal/controllers"
	"github.com/captura-dev/captura/internal/domain"
	"github.com/captura-dev/captura/internal/managers"
	"github.com/captura-dev/captura/internal/storage"
	"github.com/captura-dev/captura/pkg/clients/portal"

	"github.com/rs/zerolog/log"
)

type Container struct {
	Config            *config.Config
	Vault             domain.CredentialVault
	Broker            domain.SessionBroker
	CaptureController *controllers.CaptureController

	db *storage.DB
}

// NewContainer builds all daemon dependencies. The vault's backend choice
// (OS secret store vs encrypted file) is still deferred to first use.
func NewContainer(cfg *config.Config) (*Container, error) {
	log.Info().Msg("Building daemon dependencies")

	db, err := storage.NewDB(cfg.VaultDBPath)
	if err != nil {
		return nil, fmt.Errorf("open credential container: %w", err)
	}

	if err := storage.RunMigrations(db.Writer); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate credential container: %w", err)
	}

	vault, err := managers.NewCredentialVault(managers.CredentialVaultDependencies{
		Keyring:        managers.NewSystemKeyring(),
		KeyringService: cfg.KeyringService,
		Records:        storage.NewRecordRepo(db),
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("build credential vault: %w", err)
	}

	portalOptions := []portal.ClientOption{}
	if cfg.PortalSocketPath != "" {
		portalOptions = append(portalOptions, portal.WithSocketPath(cfg.PortalSocketPath))
	}
	portalClient := portal.NewClient(portalOptions...)

	broker := managers.NewSessionBroker(managers.SessionBrokerDependencies{
		Vault:              vault,
		Portal:             portalClient,
		Frames:             portalClient,
		InteractiveTimeout: cfg.InteractiveTimeout,
		PortalTimeout:      cfg.PortalTimeout,
		FrameTimeout:       cfg.FrameTimeout,
	})

	controller := controllers.NewCaptureController(controllers.CaptureControllerDependencies{
		Broker: broker,
	})

	return &Container{
		Config:            cfg,
		Vault:             vault,
		Broker:            broker,
		CaptureController: controller,
		db:                db,
	}, nil
}

// Close releases the credential container.
func (c *Container) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
