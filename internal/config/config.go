// Package config loads daemon configuration from a config file and
// environment variables via viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all daemon configuration.
type Config struct {
	// HTTPAddress is the listen address of the protocol surface.
	HTTPAddress string

	// APIKey guards the /v1 routes. Empty disables the check.
	APIKey string

	// PortalSocketPath is the unix socket of the desktop consent service.
	PortalSocketPath string

	// VaultDBPath is the encrypted-file backend's SQLite container.
	VaultDBPath string

	// KeyringService is the service name used for OS secret store entries.
	KeyringService string

	// Timeouts for the broker's individually bounded external waits.
	InteractiveTimeout time.Duration
	PortalTimeout      time.Duration
	FrameTimeout       time.Duration

	Debug bool
}

// LoadConfig reads configuration from an optional config file
// (~/.config/captura/config.yaml) and CAPTURA_-prefixed environment
// variables, with defaults for everything.
func LoadConfig() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("CAPTURA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "captura"))
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; everything has a default.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		HTTPAddress:        v.GetString("http_address"),
		APIKey:             v.GetString("api_key"),
		PortalSocketPath:   v.GetString("portal_socket_path"),
		VaultDBPath:        v.GetString("vault_db_path"),
		KeyringService:     v.GetString("keyring_service"),
		InteractiveTimeout: v.GetDuration("interactive_timeout"),
		PortalTimeout:      v.GetDuration("portal_timeout"),
		FrameTimeout:       v.GetDuration("frame_timeout"),
		Debug:              v.GetBool("debug"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_address", "127.0.0.1:8553")
	v.SetDefault("api_key", "")
	v.SetDefault("portal_socket_path", "")
	v.SetDefault("vault_db_path", defaultVaultDBPath())
	v.SetDefault("keyring_service", "captura")
	v.SetDefault("interactive_timeout", 2*time.Minute)
	v.SetDefault("portal_timeout", 15*time.Second)
	v.SetDefault("frame_timeout", 10*time.Second)
	v.SetDefault("debug", false)
}

func defaultVaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "captura-credentials.db"
	}
	return filepath.Join(home, ".local", "share", "captura", "credentials.db")
}
