package app

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// BackendURL is the base URL of the pocketclub backend.
	BackendURL string `env:"AUTHCORE_BACKEND_URL" envDefault:"https://api.pocketclub.app"`

	// KeyringService namespaces entries in the OS keystore.
	KeyringService string `env:"AUTHCORE_KEYRING_SERVICE" envDefault:"pocketclub"`

	// DatabaseFile and SealKeyFile back the on-disk fallback store,
	// used when no OS keystore is available.
	DatabaseFile string `env:"AUTHCORE_DATABASE_FILE" envDefault:"credentials.db"`
	SealKeyFile  string `env:"AUTHCORE_SEAL_KEY_FILE" envDefault:"credentials.key"`

	// ForceFileStore skips the keystore probe; useful on CI and for
	// reproducing fallback behavior on a desktop.
	ForceFileStore bool `env:"AUTHCORE_FORCE_FILE_STORE" envDefault:"false"`

	Env       string `env:"ENV" envDefault:"dev"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("app: parse env: %w", err)
	}
	return cfg, nil
}
