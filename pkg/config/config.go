package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config is the complete configuration of the identity core
type Config struct {
	Store       StoreConfig
	Database    DatabaseConfig
	UserSetting UserSettingConfig
	Password    PasswordConfig
	Event       EventConfig
	Bootstrap   BootstrapConfig
}

// StoreConfig selects the record store backend
type StoreConfig struct {
	Type    string `env:"IDM_STORE_TYPE" env-default:"memory" validate:"oneof=memory inmem file postgres postgresql"`
	DataDir string `env:"IDM_STORE_DATA_DIR" env-default:"./data"`
}

// EventConfig controls how domain events are delivered
type EventConfig struct {
	Async        bool          `env:"EVENT_ASYNC" env-default:"true"`
	QueueSize    int           `env:"EVENT_QUEUE_SIZE" env-default:"64" validate:"gte=0"`
	DrainTimeout time.Duration `env:"EVENT_DRAIN_TIMEOUT" env-default:"5s"`
}

// Load reads the configuration from the environment and validates it
func Load() (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadEnvFile loads variables from a .env file when it exists. Variables
// already set in the environment win.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Debug("No .env file found (using environment variables or defaults)", "path", path)
		return nil
	}
	slog.Info("Loading configuration from .env file", "path", path)
	return godotenv.Load(path)
}
