// Package config loads process configuration from the environment, with an
// optional .env file underneath.
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"

	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Env       string `env:"APP_ENV" envDefault:"local"`
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":8080"`
	JWTSecret string `env:"JWT_SECRET,required,notEmpty"`
	// StorageDriver selects the persistence provider.
	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"postgres"`
	// CASMaxAttempts bounds version-conflict retries per operation.
	CASMaxAttempts uint `env:"CAS_MAX_ATTEMPTS" envDefault:"64"`

	BootstrapSuperadminEmail string `env:"BOOTSTRAP_SUPERADMIN_EMAIL"`
	PaymentWebhookSecret     string `env:"PAYMENT_WEBHOOK_SECRET"`
	CORSAllowedOrigin        string `env:"CORS_ALLOWED_ORIGIN" envDefault:"*"`

	DB DB `envPrefix:"DB_"`
}

type DB struct {
	Host    string `env:"HOST" envDefault:"localhost"`
	User    string `env:"USER"`
	Pass    string `env:"PASS"`
	Name    string `env:"NAME"`
	Port    string `env:"PORT" envDefault:"5432"`
	SSLMode string `env:"SSLMODE" envDefault:"disable"`
}

// DSN renders the postgres connection string.
func (d DB) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		d.Host, d.User, d.Pass, d.Name, d.Port, d.SSLMode,
	)
}

// Load reads files (default ".env") into the environment without overriding
// variables that are already set, then parses the environment. Missing files
// are reported through missing and are not an error.
func Load(files ...string) (cfg Config, missing []string, err error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				missing = append(missing, f)
				continue
			}
			return Config{}, nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, nil, err
	}
	return cfg, missing, nil
}

func (c Config) Validate() error {
	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return fmt.Errorf("APP_ENV must be one of local, dev, prod; got %q", c.Env)
	}
	switch c.StorageDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.DB.User == "" || c.DB.Name == "" {
			return errors.New("DB_USER and DB_NAME are required for the postgres driver")
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER must be postgres or memory; got %q", c.StorageDriver)
	}
	if c.CASMaxAttempts == 0 {
		return errors.New("CAS_MAX_ATTEMPTS must be positive")
	}
	return nil
}
