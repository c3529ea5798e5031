// Package config loads runtime settings from the environment and optional
// .env files.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"ethnograph/internal/storage"
)

// EnvFiles are loaded, when present, before the environment is parsed.
// Variables already set in the process environment win.
var EnvFiles = []string{".env", ".env.local"}

type Config struct {
	DataDir string `env:"ETHNO_DATA_DIR" envDefault:"data"`
	OutDir  string `env:"ETHNO_OUT_DIR" envDefault:"out"`

	StorageKind string `env:"STORAGE_KIND" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`

	RevalidateURL    string   `env:"REVALIDATE_URL"`
	RevalidateSecret string   `env:"REVALIDATE_SECRET"`
	RevalidateTags   []string `env:"REVALIDATE_TAGS" envSeparator:","`

	MetricsBackend string `env:"METRICS_BACKEND" envDefault:"none"`
	PushgatewayURL string `env:"PUSHGATEWAY_URL" envDefault:"http://localhost:9091"`
	MetricsTags    string `env:"METRICS_TAGS"`
	MetricsJob     string `env:"METRICS_JOB" envDefault:"ethnograph"`

	LogMode      string `env:"LOG_MODE" envDefault:"development"`
	DossierRules string `env:"DOSSIER_RULES"`
}

// LoadEnv loads the files among names that exist and returns how many did.
func LoadEnv(names []string) (int, error) {
	existing := make([]string, 0, len(names))
	for _, name := range names {
		if _, err := os.Stat(name); err == nil {
			existing = append(existing, name)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load reads EnvFiles then parses the environment.
func Load() (Config, error) {
	if _, err := LoadEnv(EnvFiles); err != nil {
		return Config{}, fmt.Errorf("load env files: %w", err)
	}
	return Parse()
}

// Parse reads the process environment only.
func Parse() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	c.RevalidateTags = trimAll(c.RevalidateTags)
	return c, nil
}

// Storage returns the storage settings.
func (c Config) Storage() storage.Config {
	return storage.Config{Kind: c.StorageKind, DSN: c.DatabaseURL}
}

// Validate checks settings a load needs.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, errors.New("ETHNO_DATA_DIR is empty"))
	}
	if strings.TrimSpace(c.OutDir) == "" {
		errs = append(errs, errors.New("ETHNO_OUT_DIR is empty"))
	}
	if c.StorageKind != "memory" && strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required for storage kind %q", c.StorageKind))
	}
	switch c.MetricsBackend {
	case "", "none", "datadog", "pushgateway":
	default:
		errs = append(errs, fmt.Errorf("unknown METRICS_BACKEND %q", c.MetricsBackend))
	}
	return errors.Join(errs...)
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
