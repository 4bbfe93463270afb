// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/openhoyo/hoyoauth/pkg/localization"
	"github.com/openhoyo/hoyoauth/pkg/loginpage"
)

// Backend selects the session store implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendPostgres Backend = "postgres"
	BackendValkey   Backend = "valkey"
)

type Config struct {
	HTTP HTTPServer `yaml:"http"`

	Backend  Backend  `yaml:"backend"`
	Database Database `yaml:"database"`
	ValKey   ValKey   `yaml:"valkey"`

	Sessions  Sessions  `yaml:"sessions"`
	Gateway   Gateway   `yaml:"gateway"`
	LoginPage LoginPage `yaml:"loginPage"`

	// Localization overrides, merged over the built-in table per key and
	// language.
	Localization localization.Table `yaml:"localization"`
}

type HTTPServer struct {
	Address         string        `yaml:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type Database struct {
	Name     string `yaml:"name"`
	Port     string `yaml:"port"`
	Host     string `yaml:"host"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type ValKey struct {
	Address  string `yaml:"address"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Prefix   string `yaml:"prefix"`
}

type Sessions struct {
	TTL           time.Duration `yaml:"ttl"`
	IDLength      int           `yaml:"idLength"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

type Gateway struct {
	BaseURL     string        `yaml:"baseURL"`
	CallTimeout time.Duration `yaml:"callTimeout"`
}

type LoginPage struct {
	LoginPath    string `yaml:"loginPath"`
	APILoginPath string `yaml:"apiLoginPath"`
	JSPath       string `yaml:"jsPath"`

	// PagePath and JSFilePath point at custom assets on disk; empty means
	// the embedded defaults.
	PagePath   string `yaml:"pagePath"`
	JSFilePath string `yaml:"jsFilePath"`
	// UseCustomJS skips the JS route entirely.
	UseCustomJS bool `yaml:"useCustomJS"`

	RedirectURL     string          `yaml:"redirectURL"`
	RedirectSeconds int             `yaml:"redirectSeconds"`
	Style           loginpage.Style `yaml:"style"`
}

// Load reads a YAML config file. Values like ${DB_PASSWORD} are expanded
// from the environment before parsing.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 5 * time.Second
	}
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	if c.Sessions.TTL == 0 {
		c.Sessions.TTL = 5 * time.Minute
	}
	if c.LoginPage.LoginPath == "" {
		c.LoginPage.LoginPath = "/login"
	}
	if c.LoginPage.APILoginPath == "" {
		c.LoginPage.APILoginPath = "/api/login"
	}
	if c.LoginPage.JSPath == "" {
		c.LoginPage.JSPath = "/js.js"
	}
}

// Validate checks invariants that cannot be defaulted away.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendPostgres, BackendValkey:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	if c.Backend == BackendPostgres && c.Database.Host == "" {
		return fmt.Errorf("backend %q requires database.host", c.Backend)
	}
	if c.Backend == BackendValkey && c.ValKey.Address == "" {
		return fmt.Errorf("backend %q requires valkey.address", c.Backend)
	}
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.baseURL is required")
	}

	return nil
}
