// Package config loads the algobot service configuration from the
// environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
)

// Config holds all configuration for the algobot service.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	AlgoSec  AlgoSecConfig
	Draft    DraftConfig
	OIDC     OIDCConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" envDefault:"8080"`
}

// Addr returns the server address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds audit database configuration. Supported drivers
// are sqlite3, postgres and mysql.
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite3"`
	DSN    string `env:"DB_DSN" envDefault:"data/algobot.db"`
}

// AlgoSecConfig holds the AlgoSec server address and credentials shared
// by the three API clients.
type AlgoSecConfig struct {
	Host      string `env:"ALGOSEC_HOST"`
	User      string `env:"ALGOSEC_USER"`
	Password  string `env:"ALGOSEC_PASSWORD"`
	VerifySSL bool   `env:"ALGOSEC_VERIFY_SSL" envDefault:"true"`
	// Requestor identity attached to FireFlow tickets opened by the bot.
	RequestorName  string `env:"ALGOSEC_REQUESTOR_NAME" envDefault:"AlgoBot"`
	RequestorEmail string `env:"ALGOSEC_REQUESTOR_EMAIL" envDefault:"created_by_algobot@algosec.com"`
}

// DraftConfig holds application draft apply behavior.
type DraftConfig struct {
	// AutoApply applies the application draft after flow creations,
	// debounced so a burst of creations produces a single change request.
	AutoApply bool          `env:"DRAFT_AUTO_APPLY" envDefault:"true"`
	Debounce  time.Duration `env:"DRAFT_DEBOUNCE" envDefault:"5s"`
	// BootstrapToken guards the API when OIDC is disabled.
	BootstrapToken string `env:"BOOTSTRAP_TOKEN"`
}

// OIDCConfig holds bearer-token verification configuration.
type OIDCConfig struct {
	Enabled   bool   `env:"OIDC_ENABLED" envDefault:"false"`
	IssuerURL string `env:"OIDC_ISSUER_URL"`
	ClientID  string `env:"OIDC_CLIENT_ID"`
	// AllowedDomains restricts accepted tokens to email addresses under
	// the listed domains. Empty means any verified token is accepted.
	AllowedDomains string `env:"OIDC_ALLOWED_DOMAINS"`
}

// GetAllowedDomains returns the allowed email domains as a slice.
func (c *OIDCConfig) GetAllowedDomains() []string {
	if c.AllowedDomains == "" {
		return nil
	}
	domains := strings.Split(c.AllowedDomains, ",")
	for i := range domains {
		domains[i] = strings.TrimSpace(domains[i])
	}
	return domains
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(&cfg.Server); err != nil {
		return nil, fmt.Errorf("parsing server config: %w", err)
	}
	if err := env.Parse(&cfg.Database); err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if err := env.Parse(&cfg.AlgoSec); err != nil {
		return nil, fmt.Errorf("parsing algosec config: %w", err)
	}
	if err := env.Parse(&cfg.Draft); err != nil {
		return nil, fmt.Errorf("parsing draft config: %w", err)
	}
	if err := env.Parse(&cfg.OIDC); err != nil {
		return nil, fmt.Errorf("parsing oidc config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.AlgoSec.Host == "" {
		return fmt.Errorf("ALGOSEC_HOST is required")
	}
	if c.AlgoSec.User == "" {
		return fmt.Errorf("ALGOSEC_USER is required")
	}
	if c.AlgoSec.Password == "" {
		return fmt.Errorf("ALGOSEC_PASSWORD is required")
	}

	if c.OIDC.Enabled {
		if c.OIDC.IssuerURL == "" {
			return fmt.Errorf("OIDC_ISSUER_URL is required when OIDC is enabled")
		}
		if c.OIDC.ClientID == "" {
			return fmt.Errorf("OIDC_CLIENT_ID is required when OIDC is enabled")
		}
	} else if c.Draft.BootstrapToken == "" {
		return fmt.Errorf("BOOTSTRAP_TOKEN is required when OIDC is disabled")
	}

	return nil
}
