package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Vault   VaultConfig       `yaml:"vault"`
	SQLite  SQLiteConfig      `yaml:"sqlite"`
	Auth    AuthConfig        `yaml:"auth"`
	Cache   CacheConfig       `yaml:"cache"`
	Confirm ConfirmConfig     `yaml:"confirm"`
	Search  SearchConfig      `yaml:"search"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.Confirm.Validate(); err != nil {
		return err
	}
	return c.Search.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
	// MCP enables the stdio MCP transport alongside the HTTP server.
	MCP bool `yaml:"mcp"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the path to the local notes vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds the space store database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// CacheConfig holds the listing cache TTLs, in seconds.
type CacheConfig struct {
	NoteTTLSeconds   int `yaml:"note_ttl_seconds"`
	FolderTTLSeconds int `yaml:"folder_ttl_seconds"`
}

// NoteTTL returns the note listing TTL.
func (c *CacheConfig) NoteTTL() time.Duration {
	return time.Duration(c.NoteTTLSeconds) * time.Second
}

// FolderTTL returns the folder listing TTL.
func (c *CacheConfig) FolderTTL() time.Duration {
	return time.Duration(c.FolderTTLSeconds) * time.Second
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.NoteTTLSeconds, validation.Min(0)),
		validation.Field(&c.FolderTTLSeconds, validation.Min(0)),
	)
}

// ConfirmConfig holds the confirmation token lifetime, in seconds.
type ConfirmConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
}

// TTL returns the token lifetime.
func (c *ConfirmConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Validate validates the confirmation configuration.
func (c *ConfirmConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TTLSeconds, validation.Min(0)),
	)
}

// SearchConfig holds the search and resolution tuning knobs.
type SearchConfig struct {
	// RipgrepBinary is the rg executable ("rg" when empty).
	RipgrepBinary string `yaml:"ripgrep_binary"`
	// RipgrepTimeoutSeconds bounds one external search run.
	RipgrepTimeoutSeconds int `yaml:"ripgrep_timeout_seconds"`
	// MinScore is the resolver's minimum confidence to auto-pick a target.
	MinScore float64 `yaml:"min_score"`
	// AmbiguityDelta is the score gap under which two candidates tie.
	AmbiguityDelta float64 `yaml:"ambiguity_delta"`
}

// RipgrepTimeout returns the external search deadline.
func (c *SearchConfig) RipgrepTimeout() time.Duration {
	return time.Duration(c.RipgrepTimeoutSeconds) * time.Second
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RipgrepTimeoutSeconds, validation.Min(0)),
		validation.Field(&c.MinScore, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.AmbiguityDelta, validation.Min(0.0), validation.Max(1.0)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path: "./vault",
		},
		SQLite: SQLiteConfig{
			Path: "./plume.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Cache: CacheConfig{
			NoteTTLSeconds:   5,
			FolderTTLSeconds: 30,
		},
		Confirm: ConfirmConfig{
			TTLSeconds: 120,
		},
		Search: SearchConfig{
			RipgrepBinary:         "rg",
			RipgrepTimeoutSeconds: 5,
			MinScore:              0.70,
			AmbiguityDelta:        0.05,
		},
	}
}
