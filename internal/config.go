package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/Tasour/wikipedia-graph/internal/index"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Log formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app" toml:"app"`
	Wiki   WikiConfig        `yaml:"wiki" toml:"wiki"`
	Layout LayoutConfig      `yaml:"layout" toml:"layout"`
	Links  LinksConfig       `yaml:"links" toml:"links"`
	Index  IndexConfig       `yaml:"index" toml:"index"`
	Auth   AuthConfig        `yaml:"auth" toml:"auth"`
	Seed   SeedConfig        `yaml:"seed" toml:"seed"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Wiki.Validate(); err != nil {
		return err
	}
	if err := c.Layout.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel  slog.Level `yaml:"log_level" toml:"log_level"`
	LogFormat string     `yaml:"log_format" toml:"log_format"`
	HTTP      HTTPConfig `yaml:"http" toml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.LogFormat == "" {
		c.LogFormat = LogFormatJSON
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.LogFormat, validation.In(LogFormatJSON, LogFormatText)),
	); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port" toml:"port"`
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

// WikiConfig holds the endpoints of the wiki being browsed. APIURL and
// RESTURL default to the standard MediaWiki paths under BaseURL.
type WikiConfig struct {
	BaseURL   string        `yaml:"base_url" toml:"base_url"`
	APIURL    string        `yaml:"api_url" toml:"api_url"`
	RESTURL   string        `yaml:"rest_url" toml:"rest_url"`
	UserAgent string        `yaml:"user_agent" toml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout" toml:"timeout"`
}

// Validate validates the wiki configuration.
func (c *WikiConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.APIURL, is.URL),
		validation.Field(&c.RESTURL, is.URL),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
	)
}

// LayoutConfig is the viewport used to seed new node positions.
type LayoutConfig struct {
	Width  float64 `yaml:"width" toml:"width"`
	Height float64 `yaml:"height" toml:"height"`
}

// Validate validates the layout configuration.
func (c *LayoutConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Width, validation.Required, validation.Min(1.0)),
		validation.Field(&c.Height, validation.Required, validation.Min(1.0)),
	)
}

// LinksConfig controls the pending link registry.
type LinksConfig struct {
	// PruneOnDelete drops the pending links of a deleted page, so revisiting
	// it does not restore its old edges.
	PruneOnDelete bool `yaml:"prune_on_delete" toml:"prune_on_delete"`
}

// IndexConfig holds the visited-page index DSN. Empty means in-memory.
type IndexConfig struct {
	DSN string `yaml:"dsn" toml:"dsn"`
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode" toml:"mode"`
	Token string `yaml:"token" toml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
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

// SeedConfig lists articles opened at startup, by title or by page id.
type SeedConfig struct {
	Pages   []string `yaml:"pages" toml:"pages"`
	PageIDs []int64  `yaml:"pageids" toml:"pageids"`
}

// Empty reports whether nothing is to be seeded.
func (c *SeedConfig) Empty() bool {
	return len(c.Pages) == 0 && len(c.PageIDs) == 0
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel:  slog.LevelInfo,
			LogFormat: LogFormatJSON,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Wiki: WikiConfig{
			BaseURL:   "https://en.wikipedia.org",
			UserAgent: "wikigraph/1.0",
			Timeout:   30 * time.Second,
		},
		Layout: LayoutConfig{
			Width:  960,
			Height: 600,
		},
		Index: IndexConfig{
			DSN: index.MemoryDSN,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
