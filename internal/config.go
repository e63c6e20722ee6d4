package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/refdeck/internal/refservice"
	"github.com/starford/refdeck/internal/section"
	"github.com/starford/refdeck/internal/view"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Vault      VaultConfig       `yaml:"vault"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Auth       AuthConfig        `yaml:"auth"`
	References ReferencesConfig  `yaml:"references"`
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
	return c.References.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
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

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
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

// ReferencesConfig controls which frontmatter fields hold reference lists
// and how the reference panel displays them.
type ReferencesConfig struct {
	Fields             []string `yaml:"fields"`
	DefaultField       string   `yaml:"default_field"`
	MaxItemsPerField   int      `yaml:"max_items_per_field"`
	DedupeAcrossFields bool     `yaml:"dedupe_across_fields"`
	ShowFieldHeaders   bool     `yaml:"show_field_headers"`
}

// Validate validates the references configuration.
func (c *ReferencesConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Fields, validation.Each(validation.Required)),
		validation.Field(&c.MaxItemsPerField, validation.Min(0)),
	); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(c.Fields))
	for _, f := range c.Fields {
		if _, dup := seen[f]; dup {
			return fmt.Errorf("references: field %q listed twice", f)
		}
		seen[f] = struct{}{}
	}
	if c.DefaultField != "" && len(c.Fields) > 0 && !slices.Contains(c.Fields, c.DefaultField) {
		return errors.New("references: default_field must be one of fields")
	}
	return nil
}

// EffectiveFields returns the configured fields, or the built-in default
// field when none are set.
func (c *ReferencesConfig) EffectiveFields() []string {
	return section.Fields(c.Fields)
}

// ServiceOptions converts the references configuration into service options.
func (c *ReferencesConfig) ServiceOptions() refservice.Options {
	return refservice.Options{
		View: view.Options{
			Fields: c.EffectiveFields(),
			Section: section.Options{
				MaxItemsPerField:   c.MaxItemsPerField,
				DedupeAcrossFields: c.DedupeAcrossFields,
			},
			ShowHeaders: c.ShowFieldHeaders,
		},
		DefaultField: c.DefaultField,
	}
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
			Path: "./refdeck.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		References: ReferencesConfig{
			Fields:       []string{section.DefaultField},
			DefaultField: section.DefaultField,
		},
	}
}
