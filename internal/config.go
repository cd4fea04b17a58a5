package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/framegrab/internal/capture"
	"github.com/starford/framegrab/internal/watch"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Capture CaptureConfig     `yaml:"capture"`
	Watch   WatchConfig       `yaml:"watch"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Capture.Validate(); err != nil {
		return err
	}
	if err := c.Watch.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
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

// CaptureConfig controls how frames are tagged.
type CaptureConfig struct {
	SourcePlaceholder string `yaml:"source_placeholder"`
	FramePrefix       string `yaml:"frame_prefix"`
	MaxUploadBytes    int64  `yaml:"max_upload_bytes"`
	VerifyChecksums   bool   `yaml:"verify_checksums"`
}

// Validate validates the capture configuration.
func (c *CaptureConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SourcePlaceholder, validation.Required),
		validation.Field(&c.FramePrefix, validation.By(noPathSeparator)),
		validation.Field(&c.MaxUploadBytes, validation.Required, validation.Min(int64(1024))),
	)
}

// WatchConfig configures the inbox watcher. Inbox and Outbox may be the
// same directory; outputs are told apart by Suffix.
type WatchConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Inbox        string `yaml:"inbox"`
	Outbox       string `yaml:"outbox"`
	Suffix       string `yaml:"suffix"`
	RemoveSource bool   `yaml:"remove_source"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Inbox, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.Outbox, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.Suffix, validation.Required, validation.By(noPathSeparator)),
	)
}

func noPathSeparator(value interface{}) error {
	s, _ := value.(string)
	if strings.ContainsAny(s, `/\`) {
		return errors.New("must not contain path separators")
	}
	return nil
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

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Capture: CaptureConfig{
			SourcePlaceholder: capture.UnknownSource,
			FramePrefix:       capture.DefaultFramePrefix,
			MaxUploadBytes:    32 << 20,
		},
		Watch: WatchConfig{
			Inbox:  "./inbox",
			Outbox: "./outbox",
			Suffix: watch.DefaultSuffix,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
