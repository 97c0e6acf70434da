package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os/user"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/dropbox-token-relay/internal/notify"
	"github.com/florianilch/dropbox-token-relay/internal/observability"
	"github.com/florianilch/dropbox-token-relay/internal/scheduler"
	"github.com/florianilch/dropbox-token-relay/internal/tokensource"
	"github.com/florianilch/dropbox-token-relay/internal/tokenstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// TokenStorageType represents where the Dropbox refresh token is kept.
type TokenStorageType string

const (
	TokenStorageTypeFile    TokenStorageType = "file"
	TokenStorageTypeEnv     TokenStorageType = "env"
	TokenStorageTypeKeyring TokenStorageType = "keyring"
)

// Default configuration values
const (
	DefaultConfigLogFormat       = LogFormatText
	DefaultConfigLogExport       = observability.ExportNone
	DefaultConfigServerHost      = "0.0.0.0"
	DefaultConfigServerPort      = 3000
	DefaultConfigShutdownTimeout = 5 * time.Second
	DefaultConfigHTTPTimeout     = 30 * time.Second
	DefaultConfigScheduleCron    = scheduler.DefaultSpec
	DefaultConfigScheduleTZ      = "Local"
	DefaultConfigTokenPath       = tokenstore.DefaultTokenPath
	DefaultConfigRefreshStorage  = TokenStorageTypeEnv
	DefaultConfigRefreshEnvKey   = tokenstore.DefaultEnvKey
	DefaultConfigTelegramBaseURL = notify.DefaultTelegramBaseURL
	DefaultConfigMetricsPath     = "/metrics"
)

// DefaultConfigDropboxTokenURL is the Dropbox OAuth2 token endpoint.
var DefaultConfigDropboxTokenURL = tokensource.Endpoint.TokenURL

// ServerConfig holds liveness server configuration.
type ServerConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown, including waiting for a running refresh.
	Timeout time.Duration `json:"timeout"`
}

// HTTPConfig holds settings shared by outbound HTTP clients.
type HTTPConfig struct {
	Timeout time.Duration `json:"timeout"`
}

// ScheduleConfig controls when refresh cycles run.
type ScheduleConfig struct {
	Cron     string `json:"cron" validate:"required"`
	Timezone string `json:"timezone" validate:"required"`
	// SkipStartupRun disables the unconditional cycle at process start.
	SkipStartupRun bool `json:"skip_startup_run"`
}

// FirebaseConfig holds Firebase project and sign-in settings.
type FirebaseConfig struct {
	APIKey      string `json:"api_key" validate:"required"`
	DatabaseURL string `json:"database_url" validate:"required,url"`
	ProjectID   string `json:"project_id"`
	AppID       string `json:"app_id"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required"`
	// TokenPath is the database path the access token is written to.
	TokenPath string `json:"token_path" validate:"required"`
	// AuthEndpoint overrides the identitytoolkit relyingparty base URL.
	AuthEndpoint string `json:"auth_endpoint,omitempty" validate:"omitempty,url"`
}

// RefreshTokenConfig describes where the Dropbox refresh token is stored.
type RefreshTokenConfig struct {
	Storage TokenStorageType `json:"storage" validate:"required,oneof=file env keyring"`

	// Storage-specific settings (mutually exclusive based on Storage type)
	File        string `json:"file,omitempty"`         // For file storage: path to token file
	EnvKey      string `json:"env_key,omitempty"`      // For env storage: environment variable name
	KeyringUser string `json:"keyring_user,omitempty"` // For keyring storage: user identifier
}

// NewTokenStore creates the TokenStore described by the configuration.
func (r *RefreshTokenConfig) NewTokenStore() (tokenstore.TokenStore, error) {
	switch r.Storage {
	case TokenStorageTypeFile:
		return tokenstore.NewFileStore(r.File)
	case TokenStorageTypeEnv:
		return tokenstore.NewEnvStore(r.EnvKey)
	case TokenStorageTypeKeyring:
		return tokenstore.NewKeyringStore(tokenstore.DefaultKeyringService, r.KeyringUser)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", r.Storage)
	}
}

// DropboxConfig holds the Dropbox app credentials.
type DropboxConfig struct {
	ClientID     string             `json:"client_id" validate:"required"`
	ClientSecret string             `json:"client_secret" validate:"required"`
	TokenURL     string             `json:"token_url" validate:"required,url"`
	RefreshToken RefreshTokenConfig `json:"refresh_token"`
}

// TelegramConfig holds the notification bot settings.
type TelegramConfig struct {
	BotToken string `json:"bot_token" validate:"required"`
	ChatID   string `json:"chat_id" validate:"required"`
	BaseURL  string `json:"base_url" validate:"required,url"`
	// SilentStartup suppresses the "server started" message.
	SilentStartup bool `json:"silent_startup"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path" validate:"required,startswith=/"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level           `json:"log_level"`
	LogFormat LogFormat            `json:"log_format" validate:"oneof=text json"`
	LogExport observability.Export `json:"log_export" validate:"oneof=none stdout otlp-http otlp-grpc"`
	Server    ServerConfig         `json:"server"`
	Shutdown  ShutdownConfig       `json:"shutdown"`
	HTTP      HTTPConfig           `json:"http"`
	Schedule  ScheduleConfig       `json:"schedule"`
	Firebase  FirebaseConfig       `json:"firebase"`
	Dropbox   DropboxConfig        `json:"dropbox"`
	Telegram  TelegramConfig       `json:"telegram"`
	Metrics   MetricsConfig        `json:"metrics"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.LogExport == "" {
		c.LogExport = DefaultConfigLogExport
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfigServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultConfigServerPort
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = DefaultConfigHTTPTimeout
	}
	if c.Schedule.Cron == "" {
		c.Schedule.Cron = DefaultConfigScheduleCron
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = DefaultConfigScheduleTZ
	}
	if c.Firebase.TokenPath == "" {
		c.Firebase.TokenPath = DefaultConfigTokenPath
	}
	if c.Firebase.DatabaseURL == "" && c.Firebase.ProjectID != "" {
		c.Firebase.DatabaseURL = "https://" + c.Firebase.ProjectID + "-default-rtdb.firebaseio.com"
	}
	if c.Dropbox.TokenURL == "" {
		c.Dropbox.TokenURL = DefaultConfigDropboxTokenURL
	}
	if c.Dropbox.RefreshToken.Storage == "" {
		c.Dropbox.RefreshToken.Storage = DefaultConfigRefreshStorage
	}
	if c.Telegram.BaseURL == "" {
		c.Telegram.BaseURL = DefaultConfigTelegramBaseURL
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultConfigMetricsPath
	}

	// Dynamic defaults based on storage type
	rt := &c.Dropbox.RefreshToken
	switch rt.Storage {
	case TokenStorageTypeEnv:
		if rt.EnvKey == "" {
			rt.EnvKey = DefaultConfigRefreshEnvKey
		}
	case TokenStorageTypeKeyring:
		if rt.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("dropbox.refresh_token.keyring_user required (auto-detect failed: %w)", err)
			}
			rt.KeyringUser = currentUser.Username
		}
	case TokenStorageTypeFile:
		// file path must be explicitly configured (no sensible default for a server)
	}

	return nil
}

// Validate validates the configuration using struct tags and cross-field rules.
// Missing credentials fail here rather than as confusing upstream errors later.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if err := scheduler.Validate(c.Schedule.Cron); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	switch c.Dropbox.RefreshToken.Storage {
	case TokenStorageTypeFile:
		if c.Dropbox.RefreshToken.File == "" {
			return errors.New("file path required for file storage")
		}
	case TokenStorageTypeEnv:
		if c.Dropbox.RefreshToken.EnvKey == "" {
			return errors.New("env_key required for env storage")
		}
	case TokenStorageTypeKeyring:
		if c.Dropbox.RefreshToken.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	}

	if c.Metrics.Enabled && strings.TrimRight(c.Metrics.Path, "/") == "" {
		return errors.New("metrics path cannot be the liveness route")
	}

	return nil
}

// Location resolves the schedule time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule timezone %q: %w", c.Schedule.Timezone, err)
	}
	return loc, nil
}
