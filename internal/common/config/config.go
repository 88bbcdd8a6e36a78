// Package config provides configuration management for relaycore.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for relaycore.
type Config struct {
	Relay    RelayConfig    `mapstructure:"relay"`
	Identity IdentityConfig `mapstructure:"identity"`
	DataDir  DataDirConfig  `mapstructure:"dataDir"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	UI       UIConfig       `mapstructure:"ui"`
	Upload   UploadConfig   `mapstructure:"upload"`
}

// RelayConfig holds the set of Nostr relays this client connects to and its
// reconnect behavior.
type RelayConfig struct {
	URLs               []string `mapstructure:"urls"`
	ReconnectMinSeconds int     `mapstructure:"reconnectMinSeconds"` // initial backoff
	ReconnectMaxSeconds int     `mapstructure:"reconnectMaxSeconds"` // backoff ceiling
}

// ReconnectMinDuration returns the initial reconnect backoff as a time.Duration.
func (r *RelayConfig) ReconnectMinDuration() time.Duration {
	return time.Duration(r.ReconnectMinSeconds) * time.Second
}

// ReconnectMaxDuration returns the reconnect backoff ceiling as a time.Duration.
func (r *RelayConfig) ReconnectMaxDuration() time.Duration {
	return time.Duration(r.ReconnectMaxSeconds) * time.Second
}

// IdentityConfig points at the signing identity used to publish commands.
// The credential file's on-disk format is out of scope; only its location
// is configuration.
type IdentityConfig struct {
	CredentialsPath string `mapstructure:"credentialsPath"`
}

// DataDirConfig holds filesystem locations for local, non-relay-sourced state:
// drafts and the publish-snapshot ledger.
type DataDirConfig struct {
	Root       string `mapstructure:"root"`
	DraftsPath string `mapstructure:"draftsPath"`
	CachePath  string `mapstructure:"cachePath"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// UIConfig holds persisted UI preferences (the renderer itself is out of
// scope for this engine, but which projects/conversations are visible is
// state it owns).
type UIConfig struct {
	VisibleProjectPrefixes []string `mapstructure:"visibleProjectPrefixes"`
	ShowArchivedThreads    bool     `mapstructure:"showArchivedThreads"`
}

// UploadConfig holds the blob host used for attachment uploads.
type UploadConfig struct {
	BlobHostURL    string `mapstructure:"blobHostUrl"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds"`
}

// TimeoutDuration returns the upload timeout as a time.Duration.
func (u *UploadConfig) TimeoutDuration() time.Duration {
	return time.Duration(u.TimeoutSeconds) * time.Second
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
// Returns "json" if running in Kubernetes or other production environments.
// Returns "text" for terminal/development use (human-readable console format).
func detectDefaultLogFormat() string {
	// Check if running in Kubernetes
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}

	// Check for explicit production environment
	if env := os.Getenv("RELAYCORE_ENV"); env == "production" || env == "prod" {
		return "json"
	}

	// Default to text format for terminal use (more readable than JSON)
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Relay defaults
	v.SetDefault("relay.urls", []string{})
	v.SetDefault("relay.reconnectMinSeconds", 1)
	v.SetDefault("relay.reconnectMaxSeconds", 32)

	// Identity defaults
	v.SetDefault("identity.credentialsPath", defaultCredentialsPath())

	// DataDir defaults
	v.SetDefault("dataDir.root", defaultDataRoot())
	v.SetDefault("dataDir.draftsPath", filepath.Join(defaultDataRoot(), "drafts.json"))
	v.SetDefault("dataDir.cachePath", filepath.Join(defaultDataRoot(), "cache.db"))

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")

	// UI defaults
	v.SetDefault("ui.visibleProjectPrefixes", []string{})
	v.SetDefault("ui.showArchivedThreads", false)

	// Upload defaults
	v.SetDefault("upload.blobHostUrl", "")
	v.SetDefault("upload.timeoutSeconds", 60)
}

// defaultDataRoot returns the platform-appropriate base directory for
// relaycore's local state.
func defaultDataRoot() string {
	if runtime.GOOS == "windows" {
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			localAppData = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Local")
		}
		return filepath.Join(localAppData, "relaycore")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./.relaycore"
	}
	return filepath.Join(home, ".relaycore")
}

// defaultCredentialsPath returns the default location of the identity
// credentials file.
func defaultCredentialsPath() string {
	return filepath.Join(defaultDataRoot(), "identity.json")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix RELAYCORE_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory or /etc/relaycore/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults first
	setDefaults(v)

	// Configure environment variables
	v.SetEnvPrefix("RELAYCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings for snake_case env vars (camelCase config keys)
	// AutomaticEnv does not handle camelCase to SNAKE_CASE conversion,
	// so we explicitly bind keys where env var naming differs from config key naming.
	_ = v.BindEnv("identity.credentialsPath", "RELAYCORE_IDENTITY_CREDENTIALS_PATH")
	_ = v.BindEnv("logging.level", "RELAYCORE_LOG_LEVEL")
	_ = v.BindEnv("upload.blobHostUrl", "RELAYCORE_UPLOAD_BLOB_HOST_URL")

	// Configure config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/relaycore/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
// Relay URLs are intentionally not required here: with none configured,
// cmd/relaycore still starts and runs on local state only.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Relay.ReconnectMinSeconds <= 0 {
		errs = append(errs, "relay.reconnectMinSeconds must be positive")
	}
	if cfg.Relay.ReconnectMaxSeconds < cfg.Relay.ReconnectMinSeconds {
		errs = append(errs, "relay.reconnectMaxSeconds must be >= relay.reconnectMinSeconds")
	}

	if cfg.DataDir.Root == "" {
		errs = append(errs, "dataDir.root must be set")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text, console")
	}

	if cfg.Upload.TimeoutSeconds <= 0 {
		errs = append(errs, "upload.timeoutSeconds must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
