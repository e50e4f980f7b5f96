// Package config provides configuration loading and management for the content mirror.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/content-mirror/internal/telemetry"
)

// EnvPrefix is the prefix of every environment variable the mirror reads
const EnvPrefix = "CONTENT_MIRROR"

const (
	// StorageTypeMemory keeps the mirror in process memory only
	StorageTypeMemory = "memory"

	// StorageTypeFile keeps the mirror in a single JSON document on disk
	StorageTypeFile = "file"

	// StorageTypeSQLite keeps the mirror in a local SQLite database
	StorageTypeSQLite = "sqlite"

	// StorageTypePostgres keeps the mirror in a PostgreSQL database
	StorageTypePostgres = "postgres"
)

const (
	// DefaultEnvironment is the upstream environment used when none is configured
	DefaultEnvironment = "master"

	// DefaultUpstreamTimeout bounds a single upstream HTTP request
	DefaultUpstreamTimeout = 30 * time.Second

	// DefaultMaxRetries is how often a 429 or 5xx upstream response is retried
	DefaultMaxRetries = 3

	// DefaultSyncInterval is the poller interval used when none is configured
	DefaultSyncInterval = 5 * time.Minute

	// DefaultServerAddress is the listen address of the HTTP API
	DefaultServerAddress = ":8080"

	appDataDir = "content-mirror"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path  string
	viper *viper.Viper
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// WithViper overlays values from v instead of a viper instance bound to the environment
func WithViper(v *viper.Viper) Option {
	return func(cfg *loaderConfig) error {
		if v == nil {
			return fmt.Errorf("viper instance is required")
		}
		cfg.viper = v
		return nil
	}
}

// NewEnvViper returns a viper instance reading CONTENT_MIRROR_* environment variables,
// where a key such as "upstream.spaceID" maps to CONTENT_MIRROR_UPSTREAM_SPACEID.
func NewEnvViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Config represents the root configuration structure
type Config struct {
	Upstream   UpstreamConfig    `yaml:"upstream"`
	Storage    StorageConfig     `yaml:"storage"`
	State      *StateConfig      `yaml:"state,omitempty"`
	SyncPolicy *SyncPolicyConfig `yaml:"syncPolicy,omitempty"`
	Resolution *ResolutionConfig `yaml:"resolution,omitempty"`
	Server     *ServerConfig     `yaml:"server,omitempty"`
	Telemetry  *telemetry.Config `yaml:"telemetry,omitempty"`
}

// UpstreamConfig defines how to reach the remote content repository
type UpstreamConfig struct {
	// BaseURL is the API root, e.g. https://cdn.example.com
	BaseURL string `yaml:"baseURL"`

	// SpaceID identifies the content space to mirror
	SpaceID string `yaml:"spaceID"`

	// Environment is the space environment, "master" when empty
	Environment string `yaml:"environment,omitempty"`

	// ContentType narrows the initial sync to entries of one content type
	ContentType string `yaml:"contentType,omitempty"`

	// AccessTokenFile is the path to a file containing the API access token
	AccessTokenFile string `yaml:"accessTokenFile,omitempty"`

	// AccessToken is only ever set from CONTENT_MIRROR_UPSTREAM_ACCESSTOKEN
	AccessToken string `yaml:"-"`

	// Timeout bounds each upstream request (e.g. "30s")
	Timeout string `yaml:"timeout,omitempty"`

	// MaxRetries is how often a 429 or 5xx response is retried; 0 disables retries
	MaxRetries *int `yaml:"maxRetries,omitempty"`
}

// StorageConfig selects and configures the local store
type StorageConfig struct {
	// Type is one of memory, file, sqlite or postgres. Defaults to sqlite.
	Type string `yaml:"type,omitempty"`

	// Path is the file or sqlite database path. Defaults to a location under the XDG data home.
	Path string `yaml:"path,omitempty"`

	// Database configures the postgres store
	Database *DatabaseConfig `yaml:"database,omitempty"`
}

// StateConfig configures persistence of the sync cursor and status
type StateConfig struct {
	Path string `yaml:"path"`
}

// SyncPolicyConfig defines synchronization settings
type SyncPolicyConfig struct {
	Interval string `yaml:"interval"`
}

// ResolutionConfig tunes link resolution
type ResolutionConfig struct {
	// MaxDepth limits how deep links are followed; 0 means unlimited
	MaxDepth int `yaml:"maxDepth,omitempty"`
}

// ServerConfig configures the HTTP read API
type ServerConfig struct {
	Address string `yaml:"address,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	// This is the recommended approach for production deployments
	// The file should contain only the password with optional trailing whitespace
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from CONTENT_MIRROR_DATABASE_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		data, err := os.ReadFile(filepath.Clean(d.PasswordFile))
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(EnvPrefix + "_DATABASE_PASSWORD"); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s_DATABASE_PASSWORD environment variable", EnvPrefix,
	)
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	port := d.Port
	if port == 0 {
		port = 5432
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(password),
		d.Host,
		port,
		d.Database,
		sslMode,
	), nil
}

// LoadConfig loads configuration from an optional YAML file, overlays environment
// variables and validates the result.
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	var config Config
	if loaderCfg.path != "" {
		data, err := os.ReadFile(loaderCfg.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	v := loaderCfg.viper
	if v == nil {
		v = NewEnvViper()
	}
	if err := config.applyOverlay(v); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyOverlay copies every set key from v over the file values
func (c *Config) applyOverlay(v *viper.Viper) error {
	overrides := map[string]func(string) error{
		"upstream.baseURL":     func(s string) error { c.Upstream.BaseURL = s; return nil },
		"upstream.spaceID":     func(s string) error { c.Upstream.SpaceID = s; return nil },
		"upstream.environment": func(s string) error { c.Upstream.Environment = s; return nil },
		"upstream.contentType": func(s string) error { c.Upstream.ContentType = s; return nil },
		"upstream.accessToken": func(s string) error { c.Upstream.AccessToken = s; return nil },
		"upstream.timeout":     func(s string) error { c.Upstream.Timeout = s; return nil },
		"upstream.maxRetries": func(s string) error {
			n, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil {
				return fmt.Errorf("upstream.maxRetries must be an integer, got %q", s)
			}
			c.Upstream.MaxRetries = &n
			return nil
		},
		"storage.type": func(s string) error { c.Storage.Type = s; return nil },
		"storage.path": func(s string) error { c.Storage.Path = s; return nil },
		"state.path": func(s string) error {
			c.State = &StateConfig{Path: s}
			return nil
		},
		"syncPolicy.interval": func(s string) error {
			c.SyncPolicy = &SyncPolicyConfig{Interval: s}
			return nil
		},
		"server.address": func(s string) error {
			c.Server = &ServerConfig{Address: s}
			return nil
		},
	}

	for key, apply := range overrides {
		if value := v.GetString(key); value != "" {
			if err := apply(value); err != nil {
				return err
			}
		}
	}
	return nil
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error

	if c.Upstream.BaseURL == "" {
		errs = append(errs, fmt.Errorf("upstream.baseURL is required"))
	} else if u, err := url.Parse(c.Upstream.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("upstream.baseURL must be an absolute URL, got %q", c.Upstream.BaseURL))
	}
	if c.Upstream.SpaceID == "" {
		errs = append(errs, fmt.Errorf("upstream.spaceID is required"))
	}
	if c.Upstream.Timeout != "" {
		if d, err := time.ParseDuration(c.Upstream.Timeout); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("upstream.timeout must be a positive duration (e.g., '30s'), got %q", c.Upstream.Timeout))
		}
	}
	if c.Upstream.MaxRetries != nil && *c.Upstream.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("upstream.maxRetries cannot be negative"))
	}

	if err := c.Storage.validate(); err != nil {
		errs = append(errs, err)
	}

	if c.SyncPolicy != nil && c.SyncPolicy.Interval != "" {
		if d, err := time.ParseDuration(c.SyncPolicy.Interval); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("syncPolicy.interval must be a positive duration (e.g., '30m', '1h'), got %q",
				c.SyncPolicy.Interval))
		}
	}

	if c.Resolution != nil && c.Resolution.MaxDepth < 0 {
		errs = append(errs, fmt.Errorf("resolution.maxDepth cannot be negative"))
	}

	if c.State != nil && c.State.Path == "" {
		errs = append(errs, fmt.Errorf("state.path is required when state is configured"))
	}
	// a restored cursor over an empty store would only ever fetch deltas
	if c.GetStatePath() != "" && !c.Storage.Durable() {
		errs = append(errs, fmt.Errorf("state cannot be persisted with %s storage, whose records do not survive a restart",
			StorageTypeMemory))
	}

	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

func (s *StorageConfig) validate() error {
	switch s.GetType() {
	case StorageTypeMemory, StorageTypeFile, StorageTypeSQLite:
		return nil
	case StorageTypePostgres:
		db := s.Database
		if db == nil {
			return fmt.Errorf("storage.database is required for postgres storage")
		}
		if db.Host == "" || db.User == "" || db.Database == "" {
			return fmt.Errorf("storage.database requires host, user and database")
		}
		return nil
	default:
		return fmt.Errorf("storage.type must be one of %s, %s, %s or %s, got %q",
			StorageTypeMemory, StorageTypeFile, StorageTypeSQLite, StorageTypePostgres, s.Type)
	}
}

// Durable reports whether stored records outlive the process
func (s *StorageConfig) Durable() bool {
	return s.GetType() != StorageTypeMemory
}

// GetType returns the storage type, sqlite when unset
func (s *StorageConfig) GetType() string {
	if s.Type == "" {
		return StorageTypeSQLite
	}
	return s.Type
}

// GetPath returns the storage path. When unset, a file under the XDG data home is used
// and its parent directory is created.
func (s *StorageConfig) GetPath() (string, error) {
	if s.Path != "" {
		return s.Path, nil
	}
	name := "mirror.db"
	if s.GetType() == StorageTypeFile {
		name = "mirror.json"
	}
	path, err := xdg.DataFile(filepath.Join(appDataDir, name))
	if err != nil {
		return "", fmt.Errorf("failed to resolve default storage path: %w", err)
	}
	return path, nil
}

// GetEnvironment returns the upstream environment, DefaultEnvironment when unset
func (u *UpstreamConfig) GetEnvironment() string {
	if u.Environment == "" {
		return DefaultEnvironment
	}
	return u.Environment
}

// GetTimeout returns the upstream request timeout
func (u *UpstreamConfig) GetTimeout() time.Duration {
	if u.Timeout == "" {
		return DefaultUpstreamTimeout
	}
	d, err := time.ParseDuration(u.Timeout)
	if err != nil || d <= 0 {
		return DefaultUpstreamTimeout
	}
	return d
}

// GetMaxRetries returns how often a transient upstream failure is retried
func (u *UpstreamConfig) GetMaxRetries() uint {
	if u.MaxRetries == nil {
		return DefaultMaxRetries
	}
	if *u.MaxRetries < 0 {
		return 0
	}
	return uint(*u.MaxRetries)
}

// GetAccessToken returns the upstream access token. A token set through the
// environment wins over AccessTokenFile. An empty token means unauthenticated access.
func (u *UpstreamConfig) GetAccessToken() (string, error) {
	if u.AccessToken != "" {
		return u.AccessToken, nil
	}
	if u.AccessTokenFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(filepath.Clean(u.AccessTokenFile))
	if err != nil {
		return "", fmt.Errorf("failed to read access token from file %s: %w", u.AccessTokenFile, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// GetSyncInterval returns the poller interval
func (c *Config) GetSyncInterval() time.Duration {
	if c.SyncPolicy == nil || c.SyncPolicy.Interval == "" {
		return DefaultSyncInterval
	}
	d, err := time.ParseDuration(c.SyncPolicy.Interval)
	if err != nil || d <= 0 {
		return DefaultSyncInterval
	}
	return d
}

// GetMaxDepth returns the link resolution depth limit, 0 for unlimited
func (c *Config) GetMaxDepth() int {
	if c.Resolution == nil {
		return 0
	}
	return c.Resolution.MaxDepth
}

// GetServerAddress returns the HTTP API listen address
func (c *Config) GetServerAddress() string {
	if c.Server == nil || c.Server.Address == "" {
		return DefaultServerAddress
	}
	return c.Server.Address
}

// GetStatePath returns the state file path, empty when state persistence is off
func (c *Config) GetStatePath() string {
	if c.State == nil {
		return ""
	}
	return c.State.Path
}
