// Package config loads and validates the application configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the EB_ prefix (e.g., EB_DATABASE_HOST
// overrides database.host in the YAML). This layering allows the same binary to
// run with a config.yaml in local development and with pure environment variables
// in containerized deployments — no recompilation or different binaries needed.
//
// The ENCRYPTION_KEY variable has no EB_ prefix because it may be injected by
// infrastructure tooling (e.g., Kubernetes secrets, Vault agent) that does not
// know the application-specific prefix and treats it as a generic secret name.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/easybits/easybits/internal/audit"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	PublicURL    string        `mapstructure:"public_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// GetPublicURL returns the public-facing URL used in presigned local-backend
// URLs and share links. When server.public_url is set it is returned as-is;
// otherwise it falls back to server.base_url. This distinction matters in
// reverse-proxied deployments where the internal listen address (base_url)
// differs from the URL clients reach (public_url).
func (s *ServerConfig) GetPublicURL() string {
	if s.PublicURL != "" {
		return s.PublicURL
	}
	return s.BaseURL
}

// GetAddress returns the server address in host:port format
func (s *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// StorageConfig holds the platform storage backend configuration. Users may
// register their own providers at runtime; this section configures only the
// backend files land on when they have none.
type StorageConfig struct {
	// PlatformBackend selects the platform backend type: s3, tigris, or local.
	PlatformBackend string `mapstructure:"platform_backend"`
	// KeyNamespace prefixes every object key so deployments sharing a bucket
	// cannot collide (e.g. "prod", "staging").
	KeyNamespace string             `mapstructure:"key_namespace"`
	S3           S3StorageConfig    `mapstructure:"s3"`
	Local        LocalStorageConfig `mapstructure:"local"`
}

// S3StorageConfig holds S3-compatible storage configuration, used for both
// the "s3" and "tigris" platform backends.
type S3StorageConfig struct {
	// Endpoint is the S3-compatible endpoint URL (optional for AWS, required
	// for MinIO and similar; tigris defaults to the Tigris endpoint).
	Endpoint string `mapstructure:"endpoint"`
	// Region is the bucket region
	Region string `mapstructure:"region"`
	// Bucket is the bucket name
	Bucket string `mapstructure:"bucket"`
	// Static credentials; leave empty to use the default AWS credential chain
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// LocalStorageConfig holds local filesystem backend configuration
type LocalStorageConfig struct {
	BasePath string `mapstructure:"base_path"`
	// SigningSecret signs the HMAC URLs the local backend issues in place of
	// cloud presigned URLs. Required when the platform backend is local.
	SigningSecret string `mapstructure:"signing_secret"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	APIKeys    APIKeyConfig     `mapstructure:"api_keys"`
	Session    SessionConfig    `mapstructure:"session"`
	Encryption EncryptionConfig `mapstructure:"encryption"`
	// CronSecret authorizes the scheduler endpoints (e.g. /api/cron/purge-files).
	CronSecret string `mapstructure:"cron_secret"`
	// WebhookSecret authenticates inbound conversion webhook deliveries.
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// SessionConfig holds browser-session JWT configuration. Sessions authorize
// the key-management endpoints; API keys never do.
type SessionConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// EncryptionConfig holds the at-rest encryption parameters for user provider
// credentials. The passphrase may also be supplied via the unprefixed
// ENCRYPTION_KEY environment variable.
type EncryptionConfig struct {
	Passphrase string `mapstructure:"passphrase"`
	// Salt must be at least 16 bytes
	Salt       string `mapstructure:"salt"`
	Iterations int    `mapstructure:"iterations"`
}

// APIKeyConfig holds API key authentication configuration
type APIKeyConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// ExpirySweepIntervalHours determines how often the key expiry sweeper runs
	ExpirySweepIntervalHours int `mapstructure:"expiry_sweep_interval_hours"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
}

// CORSConfig holds CORS configuration. AllowedOrigins is also pushed to the
// storage backends so browsers can PUT directly against presigned URLs.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// TLSConfig holds TLS/HTTPS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// AuditConfig holds audit logging configuration
type AuditConfig struct {
	// Enabled determines if audit logging is active
	Enabled bool `mapstructure:"enabled"`
	// LogReadOperations determines if GET requests should be logged
	LogReadOperations bool `mapstructure:"log_read_operations"`
	// RetentionDays is how long audit entries are kept
	RetentionDays int `mapstructure:"retention_days"`
	// Shippers are optional external destinations (SIEM webhook, file) that
	// receive a copy of every audit record written to the database.
	Shippers []audit.ShipperConfig `mapstructure:"shippers"`
}

// JobsConfig holds background job configuration
type JobsConfig struct {
	// PurgeEnabled toggles the in-process purge loop. Deployments that prefer
	// an external scheduler disable it and call /api/cron/purge-files instead.
	PurgeEnabled bool `mapstructure:"purge_enabled"`
	// PurgeIntervalHours determines how often the purge job runs
	PurgeIntervalHours int `mapstructure:"purge_interval_hours"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested structs during Unmarshal.
// viper.BindEnv only errors when called with zero keys; since every key here is a non-empty
// hardcoded string, any error indicates a programming bug and is surfaced to the caller.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Server
		"server.host",
		"server.port",
		"server.base_url",
		"server.public_url",
		"server.read_timeout",
		"server.write_timeout",

		// Storage
		"storage.platform_backend",
		"storage.key_namespace",
		"storage.s3.endpoint",
		"storage.s3.region",
		"storage.s3.bucket",
		"storage.s3.access_key_id",
		"storage.s3.secret_access_key",
		"storage.local.base_path",
		"storage.local.signing_secret",

		// Auth
		"auth.api_keys.enabled",
		"auth.api_keys.expiry_sweep_interval_hours",
		"auth.session.jwt_secret",
		"auth.session.ttl",
		"auth.encryption.passphrase",
		"auth.encryption.salt",
		"auth.encryption.iterations",
		"auth.cron_secret",
		"auth.webhook_secret",

		// Security
		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",
		"security.tls.enabled",
		"security.tls.cert_file",
		"security.tls.key_file",

		// Logging
		"logging.level",
		"logging.format",
		"logging.output",

		// Telemetry
		"telemetry.enabled",
		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",

		// Audit
		"audit.enabled",
		"audit.log_read_operations",
		"audit.retention_days",

		// Jobs
		"jobs.purge_enabled",
		"jobs.purge_interval_hours",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}

	// ENCRYPTION_KEY is honored without the EB_ prefix so generic secret
	// injectors can set it.
	if err := v.BindEnv("auth.encryption.passphrase", "EB_AUTH_ENCRYPTION_PASSPHRASE", "ENCRYPTION_KEY"); err != nil {
		return fmt.Errorf("failed to bind env var %q: %w", "auth.encryption.passphrase", err)
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}
	return parse(v)
}

// Watch reloads the configuration whenever the config file changes on disk and
// invokes onChange with the freshly parsed result. A reload that fails to parse
// or validate is logged and dropped, so a half-saved file cannot take down a
// running server. Watch is a no-op when no config file was found at startup.
func Watch(configPath string, onChange func(*Config)) error {
	v, err := newViper(configPath)
	if err != nil {
		return err
	}
	if v.ConfigFileUsed() == "" {
		return nil
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := parse(v)
		if err != nil {
			slog.Warn("ignoring config reload", "file", e.Name, "error", err)
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// newViper builds a viper instance with defaults, the config file (if any),
// and environment bindings applied.
func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Set config file path if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config.yaml in common locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/easybits")
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	// Enable environment variable support
	v.SetEnvPrefix("EB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind environment variables for nested structures
	// This is necessary because AutomaticEnv() doesn't work well with Unmarshal()
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}
	return v, nil
}

// parse unmarshals, expands secrets, and validates the loaded configuration.
func parse(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Storage.S3.AccessKeyID = expandEnv(cfg.Storage.S3.AccessKeyID)
	cfg.Storage.S3.SecretAccessKey = expandEnv(cfg.Storage.S3.SecretAccessKey)
	cfg.Storage.Local.SigningSecret = expandEnv(cfg.Storage.Local.SigningSecret)
	cfg.Auth.Session.JWTSecret = expandEnv(cfg.Auth.Session.JWTSecret)
	cfg.Auth.Encryption.Passphrase = expandEnv(cfg.Auth.Encryption.Passphrase)
	cfg.Auth.Encryption.Salt = expandEnv(cfg.Auth.Encryption.Salt)
	cfg.Auth.CronSecret = expandEnv(cfg.Auth.CronSecret)
	cfg.Auth.WebhookSecret = expandEnv(cfg.Auth.WebhookSecret)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "easybits")
	v.SetDefault("database.user", "easybits")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Storage defaults
	v.SetDefault("storage.platform_backend", "local")
	v.SetDefault("storage.key_namespace", "")
	v.SetDefault("storage.s3.region", "auto")
	v.SetDefault("storage.local.base_path", "./storage")

	// Auth defaults
	v.SetDefault("auth.api_keys.enabled", true)
	v.SetDefault("auth.api_keys.expiry_sweep_interval_hours", 1)
	v.SetDefault("auth.session.ttl", "24h")
	v.SetDefault("auth.encryption.iterations", 100000)

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 60)
	v.SetDefault("security.rate_limiting.burst", 10)
	v.SetDefault("security.tls.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "easybits")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)

	// Audit defaults
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.log_read_operations", false)
	v.SetDefault("audit.retention_days", 90)

	// Jobs defaults
	v.SetDefault("jobs.purge_enabled", true)
	v.SetDefault("jobs.purge_interval_hours", 24)
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	// Validate database
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	// Validate storage backend
	validBackends := map[string]bool{"s3": true, "tigris": true, "local": true}
	if !validBackends[c.Storage.PlatformBackend] {
		return fmt.Errorf("invalid storage backend: %s (must be s3, tigris, or local)", c.Storage.PlatformBackend)
	}

	// Validate S3-compatible storage if enabled
	if c.Storage.PlatformBackend == "s3" || c.Storage.PlatformBackend == "tigris" {
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when using the %s backend", c.Storage.PlatformBackend)
		}
		if c.Storage.PlatformBackend == "s3" && c.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when using the s3 backend")
		}
	}

	// Validate local storage if enabled
	if c.Storage.PlatformBackend == "local" {
		if c.Storage.Local.BasePath == "" {
			return fmt.Errorf("storage.local.base_path is required when using the local backend")
		}
		if c.Storage.Local.SigningSecret == "" {
			return fmt.Errorf("storage.local.signing_secret is required when using the local backend")
		}
	}

	// Validate encryption if configured
	if c.Auth.Encryption.Passphrase != "" && len(c.Auth.Encryption.Salt) < 16 {
		return fmt.Errorf("auth.encryption.salt must be at least 16 bytes")
	}

	// Validate TLS if enabled
	if c.Security.TLS.Enabled {
		if c.Security.TLS.CertFile == "" {
			return fmt.Errorf("security.tls.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.KeyFile == "" {
			return fmt.Errorf("security.tls.key_file is required when TLS is enabled")
		}
	}

	// Validate logging level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

