package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "DAVMIGRATE_"

// DefaultLedgerTable is the table that records uploaded files between runs
const DefaultLedgerTable = "LastFileUploadedToNextCloud"

// Config holds all configuration options for a migration run
type Config struct {
	Database      DatabaseConfig     `yaml:"database" json:"database"`
	Storage       StorageConfig      `yaml:"storage" json:"storage"`
	Upload        UploadConfig       `yaml:"upload" json:"upload"`
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`
	Logging       LoggingConfig      `yaml:"logging" json:"logging"`
}

// DatabaseConfig describes the record store that holds the attachments
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" json:"driver"`
	DSN             string        `yaml:"dsn" json:"dsn"`
	LedgerTable     string        `yaml:"ledger_table" json:"ledger_table"`
	MaxRows         int           `yaml:"max_rows" json:"max_rows"`
	BatchSize       int           `yaml:"batch_size" json:"batch_size"`
	ConnectAttempts int           `yaml:"connect_attempts" json:"connect_attempts"`
	ConnectDelay    time.Duration `yaml:"connect_delay" json:"connect_delay"`
}

// StorageConfig selects and configures the remote store
type StorageConfig struct {
	Backend           string        `yaml:"backend" json:"backend"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	WebDAV            WebDAVConfig  `yaml:"webdav" json:"webdav"`
	Minio             MinioConfig   `yaml:"minio" json:"minio"`
}

// WebDAVConfig holds the Nextcloud/WebDAV endpoint settings
type WebDAVConfig struct {
	URL      string `yaml:"url" json:"url"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	RootPath string `yaml:"root_path" json:"root_path"`
	// Account names stored credentials to use when Password is empty
	Account string `yaml:"account" json:"account"`
}

// MinioConfig holds the S3-compatible endpoint settings
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"secret_key"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	Prefix    string `yaml:"prefix" json:"prefix"`
	UseSSL    bool   `yaml:"use_ssl" json:"use_ssl"`
}

// UploadConfig holds the checkpoint policy and the entities to migrate
type UploadConfig struct {
	Entities             []string `yaml:"entities" json:"entities"`
	ClearLedgerAfter     bool     `yaml:"clear_ledger_after" json:"clear_ledger_after"`
	PersistUploadedAfter bool     `yaml:"persist_uploaded_after" json:"persist_uploaded_after"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	OnComplete bool `yaml:"on_complete" json:"on_complete"`
	OnError    bool `yaml:"on_error" json:"on_error"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "sqlserver",
			LedgerTable:     DefaultLedgerTable,
			MaxRows:         0, // 0 means no limit
			BatchSize:       100,
			ConnectAttempts: 3,
			ConnectDelay:    2 * time.Second,
		},
		Storage: StorageConfig{
			Backend:           "webdav",
			RequestsPerMinute: 0,
			Timeout:           5 * time.Minute,
			WebDAV: WebDAVConfig{
				RootPath: "/",
			},
			Minio: MinioConfig{
				UseSSL: true,
			},
		},
		Upload: UploadConfig{
			Entities:             []string{"Account", "Contact", "Contract"},
			ClearLedgerAfter:     false,
			PersistUploadedAfter: true,
		},
		Notifications: NotificationConfig{
			Enabled:    false,
			OnComplete: true,
			OnError:    true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(key string, dst *string) {
		if v := os.Getenv(envPrefix + key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(envPrefix + key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(envPrefix + key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	// Database
	setString("DB_DRIVER", &c.Database.Driver)
	setString("DB_DSN", &c.Database.DSN)
	setString("LEDGER_TABLE", &c.Database.LedgerTable)
	setInt("MAX_ROWS", &c.Database.MaxRows)

	// Storage
	setString("STORAGE_BACKEND", &c.Storage.Backend)
	setInt("REQUESTS_PER_MINUTE", &c.Storage.RequestsPerMinute)
	setString("WEBDAV_URL", &c.Storage.WebDAV.URL)
	setString("WEBDAV_USERNAME", &c.Storage.WebDAV.Username)
	setString("WEBDAV_PASSWORD", &c.Storage.WebDAV.Password)
	setString("WEBDAV_ROOT", &c.Storage.WebDAV.RootPath)
	setString("MINIO_ENDPOINT", &c.Storage.Minio.Endpoint)
	setString("MINIO_ACCESS_KEY", &c.Storage.Minio.AccessKey)
	setString("MINIO_SECRET_KEY", &c.Storage.Minio.SecretKey)
	setString("MINIO_BUCKET", &c.Storage.Minio.Bucket)

	// Upload policy
	if entities := os.Getenv(envPrefix + "ENTITIES"); entities != "" {
		c.Upload.Entities = splitList(entities)
	}
	setBool("CLEAR_LEDGER_AFTER", &c.Upload.ClearLedgerAfter)
	setBool("PERSIST_UPLOADED_AFTER", &c.Upload.PersistUploadedAfter)

	setBool("NOTIFICATIONS_ENABLED", &c.Notifications.Enabled)
	setString("LOG_LEVEL", &c.Logging.Level)
	setString("LOG_FILE", &c.Logging.File)

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".davmigrate.yaml",
		".davmigrate.yml",
		filepath.Join(home, ".config", "davmigrate", "config.yaml"),
		filepath.Join(home, ".config", "davmigrate", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "sqlserver", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database DSN is required"))
	}
	if c.Database.LedgerTable == "" {
		errs = append(errs, errors.New("ledger table name is required"))
	}
	if c.Database.MaxRows < 0 {
		errs = append(errs, errors.New("max rows cannot be negative"))
	}
	if c.Database.BatchSize <= 0 {
		errs = append(errs, errors.New("batch size must be positive"))
	}
	if c.Database.ConnectAttempts < 1 {
		errs = append(errs, errors.New("connect attempts must be at least 1"))
	}

	if c.Storage.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}
	switch c.Storage.Backend {
	case "webdav":
		if c.Storage.WebDAV.URL == "" {
			errs = append(errs, errors.New("webdav url is required"))
		}
	case "minio":
		if c.Storage.Minio.Endpoint == "" {
			errs = append(errs, errors.New("minio endpoint is required"))
		}
		if c.Storage.Minio.Bucket == "" {
			errs = append(errs, errors.New("minio bucket is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage backend %q", c.Storage.Backend))
	}

	if len(c.Upload.Entities) == 0 {
		errs = append(errs, errors.New("at least one entity is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only keys present in the map are applied.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["max-rows"].(int); ok && v >= 0 {
		c.Database.MaxRows = v
	}
	if v, ok := flags["clear-ledger-after"].(bool); ok {
		c.Upload.ClearLedgerAfter = v
	}
	if v, ok := flags["persist-uploaded"].(bool); ok {
		c.Upload.PersistUploadedAfter = v
	}
	if v, ok := flags["entities"].([]string); ok && len(v) > 0 {
		c.Upload.Entities = v
	}
	if v, ok := flags["account"].(string); ok && v != "" {
		c.Storage.WebDAV.Account = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Masked returns a copy with secrets replaced, for display
func (c *Config) Masked() *Config {
	out := *c
	out.Upload.Entities = append([]string(nil), c.Upload.Entities...)
	out.Database.DSN = maskDSN(c.Database.DSN)
	out.Storage.WebDAV.Password = mask(c.Storage.WebDAV.Password)
	out.Storage.Minio.SecretKey = mask(c.Storage.Minio.SecretKey)
	return &out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

// maskDSN hides the password=... part of a key/value or URL style DSN
func maskDSN(dsn string) string {
	lower := strings.ToLower(dsn)
	i := strings.Index(lower, "password=")
	if i < 0 {
		return dsn
	}
	start := i + len("password=")
	end := strings.IndexAny(dsn[start:], ";&")
	if end < 0 {
		return dsn[:start] + "********"
	}
	return dsn[:start] + "********" + dsn[start+end:]
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// .env files are optional
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".davmigrate.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
