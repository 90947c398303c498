package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "SGPT"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Storage   StorageConfig   `yaml:"storage" envconfig:"STORAGE"`
	Product   ProductConfig   `yaml:"product" envconfig:"PRODUCT"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	Notify    NotifyConfig    `yaml:"notify" envconfig:"NOTIFY"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"HOST"`
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" envconfig:"MAX_BODY_BYTES"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	// AdminKey is the shared admin secret. AdminKeyHash, a bcrypt hash, takes
	// precedence when both are set.
	AdminKey      string        `yaml:"admin_key" envconfig:"ADMIN_KEY"`
	AdminKeyHash  string        `yaml:"admin_key_hash" envconfig:"ADMIN_KEY_HASH"`
	WebhookSecret string        `yaml:"webhook_secret" envconfig:"WEBHOOK_SECRET"`
	Lockout       LockoutConfig `yaml:"lockout" envconfig:"LOCKOUT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LockoutConfig bounds failed admin authentication attempts per client.
type LockoutConfig struct {
	MaxAttempts   int           `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS"`
	BlockDuration time.Duration `yaml:"block_duration" envconfig:"BLOCK_DURATION"`
	Window        time.Duration `yaml:"window" envconfig:"WINDOW"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL"`
	Format      string `yaml:"format" envconfig:"FORMAT"`
	Output      string `yaml:"output" envconfig:"OUTPUT"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// StorageConfig selects the license store backend.
type StorageConfig struct {
	Backend     string        `yaml:"backend" envconfig:"BACKEND"`
	BoltPath    string        `yaml:"bolt_path" envconfig:"BOLT_PATH"`
	RedisURL    string        `yaml:"redis_url" envconfig:"REDIS_URL"`
	RedisPrefix string        `yaml:"redis_prefix" envconfig:"REDIS_PREFIX"`
	CacheTTL    time.Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL"`
	CacheSize   int           `yaml:"cache_size" envconfig:"CACHE_SIZE"`
}

// ProductConfig describes what is being licensed.
type ProductConfig struct {
	Name     string `yaml:"name" envconfig:"NAME"`
	Price    string `yaml:"price" envconfig:"PRICE"`
	Currency string `yaml:"currency" envconfig:"CURRENCY"`
	// PaidTerm and AdminTerm are license validity periods; zero means the
	// license never expires.
	PaidTerm       time.Duration `yaml:"paid_term" envconfig:"PAID_TERM"`
	AdminTerm      time.Duration `yaml:"admin_term" envconfig:"ADMIN_TERM"`
	StrictChecksum bool          `yaml:"strict_checksum" envconfig:"STRICT_CHECKSUM"`
	SeedDemo       bool          `yaml:"seed_demo" envconfig:"SEED_DEMO"`
}

// TelemetryConfig configures OpenTelemetry exporters.
type TelemetryConfig struct {
	ServiceName    string  `yaml:"service_name" envconfig:"SERVICE_NAME"`
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO"`
}

// NotifyConfig configures admin notifications. Telegram is used when a token
// is set; otherwise notices go to the log.
type NotifyConfig struct {
	TelegramToken  string `yaml:"telegram_token" envconfig:"TELEGRAM_TOKEN"`
	TelegramChatID int64  `yaml:"telegram_chat_id" envconfig:"TELEGRAM_CHAT_ID"`
}

// Load builds the configuration from defaults, then the YAML file if one is
// found, then SGPT_* environment variables.
func Load() (*Config, error) {
	return LoadFrom(getConfigFilePath())
}

// LoadFrom is Load with an explicit config file path. An empty path skips the
// file.
func LoadFrom(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file at filePath onto cfg.
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Security.EnableCORS && len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}

	switch strings.ToLower(c.Storage.Backend) {
	case "memory":
	case "bbolt", "bolt":
		if c.Storage.BoltPath == "" {
			return fmt.Errorf("storage bolt_path is required for the bbolt backend")
		}
	case "redis":
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("storage redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if c.Product.PaidTerm < 0 || c.Product.AdminTerm < 0 {
		return fmt.Errorf("license terms must not be negative")
	}

	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == 0 {
		return fmt.Errorf("notify telegram_chat_id is required with a telegram token")
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry sample_ratio must be within [0,1]")
	}

	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}

	switch c.Logging.Output {
	case "console", "file", "both":
	default:
		c.Logging.Output = "console"
	}

	if c.Logging.FilePath == "" {
		c.Logging.FilePath = DefaultLogFile
	}

	return nil
}

// HasAdminCredential reports whether admin endpoints can be unlocked.
func (c *Config) HasAdminCredential() bool {
	return c.Security.AdminKey != "" || c.Security.AdminKeyHash != ""
}

// Addr returns the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if p := os.Getenv(EnvPrefix + "_CONFIG_FILE"); p != "" {
		return p
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            DefaultPort,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  DefaultRequestTimeout,
			MaxBodyBytes:    DefaultMaxBodyBytes,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"*"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     DefaultRateLimit,
				Burst:   DefaultBurstSize,
			},
			Lockout: LockoutConfig{
				MaxAttempts:   MaxAdminAttempts,
				BlockDuration: AdminBlockDuration,
				Window:        AdminAttemptWindow,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: DefaultLogFile,
		},
		Storage: StorageConfig{
			Backend:     "memory",
			BoltPath:    DefaultBoltPath,
			RedisPrefix: "sgpt:",
			CacheSize:   10000,
		},
		Product: ProductConfig{
			Name:      ProductName,
			Price:     DefaultPrice,
			Currency:  DefaultCurrency,
			PaidTerm:  DefaultLicenseTerm,
			AdminTerm: DefaultLicenseTerm,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    ServiceName,
			Environment:    "development",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
		},
	}
}
