package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Log          LogConfig
	Event        EventConfig
	HTTP         HTTPConfig
	Telemetry    TelemetryConfig
	Sync         SyncConfig
	Notification NotificationConfig
	Broker       BrokerConfig
	Webhook      WebhookConfig
	Archive      ArchiveConfig
	Platforms    []PlatformConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds the settings used to verify admin tokens. Tokens are issued
// elsewhere; this service only checks them.
type JWTConfig struct {
	Secret string
	Issuer string
}

// EventConfig holds event processing configuration
type EventConfig struct {
	ProcessorEnabled bool
	BatchSize        int
	PollInterval     time.Duration
	MaxRetries       int
	CleanupEnabled   bool
	CleanupRetention time.Duration
	IdempotencyTTL   time.Duration
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only, disable in prod for security)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings (default: 200ms)
	MetricsEnabled    bool          // Expose Prometheus metrics at /metrics
	LogsEnabled       bool          // Also ship logs to the collector over OTLP
	// Continuous profiling (Pyroscope)
	ProfilingEnabled  bool
	ProfilingAddress  string // e.g. http://pyroscope:4040
	ProfilingUser     string
	ProfilingPassword string
}

// SyncConfig holds reconciliation settings shared by every platform
type SyncConfig struct {
	KillSwitch        bool // true stops all outbound propagation
	RequestsPerSecond float64
	Burst             int
	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
	RetryMultiplier   float64
	RequestTimeout    time.Duration
	EchoWindow        time.Duration // how long an outbound write suppresses its webhook echo
	DeliveryDedupTTL  time.Duration
	DeleteDedupTTL    time.Duration
	LookupCacheSize   int
	LookupCacheTTL    time.Duration
	ResyncCron        string // empty disables the failed-attempt sweep
	ResyncLookback    time.Duration
	ResyncBatchSize   int
	AttemptRetention  time.Duration
}

// NotificationConfig holds notification dedup settings
type NotificationConfig struct {
	DedupWindow time.Duration
	Retention   time.Duration
	CleanupCron string
}

// ArchiveConfig holds the S3-compatible bucket pruned sync attempts are
// written to before deletion
type ArchiveConfig struct {
	Enabled      bool
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UsePathStyle bool // required by MinIO-style servers
	Prefix       string
}

// BrokerConfig holds RabbitMQ settings for sync attempt publishing
type BrokerConfig struct {
	Enabled        bool
	URL            string
	Exchange       string
	PublishTimeout time.Duration
}

// WebhookConfig holds inbound webhook settings
type WebhookConfig struct {
	MaxBodySize      int64
	RequireSignature bool
}

// PlatformConfig holds the settings of one external platform
type PlatformConfig struct {
	Code              string        `mapstructure:"code" validate:"required,max=50,excludesall=/:"`
	Kind              string        `mapstructure:"kind" validate:"required,oneof=commerce notes"`
	BaseURL           string        `mapstructure:"base_url" validate:"omitempty,url"`
	Key               string        `mapstructure:"key"`
	Secret            string        `mapstructure:"secret"`
	WebhookSecret     string        `mapstructure:"webhook_secret"`
	DatabaseID        string        `mapstructure:"database_id"`
	Enabled           bool          `mapstructure:"enabled"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int           `mapstructure:"burst" validate:"gte=0"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gte=0"`
	EntityKinds       []string      `mapstructure:"entity_kinds" validate:"dive,oneof=PRODUCT TERM CUSTOMER COUPON ORDER"`
}

// HasCredentials reports whether the credentials of the platform kind are set
func (p PlatformConfig) HasCredentials() bool {
	switch p.Kind {
	case "commerce":
		return p.Key != "" && p.Secret != ""
	case "notes":
		return p.Secret != "" && p.DatabaseID != ""
	default:
		return false
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with CATSYNC_ prefix (e.g., CATSYNC_DATABASE_PASSWORD)
// 2. .env file in the working directory (loaded into the environment, never overriding it)
// 3. config.toml
// 4. Built-in defaults
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	// Set config file settings
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	// Enable environment variable override
	v.SetEnvPrefix("CATSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	platforms, err := loadPlatforms(v)
	if err != nil {
		return nil, err
	}

	// Build config struct
	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			Issuer: v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Event: EventConfig{
			ProcessorEnabled: v.GetBool("event.processor_enabled"),
			BatchSize:        v.GetInt("event.batch_size"),
			PollInterval:     v.GetDuration("event.poll_interval"),
			MaxRetries:       v.GetInt("event.max_retries"),
			CleanupEnabled:   v.GetBool("event.cleanup_enabled"),
			CleanupRetention: v.GetDuration("event.cleanup_retention"),
			IdempotencyTTL:   v.GetDuration("event.idempotency_ttl"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			ProfilingAddress:  v.GetString("telemetry.profiling_address"),
			ProfilingUser:     v.GetString("telemetry.profiling_user"),
			ProfilingPassword: v.GetString("telemetry.profiling_password"),
		},
		Sync: SyncConfig{
			KillSwitch:        v.GetBool("sync.kill_switch"),
			RequestsPerSecond: v.GetFloat64("sync.requests_per_second"),
			Burst:             v.GetInt("sync.burst"),
			RetryMaxAttempts:  v.GetInt("sync.retry_max_attempts"),
			RetryInitialDelay: v.GetDuration("sync.retry_initial_delay"),
			RetryMaxDelay:     v.GetDuration("sync.retry_max_delay"),
			RetryMultiplier:   v.GetFloat64("sync.retry_multiplier"),
			RequestTimeout:    v.GetDuration("sync.request_timeout"),
			EchoWindow:        v.GetDuration("sync.echo_window"),
			DeliveryDedupTTL:  v.GetDuration("sync.delivery_dedup_ttl"),
			DeleteDedupTTL:    v.GetDuration("sync.delete_dedup_ttl"),
			LookupCacheSize:   v.GetInt("sync.lookup_cache_size"),
			LookupCacheTTL:    v.GetDuration("sync.lookup_cache_ttl"),
			ResyncCron:        v.GetString("sync.resync_cron"),
			ResyncLookback:    v.GetDuration("sync.resync_lookback"),
			ResyncBatchSize:   v.GetInt("sync.resync_batch_size"),
			AttemptRetention:  v.GetDuration("sync.attempt_retention"),
		},
		Notification: NotificationConfig{
			DedupWindow: v.GetDuration("notification.dedup_window"),
			Retention:   v.GetDuration("notification.retention"),
			CleanupCron: v.GetString("notification.cleanup_cron"),
		},
		Broker: BrokerConfig{
			Enabled:        v.GetBool("broker.enabled"),
			URL:            v.GetString("broker.url"),
			Exchange:       v.GetString("broker.exchange"),
			PublishTimeout: v.GetDuration("broker.publish_timeout"),
		},
		Webhook: WebhookConfig{
			MaxBodySize:      v.GetInt64("webhook.max_body_size"),
			RequireSignature: v.GetBool("webhook.require_signature"),
		},
		Archive: ArchiveConfig{
			Enabled:      v.GetBool("archive.enabled"),
			Endpoint:     v.GetString("archive.endpoint"),
			Region:       v.GetString("archive.region"),
			Bucket:       v.GetString("archive.bucket"),
			AccessKey:    v.GetString("archive.access_key"),
			SecretKey:    v.GetString("archive.secret_key"),
			UseSSL:       v.GetBool("archive.use_ssl"),
			UsePathStyle: v.GetBool("archive.use_path_style"),
			Prefix:       v.GetString("archive.prefix"),
		},
		Platforms: platforms,
	}

	// Apply defaults for empty values
	applyDefaults(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadPlatforms reads [[platforms]] tables from the config file plus platforms
// declared only in the environment through CATSYNC_SYNC_PLATFORMS ("shop:commerce,wiki:notes").
// Per-platform values can be overridden with CATSYNC_PLATFORM_<CODE>_<FIELD>.
func loadPlatforms(v *viper.Viper) ([]PlatformConfig, error) {
	var platforms []PlatformConfig
	if err := v.UnmarshalKey("platforms", &platforms); err != nil {
		return nil, fmt.Errorf("error reading platforms: %w", err)
	}

	known := make(map[string]int, len(platforms))
	for i, p := range platforms {
		known[p.Code] = i
	}
	for _, decl := range v.GetStringSlice("sync.platforms") {
		for _, item := range strings.Split(decl, ",") {
			code, kind, _ := strings.Cut(strings.TrimSpace(item), ":")
			if code == "" {
				continue
			}
			if _, ok := known[code]; ok {
				continue
			}
			if kind == "" {
				kind = "commerce"
			}
			known[code] = len(platforms)
			platforms = append(platforms, PlatformConfig{Code: code, Kind: kind, Enabled: true})
		}
	}

	for i := range platforms {
		p := &platforms[i]
		prefix := "platform." + strings.ToLower(p.Code) + "."
		if s := v.GetString(prefix + "base_url"); s != "" {
			p.BaseURL = s
		}
		if s := v.GetString(prefix + "key"); s != "" {
			p.Key = s
		}
		if s := v.GetString(prefix + "secret"); s != "" {
			p.Secret = s
		}
		if s := v.GetString(prefix + "webhook_secret"); s != "" {
			p.WebhookSecret = s
		}
		if s := v.GetString(prefix + "database_id"); s != "" {
			p.DatabaseID = s
		}
		if v.IsSet(prefix + "enabled") {
			p.Enabled = v.GetBool(prefix + "enabled")
		}
		for j, k := range p.EntityKinds {
			p.EntityKinds[j] = strings.ToUpper(k)
		}
	}
	return platforms, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "catalogsync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "catalogsync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "catalog-admin"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Event.BatchSize == 0 {
		cfg.Event.BatchSize = 100
	}
	if cfg.Event.PollInterval == 0 {
		cfg.Event.PollInterval = 2 * time.Second
	}
	if cfg.Event.MaxRetries == 0 {
		cfg.Event.MaxRetries = 5
	}
	if cfg.Event.CleanupRetention == 0 {
		cfg.Event.CleanupRetention = 168 * time.Hour
	}
	if cfg.Event.IdempotencyTTL == 0 {
		cfg.Event.IdempotencyTTL = 72 * time.Hour
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20 // 10MB
	}
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}

	// Telemetry defaults
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "catalogsync"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}

	// Sync defaults: 2 req/s per platform with a small burst
	if cfg.Sync.RequestsPerSecond == 0 {
		cfg.Sync.RequestsPerSecond = 2
	}
	if cfg.Sync.Burst == 0 {
		cfg.Sync.Burst = 3
	}
	if cfg.Sync.RetryMaxAttempts == 0 {
		cfg.Sync.RetryMaxAttempts = 5
	}
	if cfg.Sync.RetryInitialDelay == 0 {
		cfg.Sync.RetryInitialDelay = 500 * time.Millisecond
	}
	if cfg.Sync.RetryMaxDelay == 0 {
		cfg.Sync.RetryMaxDelay = 10 * time.Second
	}
	if cfg.Sync.RetryMultiplier == 0 {
		cfg.Sync.RetryMultiplier = 2
	}
	if cfg.Sync.RequestTimeout == 0 {
		cfg.Sync.RequestTimeout = 15 * time.Second
	}
	if cfg.Sync.EchoWindow == 0 {
		cfg.Sync.EchoWindow = 2 * time.Minute
	}
	if cfg.Sync.DeliveryDedupTTL == 0 {
		cfg.Sync.DeliveryDedupTTL = 72 * time.Hour
	}
	if cfg.Sync.DeleteDedupTTL == 0 {
		cfg.Sync.DeleteDedupTTL = 30 * 24 * time.Hour
	}
	if cfg.Sync.LookupCacheSize == 0 {
		cfg.Sync.LookupCacheSize = 1024
	}
	if cfg.Sync.LookupCacheTTL == 0 {
		cfg.Sync.LookupCacheTTL = 10 * time.Minute
	}
	if cfg.Sync.ResyncLookback == 0 {
		cfg.Sync.ResyncLookback = 24 * time.Hour
	}
	if cfg.Sync.ResyncBatchSize == 0 {
		cfg.Sync.ResyncBatchSize = 100
	}
	if cfg.Sync.AttemptRetention == 0 {
		cfg.Sync.AttemptRetention = 30 * 24 * time.Hour
	}

	if cfg.Notification.DedupWindow == 0 {
		cfg.Notification.DedupWindow = 180 * 24 * time.Hour
	}
	if cfg.Notification.Retention == 0 {
		cfg.Notification.Retention = 365 * 24 * time.Hour
	}
	if cfg.Notification.CleanupCron == "" {
		cfg.Notification.CleanupCron = "0 3 * * *"
	}

	if cfg.Broker.Exchange == "" {
		cfg.Broker.Exchange = "catalog.sync"
	}
	if cfg.Broker.PublishTimeout == 0 {
		cfg.Broker.PublishTimeout = 5 * time.Second
	}

	if cfg.Webhook.MaxBodySize == 0 {
		cfg.Webhook.MaxBodySize = 1 << 20 // 1MB
	}

	if cfg.Archive.Region == "" {
		cfg.Archive.Region = "us-east-1"
	}
	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = "sync-attempts"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	// Validate connection pool settings
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.ProfilingEnabled && c.Telemetry.ProfilingAddress == "" {
		return fmt.Errorf("telemetry.profiling_address is required when telemetry.profiling_enabled is true")
	}
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	if c.Sync.RequestsPerSecond < 0 {
		return fmt.Errorf("sync.requests_per_second cannot be negative")
	}
	if c.Sync.RetryMaxAttempts < 1 {
		return fmt.Errorf("sync.retry_max_attempts must be at least 1")
	}
	if c.Sync.RetryMultiplier < 1 {
		return fmt.Errorf("sync.retry_multiplier must be at least 1, got %f", c.Sync.RetryMultiplier)
	}
	if c.Sync.RetryMaxDelay < c.Sync.RetryInitialDelay {
		return fmt.Errorf("sync.retry_max_delay (%s) cannot be less than sync.retry_initial_delay (%s)",
			c.Sync.RetryMaxDelay, c.Sync.RetryInitialDelay)
	}
	if c.Notification.Retention < c.Notification.DedupWindow {
		return fmt.Errorf("notification.retention (%s) cannot be shorter than notification.dedup_window (%s)",
			c.Notification.Retention, c.Notification.DedupWindow)
	}
	if c.Broker.Enabled && c.Broker.URL == "" {
		return fmt.Errorf("broker.url is required when broker.enabled is true")
	}
	if c.Archive.Enabled && (c.Archive.Bucket == "" || c.Archive.AccessKey == "" || c.Archive.SecretKey == "") {
		return fmt.Errorf("archive.bucket, archive.access_key and archive.secret_key are required when archive.enabled is true")
	}

	seen := make(map[string]struct{}, len(c.Platforms))
	for i := range c.Platforms {
		p := c.Platforms[i]
		if err := validate.Struct(p); err != nil {
			return fmt.Errorf("platforms[%d] (%s): %w", i, p.Code, err)
		}
		if _, dup := seen[p.Code]; dup {
			return fmt.Errorf("platform %q is configured twice", p.Code)
		}
		seen[p.Code] = struct{}{}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
