package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"benefits/pkg/platform/middleware/metadata"
)

// Server captures process level configuration.
type Server struct {
	Addr        string         `mapstructure:"addr"`
	Environment string         `mapstructure:"environment"`
	LogLevel    string         `mapstructure:"log_level"`
	HTTP        HTTPConfig     `mapstructure:"http"`
	Auth        AuthConfig     `mapstructure:"auth"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Kafka       KafkaConfig    `mapstructure:"kafka"`
}

// HTTPConfig holds listener timeouts.
type HTTPConfig struct {
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	// TrustedProxies are the CIDRs or addresses whose X-Forwarded-For and
	// X-Real-IP headers are believed. Empty means the peer address is the
	// client.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// AuthConfig controls token issuance and one-time login codes.
type AuthConfig struct {
	JWTSigningKey string        `mapstructure:"jwt_signing_key"`
	JWTIssuer     string        `mapstructure:"jwt_issuer"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	CodeTTL       time.Duration `mapstructure:"code_ttl"`
	// DevLoginCode, when set, replaces the random one-time code. Development only.
	DevLoginCode string `mapstructure:"dev_login_code"`
	// Lockout after repeated login failures; zero attempts disables it.
	LockoutAttempts int           `mapstructure:"lockout_attempts"`
	LockoutWindow   time.Duration `mapstructure:"lockout_window"`
	LockoutDuration time.Duration `mapstructure:"lockout_duration"`
	// LoginRateLimit caps login and verify requests per client IP per
	// minute; zero disables it.
	LoginRateLimit int `mapstructure:"login_rate_limit"`
}

// DatabaseConfig selects Postgres. An empty DSN runs on in-memory stores.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig backs the token revocation list. An empty URL keeps it in memory.
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig enables the audit outbox relay. No brokers disables it.
type KafkaConfig struct {
	Brokers       []string      `mapstructure:"brokers"`
	AuditTopic    string        `mapstructure:"audit_topic"`
	RelayInterval time.Duration `mapstructure:"relay_interval"`
	RelayBatch    int           `mapstructure:"relay_batch"`

	// ProduceTimeout bounds one broker round trip inside the relay's
	// transaction.
	ProduceTimeout time.Duration `mapstructure:"produce_timeout"`
}

// IsProduction is true outside development and test.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

const devSigningKey = "dev-secret-key-change-in-production"

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("http.read_header_timeout", 5*time.Second)
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.trusted_proxies", []string{})

	v.SetDefault("auth.jwt_signing_key", devSigningKey)
	v.SetDefault("auth.jwt_issuer", "benefits-portal")
	v.SetDefault("auth.token_ttl", 8*time.Hour)
	v.SetDefault("auth.code_ttl", 5*time.Minute)
	v.SetDefault("auth.dev_login_code", "")
	v.SetDefault("auth.lockout_attempts", 5)
	v.SetDefault("auth.lockout_window", 15*time.Minute)
	v.SetDefault("auth.lockout_duration", 15*time.Minute)
	v.SetDefault("auth.login_rate_limit", 30)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.audit_topic", "benefits.audit")
	v.SetDefault("kafka.relay_interval", 2*time.Second)
	v.SetDefault("kafka.relay_batch", 100)
	v.SetDefault("kafka.produce_timeout", 3*time.Second)
}

// Load reads an optional YAML file and overlays BENEFITS_* environment
// variables, e.g. BENEFITS_DATABASE_DSN or BENEFITS_AUTH_JWT_SIGNING_KEY.
func Load(configPath string) (Server, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BENEFITS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Server{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Server
	if err := v.Unmarshal(&cfg); err != nil {
		return Server{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.HTTP.TrustedProxies = splitList(cfg.HTTP.TrustedProxies)
	if err := cfg.validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// splitList undoes AutomaticEnv handing a list key over as one
// comma-separated string.
func splitList(values []string) []string {
	if len(values) == 1 && strings.Contains(values[0], ",") {
		return strings.Split(values[0], ",")
	}
	return values
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	return Load("")
}

func (s Server) validate() error {
	if s.IsProduction() {
		if s.Auth.JWTSigningKey == devSigningKey {
			return fmt.Errorf("auth.jwt_signing_key must be set in production")
		}
		if s.Auth.DevLoginCode != "" {
			return fmt.Errorf("auth.dev_login_code is not allowed in production")
		}
	}
	if s.Auth.TokenTTL <= 0 || s.Auth.CodeTTL <= 0 {
		return fmt.Errorf("auth ttls must be positive")
	}
	if s.Auth.LockoutAttempts > 0 && (s.Auth.LockoutWindow <= 0 || s.Auth.LockoutDuration <= 0) {
		return fmt.Errorf("auth lockout window and duration must be positive")
	}
	if _, err := metadata.ParseTrustedProxies(s.HTTP.TrustedProxies); err != nil {
		return fmt.Errorf("http.trusted_proxies: %w", err)
	}
	return nil
}
