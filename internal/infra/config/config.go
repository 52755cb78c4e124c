package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "CHAT"

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	GRPC      GRPCSettings      `mapstructure:"grpc"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Guard     GuardSettings     `mapstructure:"guard"`
}

type AppSettings struct {
	Name            string        `mapstructure:"name"`
	Env             string        `mapstructure:"env"`
	LogLevel        string        `mapstructure:"log_level"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type GRPCSettings struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	AutoMigrate       bool          `mapstructure:"auto_migrate"`
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	DB         int           `mapstructure:"db"`
	Password   string        `mapstructure:"password"`
	TLSEnabled bool          `mapstructure:"tls_enabled"`
	KeyPrefix  string        `mapstructure:"key_prefix"`
	PoolSize   int           `mapstructure:"pool_size"`
	OpTimeout  time.Duration `mapstructure:"op_timeout"`
}

// KafkaSettings configures the moderation event producer. An empty broker list disables publishing.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

// JWTSettings configures ID token verification against the identity provider.
type JWTSettings struct {
	JWKSURL             string        `mapstructure:"jwks_url"`
	KeyDirectory        string        `mapstructure:"key_directory"`
	Issuer              string        `mapstructure:"issuer"`
	Audience            string        `mapstructure:"audience"`
	Leeway              time.Duration `mapstructure:"leeway"`
	JWKSRefreshInterval time.Duration `mapstructure:"jwks_refresh_interval"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	Insecure     bool    `mapstructure:"insecure"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// RateLimitSettings configures the sliding windows applied per client address.
type RateLimitSettings struct {
	WindowDuration   time.Duration `mapstructure:"window_duration"`
	GuardMaxAttempts int           `mapstructure:"guard_max_attempts"`
	AdminMaxAttempts int           `mapstructure:"admin_max_attempts"`
}

// GuardSettings configures the network abuse guard.
type GuardSettings struct {
	MaxAccountsPerIP int `mapstructure:"max_accounts_per_ip"`
}

var envKeys = []string{
	"app.name",
	"app.env",
	"app.log_level",
	"app.host",
	"app.port",
	"app.allowed_origins",
	"app.trusted_proxies",
	"app.shutdown_timeout",
	"grpc.host",
	"grpc.port",
	"postgres.host",
	"postgres.port",
	"postgres.user",
	"postgres.password",
	"postgres.database",
	"postgres.ssl_mode",
	"postgres.max_conns",
	"postgres.min_conns",
	"postgres.max_conn_lifetime",
	"postgres.max_conn_idle_time",
	"postgres.health_check_period",
	"postgres.auto_migrate",
	"redis.host",
	"redis.port",
	"redis.db",
	"redis.password",
	"redis.tls_enabled",
	"redis.key_prefix",
	"redis.pool_size",
	"redis.op_timeout",
	"kafka.brokers",
	"kafka.topic_prefix",
	"jwt.jwks_url",
	"jwt.key_directory",
	"jwt.issuer",
	"jwt.audience",
	"jwt.leeway",
	"jwt.jwks_refresh_interval",
	"telemetry.otlp_endpoint",
	"telemetry.insecure",
	"telemetry.service_name",
	"telemetry.sampling_rate",
	"rate_limit.window_duration",
	"rate_limit.guard_max_attempts",
	"rate_limit.admin_max_attempts",
	"guard.max_accounts_per_ip",
}

// Load reads configuration from defaults, an optional file named by CHAT_CONFIG_FILE and the environment.
func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)

	setDefaults(v)

	if path := strings.TrimSpace(os.Getenv(envPrefix + "_CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	if err := bindEnvs(v, envKeys); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the service cannot start with.
func (c *AppConfig) Validate() error {
	var errs []error

	if strings.TrimSpace(c.JWT.JWKSURL) == "" && strings.TrimSpace(c.JWT.KeyDirectory) == "" {
		errs = append(errs, errors.New("jwt.jwks_url or jwt.key_directory is required"))
	}
	if strings.TrimSpace(c.JWT.Issuer) == "" {
		errs = append(errs, errors.New("jwt.issuer is required"))
	}
	if strings.TrimSpace(c.JWT.Audience) == "" {
		errs = append(errs, errors.New("jwt.audience is required"))
	}
	for _, proxy := range c.App.TrustedProxies {
		if !validProxy(proxy) {
			errs = append(errs, fmt.Errorf("app.trusted_proxies entry %q is not an IP or CIDR", proxy))
		}
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("app.port %d out of range", c.App.Port))
	}
	if c.Guard.MaxAccountsPerIP < 1 || c.Guard.MaxAccountsPerIP > 1000 {
		errs = append(errs, fmt.Errorf("guard.max_accounts_per_ip must be between 1 and 1000, got %d", c.Guard.MaxAccountsPerIP))
	}
	if c.RateLimit.WindowDuration <= 0 {
		errs = append(errs, errors.New("rate_limit.window_duration must be positive"))
	}
	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sampling_rate must be within [0,1], got %v", c.Telemetry.SamplingRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func validProxy(entry string) bool {
	entry = strings.TrimSpace(entry)
	if _, err := netip.ParsePrefix(entry); err == nil {
		return true
	}
	_, err := netip.ParseAddr(entry)
	return err == nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "chat-moderation")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.allowed_origins", []string{})
	v.SetDefault("app.trusted_proxies", []string{})
	v.SetDefault("app.shutdown_timeout", "10s")

	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "chat")
	v.SetDefault("postgres.password", "chat_password")
	v.SetDefault("postgres.database", "chat")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")
	v.SetDefault("postgres.auto_migrate", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.key_prefix", "chat:ratelimit")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.op_timeout", "3s")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "chat")

	v.SetDefault("jwt.jwks_url", "")
	v.SetDefault("jwt.key_directory", "./secrets")
	v.SetDefault("jwt.issuer", "")
	v.SetDefault("jwt.audience", "")
	v.SetDefault("jwt.leeway", "30s")
	v.SetDefault("jwt.jwks_refresh_interval", "1h")

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.service_name", "chat-moderation")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.guard_max_attempts", 30)
	v.SetDefault("rate_limit.admin_max_attempts", 60)

	v.SetDefault("guard.max_accounts_per_ip", 3)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envPrefix+"_"+envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
