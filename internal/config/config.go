package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures the full configuration surface for the application.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Scylla    ScyllaConfig    `mapstructure:"scylla"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Frequency FrequencyConfig `mapstructure:"frequency"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Token     TokenConfig     `mapstructure:"token"`
	Commerce  CommerceConfig  `mapstructure:"commerce"`
	Issuer    IssuerConfig    `mapstructure:"issuer"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

type ScyllaConfig struct {
	Hosts       []string      `mapstructure:"hosts"`
	Port        int           `mapstructure:"port"`
	Keyspace    string        `mapstructure:"keyspace"`
	Consistency string        `mapstructure:"consistency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers         []string      `mapstructure:"brokers"`
	ClientID        string        `mapstructure:"client_id"`
	EngagementTopic string        `mapstructure:"engagement_topic"`
	LeadTopic       string        `mapstructure:"lead_topic"`
	ConsumerGroupID string        `mapstructure:"consumer_group_id"`
	CommitInterval  time.Duration `mapstructure:"commit_interval"`
}

type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

type TelemetryConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	ServiceName     string        `mapstructure:"service_name"`
	SampleRatio     float64       `mapstructure:"sample_ratio"`
	TracingEnabled  bool          `mapstructure:"tracing_enabled"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// FrequencyConfig tunes the frequency-cap counter store.
type FrequencyConfig struct {
	KeyPrefix  string        `mapstructure:"key_prefix"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	DayTTL     time.Duration `mapstructure:"day_ttl"`
}

// RateLimitConfig tunes the per-shopper reward rate limit.
type RateLimitConfig struct {
	KeyPrefix    string        `mapstructure:"key_prefix"`
	MaxPerWindow int           `mapstructure:"max_per_window"`
	Window       time.Duration `mapstructure:"window"`
}

// TokenConfig tunes the single-use play token store.
type TokenConfig struct {
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// CommerceConfig configures the external commerce-platform API client.
type CommerceConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	APIVersion       string        `mapstructure:"api_version"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	BreakerThreshold uint32        `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
	UseMock          bool          `mapstructure:"use_mock"`
}

// IssuerConfig tunes the retroactive issuance worker.
type IssuerConfig struct {
	ScanInterval time.Duration `mapstructure:"scan_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	MinLeadAge   time.Duration `mapstructure:"min_lead_age"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvPrefix("POPUP")
	v.SetEnvKeyReplacer(NewEnvReplacer())

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file: %w", err)
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

// NewEnvReplacer standardizes environment variable names.
func NewEnvReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}

func applyDefaults(cfg *Config) {
	if cfg.Frequency.KeyPrefix == "" {
		cfg.Frequency.KeyPrefix = "freq"
	}
	if cfg.Frequency.SessionTTL <= 0 {
		cfg.Frequency.SessionTTL = 30 * time.Minute
	}
	if cfg.Frequency.DayTTL <= 0 {
		cfg.Frequency.DayTTL = 24 * time.Hour
	}
	if cfg.RateLimit.KeyPrefix == "" {
		cfg.RateLimit.KeyPrefix = "reward"
	}
	if cfg.RateLimit.MaxPerWindow <= 0 {
		cfg.RateLimit.MaxPerWindow = 1
	}
	if cfg.RateLimit.Window <= 0 {
		cfg.RateLimit.Window = 24 * time.Hour
	}
	if cfg.Token.KeyPrefix == "" {
		cfg.Token.KeyPrefix = "playtoken"
	}
	if cfg.Token.TTL <= 0 {
		cfg.Token.TTL = 10 * time.Minute
	}
	if cfg.Issuer.ScanInterval <= 0 {
		cfg.Issuer.ScanInterval = 5 * time.Minute
	}
	if cfg.Issuer.BatchSize <= 0 {
		cfg.Issuer.BatchSize = 100
	}
	if cfg.Issuer.MinLeadAge <= 0 {
		cfg.Issuer.MinLeadAge = 2 * time.Minute
	}
}
