package config

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Addr      string        `mapstructure:"addr"`
	Mode      string        `mapstructure:"mode"`
	OpTimeout time.Duration `mapstructure:"op_timeout" validate:"gt=0"`
	RateRPS   float64       `mapstructure:"rate_rps"`
	RateBurst int           `mapstructure:"rate_burst"`
}

type DatabaseConfig struct {
	DSN          string `mapstructure:"dsn" validate:"required"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret" validate:"required"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type FeedConfig struct {
	DefaultPageSize int           `mapstructure:"default_page_size" validate:"gt=0"`
	MaxPageSize     int           `mapstructure:"max_page_size" validate:"gt=0"`
	SearchLimit     int           `mapstructure:"search_limit"`
	DebounceWindow  time.Duration `mapstructure:"debounce_window"`
}

type ReconcileConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
	Workers   int           `mapstructure:"workers"`
}

type FanoutConfig struct {
	Workers      int           `mapstructure:"workers"`
	BatchSize    int           `mapstructure:"batch_size"`
	ClaimLimit   int           `mapstructure:"claim_limit"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// StaleAfter processing 状态的认领超过该时长未完成则放回 pending
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

type ReplicatorConfig struct {
	QueueSize int `mapstructure:"queue_size"`
	Workers   int `mapstructure:"workers"`
}

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Reconcile  ReconcileConfig  `mapstructure:"reconcile"`
	Fanout     FanoutConfig     `mapstructure:"fanout"`
	Replicator ReplicatorConfig `mapstructure:"replicator"`
	LogLevel   string           `mapstructure:"log_level"`
	SentryDSN  string           `mapstructure:"sentry_dsn"`
	OTLPAddr   string           `mapstructure:"otlp_addr"`
}

// Load 读取 config.yaml 并叠加 SOCIALFEED_* 环境变量
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("SOCIALFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.op_timeout", "5s")
	v.SetDefault("server.rate_rps", 200.0)
	v.SetDefault("server.rate_burst", 400)
	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=postgres port=5432 sslmode=disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", "30s")
	v.SetDefault("auth.jwt_secret", "dev-secret")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("feed.default_page_size", 20)
	v.SetDefault("feed.max_page_size", 100)
	v.SetDefault("feed.search_limit", 50)
	v.SetDefault("feed.debounce_window", "1s")
	v.SetDefault("reconcile.interval", "5m")
	v.SetDefault("reconcile.batch_size", 500)
	v.SetDefault("reconcile.workers", 4)
	v.SetDefault("fanout.workers", 4)
	v.SetDefault("fanout.batch_size", 500)
	v.SetDefault("fanout.claim_limit", 128)
	v.SetDefault("fanout.poll_interval", "50ms")
	v.SetDefault("fanout.stale_after", "1m")
	v.SetDefault("replicator.queue_size", 10000)
	v.SetDefault("replicator.workers", 4)
	v.SetDefault("log_level", "info")
}
