package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Content  ContentConfig  `mapstructure:"content"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Interest InterestConfig `mapstructure:"interest"`
	Trending TrendingConfig `mapstructure:"trending"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	Log      LogConfig      `mapstructure:"log"`
	Sentry   SentryConfig   `mapstructure:"sentry"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimitRPS    float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres | sqlite
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogLevel        string        `mapstructure:"log_level"`
}

type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	TrendingTTL time.Duration `mapstructure:"trending_ttl"`
	HiddenTTL   time.Duration `mapstructure:"hidden_ttl"`
}

type KafkaConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Brokers        []string `mapstructure:"brokers"`
	PostTopic      string   `mapstructure:"post_topic"`
	RelationTopic  string   `mapstructure:"relation_topic"`
	GroupID        string   `mapstructure:"group_id"`
	DispatchQueue  int      `mapstructure:"dispatch_queue"`
	DispatchWorker int      `mapstructure:"dispatch_workers"`
}

type ContentConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	Timeout            time.Duration `mapstructure:"timeout"`
	BreakerMaxRequests uint32        `mapstructure:"breaker_max_requests"`
	BreakerInterval    time.Duration `mapstructure:"breaker_interval"`
	BreakerTimeout     time.Duration `mapstructure:"breaker_timeout"`
	BreakerMinRequests uint32        `mapstructure:"breaker_min_requests"`
	BreakerFailRatio   float64       `mapstructure:"breaker_fail_ratio"`
}

// FeedConfig 读路径与扇出参数
type FeedConfig struct {
	EntryMaxAgeDays      int     `mapstructure:"entry_max_age_days"`
	FanoutBatchSize      int     `mapstructure:"fanout_batch_size"`
	MaxPageSize          int     `mapstructure:"max_page_size"`
	ForYouFollowingRatio float64 `mapstructure:"for_you_following_ratio"`
	ForYouSuggestedRatio float64 `mapstructure:"for_you_suggested_ratio"`
	ForYouTrendingRatio  float64 `mapstructure:"for_you_trending_ratio"`
	ExploreTrendingRatio float64 `mapstructure:"explore_trending_ratio"`
	ExploreSuggestRatio  float64 `mapstructure:"explore_suggested_ratio"`
}

// InterestConfig 兴趣模型参数
type InterestConfig struct {
	Weights            map[string]float64 `mapstructure:"weights"`
	DefaultWeight      float64            `mapstructure:"default_weight"`
	HashtagMultiplier  float64            `mapstructure:"hashtag_multiplier"`
	SellerMultiplier   float64            `mapstructure:"seller_multiplier"`
	DecayFactor        float64            `mapstructure:"decay_factor"`
	Floor              float64            `mapstructure:"floor"`
	StaleAfter         time.Duration      `mapstructure:"stale_after"`
	SuggestionInterest int                `mapstructure:"suggestion_interest_limit"`
}

// TrendingConfig 热榜参数
type TrendingConfig struct {
	TopContent    int `mapstructure:"top_content"`
	TopHashtags   int `mapstructure:"top_hashtags"`
	RetentionDays int `mapstructure:"retention_days"`
}

// JobsConfig 周期任务调度
type JobsConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	HourlyTrending   time.Duration `mapstructure:"hourly_trending"`
	DailyTrending    time.Duration `mapstructure:"daily_trending"`
	LongTrending     time.Duration `mapstructure:"long_trending"`
	Hashtags         time.Duration `mapstructure:"hashtags"`
	Sweep            time.Duration `mapstructure:"sweep"`
	TrendingCleanup  time.Duration `mapstructure:"trending_cleanup"`
	InterestDecay    time.Duration `mapstructure:"interest_decay"`
	RunTimeout       time.Duration `mapstructure:"run_timeout"`
	FailureThreshold float64       `mapstructure:"failure_threshold"`
	FailureBackoff   time.Duration `mapstructure:"failure_backoff"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | console
}

type SentryConfig struct {
	DSN              string  `mapstructure:"dsn"`
	TracesSampleRate float64 `mapstructure:"traces_sample_rate"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load 读取配置：config.yaml + FEED_ 前缀环境变量
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"./config", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("FEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回仅包含默认值的配置（测试与 CLI 使用）
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate 检查配置取值范围
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Feed.EntryMaxAgeDays <= 0 {
		return errors.New("feed.entry_max_age_days must be positive")
	}
	if c.Interest.DecayFactor <= 0 || c.Interest.DecayFactor >= 1 {
		return errors.New("interest.decay_factor must be in (0,1)")
	}
	if c.Trending.TopContent <= 0 || c.Trending.TopHashtags <= 0 {
		return errors.New("trending top-K must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "feed-engine")
	v.SetDefault("app.env", "development")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.rate_limit_rps", 200.0)
	v.SetDefault("server.rate_limit_burst", 400)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=feed port=5432 sslmode=disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.trending_ttl", 2*time.Hour)
	v.SetDefault("redis.hidden_ttl", 5*time.Minute)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.post_topic", "content.posts")
	v.SetDefault("kafka.relation_topic", "social.relations")
	v.SetDefault("kafka.group_id", "feed-engine")
	v.SetDefault("kafka.dispatch_queue", 10000)
	v.SetDefault("kafka.dispatch_workers", 4)

	v.SetDefault("content.base_url", "http://127.0.0.1:8081")
	v.SetDefault("content.timeout", 3*time.Second)
	v.SetDefault("content.breaker_max_requests", 3)
	v.SetDefault("content.breaker_interval", time.Minute)
	v.SetDefault("content.breaker_timeout", 30*time.Second)
	v.SetDefault("content.breaker_min_requests", 10)
	v.SetDefault("content.breaker_fail_ratio", 0.6)

	v.SetDefault("feed.entry_max_age_days", 30)
	v.SetDefault("feed.fanout_batch_size", 1000)
	v.SetDefault("feed.max_page_size", 100)
	v.SetDefault("feed.for_you_following_ratio", 0.6)
	v.SetDefault("feed.for_you_suggested_ratio", 0.3)
	v.SetDefault("feed.for_you_trending_ratio", 0.1)
	v.SetDefault("feed.explore_trending_ratio", 0.6)
	v.SetDefault("feed.explore_suggested_ratio", 0.4)

	v.SetDefault("interest.weights", map[string]float64{
		"view":          0.1,
		"dwell":         0.2,
		"like":          0.5,
		"comment":       0.7,
		"save":          0.8,
		"share":         0.9,
		"click_product": 0.6,
		"purchase":      1.0,
		"follow":        0.7,
	})
	v.SetDefault("interest.default_weight", 0.1)
	v.SetDefault("interest.hashtag_multiplier", 0.5)
	v.SetDefault("interest.seller_multiplier", 0.3)
	v.SetDefault("interest.decay_factor", 0.9)
	v.SetDefault("interest.floor", 0.01)
	v.SetDefault("interest.stale_after", 7*24*time.Hour)
	v.SetDefault("interest.suggestion_interest_limit", 20)

	v.SetDefault("trending.top_content", 100)
	v.SetDefault("trending.top_hashtags", 50)
	v.SetDefault("trending.retention_days", 7)

	v.SetDefault("jobs.enabled", true)
	v.SetDefault("jobs.hourly_trending", time.Hour)
	v.SetDefault("jobs.daily_trending", 6*time.Hour)
	v.SetDefault("jobs.long_trending", 24*time.Hour)
	v.SetDefault("jobs.hashtags", 24*time.Hour)
	v.SetDefault("jobs.sweep", time.Hour)
	v.SetDefault("jobs.trending_cleanup", 24*time.Hour)
	v.SetDefault("jobs.interest_decay", 7*24*time.Hour)
	v.SetDefault("jobs.run_timeout", 10*time.Minute)
	v.SetDefault("jobs.failure_threshold", 5.0)
	v.SetDefault("jobs.failure_backoff", 15*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("sentry.traces_sample_rate", 0.0)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_ratio", 0.1)
}
