package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	CORS      CORSConfig
	Log       LogConfig
	UWAPI     UWAPIConfig
	Scheduler SchedulerConfig
	History   HistoryConfig
	Cache     CacheConfig
	Exports   ExportsConfig
	RateLimit RateLimitConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// UWAPIConfig points at the University of Waterloo Open Data API and the exam schedule page.
type UWAPIConfig struct {
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	RatePerSecond   float64
	Burst           int
	ExamURLTemplate string
	ExamDateOrder   string
}

// SchedulerConfig bounds the conflict search and controls exam grouping.
type SchedulerConfig struct {
	FetchConcurrency int
	SearchTimeout    time.Duration
	MaxExploredNodes int
	MaxResults       int
	ExamPolicy       string
}

// HistoryConfig toggles request history persistence.
type HistoryConfig struct {
	Enabled           bool
	DefaultLimit      int
	WorkerConcurrency int
	WorkerRetries     int
}

// CacheConfig governs the course session cache.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// ExportsConfig toggles CSV/PDF schedule downloads.
type ExportsConfig struct {
	Enabled bool
}

// RateLimitConfig throttles inbound requests per client IP.
type RateLimitConfig struct {
	Enabled   bool
	PerMinute int
	Burst     int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.UWAPI = UWAPIConfig{
		BaseURL:         strings.TrimRight(v.GetString("UW_API_BASE_URL"), "/"),
		APIKey:          v.GetString("UW_API_KEY"),
		Timeout:         parseDuration(v.GetString("UW_API_TIMEOUT"), 10*time.Second),
		RatePerSecond:   v.GetFloat64("UW_API_RATE_PER_SECOND"),
		Burst:           v.GetInt("UW_API_BURST"),
		ExamURLTemplate: v.GetString("UW_EXAM_URL_TEMPLATE"),
		ExamDateOrder:   strings.ToUpper(v.GetString("EXAM_DATE_ORDER")),
	}

	fetchConcurrency := v.GetInt("SCHEDULER_FETCH_CONCURRENCY")
	if fetchConcurrency <= 0 {
		fetchConcurrency = 4
	}
	cfg.Scheduler = SchedulerConfig{
		FetchConcurrency: fetchConcurrency,
		SearchTimeout:    parseDuration(v.GetString("SCHEDULER_SEARCH_TIMEOUT"), 5*time.Second),
		MaxExploredNodes: v.GetInt("SCHEDULER_MAX_EXPLORED_NODES"),
		MaxResults:       v.GetInt("SCHEDULER_MAX_RESULTS"),
		ExamPolicy:       strings.ToUpper(v.GetString("SCHEDULER_EXAM_POLICY")),
	}

	cfg.History = HistoryConfig{
		Enabled:           v.GetBool("ENABLE_HISTORY"),
		DefaultLimit:      v.GetInt("HISTORY_DEFAULT_LIMIT"),
		WorkerConcurrency: v.GetInt("HISTORY_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("HISTORY_WORKER_RETRIES"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_CACHE"),
		TTL:     parseDuration(v.GetString("COURSE_CACHE_TTL"), 15*time.Minute),
	}

	cfg.Exports = ExportsConfig{
		Enabled: v.GetBool("ENABLE_EXPORTS"),
	}

	cfg.RateLimit = RateLimitConfig{
		Enabled:   v.GetBool("ENABLE_RATE_LIMIT"),
		PerMinute: v.GetInt("RATE_LIMIT_PER_MINUTE"),
		Burst:     v.GetInt("RATE_LIMIT_BURST"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "uw_schedule_builder")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("UW_API_BASE_URL", "https://openapi.data.uwaterloo.ca/v3")
	v.SetDefault("UW_API_KEY", "")
	v.SetDefault("UW_API_TIMEOUT", "10s")
	v.SetDefault("UW_API_RATE_PER_SECOND", 5)
	v.SetDefault("UW_API_BURST", 5)
	v.SetDefault("UW_EXAM_URL_TEMPLATE", "https://classes.uwaterloo.ca/cgi-bin/cgiwrap/infocour/salook.pl?level=under&sess=%s&subject=%s&cournum=%s")
	v.SetDefault("EXAM_DATE_ORDER", "DM")

	v.SetDefault("SCHEDULER_FETCH_CONCURRENCY", 4)
	v.SetDefault("SCHEDULER_SEARCH_TIMEOUT", "5s")
	v.SetDefault("SCHEDULER_MAX_EXPLORED_NODES", 2000000)
	v.SetDefault("SCHEDULER_MAX_RESULTS", 5000)
	v.SetDefault("SCHEDULER_EXAM_POLICY", "FIRST")

	v.SetDefault("ENABLE_HISTORY", true)
	v.SetDefault("HISTORY_DEFAULT_LIMIT", 20)
	v.SetDefault("HISTORY_WORKER_CONCURRENCY", 1)
	v.SetDefault("HISTORY_WORKER_RETRIES", 3)

	v.SetDefault("ENABLE_CACHE", true)
	v.SetDefault("COURSE_CACHE_TTL", "15m")
	v.SetDefault("ENABLE_EXPORTS", true)

	v.SetDefault("ENABLE_RATE_LIMIT", true)
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 60)
	v.SetDefault("RATE_LIMIT_BURST", 20)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
