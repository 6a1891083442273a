package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

// Store and queue backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendAsynq  = "asynq"
)

type Config struct {
	Server    ServerConfig
	Site      SiteConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Store     StoreConfig
	Queue     QueueConfig
	Job       JobConfig
	Fetch     FetchConfig
	Spleeter  SpleeterConfig
	Lalal     LalalConfig
	Replicate ReplicateConfig
	R2        R2Config
	Database  DatabaseConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type SiteConfig struct {
	BaseURL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	SeparatePerHour int
}

type StoreConfig struct {
	Backend string
	JobTTL  time.Duration // 0 keeps job records forever
}

type QueueConfig struct {
	Backend     string
	Concurrency int
}

type JobConfig struct {
	Timeout time.Duration
}

type FetchConfig struct {
	Timeout int // seconds
}

type SpleeterConfig struct {
	URL     string
	Timeout int // seconds
}

type LalalConfig struct {
	APIKey       string
	BaseURL      string
	Splitter     string
	PollInterval time.Duration
	PollAttempts int
	Timeout      int // seconds, per request
}

type ReplicateConfig struct {
	APIToken     string
	BaseURL      string
	Model        string
	PollInterval time.Duration
	PollAttempts int
	Timeout      int // seconds, per request
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type DatabaseConfig struct {
	URL string
}

// UsesRedis reports whether any configured backend needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return strings.EqualFold(c.Store.Backend, BackendRedis) || strings.EqualFold(c.Queue.Backend, BackendAsynq)
}

func Load() (*Config, error) {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("LALAL_API_KEY")
	readSecret("REPLICATE_API_TOKEN")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("DATABASE_URL")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables
	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("site.base_url", "SITE_BASE_URL", "NEXT_PUBLIC_APP_URL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("ratelimit.separate_per_hour", "RATELIMIT_SEPARATE_PER_HOUR")
	_ = v.BindEnv("store.backend", "STORE_BACKEND")
	_ = v.BindEnv("store.job_ttl", "STORE_JOB_TTL")
	_ = v.BindEnv("queue.backend", "QUEUE_BACKEND")
	_ = v.BindEnv("queue.concurrency", "QUEUE_CONCURRENCY")
	_ = v.BindEnv("job.timeout", "JOB_TIMEOUT")
	_ = v.BindEnv("fetch.timeout", "FETCH_TIMEOUT")
	_ = v.BindEnv("spleeter.url", "SPLEETER_URL", "PYTHON_WORKER_URL")
	_ = v.BindEnv("spleeter.timeout", "SPLEETER_TIMEOUT")
	_ = v.BindEnv("lalal.api_key", "LALAL_API_KEY")
	_ = v.BindEnv("lalal.base_url", "LALAL_BASE_URL")
	_ = v.BindEnv("lalal.splitter", "LALAL_SPLITTER")
	_ = v.BindEnv("lalal.poll_interval", "LALAL_POLL_INTERVAL")
	_ = v.BindEnv("lalal.poll_attempts", "LALAL_POLL_ATTEMPTS")
	_ = v.BindEnv("lalal.timeout", "LALAL_TIMEOUT")
	_ = v.BindEnv("replicate.api_token", "REPLICATE_API_TOKEN")
	_ = v.BindEnv("replicate.base_url", "REPLICATE_BASE_URL")
	_ = v.BindEnv("replicate.model", "REPLICATE_MODEL")
	_ = v.BindEnv("replicate.poll_interval", "REPLICATE_POLL_INTERVAL")
	_ = v.BindEnv("replicate.poll_attempts", "REPLICATE_POLL_ATTEMPTS")
	_ = v.BindEnv("replicate.timeout", "REPLICATE_TIMEOUT")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = v.BindEnv("database.url", "DATABASE_URL")

	// Defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("site.base_url", "http://localhost:3001")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("ratelimit.separate_per_hour", 20)
	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.job_ttl", "0s")
	v.SetDefault("queue.backend", BackendMemory)
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("job.timeout", "30m")
	v.SetDefault("fetch.timeout", 60)

	// Spleeter defaults: splitting is synchronous on the service side
	v.SetDefault("spleeter.timeout", 300)

	// LALAL.AI defaults: 60 checks 5 seconds apart
	v.SetDefault("lalal.base_url", "https://www.lalal.ai")
	v.SetDefault("lalal.splitter", "phoenix")
	v.SetDefault("lalal.poll_interval", "5s")
	v.SetDefault("lalal.poll_attempts", 60)
	v.SetDefault("lalal.timeout", 60)

	// Replicate defaults
	v.SetDefault("replicate.base_url", "https://api.replicate.com/v1")
	v.SetDefault("replicate.model", "cjwbw/demucs:07afea19d1001f8e7b3a2d5e9e3e6c8c")
	v.SetDefault("replicate.poll_interval", "2s")
	v.SetDefault("replicate.poll_attempts", 300)
	v.SetDefault("replicate.timeout", 60)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     v.GetString("server.port"),
			Env:      v.GetString("server.env"),
			LogLevel: v.GetString("server.log_level"),
		},
		Site: SiteConfig{
			BaseURL: v.GetString("site.base_url"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		RateLimit: RateLimitConfig{
			SeparatePerHour: v.GetInt("ratelimit.separate_per_hour"),
		},
		Store: StoreConfig{
			Backend: v.GetString("store.backend"),
			JobTTL:  v.GetDuration("store.job_ttl"),
		},
		Queue: QueueConfig{
			Backend:     v.GetString("queue.backend"),
			Concurrency: v.GetInt("queue.concurrency"),
		},
		Job: JobConfig{
			Timeout: v.GetDuration("job.timeout"),
		},
		Fetch: FetchConfig{
			Timeout: v.GetInt("fetch.timeout"),
		},
		Spleeter: SpleeterConfig{
			URL:     v.GetString("spleeter.url"),
			Timeout: v.GetInt("spleeter.timeout"),
		},
		Lalal: LalalConfig{
			APIKey:       v.GetString("lalal.api_key"),
			BaseURL:      v.GetString("lalal.base_url"),
			Splitter:     v.GetString("lalal.splitter"),
			PollInterval: v.GetDuration("lalal.poll_interval"),
			PollAttempts: v.GetInt("lalal.poll_attempts"),
			Timeout:      v.GetInt("lalal.timeout"),
		},
		Replicate: ReplicateConfig{
			APIToken:     v.GetString("replicate.api_token"),
			BaseURL:      v.GetString("replicate.base_url"),
			Model:        v.GetString("replicate.model"),
			PollInterval: v.GetDuration("replicate.poll_interval"),
			PollAttempts: v.GetInt("replicate.poll_attempts"),
			Timeout:      v.GetInt("replicate.timeout"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
		},
		Database: DatabaseConfig{
			URL: v.GetString("database.url"),
		},
	}

	cfg.capSpleeterTimeout()

	return cfg, nil
}

// capSpleeterTimeout keeps one synchronous Spleeter call to a third of the job
// timeout so the slower providers after it still get a turn.
func (c *Config) capSpleeterTimeout() {
	if c.Job.Timeout <= 0 {
		return
	}
	maxSeconds := int(c.Job.Timeout / 3 / time.Second)
	if maxSeconds > 0 && c.Spleeter.Timeout > maxSeconds {
		c.Spleeter.Timeout = maxSeconds
	}
}
