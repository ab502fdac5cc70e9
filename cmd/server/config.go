package main

import (
	"fmt"
	"os"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	"codearena/internal/common/mq"
	"codearena/internal/common/storage"
	"codearena/internal/judge/judge0client"
	judgeservice "codearena/internal/judge/service"
	"codearena/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:3000"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 90 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 15 * time.Second
	defaultMaxHeaderBytes  = 1 << 20

	envJWTSecret    = "CODEARENA_JWT_SECRET"
	envJudgeAPIKey  = "CODEARENA_JUDGE_API_KEY"
	envGeminiAPIKey = "CODEARENA_GEMINI_API_KEY"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	MaxHeaderBytes  int           `yaml:"maxHeaderBytes"`
}

// MongoConfig holds the discussion store connection.
type MongoConfig struct {
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	MaxPoolSize    uint64        `yaml:"maxPoolSize"`
	PostCollection string        `yaml:"postCollection"`
}

// AuthConfig holds JWT and password settings.
type AuthConfig struct {
	JWTSecret         string        `yaml:"jwtSecret"`
	JWTIssuer         string        `yaml:"jwtIssuer"`
	TokenTTL          time.Duration `yaml:"tokenTTL"`
	CookieSecure      bool          `yaml:"cookieSecure"`
	BcryptCost        int           `yaml:"bcryptCost"`
	DenylistLocalSize int           `yaml:"denylistLocalSize"`
	DenylistLocalTTL  time.Duration `yaml:"denylistLocalTTL"`
}

// RateLimitConfig holds per-route limits.
type RateLimitConfig struct {
	LoginMax     int           `yaml:"loginMax"`
	LoginWindow  time.Duration `yaml:"loginWindow"`
	SubmitMax    int           `yaml:"submitMax"`
	SubmitWindow time.Duration `yaml:"submitWindow"`
	ChatMax      int           `yaml:"chatMax"`
	ChatWindow   time.Duration `yaml:"chatWindow"`
}

// JudgeConfig holds the Judge0 endpoint and polling policy.
type JudgeConfig struct {
	Client  judge0client.Config `yaml:",inline"`
	Polling judgeservice.Config `yaml:",inline"`

	MaxCodeBytes   int           `yaml:"maxCodeBytes"`
	IdempotencyTTL time.Duration `yaml:"idempotencyTTL"`
}

// GeminiConfig holds the assistant settings. An empty key disables the assistant.
type GeminiConfig struct {
	APIKey     string        `yaml:"apiKey"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxHistory int           `yaml:"maxHistory"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	Enabled          bool          `yaml:"enabled"`
	AllowedOrigins   []string      `yaml:"allowedOrigins"`
	AllowedMethods   []string      `yaml:"allowedMethods"`
	AllowedHeaders   []string      `yaml:"allowedHeaders"`
	ExposedHeaders   []string      `yaml:"exposedHeaders"`
	AllowCredentials bool          `yaml:"allowCredentials"`
	MaxAge           time.Duration `yaml:"maxAge"`
}

// EventsConfig holds broker topics. When disabled, events are handled inline.
type EventsConfig struct {
	Enabled      bool          `yaml:"enabled"`
	CleanupTopic string        `yaml:"cleanupTopic"`
	CleanupGroup string        `yaml:"cleanupGroup"`
	JudgedTopic  string        `yaml:"judgedTopic"`
	JudgedGroup  string        `yaml:"judgedGroup"`
	Concurrency  int           `yaml:"concurrency"`
	MaxRetries   int           `yaml:"maxRetries"`
	RetryDelay   time.Duration `yaml:"retryDelay"`
	// DeadLetterSuffix names the dead-letter topic as <topic><suffix>.
	DeadLetterSuffix string `yaml:"deadLetterSuffix"`
}

// VideoConfig holds solution video storage settings.
type VideoConfig struct {
	KeyPrefix        string        `yaml:"keyPrefix"`
	UploadTTL        time.Duration `yaml:"uploadTTL"`
	PlaybackTTL      time.Duration `yaml:"playbackTTL"`
	CleanupBatchSize int           `yaml:"cleanupBatchSize"`
	CleanupTimeout   time.Duration `yaml:"cleanupTimeout"`
}

// ProfileConfig holds profile aggregate settings.
type ProfileConfig struct {
	CacheTTL            time.Duration `yaml:"cacheTTL"`
	EmptyCacheTTL       time.Duration `yaml:"emptyCacheTTL"`
	PostLimit           int           `yaml:"postLimit"`
	AvatarUploadTTL     time.Duration `yaml:"avatarUploadTTL"`
	AvatarPublicBaseURL string        `yaml:"avatarPublicBaseURL"`
}

// AppConfig holds the server configuration.
type AppConfig struct {
	Server    ServerConfig        `yaml:"server"`
	Logger    logger.Config       `yaml:"logger"`
	Database  db.MySQLConfig      `yaml:"database"`
	Redis     cache.RedisConfig   `yaml:"redis"`
	Mongo     MongoConfig         `yaml:"mongo"`
	MinIO     storage.MinIOConfig `yaml:"minio"`
	Kafka     mq.KafkaConfig      `yaml:"kafka"`
	Auth      AuthConfig          `yaml:"auth"`
	RateLimit RateLimitConfig     `yaml:"rateLimit"`
	Judge     JudgeConfig         `yaml:"judge"`
	Gemini    GeminiConfig        `yaml:"gemini"`
	CORS      CORSConfig          `yaml:"cors"`
	Events    EventsConfig        `yaml:"events"`
	Video     VideoConfig         `yaml:"video"`
	Profile   ProfileConfig       `yaml:"profile"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(&cfg, os.Getenv)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// applyEnvOverrides lets secrets stay out of the config file.
func applyEnvOverrides(cfg *AppConfig, getenv func(string) string) {
	if v := getenv(envJWTSecret); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := getenv(envJudgeAPIKey); v != "" {
		cfg.Judge.Client.APIKey = v
	}
	if v := getenv(envGeminiAPIKey); v != "" {
		cfg.Gemini.APIKey = v
	}
}

func validateConfig(cfg *AppConfig) error {
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}
	if cfg.Mongo.URI == "" || cfg.Mongo.Database == "" {
		return fmt.Errorf("mongo uri and database are required")
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwtSecret is required")
	}
	if cfg.Judge.Client.BaseURL == "" {
		return fmt.Errorf("judge.baseURL is required")
	}
	if cfg.MinIO.Endpoint != "" && cfg.MinIO.Bucket == "" {
		return fmt.Errorf("minio bucket is required when minio is configured")
	}
	if cfg.Events.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when events are enabled")
	}
	return nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = defaultMaxHeaderBytes
	}

	applyMySQLDefaults(&cfg.Database)
	applyRedisDefaults(&cfg.Redis)

	if cfg.Mongo.ConnectTimeout == 0 {
		cfg.Mongo.ConnectTimeout = 10 * time.Second
	}
	if cfg.Mongo.MaxPoolSize == 0 {
		cfg.Mongo.MaxPoolSize = 50
	}
	if cfg.Mongo.PostCollection == "" {
		cfg.Mongo.PostCollection = "posts"
	}

	if cfg.Auth.JWTIssuer == "" {
		cfg.Auth.JWTIssuer = "codearena"
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = time.Hour
	}
	if cfg.Auth.DenylistLocalSize == 0 {
		cfg.Auth.DenylistLocalSize = 10000
	}
	if cfg.Auth.DenylistLocalTTL == 0 {
		cfg.Auth.DenylistLocalTTL = 2 * time.Minute
	}

	if cfg.RateLimit.LoginMax == 0 {
		cfg.RateLimit.LoginMax = 60
	}
	if cfg.RateLimit.LoginWindow == 0 {
		cfg.RateLimit.LoginWindow = 360 * time.Second
	}
	if cfg.RateLimit.SubmitMax == 0 {
		cfg.RateLimit.SubmitMax = 10
	}
	if cfg.RateLimit.SubmitWindow == 0 {
		cfg.RateLimit.SubmitWindow = time.Minute
	}
	if cfg.RateLimit.ChatMax == 0 {
		cfg.RateLimit.ChatMax = 20
	}
	if cfg.RateLimit.ChatWindow == 0 {
		cfg.RateLimit.ChatWindow = time.Minute
	}

	if cfg.Events.CleanupTopic == "" {
		cfg.Events.CleanupTopic = "problem.deleted"
	}
	if cfg.Events.CleanupGroup == "" {
		cfg.Events.CleanupGroup = "codearena-problem-cleanup"
	}
	if cfg.Events.JudgedTopic == "" {
		cfg.Events.JudgedTopic = "submission.judged"
	}
	if cfg.Events.JudgedGroup == "" {
		cfg.Events.JudgedGroup = "codearena-submission-judged"
	}

	if cfg.Video.KeyPrefix == "" {
		cfg.Video.KeyPrefix = "videos"
	}
	if cfg.MinIO.PresignTTL == 0 {
		cfg.MinIO.PresignTTL = 15 * time.Minute
	}
}

func applyMySQLDefaults(cfg *db.MySQLConfig) {
	defaults := db.DefaultMySQLConfig()
	if cfg.MaxOpenConnections == 0 {
		cfg.MaxOpenConnections = defaults.MaxOpenConnections
	}
	if cfg.MaxIdleConnections == 0 {
		cfg.MaxIdleConnections = defaults.MaxIdleConnections
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	if cfg == nil {
		return
	}
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.MinRetryBackoff == 0 {
		cfg.MinRetryBackoff = defaults.MinRetryBackoff
	}
	if cfg.MaxRetryBackoff == 0 {
		cfg.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
	if cfg.PoolTimeout == 0 {
		cfg.PoolTimeout = defaults.PoolTimeout
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
}
