package config

import (
	"fmt"
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

// Storage, ledger and queue backends
const (
	BackendMemory   = "memory"
	BackendS3       = "s3"
	BackendMinio    = "minio"
	BackendDynamoDB = "dynamodb"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQS      = "sqs"
	BackendAsynq    = "asynq"
	BackendRabbitMQ = "rabbitmq"
)

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	AWS       AWSConfig
	Storage   StorageConfig
	Ledger    LedgerConfig
	Queue     QueueConfig
	Timeouts  TimeoutConfig
	RateLimit RateLimitConfig
	Worker    WorkerConfig
}

type ServerConfig struct {
	Port        string
	Env         string
	LogLevel    string
	ApiDomain   string
	BodyLimitMB int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AWSConfig struct {
	Region          string
	Endpoint        string // LocalStack or other AWS-compatible endpoint
	AccessKeyID     string
	SecretAccessKey string
}

type StorageConfig struct {
	Backend    string
	Bucket     string
	PublicURL  string
	PresignTTL time.Duration
	Endpoint   string
	AccessKey  string
	SecretKey  string
	UseSSL     bool
}

type LedgerConfig struct {
	Backend string
	Table   string
	DSN     string
	TTL     time.Duration
}

type QueueConfig struct {
	Backend    string
	Name       string
	URL        string
	GroupKey   string
	Exchange   string
	RoutingKey string
}

// TimeoutConfig bounds each call to a backing service
type TimeoutConfig struct {
	Store  time.Duration
	Ledger time.Duration
	Queue  time.Duration
}

type RateLimitConfig struct {
	UploadPerHour int
}

type WorkerConfig struct {
	Enabled     bool
	Concurrency int
}

func Load() (*Config, error) {
	// The original deployment ships a .env file; real env vars still win
	_ = godotenv.Load()

	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("AWS_ACCESS_KEY_ID")
	readSecret("AWS_SECRET_ACCESS_KEY")
	readSecret("STORAGE_ACCESS_KEY")
	readSecret("STORAGE_SECRET_KEY")
	readSecret("LEDGER_DSN")
	readSecret("QUEUE_URL")

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
	_ = v.BindEnv("server.api_domain", "API_DOMAIN")
	_ = v.BindEnv("server.body_limit_mb", "BODY_LIMIT_MB")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("aws.region", "AWS_REGION")
	_ = v.BindEnv("aws.endpoint", "AWS_ENDPOINT_URL")
	_ = v.BindEnv("aws.access_key_id", "AWS_ACCESS_KEY_ID")
	_ = v.BindEnv("aws.secret_access_key", "AWS_SECRET_ACCESS_KEY")
	_ = v.BindEnv("storage.backend", "STORAGE_BACKEND")
	_ = v.BindEnv("storage.bucket", "S3_BUCKET_NAME")
	_ = v.BindEnv("storage.public_url", "STORAGE_PUBLIC_URL")
	_ = v.BindEnv("storage.presign_ttl", "STORAGE_PRESIGN_TTL")
	_ = v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	_ = v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	_ = v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	_ = v.BindEnv("storage.use_ssl", "STORAGE_USE_SSL")
	_ = v.BindEnv("ledger.backend", "LEDGER_BACKEND")
	_ = v.BindEnv("ledger.table", "DYNAMODB_TABLE_NAME")
	_ = v.BindEnv("ledger.dsn", "LEDGER_DSN")
	_ = v.BindEnv("ledger.ttl", "LEDGER_TTL")
	_ = v.BindEnv("queue.backend", "QUEUE_BACKEND")
	_ = v.BindEnv("queue.name", "SQS_QUEUE_NAME")
	_ = v.BindEnv("queue.url", "QUEUE_URL")
	_ = v.BindEnv("queue.group_key", "QUEUE_GROUP_KEY")
	_ = v.BindEnv("queue.exchange", "QUEUE_EXCHANGE")
	_ = v.BindEnv("queue.routing_key", "QUEUE_ROUTING_KEY")
	_ = v.BindEnv("timeouts.store", "STORE_TIMEOUT")
	_ = v.BindEnv("timeouts.ledger", "LEDGER_TIMEOUT")
	_ = v.BindEnv("timeouts.queue", "QUEUE_TIMEOUT")
	_ = v.BindEnv("ratelimit.upload_per_hour", "RATELIMIT_UPLOAD_PER_HOUR")
	_ = v.BindEnv("worker.enabled", "WORKER_ENABLED")
	_ = v.BindEnv("worker.concurrency", "WORKER_CONCURRENCY")

	// Defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.body_limit_mb", 20)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("aws.region", "us-east-1")

	// Backends default to the managed AWS primitives
	v.SetDefault("storage.backend", BackendS3)
	v.SetDefault("storage.presign_ttl", time.Hour)
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("ledger.backend", BackendDynamoDB)
	v.SetDefault("ledger.ttl", 0)
	v.SetDefault("queue.backend", BackendSQS)
	v.SetDefault("queue.group_key", "default-group")
	v.SetDefault("queue.exchange", "enhancements")
	v.SetDefault("queue.routing_key", "enhancement.created")

	v.SetDefault("timeouts.store", 10*time.Second)
	v.SetDefault("timeouts.ledger", 5*time.Second)
	v.SetDefault("timeouts.queue", 5*time.Second)
	v.SetDefault("ratelimit.upload_per_hour", 50)
	v.SetDefault("worker.enabled", false)
	v.SetDefault("worker.concurrency", 4)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:        v.GetString("server.port"),
			Env:         v.GetString("server.env"),
			LogLevel:    v.GetString("server.log_level"),
			ApiDomain:   v.GetString("server.api_domain"),
			BodyLimitMB: v.GetInt("server.body_limit_mb"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		AWS: AWSConfig{
			Region:          v.GetString("aws.region"),
			Endpoint:        v.GetString("aws.endpoint"),
			AccessKeyID:     v.GetString("aws.access_key_id"),
			SecretAccessKey: v.GetString("aws.secret_access_key"),
		},
		Storage: StorageConfig{
			Backend:    strings.ToLower(v.GetString("storage.backend")),
			Bucket:     v.GetString("storage.bucket"),
			PublicURL:  strings.TrimSuffix(v.GetString("storage.public_url"), "/"),
			PresignTTL: v.GetDuration("storage.presign_ttl"),
			Endpoint:   v.GetString("storage.endpoint"),
			AccessKey:  v.GetString("storage.access_key"),
			SecretKey:  v.GetString("storage.secret_key"),
			UseSSL:     v.GetBool("storage.use_ssl"),
		},
		Ledger: LedgerConfig{
			Backend: strings.ToLower(v.GetString("ledger.backend")),
			Table:   v.GetString("ledger.table"),
			DSN:     v.GetString("ledger.dsn"),
			TTL:     v.GetDuration("ledger.ttl"),
		},
		Queue: QueueConfig{
			Backend:    strings.ToLower(v.GetString("queue.backend")),
			Name:       v.GetString("queue.name"),
			URL:        v.GetString("queue.url"),
			GroupKey:   v.GetString("queue.group_key"),
			Exchange:   v.GetString("queue.exchange"),
			RoutingKey: v.GetString("queue.routing_key"),
		},
		Timeouts: TimeoutConfig{
			Store:  v.GetDuration("timeouts.store"),
			Ledger: v.GetDuration("timeouts.ledger"),
			Queue:  v.GetDuration("timeouts.queue"),
		},
		RateLimit: RateLimitConfig{
			UploadPerHour: v.GetInt("ratelimit.upload_per_hour"),
		},
		Worker: WorkerConfig{
			Enabled:     v.GetBool("worker.enabled"),
			Concurrency: v.GetInt("worker.concurrency"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that each selected backend has the settings it needs
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendS3, BackendMinio:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for %s storage", c.Storage.Backend)
		}
		if c.Storage.Backend == BackendMinio && c.Storage.Endpoint == "" {
			return fmt.Errorf("storage.endpoint is required for minio storage")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch c.Ledger.Backend {
	case BackendDynamoDB:
		if c.Ledger.Table == "" {
			return fmt.Errorf("ledger.table is required for dynamodb ledger")
		}
	case BackendPostgres:
		if c.Ledger.DSN == "" {
			return fmt.Errorf("ledger.dsn is required for postgres ledger")
		}
	case BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}

	switch c.Queue.Backend {
	case BackendSQS:
		if c.Queue.Name == "" && c.Queue.URL == "" {
			return fmt.Errorf("queue.name or queue.url is required for sqs queue")
		}
	case BackendRabbitMQ:
		if c.Queue.URL == "" {
			return fmt.Errorf("queue.url is required for rabbitmq queue")
		}
	case BackendAsynq, BackendMemory:
	default:
		return fmt.Errorf("unknown queue backend %q", c.Queue.Backend)
	}

	if c.Queue.GroupKey == "" {
		return fmt.Errorf("queue.group_key must not be empty")
	}
	if c.Timeouts.Store <= 0 || c.Timeouts.Ledger <= 0 || c.Timeouts.Queue <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}
