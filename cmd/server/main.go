package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/enhancely/api/docs"
	"github.com/enhancely/api/internal/client"
	"github.com/enhancely/api/internal/config"
	"github.com/enhancely/api/internal/handler"
	"github.com/enhancely/api/internal/ledger"
	"github.com/enhancely/api/internal/logger"
	"github.com/enhancely/api/internal/middleware"
	"github.com/enhancely/api/internal/model"
	"github.com/enhancely/api/internal/queue"
	"github.com/enhancely/api/internal/server"
	"github.com/enhancely/api/internal/service"
	"github.com/enhancely/api/internal/worker"
	ws "github.com/enhancely/api/internal/websocket"
)

// objectStore is what both the API and the worker need from storage
type objectStore interface {
	service.ObjectStore
	worker.Store
	Name() string
}

// jobLedger is what both the API and the worker need from the ledger
type jobLedger interface {
	Create(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, jobID string) (*model.Job, error)
	Transition(ctx context.Context, jobID string, t ledger.Transition) (*model.Job, error)
}

// backends holds the selected implementations and how to release them
type backends struct {
	store    objectStore
	ledger   jobLedger
	queue    service.WorkQueue
	consumer queue.Consumer // nil for asynq, which runs its own server
	closers  []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// @title          Enhancely API
// @version        1.0
// @description    Asynchronous image enhancement: upload an image, poll its job status and fetch the result.
// @host           localhost:8000
// @BasePath       /
// @schemes        http https
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("production", "info")
		boot.Fatal().Err(err).Msg("Failed to load config")
	}

	log := logger.New(cfg.Server.Env, cfg.Server.LogLevel)

	// Configure Swagger host/scheme based on environment
	if cfg.Server.ApiDomain != "" {
		docs.SwaggerInfo.Host = cfg.Server.ApiDomain
		docs.SwaggerInfo.Schemes = []string{"https"}
	} else {
		docs.SwaggerInfo.Host = "localhost:" + cfg.Server.Port
		docs.SwaggerInfo.Schemes = []string{"http"}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	redisUp := true
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisUp = false
		log.Warn().Err(err).Msg("Redis not available, rate limiting disabled")
	}

	b, err := buildBackends(ctx, cfg, redisClient, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize backends")
	}
	defer b.close()

	// Initialize WebSocket hub
	hub := ws.NewHub(log)

	// Initialize services
	enhancementService := service.NewEnhancementService(b.store, b.ledger, b.queue, service.Options{
		GroupKey:      cfg.Queue.GroupKey,
		StoreTimeout:  cfg.Timeouts.Store,
		LedgerTimeout: cfg.Timeouts.Ledger,
		QueueTimeout:  cfg.Timeouts.Queue,
	}, log)

	// Initialize handlers
	validate := validator.New()
	bodyLimit := cfg.Server.BodyLimitMB * 1024 * 1024
	enhancementHandler := handler.NewEnhancementHandler(enhancementService, hub, validate, int64(bodyLimit))
	healthHandler := handler.NewHealthHandler(handler.Backends{
		Storage: b.store.Name(),
		Ledger:  cfg.Ledger.Backend,
		Queue:   cfg.Queue.Backend,
		Worker:  cfg.Worker.Enabled,
	})

	var rateLimiter *middleware.RateLimiter
	if redisUp {
		rateLimiter = middleware.NewRateLimiter(redisClient, log)
	}

	app := server.New(server.Options{
		Enhancement:   enhancementHandler,
		Health:        healthHandler,
		RateLimiter:   rateLimiter,
		UploadPerHour: cfg.RateLimit.UploadPerHour,
		BodyLimit:     bodyLimit,
		LogLevel:      cfg.Server.LogLevel,
		AccessLog:     true,
		Log:           log,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	if cfg.Worker.Enabled {
		w := worker.NewEnhanceWorker(b.store, b.ledger, worker.PassthroughEnhancer{}, hub, log)
		g.Go(func() error {
			return runWorker(gctx, cfg, b, w, log)
		})
	}

	// Start server
	g.Go(func() error {
		addr := ":" + cfg.Server.Port
		log.Info().Str("addr", addr).Msg("Server starting")
		if err := app.Listen(addr); err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Exited with error")
		b.close()
		os.Exit(1)
	}
}

func buildBackends(ctx context.Context, cfg *config.Config, redisClient *redis.Client, log zerolog.Logger) (*backends, error) {
	b := &backends{}

	var (
		awsCfg    aws.Config
		awsLoaded bool
	)
	loadAWS := func() (aws.Config, error) {
		if awsLoaded {
			return awsCfg, nil
		}
		c, err := client.LoadAWSConfig(ctx, &cfg.AWS)
		if err != nil {
			return aws.Config{}, err
		}
		awsCfg, awsLoaded = c, true
		return awsCfg, nil
	}

	// Object store
	switch cfg.Storage.Backend {
	case config.BackendS3:
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		store, err := client.NewS3Store(c, &cfg.Storage, cfg.AWS.Endpoint)
		if err != nil {
			return nil, err
		}
		b.store = store
	case config.BackendMinio:
		store, err := client.NewMinioStore(&cfg.Storage)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			log.Warn().Err(err).Str("bucket", cfg.Storage.Bucket).Msg("Could not ensure bucket")
		}
		b.store = store
	default:
		log.Warn().Msg("Using in-memory object store")
		b.store = client.NewMemoryStore(cfg.Storage.PublicURL)
	}

	// Job ledger
	switch cfg.Ledger.Backend {
	case config.BackendDynamoDB:
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		b.ledger = ledger.NewDynamoLedger(dynamodb.NewFromConfig(c), cfg.Ledger.Table, cfg.Ledger.TTL)
	case config.BackendRedis:
		b.ledger = ledger.NewRedisLedger(redisClient, cfg.Ledger.TTL)
	case config.BackendPostgres:
		pg, pool, err := ledger.OpenPostgresLedger(ctx, cfg.Ledger.DSN)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, pool.Close)
		b.ledger = pg
	default:
		log.Warn().Msg("Using in-memory job ledger")
		b.ledger = ledger.NewMemory()
	}

	// Work queue
	switch cfg.Queue.Backend {
	case config.BackendSQS:
		c, err := loadAWS()
		if err != nil {
			b.close()
			return nil, err
		}
		q, err := queue.NewSQSQueue(ctx, sqs.NewFromConfig(c), cfg.Queue.Name, cfg.Queue.URL, log)
		if err != nil {
			b.close()
			return nil, err
		}
		b.queue, b.consumer = q, q
	case config.BackendAsynq:
		asynqClient := asynq.NewClient(redisOpt(cfg))
		b.closers = append(b.closers, func() { asynqClient.Close() })
		b.queue = queue.NewAsynqQueue(asynqClient)
	case config.BackendRabbitMQ:
		conn, err := amqp.Dial(cfg.Queue.URL)
		if err != nil {
			b.close()
			return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		b.closers = append(b.closers, func() { conn.Close() })
		q, err := queue.NewRabbitQueue(conn, cfg.Queue.Exchange, cfg.Queue.RoutingKey)
		if err != nil {
			b.close()
			return nil, err
		}
		b.closers = append(b.closers, func() { q.Close() })
		b.queue = q
		if cfg.Worker.Enabled {
			consumer, err := queue.NewRabbitConsumer(conn, cfg.Queue.Exchange, cfg.Queue.RoutingKey, rabbitQueueName(cfg), cfg.Worker.Concurrency, log)
			if err != nil {
				b.close()
				return nil, err
			}
			b.consumer = consumer
		}
	default:
		log.Warn().Msg("Using in-memory work queue")
		q := queue.NewMemory(0)
		b.queue, b.consumer = q, q
	}

	return b, nil
}

// runWorker consumes notifications with the configured queue until ctx is done
func runWorker(ctx context.Context, cfg *config.Config, b *backends, w *worker.EnhanceWorker, log zerolog.Logger) error {
	log.Info().Str("queue", cfg.Queue.Backend).Msg("Enhancement worker starting")

	if cfg.Queue.Backend != config.BackendAsynq {
		err := b.consumer.Run(ctx, w.Process)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("worker: %w", err)
		}
		return nil
	}

	srv := asynq.NewServer(redisOpt(cfg), asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Queues: map[string]int{
			cfg.Queue.GroupKey: 1,
		},
		LogLevel: asynqLogLevel(cfg.Server.LogLevel),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskTypeEnhance, w.ProcessTask)

	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("asynq worker: %w", err)
	}
	<-ctx.Done()
	srv.Shutdown()
	return nil
}

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

func rabbitQueueName(cfg *config.Config) string {
	if cfg.Queue.Name != "" {
		return cfg.Queue.Name
	}
	return "enhancements.process"
}

func asynqLogLevel(level string) asynq.LogLevel {
	switch {
	case strings.EqualFold(level, "debug"):
		return asynq.DebugLevel
	case strings.EqualFold(level, "warn"):
		return asynq.WarnLevel
	case strings.EqualFold(level, "error"):
		return asynq.ErrorLevel
	default:
		return asynq.InfoLevel
	}
}
