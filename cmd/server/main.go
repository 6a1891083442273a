package main

import (
	"context"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/stems/internal/client"
	"github.com/makeasinger/stems/internal/config"
	"github.com/makeasinger/stems/internal/handler"
	"github.com/makeasinger/stems/internal/middleware"
	"github.com/makeasinger/stems/internal/service"
	"github.com/makeasinger/stems/internal/store"
	ws "github.com/makeasinger/stems/internal/websocket"
	"github.com/makeasinger/stems/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis is only needed for the redis store and the asynq queue
	var redisClient *redis.Client
	if cfg.UsesRedis() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("Warning: Redis not available: %v", err)
		}
	}

	// Job store
	var jobStore store.JobStore
	if strings.EqualFold(cfg.Store.Backend, config.BackendRedis) {
		// a job still in flight a minute past its timeout has lost its worker
		var staleAfter time.Duration
		if cfg.Job.Timeout > 0 {
			staleAfter = cfg.Job.Timeout + time.Minute
		}
		jobStore = store.NewRedisStore(redisClient, cfg.Store.JobTTL, staleAfter)
	} else {
		jobStore = store.NewMemoryStore()
	}

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	// Separation backends, in priority order
	var separators []service.Separator
	if spleeter := client.NewSpleeterClient(&cfg.Spleeter); spleeter.IsConfigured() {
		separators = append(separators, spleeter)
	}
	if lalal := client.NewLalalClient(&cfg.Lalal); lalal.IsConfigured() {
		separators = append(separators, lalal)
	}
	if replicate := client.NewReplicateClient(&cfg.Replicate); replicate.IsConfigured() {
		separators = append(separators, replicate)
	}
	chain := service.NewProviderChain(separators...)
	if len(separators) == 0 {
		log.Println("Info: no separation provider configured, jobs will use demo stems")
	}

	opts := service.SeparationOptions{
		SiteBaseURL: cfg.Site.BaseURL,
		JobTimeout:  cfg.Job.Timeout,
		Notifier:    hub,
	}

	// Initialize R2 client (optional - stems keep provider URLs if not configured)
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		} else if r2Client.IsConfigured() {
			opts.Storage = r2Client
		}
	} else {
		log.Println("Info: R2 storage not configured, stems keep provider URLs")
	}

	// Asset titles (optional)
	if cfg.Database.URL != "" {
		assets, err := client.OpenAssetRepository(&cfg.Database)
		if err != nil {
			log.Printf("Warning: asset lookup not initialized: %v", err)
		} else {
			opts.Assets = assets
		}
	}

	separationService := service.NewSeparationService(jobStore, chain, client.NewFetchClient(&cfg.Fetch), opts)

	// Queue: asynq when configured, in-process goroutines otherwise
	var asynqServer *asynq.Server
	if strings.EqualFold(cfg.Queue.Backend, config.BackendAsynq) {
		redisOpt := asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}

		asynqClient := asynq.NewClient(redisOpt)
		defer asynqClient.Close()
		separationService.SetLauncher(worker.NewAsynqLauncher(asynqClient, cfg.Job.Timeout))

		asynqServer = newWorkerServer(cfg, redisOpt)
		startWorkerServer(asynqServer, separationService)
	}

	stemsHandler := handler.NewStemsHandler(separationService, validate)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    1 * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Health check
	app.Get("/health", handler.Health(handler.HealthInfo{
		Providers:    chain.Providers(),
		Storage:      opts.Storage != nil,
		Assets:       opts.Assets != nil,
		StoreBackend: cfg.Store.Backend,
		QueueBackend: cfg.Queue.Backend,
	}))

	// Stem separation routes
	stems := app.Group("/api/stems")
	submit := []fiber.Handler{stemsHandler.Separate}
	if redisClient != nil {
		rateLimiter := middleware.NewRateLimiter(redisClient)
		submit = append([]fiber.Handler{rateLimiter.SeparateLimit(cfg.RateLimit.SeparatePerHour)}, submit...)
	}
	stems.Post("/separate", submit...)
	stems.Get("/separate", stemsHandler.Status)

	// WebSocket routes
	app.Use("/ws", handler.RequireUpgrade)
	app.Get("/ws/jobs/:jobId", handler.JobStream(hub, separationService))

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	if asynqServer != nil {
		asynqServer.Shutdown()
	}
	if launcher, ok := separationService.Launcher().(*service.GoroutineLauncher); ok {
		waitForJobs(launcher, 30*time.Second)
	}
}

// waitForJobs gives in-process jobs a bounded chance to finish
func waitForJobs(launcher *service.GoroutineLauncher, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		launcher.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		log.Println("Warning: exiting with separation jobs still running")
	}
}

func newWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt) *asynq.Server {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Queue.Concurrency,
		Queues: map[string]int{
			worker.QueueStems: 1,
		},
		LogLevel: asynqLogLevel,
	})
}

func startWorkerServer(srv *asynq.Server, separationService *service.SeparationService) {
	separationWorker := worker.NewSeparationWorker(separationService)

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskTypeSeparate, separationWorker.ProcessTask)

	if err := srv.Start(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
