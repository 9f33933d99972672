package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/giftreel/api/internal/client"
	"github.com/giftreel/api/internal/config"
	"github.com/giftreel/api/internal/handler"
	"github.com/giftreel/api/internal/media"
	"github.com/giftreel/api/internal/middleware"
	"github.com/giftreel/api/internal/poller"
	"github.com/giftreel/api/internal/service"
	"github.com/giftreel/api/internal/store"
	ws "github.com/giftreel/api/internal/websocket"
	"github.com/giftreel/api/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Probe for the transcoding engine once; everything downstream
	// branches on this.
	prober := media.NewFFmpegProber(cfg.FFmpeg.BinaryPath)
	runner := media.NewFFmpegRunner(cfg.FFmpeg.BinaryPath, time.Duration(cfg.FFmpeg.Timeout)*time.Second)

	// Initialize S3 client (optional - continues if not configured)
	var storageClient client.StorageClient
	if cfg.S3.AccessKeyID != "" && cfg.S3.SecretAccessKey != "" {
		s3Client, err := client.NewS3Client(&cfg.S3)
		if err != nil {
			log.Printf("Warning: S3 client not initialized: %v", err)
		} else {
			storageClient = s3Client
		}
	} else {
		log.Println("Info: S3 storage not configured, using mock storage")
	}

	mailerClient := client.NewMailerClient(&cfg.Mailer)

	// Job store and services
	jobStore := store.NewRedisJobStore(redisClient)
	compositeService := service.NewCompositeService(jobStore, asynqClient, storageClient, &cfg.S3, &cfg.SignedURL)
	uploadService := service.NewUploadService(storageClient, &cfg.S3)

	jobPoller := poller.New(jobStore)

	// Handlers
	compositeHandler := handler.NewCompositeHandler(compositeService, jobPoller, validate)
	uploadHandler := handler.NewUploadHandler(uploadService)
	authHandler := handler.NewAuthHandler(cfg.JWT.Secret)

	// Initialize middleware
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		log.Println("Info: Gateway mode enabled — using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		apiAuthMiddleware = middleware.NewAuthMiddleware(cfg.JWT.Secret).Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    200 * 1024 * 1024, // 200MB, recorded clips are large
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"storage": storageClient != nil,
				"mailer":  mailerClient.IsConfigured(),
				"ffmpeg":  prober.Available(),
				"auth":    cfg.JWT.Secret != "",
			},
		})
	})

	// ForwardAuth verification endpoint (internal, called by Traefik)
	app.Get("/auth/verify", authHandler.Verify)

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	// Compositing routes
	compose := api.Group("/compose")
	compose.Post("/start", rateLimiter.ComposeLimit(cfg.RateLimit.ComposePerHour), compositeHandler.Start)
	compose.Get("/status/:jobId", compositeHandler.Status)
	compose.Get("/result/:jobId", compositeHandler.Result)
	compose.Get("/wait/:jobId", compositeHandler.Wait)

	// Upload routes
	upload := api.Group("/upload", rateLimiter.UploadLimit(cfg.RateLimit.UploadPerHour))
	upload.Post("/video", uploadHandler.Video)
	upload.Delete("/video", uploadHandler.DeleteVideo)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, jobStore, storageClient, mailerClient, prober, runner, hub)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
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
}

func startWorkerServer(
	cfg *config.Config,
	jobStore store.JobStore,
	storageClient client.StorageClient,
	mailerClient *client.MailerClient,
	prober *media.FFmpegProber,
	runner media.Runner,
	hub *ws.Hub,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			// Rendering is CPU-bound; keep concurrency low so parallel
			// engine runs do not starve each other.
			Concurrency: 2,
			Queues: map[string]int{
				"composite": 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	compositeWorker := worker.NewCompositeWorker(
		jobStore, storageClient, mailerClient, prober, runner, hub,
		&cfg.S3, &cfg.SignedURL, cfg.FFmpeg.WorkDir,
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeComposite, compositeWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
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
