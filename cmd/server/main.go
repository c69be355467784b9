package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/codebuildervaibhav/whisper-jobs/internal/cleanup"
	"github.com/codebuildervaibhav/whisper-jobs/internal/config"
	"github.com/codebuildervaibhav/whisper-jobs/internal/handlers"
	"github.com/codebuildervaibhav/whisper-jobs/internal/jobs"
	"github.com/codebuildervaibhav/whisper-jobs/internal/metrics"
	"github.com/codebuildervaibhav/whisper-jobs/internal/queue"
	"github.com/codebuildervaibhav/whisper-jobs/internal/storage"
	"github.com/codebuildervaibhav/whisper-jobs/internal/transcription"
)

var version = "dev"

var _ handlers.HealthChecker = (*storage.PostgresStore)(nil)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	envFile := flag.String("env", ".env", "path to a .env file")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger: stdout plus an in-memory tail served on /logs
	logBuffer := NewLogBuffer()
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.MultiLevelWriter(os.Stdout, logBuffer)).
		With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Str("mode", cfg.Jobs.Mode).Msg("whisper-jobs starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Job store
	store, err := newStore(ctx, cfg, log.With().Str("component", "store").Logger())
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Storage.Backend).Msg("failed to initialize job store")
	}
	defer store.Close()

	stager, err := storage.NewStager(cfg.Storage.TempDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare staging directory")
	}

	engine := newEngine(cfg, stager.Dir(), log.With().Str("component", "engine").Logger())

	// Worker pool
	pool := queue.NewWorkerPool(queue.WorkerPoolOptions{
		Workers:   cfg.Workers.Count,
		QueueSize: cfg.Workers.QueueSize,
		Log:       log.With().Str("component", "queue").Logger(),
	})

	manager, err := jobs.NewManager(jobs.Options{
		Mode:      jobs.Mode(cfg.Jobs.Mode),
		Store:     store,
		Stager:    stager,
		Scheduler: pool,
		Engine:    engine,
		Language:  cfg.Whisper.Language,
		Log:       log.With().Str("component", "jobs").Logger(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create job manager")
	}
	pool.Start(manager.Execute)

	// Cleanup scheduler
	sweeper := cleanup.NewScheduler(
		stager.Dir(),
		time.Duration(cfg.Cleanup.IntervalMinutes)*time.Minute,
		time.Duration(cfg.Cleanup.MaxAgeHours)*time.Hour,
		pool.Holds,
		log.With().Str("component", "cleanup").Logger(),
	)
	sweeper.Start()
	defer sweeper.Stop()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:             cfg.BodyLimit(),
		DisableStartupMessage: true,
	})

	httpLog := log.With().Str("component", "http").Logger()
	app.Use(recover.New())
	app.Use(metrics.Instrument())
	app.Use(handlers.RequestLogger(httpLog))
	corsConfig := cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		// Credentials are only allowed with an explicit origin list
		corsConfig.AllowOrigins = strings.Join(cfg.Server.CORSOrigins, ",")
		corsConfig.AllowCredentials = true
	}
	app.Use(cors.New(corsConfig))

	app.Get("/health", handlers.Health(store, func() fiber.Map {
		return fiber.Map{
			"version": version,
			"mode":    manager.Mode(),
			"store":   store.Name(),
			"engine":  engine.Name(),
			"queue":   pool.Stats(),
			"jobs":    manager.Stats(),
		}
	}, httpLog))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/logs", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"logs": logBuffer.GetLogs()})
	})

	handlers.Register(app, manager, handlers.RouteOptions{
		MaxFileSizeMB: cfg.Limits.MaxFileSizeMB,
		StrictFormats: cfg.Limits.StrictFormats,
	}, httpLog)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		httpLog.Info().Str("addr", cfg.Addr()).Msg("http server listening")
		return app.Listen(cfg.Addr())
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down gracefully")
		return app.ShutdownWithTimeout(10 * time.Second)
	})
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("http server error")
	}

	// Let in-flight and queued jobs finish
	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := pool.Stop(drainCtx); err != nil {
		log.Warn().Err(err).Interface("queue", pool.Stats()).Msg("exiting with unfinished jobs")
	}

	log.Info().Msg("whisper-jobs stopped")
}

func newStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storage.JobStore, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return storage.NewMemoryStore(false), nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Database), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		return storage.NewSQLiteStore(cfg.Storage.Database)
	case "postgres":
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		return storage.NewPostgresStore(connectCtx, cfg.Storage.DatabaseURL, cfg.Storage.Table, log)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func newEngine(cfg *config.Config, tempDir string, log zerolog.Logger) transcription.Engine {
	var engine transcription.Engine
	switch cfg.Whisper.Backend {
	case "api":
		engine = transcription.NewAPIClient(cfg.Whisper.URL, cfg.Whisper.Model, cfg.Whisper.APIKey, cfg.WhisperTimeout())
	default:
		engine = transcription.NewWhisperTranscriber(cfg.Whisper.Python, cfg.Whisper.Model, cfg.Whisper.Device, cfg.Whisper.Threads, log)
	}
	if cfg.Whisper.Normalize {
		engine = transcription.NewNormalizingEngine(engine, tempDir)
	}
	log.Info().Str("engine", engine.Name()).Msg("transcription engine ready")
	return engine
}
