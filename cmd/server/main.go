package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jimdaga/reelsip/internal/ai"
	"github.com/jimdaga/reelsip/internal/config"
	"github.com/jimdaga/reelsip/internal/database"
	"github.com/jimdaga/reelsip/internal/health"
	"github.com/jimdaga/reelsip/internal/integrations"
	"github.com/jimdaga/reelsip/internal/posts"
	"github.com/jimdaga/reelsip/internal/recurring"
	"github.com/jimdaga/reelsip/internal/rules"
	"github.com/jimdaga/reelsip/internal/streams"
	"github.com/jimdaga/reelsip/internal/video"
	"github.com/jimdaga/reelsip/internal/worker"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func main() {
	// .env is optional; real deployments set the environment directly
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load .env file: %v", err)
	}

	cfg := config.Load()

	logger := worker.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	db, err := database.Init(cfg.DatabaseURL, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close(db)

	if err := database.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	if cfg.SeedDevData {
		if err := database.SeedDevData(db); err != nil {
			log.Fatalf("Failed to seed dev data: %v", err)
		}
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	logger.Info("Starting reelsip", "mode", cfg.Mode, "env", cfg.Env, "stub_mode", cfg.StubMode)

	switch cfg.Mode {
	case "server":
		err = runServer(cfg, db, rdb, logger)
	case "worker":
		err = runWorker(cfg, db, rdb, logger)
	case "embedded":
		err = runEmbedded(cfg, db, rdb, logger)
	default:
		err = fmt.Errorf("unknown MODE %q (want server, worker or embedded)", cfg.Mode)
	}
	if err != nil {
		logger.Error("Exiting with error", "error", err)
		os.Exit(1)
	}
}

// runServer serves the HTTP API only. Manual runs are queued for a worker.
func runServer(cfg *config.Config, db *gorm.DB, rdb *redis.Client, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	enqueuer, err := worker.NewEnqueuer(cfg.RedisURL, cfg.RuleLockTTL)
	if err != nil {
		return err
	}
	defer enqueuer.Close()

	return serveHTTP(ctx, cfg, newRouter(cfg, db, rdb, enqueuer, logger), logger)
}

// runWorker processes scheduled cycles and manual runs, and exposes metrics.
func runWorker(cfg *config.Config, db *gorm.DB, rdb *redis.Client, logger *slog.Logger) error {
	cycle, err := buildCycle(cfg, db, rdb, logger)
	if err != nil {
		return err
	}

	stopScheduler, err := worker.StartScheduler(cfg)
	if err != nil {
		return err
	}
	defer stopScheduler()

	stopConsumer, err := streams.StartOutcomeConsumer(cfg.RedisURL, db)
	if err != nil {
		return err
	}
	defer stopConsumer()

	metricsSrv := &http.Server{Addr: ":" + cfg.Port, Handler: promhttp.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
	defer metricsSrv.Close()

	// Run blocks and handles its own signal interception
	return worker.Run(cfg, cycle)
}

// runEmbedded runs the API, worker, scheduler and outcome consumer in one process.
func runEmbedded(cfg *config.Config, db *gorm.DB, rdb *redis.Client, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cycle, err := buildCycle(cfg, db, rdb, logger)
	if err != nil {
		return err
	}

	enqueuer, err := worker.NewEnqueuer(cfg.RedisURL, cfg.RuleLockTTL)
	if err != nil {
		return err
	}
	defer enqueuer.Close()

	stopWorker, err := worker.Start(cfg, cycle)
	if err != nil {
		return err
	}
	defer stopWorker()

	stopScheduler, err := worker.StartScheduler(cfg)
	if err != nil {
		return err
	}
	defer stopScheduler()

	stopConsumer, err := streams.StartOutcomeConsumer(cfg.RedisURL, db)
	if err != nil {
		return err
	}
	defer stopConsumer()

	return serveHTTP(ctx, cfg, newRouter(cfg, db, rdb, enqueuer, logger), logger)
}

// buildCycle wires the recurring content pipeline.
func buildCycle(cfg *config.Config, db *gorm.DB, rdb *redis.Client, logger *slog.Logger) (*recurring.Cycle, error) {
	catalog, err := ai.LoadCatalog(cfg.AIProvidersFile)
	if err != nil {
		return nil, err
	}
	credentials := cfg.AICredentials()
	if cfg.StubMode {
		for name, key := range credentials {
			if key == "" {
				credentials[name] = "stub"
			}
		}
	}
	resolver := ai.NewResolver(catalog, credentials)

	scheduler, err := posts.NewScheduler(db, cfg.PostSlots)
	if err != nil {
		return nil, fmt.Errorf("invalid POST_SLOTS: %w", err)
	}

	videos := video.NewClient(cfg.KieAIBaseURL, cfg.KieAIAPIKey, cfg.VideoPollInterval, db, cfg.StubMode)
	if !videos.Configured() {
		logger.Warn("KIEAI_API_KEY not set; recurring rules will be skipped until it is configured")
	}

	orchestrator := recurring.NewOrchestrator(recurring.OrchestratorDeps{
		Resolver:     resolver,
		Ideas:        ai.NewClient(cfg.StubMode),
		Videos:       videos,
		Integrations: integrations.NewRegistry(db),
		Posts:        scheduler,
		Logger:       logger,
		StepTimeout:  cfg.StepTimeout,
		VideoTimeout: cfg.VideoTimeout,
	})

	return recurring.NewCycle(recurring.CycleConfig{
		Store:     rules.NewStore(db),
		Processor: orchestrator,
		Locker:    worker.NewRedisLockerWithClient(rdb),
		Recorder:  streams.NewPublisherWithClient(rdb),
		Logger:    logger,
		Location:  cfg.Location(),
		LockTTL:   cfg.RuleLockTTL,
	}), nil
}

func newRouter(cfg *config.Config, db *gorm.DB, rdb *redis.Client, enqueuer rules.RunEnqueuer, logger *slog.Logger) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", gin.WrapF(health.Handler))
	r.GET("/ready", gin.WrapF(health.ReadyHandler(map[string]health.Checker{
		"database": func(ctx context.Context) error { return database.Ping(ctx, db) },
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rules.RegisterRoutes(r.Group("/recurring-content"), rules.NewStore(db), enqueuer, logger)
	return r
}

// serveHTTP runs the HTTP server until ctx is cancelled, then drains it.
func serveHTTP(ctx context.Context, cfg *config.Config, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
