package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/iliyamo/certichain/internal/artifact"
	"github.com/iliyamo/certichain/internal/config"
	"github.com/iliyamo/certichain/internal/credential"
	"github.com/iliyamo/certichain/internal/database"
	"github.com/iliyamo/certichain/internal/handler"
	"github.com/iliyamo/certichain/internal/logging"
	"github.com/iliyamo/certichain/internal/metrics"
	"github.com/iliyamo/certichain/internal/middleware"
	"github.com/iliyamo/certichain/internal/queue"
	"github.com/iliyamo/certichain/internal/render"
	"github.com/iliyamo/certichain/internal/repository"
	"github.com/iliyamo/certichain/internal/router"
	"github.com/iliyamo/certichain/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env wins
	cfg := config.Load()

	logger, err := logging.New(cfg.IsDev(), cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatal("database open", zap.Error(err))
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		logger.Fatal("database migrate", zap.Error(err))
	}

	store, err := newArtifactStore(config.LoadArtifactConfig(), logger)
	if err != nil {
		logger.Fatal("artifact store", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	deps := service.CertificateDeps{
		Store:       repository.NewCertificateRepo(db),
		Generator:   credential.NewGenerator(cfg.CredentialPrefix),
		Renderer:    render.NewPDFRenderer(),
		Artifacts:   store,
		Metrics:     m,
		Logger:      logger,
		Institution: cfg.InstitutionName,
	}
	if cfg.EventsEnabled {
		pub := queue.NewPublisher(cfg.RabbitURL, logger)
		defer pub.Close()
		deps.Events = pub
		go func() {
			if err := queue.StartIssuanceConsumer(ctx, cfg.RabbitURL, cfg.AuditLogPath, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("issuance consumer stopped", zap.Error(err))
			}
		}()
	}
	svc := service.NewCertificateService(deps)

	// Redis is optional: without it the cache and limiter pass requests through.
	rdb := config.NewRedisClient(ctx)
	if rdb == nil {
		logger.Warn("redis unavailable; response cache and rate limiting disabled")
	} else {
		defer rdb.Close()
	}
	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb, logger)
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(logger))

	router.RegisterRoutes(e, db, reg)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, repository.NewAccountRepo(db), repository.NewTokenRepo(db), logger), cfg.JWTSecret)
	router.RegisterCertificates(e, handler.NewCertificateHandler(svc, cache, logger), cfg.JWTSecret, router.PublicMiddleware{
		Cache:     cache.Middleware(),
		RateLimit: limiter,
	})

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("artifact_store", store.Name()))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

// newArtifactStore builds the configured backend wrapped in a Resolver so
// inline artifacts stay readable after switching to S3.
func newArtifactStore(ac config.ArtifactConfig, logger *zap.Logger) (*artifact.Resolver, error) {
	if err := ac.Validate(); err != nil {
		return nil, err
	}
	if ac.Backend != "s3" {
		return artifact.NewResolver(artifact.NewInline()), nil
	}
	s3, err := artifact.NewS3(artifact.S3Options{
		Bucket:        ac.S3Bucket,
		Prefix:        ac.S3Prefix,
		Region:        ac.S3Region,
		Endpoint:      ac.S3Endpoint,
		AccessKey:     ac.S3AccessKey,
		SecretKey:     ac.S3SecretKey,
		PublicBaseURL: ac.S3PublicBase,
		MaxRetries:    ac.S3MaxRetries,
	}, logger)
	if err != nil {
		return nil, err
	}
	return artifact.NewResolver(s3), nil
}
