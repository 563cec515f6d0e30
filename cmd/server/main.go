package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"promptgate/internal/archive"
	"promptgate/internal/config"
	"promptgate/internal/generator"
	apphttp "promptgate/internal/http"
	"promptgate/internal/repository/sqlite"
	"promptgate/internal/service"
	"promptgate/internal/sweeper"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		logger.Fatalf("auth jwt secret is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	userRepo := sqlite.NewUserRepository(db)
	usageRepo := sqlite.NewUsageRepository(db)

	if err := userRepo.Init(ctx); err != nil {
		logger.Fatalf("init user repository: %v", err)
	}
	if err := usageRepo.Init(ctx); err != nil {
		logger.Fatalf("init usage repository: %v", err)
	}

	window := time.Duration(cfg.Quota.WindowHours) * time.Hour
	userService := service.NewUserService(userRepo)
	quotaService := service.NewQuotaService(usageRepo, window)

	gen := buildGenerator(cfg, logger)

	archiveSvc, err := buildArchive(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup archive: %v", err)
	}

	sweep := sweeper.New(sweeper.Config{
		Retention: window,
		Interval:  time.Duration(cfg.Quota.SweepIntervalHours) * time.Hour,
		ArchiveOptions: archive.ExportOptions{
			Bucket:    cfg.Archive.Bucket,
			KeyPrefix: cfg.Archive.KeyPrefix,
		},
		Logger: logger,
	}, usageRepo, archiveSvc)
	sweep.Start(ctx)

	if cfg.Admin.Enabled {
		logger.Warn("admin endpoints are enabled; do not expose this instance publicly")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(
		userService,
		quotaService,
		gen,
		archiveSvc,
		cfg.Archive.Bucket,
		cfg.Archive.KeyPrefix,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.TokenTTLHours)*time.Hour,
		cfg.Admin.Enabled,
		logger,
	)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	sweep.Shutdown()

	logger.Info("bye")
}

func buildGenerator(cfg config.Config, logger *logrus.Logger) generator.Generator {
	if strings.TrimSpace(cfg.Gemini.APIKey) == "" {
		logger.Warn("gemini api key not set, using mock responses")
		return generator.Static{}
	}
	return generator.NewGemini(generator.GeminiConfig{
		APIKey: cfg.Gemini.APIKey,
		Model:  cfg.Gemini.Model,
		Host:   cfg.Gemini.Host,
	})
}

func buildArchive(ctx context.Context, cfg config.Config, logger *logrus.Logger) (archive.Service, error) {
	if cfg.Archive.Bucket == "" {
		logger.Info("archive bucket not set, swept usage records will be dropped")
		return nil, nil
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Archive.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Archive.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Archive.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("archiving usage exports to s3 bucket %s (region %s)", cfg.Archive.Bucket, cfg.Archive.Region)
	return archive.NewS3Service(client), nil
}
