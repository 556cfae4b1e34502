package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/opensandbox/canvas/internal/api"
	"github.com/opensandbox/canvas/internal/auth"
	"github.com/opensandbox/canvas/internal/cache"
	"github.com/opensandbox/canvas/internal/config"
	"github.com/opensandbox/canvas/internal/db"
	"github.com/opensandbox/canvas/internal/events"
	"github.com/opensandbox/canvas/internal/logging"
	"github.com/opensandbox/canvas/internal/metrics"
	"github.com/opensandbox/canvas/internal/preview"
	"github.com/opensandbox/canvas/internal/project"
	"github.com/opensandbox/canvas/internal/storage"
	"github.com/opensandbox/canvas/internal/telemetry"
	"github.com/opensandbox/canvas/internal/template"
	"github.com/opensandbox/canvas/internal/transform"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		log.Fatalf("failed to initialize logging: %v", err)
	}
	defer logging.Sync()
	logger := logging.Named("canvas")

	ctx := context.Background()

	// Project store
	var store project.Store
	var eventLog project.EventLister
	var pgStore *db.Store
	switch cfg.StoreDriver {
	case "postgres":
		pgStore, err = db.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to connect to database", logging.Err(err))
		}
		defer pgStore.Close()

		logger.Info("running database migrations")
		if err := pgStore.Migrate(ctx); err != nil {
			logger.Fatal("failed to run migrations", logging.Err(err))
		}
		store, eventLog = pgStore, pgStore
	case "sqlite":
		sqliteStore, err := db.OpenSQLiteStore(cfg.DataDir)
		if err != nil {
			logger.Fatal("failed to open sqlite store", zap.String("dir", cfg.DataDir), logging.Err(err))
		}
		defer sqliteStore.Close()
		store, eventLog = sqliteStore, sqliteStore
		logger.Info("sqlite store opened", zap.String("dir", cfg.DataDir))
	default:
		mem := project.NewMemoryStore()
		store, eventLog = mem, mem
		logger.Warn("using in-memory project store; projects do not survive a restart")
	}

	// Redis snapshot cache in front of the store
	if cfg.RedisURL != "" {
		cached, err := cache.NewSnapshotCache(cfg.RedisURL, store, cfg.CacheTTL)
		if err != nil {
			logger.Warn("redis cache not available, continuing without", logging.Err(err))
		} else {
			defer cached.Close()
			store, eventLog = cached, cached
			logger.Info("redis snapshot cache enabled", zap.Duration("ttl", cfg.CacheTTL))
		}
	}

	// Snapshot archives
	var archive *storage.Archive
	switch cfg.ArchiveBackend {
	case "s3":
		blobs, err := storage.NewS3Store(storage.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			ForcePathStyle:  cfg.S3ForcePathStyle,
		})
		if err != nil {
			logger.Fatal("failed to initialize s3 archive store", logging.Err(err))
		}
		archive = mustArchive(logger, blobs)
		logger.Info("s3 archive store configured", zap.String("bucket", cfg.S3Bucket), zap.String("region", cfg.S3Region))
	case "azure":
		blobs, err := storage.NewAzureBlobStore(ctx, cfg.AzureAccountURL, cfg.AzureContainer)
		if err != nil {
			logger.Fatal("failed to initialize azure archive store", logging.Err(err))
		}
		archive = mustArchive(logger, blobs)
		logger.Info("azure archive store configured", zap.String("container", cfg.AzureContainer))
	case "":
	default:
		logger.Fatal("unknown archive backend", zap.String("backend", cfg.ArchiveBackend))
	}

	// Compile pipeline
	blobStore := preview.NewBlobStore(cfg.PublicURL)
	cdn := preview.CDNPolicy{BaseURL: cfg.CDNBaseURL, Versions: cfg.CDNVersions}
	broadcaster := events.NewBroadcaster()

	templates := template.NewRegistry()
	mgr := project.NewManager(project.Config{
		Store:     store,
		Archive:   archive,
		Templates: templates,
		Pipeline: project.Pipeline{
			Transformer: transform.New(transform.Options{}),
			Blobs:       blobStore,
			CDN:         cdn,
		},
		IdleTimeout: cfg.IdleTimeout,
		Listeners:   []project.Listener{broadcaster},
	})

	// Event fan-out to NATS, and the Postgres sync consumer reading it back
	if cfg.NATSURL != "" {
		hostname, _ := os.Hostname()
		publisher, err := events.NewPublisher(cfg.NATSURL, hostname)
		if err != nil {
			logger.Warn("NATS publisher not available, continuing without", logging.Err(err))
		} else {
			defer publisher.Close()
			mgr.AddListener(publisher)
			logger.Info("NATS event publisher started")
		}

		if pgStore != nil {
			consumer, err := db.NewSyncConsumer(pgStore, cfg.NATSURL)
			if err != nil {
				logger.Warn("NATS sync consumer not available, continuing without", logging.Err(err))
			} else if err := consumer.Start(); err != nil {
				logger.Warn("failed to start NATS sync consumer", logging.Err(err))
			} else {
				defer consumer.Stop()
				logger.Info("NATS sync consumer started")
			}
		}
	}

	// Product analytics
	tel, err := telemetry.New(telemetry.Config{WriteKey: cfg.SegmentWriteKey})
	if err != nil {
		logger.Warn("telemetry not available", logging.Err(err))
	} else if tel != nil {
		defer tel.Close()
		mgr.AddListener(tel)
		logger.Info("segment telemetry enabled")
	}

	if cfg.AutosaveInterval > 0 {
		autosaver := project.NewAutosaver(mgr, cfg.AutosaveInterval)
		autosaver.Start()
		defer autosaver.Stop()
	}

	if cfg.JWTSecret == "" {
		logger.Warn("CANVAS_JWT_SECRET not set; preview tokens will not survive a restart")
	}
	if cfg.APIKey == "" {
		logger.Warn("CANVAS_API_KEY not set; the API is unauthenticated")
	}

	server := api.NewServer(api.Config{
		Manager:     mgr,
		Templates:   templates,
		Blobs:       blobStore,
		Tokens:      auth.NewTokenIssuer(cfg.JWTSecret),
		Broadcaster: broadcaster,
		EventLog:    eventLog,
		APIKey:      cfg.APIKey,
		PublicURL:   cfg.PublicURL,
		CDN:         cdn,
		TokenTTL:    cfg.PreviewTokenTTL,
	})

	if cfg.MetricsAddr != "" {
		metricsSrv := metrics.StartMetricsServer(cfg.MetricsAddr)
		defer metricsSrv.Close()
		logger.Info("metrics listener started", zap.String("addr", cfg.MetricsAddr))
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("starting server", zap.String("addr", addr), zap.String("store", cfg.StoreDriver))

	go func() {
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", logging.Err(err))
			quit <- syscall.SIGTERM
		}
	}()

	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error closing server", logging.Err(err))
	}
	// Saves every live session before the store closes.
	mgr.Close(shutdownCtx)
}

func mustArchive(logger *zap.Logger, blobs storage.Blobs) *storage.Archive {
	archive, err := storage.NewArchive(blobs)
	if err != nil {
		logger.Fatal("failed to initialize archive", logging.Err(err))
	}
	return archive
}
