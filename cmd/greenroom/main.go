package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/greenroomhq/greenroom/pkg/audit"
	"github.com/greenroomhq/greenroom/pkg/auth"
	"github.com/greenroomhq/greenroom/pkg/config"
	"github.com/greenroomhq/greenroom/pkg/directory"
	"github.com/greenroomhq/greenroom/pkg/observability"
	"github.com/greenroomhq/greenroom/pkg/rbac"
	"github.com/greenroomhq/greenroom/pkg/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "greenroom: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, nil)
	logger.Info("starting greenroom authorization service")

	// Database.
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime)
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Redis is optional; caching and distributed limits degrade to
	// per-process behavior without it.
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis URL: %w", err)
		}
		if cfg.Redis.Password != "" {
			opts.Password = cfg.Redis.Password
		}
		opts.DB = cfg.Redis.DB
		opts.PoolSize = cfg.Redis.PoolSize
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis unreachable, continuing without it")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	// Migrations.
	authStore := auth.NewSQLStore(db)
	if err := authStore.Migrate(ctx); err != nil {
		return fmt.Errorf("auth migrations failed: %w", err)
	}
	if err := rbac.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("rbac migrations failed: %w", err)
	}
	if err := directory.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("directory migrations failed: %w", err)
	}

	// Audit trail: database is the source of truth, stderr gets a
	// structured mirror, files are opt-in.
	dbAuditLogger, err := audit.NewDBLogger(db)
	if err != nil {
		return fmt.Errorf("audit logger init failed: %w", err)
	}
	auditSinks := []audit.Logger{dbAuditLogger, audit.NewLogrusLogger(nil)}
	if cfg.Audit.FileLogEnabled {
		fileLogger, err := audit.NewFileLogger(audit.FileLoggerConfig{
			BasePath: cfg.Audit.FileLogPath,
			Rotate:   true,
		})
		if err != nil {
			return fmt.Errorf("audit file logger init failed: %w", err)
		}
		auditSinks = append(auditSinks, fileLogger)
	}
	auditLogger := audit.NewMultiLogger(auditSinks...)
	defer auditLogger.Close()
	auditStore := audit.NewDBStore(dbAuditLogger)

	// RBAC.
	rbacStore, err := rbac.NewSQLStore(db)
	if err != nil {
		return fmt.Errorf("rbac store init failed: %w", err)
	}
	var roleStore rbac.Store = rbacStore
	if redisClient != nil {
		roleStore = rbac.NewCachedStore(rbacStore, redisClient, 5*time.Minute)
	}
	if err := rbac.SeedBuiltInRoles(ctx, roleStore); err != nil {
		return fmt.Errorf("role seeding failed: %w", err)
	}
	if cfg.RBAC.SeedFile != "" {
		if err := rbac.ApplySeedFile(ctx, roleStore, cfg.RBAC.SeedFile); err != nil {
			return fmt.Errorf("seed file failed: %w", err)
		}
		auditLogger.LogConfiguration(ctx, audit.EventTypeConfigSeedLoad, "",
			cfg.RBAC.SeedFile, nil, "role seed file applied")
		if cfg.RBAC.WatchSeedFile {
			go func() {
				if err := rbac.WatchSeedFile(ctx, roleStore, cfg.RBAC.SeedFile, logger); err != nil {
					logger.WithError(err).Error("seed file watcher stopped")
				}
			}()
		}
	}

	// Directory.
	var dirService directory.Service = directory.NewPostgresService(db)
	if redisClient != nil {
		dirService = directory.NewCachedService(dirService, redisClient, 5*time.Minute)
	}

	// Observability.
	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}
	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("opentelemetry init failed: %w", err)
	}

	tokenManager := auth.NewTokenManager(authStore)
	resolver := rbac.NewStoreResolver(roleStore, logger)

	srv, err := server.New(server.Options{
		Config:       cfg,
		Logger:       logger,
		Metrics:      metrics,
		TokenManager: tokenManager,
		Resolver:     resolver,
		RBACStore:    roleStore,
		Directory:    dirService,
		AuditLogger:  auditLogger,
		AuditStore:   auditStore,
		Redis:        redisClient,
	})
	if err != nil {
		return fmt.Errorf("server init failed: %w", err)
	}

	// Background maintenance.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Auth.CleanupSchedule, func() {
		defer observability.RecoverPanic(logger, "token cleanup")
		n, err := tokenManager.CleanupExpiredTokens(context.Background())
		if err != nil {
			logger.WithError(err).Error("expired token cleanup failed")
			return
		}
		if n > 0 {
			logger.WithField("removed", n).Info("expired tokens removed")
			auditLogger.LogAuthentication(context.Background(), audit.EventTypeAuthTokenCleanup,
				"", audit.EventStatusSuccess, fmt.Sprintf("removed %d expired tokens", n))
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule token cleanup: %w", err)
	}
	if _, err := scheduler.AddFunc(cfg.Audit.CleanupSchedule, func() {
		defer observability.RecoverPanic(logger, "audit cleanup")
		policy := audit.RetentionPolicy{
			RetentionDays:   cfg.Audit.RetentionDays,
			ArchiveEnabled:  cfg.Audit.ArchiveEnabled,
			ArchivePath:     cfg.Audit.ArchivePath,
			CompressArchive: true,
		}
		n, err := auditStore.Cleanup(context.Background(), policy)
		if err != nil {
			logger.WithError(err).Error("audit retention cleanup failed")
			return
		}
		if n > 0 {
			logger.WithField("removed", n).Info("expired audit events removed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule audit cleanup: %w", err)
	}
	scheduler.Start()

	// API server.
	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics server on its own port for probes.
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	var g errgroup.Group
	g.Go(func() error {
		logger.Infof("API listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Infof("health endpoint listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		manager := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
		manager.RegisterShutdownFunc("health server", func(shutdownCtx context.Context) error {
			return healthServer.Shutdown(shutdownCtx)
		})
		manager.RegisterShutdownFunc("scheduler", func(shutdownCtx context.Context) error {
			cronCtx := scheduler.Stop()
			select {
			case <-cronCtx.Done():
				return nil
			case <-shutdownCtx.Done():
				return shutdownCtx.Err()
			}
		})
		if providers != nil {
			manager.RegisterShutdownFunc("opentelemetry", func(shutdownCtx context.Context) error {
				return observability.ShutdownOTel(shutdownCtx, providers, logger)
			})
		}
		return manager.WaitForShutdown()
	})

	return g.Wait()
}
