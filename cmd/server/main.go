// @title           Motion Transfer Backend API
// @version         1.0.0
// @description     Backend API for uploading reference videos and following motion transfer projects from pending through processing to completed.

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:5000
// @BasePath  /

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token. Only enforced when the server has AUTH_JWT_SECRET set.

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"motion-transfer-backend/docs"
	"motion-transfer-backend/internal/config"
	"motion-transfer-backend/internal/database"
	"motion-transfer-backend/internal/handlers"
	"motion-transfer-backend/internal/metrics"
	"motion-transfer-backend/internal/processing"
	"motion-transfer-backend/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := config.NewLogger(cfg.LogLevel)
	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	configureSwagger(cfg)

	store, db, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	files, err := openFileStore(ctx, cfg, log)
	if err != nil {
		return err
	}

	m := metrics.New()
	trigger := processing.NewTrigger(store, processing.Options{
		Delay:             cfg.ProcessingDelay,
		CompletionTimeout: cfg.CompletionTimeout,
		Generator:         processing.PlaceholderGenerator{IdentityFrameURL: cfg.IdentityFrameURL},
		Metrics:           m,
	}, log)

	if cfg.ResumeOnStartup {
		if _, err := trigger.Resume(ctx); err != nil {
			log.WithError(err).Warn("failed to resume processing projects")
		}
	}

	routerCfg := handlers.RouterConfig{
		Projects:       handlers.NewProjectsHandler(store, files, trigger, m, cfg.MaxUploadBytes, log),
		Health:         handlers.NewHealthHandler(db, cfg.Version),
		Metrics:        m,
		Log:            log,
		CORSOrigins:    cfg.CORSOrigins,
		AuthJWTSecret:  cfg.AuthJWTSecret,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}
	if local, ok := files.(*storage.LocalStorage); ok {
		routerCfg.UploadDir = local.BaseDir()
		routerCfg.UploadURLPrefix = local.URLPrefix()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"port":        cfg.Port,
			"environment": cfg.Environment,
			"storage":     cfg.StorageBackend,
			"delay":       cfg.ProcessingDelay.String(),
		}).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		trigger.Shutdown()
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown incomplete")
	}
	trigger.Shutdown()
	log.Info("server stopped")
	return nil
}

// openStore returns the project store, the pingable database behind it (nil for the
// in-memory store) and a cleanup func.
func openStore(ctx context.Context, cfg *config.Config, log *logrus.Logger) (database.ProjectStore, handlers.Pinger, func(), error) {
	var (
		store   database.ProjectStore
		db      handlers.Pinger
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory project store")
		store = database.NewMemoryStore()
	} else {
		sqlDB, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		closers = append(closers, func() { closeDB(sqlDB, log) })

		if err := database.NewMigrator(sqlDB, log).Run(ctx); err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("migration failed: %w", err)
		}
		log.Info("migrations completed successfully")

		pg := database.NewPostgresStore(sqlDB)
		store, db = pg, pg
	}

	if cfg.RedisURL != "" {
		rdb, err := database.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, project cache disabled")
		} else {
			closers = append(closers, func() { rdb.Close() })
			store = database.NewCachedStore(store, rdb, cfg.RedisCacheTTL, log)
			log.WithField("ttl", cfg.RedisCacheTTL.String()).Info("project cache enabled")
		}
	}

	return store, db, closeAll, nil
}

func closeDB(db *sql.DB, log logrus.FieldLogger) {
	if err := db.Close(); err != nil {
		log.WithError(err).Warn("failed to close database")
	}
}

func openFileStore(ctx context.Context, cfg *config.Config, log *logrus.Logger) (storage.FileStore, error) {
	switch cfg.StorageBackend {
	case config.StorageSupabase:
		return storage.NewSupabaseStorage(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)
	case config.StorageMinio:
		return storage.NewMinioStorage(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL, log)
	default:
		return storage.NewLocalStorage(cfg.UploadDir, cfg.UploadURLPrefix)
	}
}

// configureSwagger points the Swagger UI at the public base URL.
func configureSwagger(cfg *config.Config) {
	docs.SwaggerInfo.Version = cfg.Version
	if cfg.BaseURL == "" {
		return
	}
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return
	}
	docs.SwaggerInfo.Host = baseURL.Host
	if baseURL.Scheme == "https" {
		docs.SwaggerInfo.Schemes = []string{"https", "http"}
	} else {
		docs.SwaggerInfo.Schemes = []string{"http", "https"}
	}
}
