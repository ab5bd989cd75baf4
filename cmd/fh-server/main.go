package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/AlarisGit/FamilyHealth/internal/config"
	"github.com/AlarisGit/FamilyHealth/internal/domain/directory"
	"github.com/AlarisGit/FamilyHealth/internal/domain/scheduling"
	"github.com/AlarisGit/FamilyHealth/internal/platform/apierror"
	"github.com/AlarisGit/FamilyHealth/internal/platform/auth"
	"github.com/AlarisGit/FamilyHealth/internal/platform/cache"
	"github.com/AlarisGit/FamilyHealth/internal/platform/db"
	"github.com/AlarisGit/FamilyHealth/internal/platform/middleware"
	"github.com/AlarisGit/FamilyHealth/internal/platform/telemetry"
	"github.com/AlarisGit/FamilyHealth/internal/platform/validate"
	"github.com/AlarisGit/FamilyHealth/migrations"
)

const version = "0.1.0"

// referenceCachePrefix namespaces the reference-data keys in redis.
const referenceCachePrefix = "fh:ref"

func main() {
	rootCmd := &cobra.Command{
		Use:   "fh-server",
		Short: "Family health visit scheduling API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// migrationSource returns the embedded migrations, or dir when set.
func migrationSource(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	return migrations.FS
}

func openMigrator(ctx context.Context, cmd *cobra.Command) (*db.Migrator, *pgxpool.Pool, *config.Config, error) {
	dir, _ := cmd.Flags().GetString("dir")

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, nil, err
	}
	return db.NewMigrator(pool, migrationSource(dir)), pool, cfg, nil
}

// refreshReferenceCache drops the cached clinic and direction lists so the
// server does not keep serving rows a migration replaced. An empty redisURL
// is a no-op.
func refreshReferenceCache(ctx context.Context, redisURL string, logger zerolog.Logger) error {
	client, err := cache.NewClient(ctx, redisURL)
	if err != nil || client == nil {
		return err
	}
	defer client.Close()

	dir := directory.NewDirectory(nil, cache.New(client, referenceCachePrefix, 0, logger))
	return dir.InvalidateReferenceData(ctx)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			ctx := context.Background()

			migrator, pool, cfg, err := openMigrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)
			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)

			if count > 0 {
				logger := newLogger(cfg.Env)
				if err := refreshReferenceCache(ctx, cfg.RedisURL, logger); err != nil {
					logger.Warn().Err(err).Msg("reference cache not invalidated")
				}
			}
			return nil
		},
	}
	upCmd.Flags().String("schema", "public", "Target schema for migrations")
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			ctx := context.Background()

			migrator, pool, _, err := openMigrator(ctx, cmd)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd, schema, statuses)
			return nil
		},
	}
	statusCmd.Flags().String("schema", "public", "Target schema for migrations")
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printStatus(cmd *cobra.Command, schema string, statuses []db.MigrationStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	if cfg.IsDev() {
		logger.Warn().
			Int64("privileged_patient_id", cfg.PrivilegedPatientID).
			Msg("running in development mode: patient_id is trusted as-is")
	}

	// Database
	ctx := context.Background()
	pool, err := db.Connect(ctx, logger, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, db.RetryPolicy{
		Attempts: cfg.DBConnectRetries,
		Delay:    cfg.DBConnectRetryDelay,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Reference data cache (optional)
	var refCache *cache.Cache
	redisClient, err := cache.NewClient(ctx, cfg.RedisURL)
	switch {
	case err != nil:
		logger.Warn().Err(err).Msg("redis unavailable, reference cache disabled")
	case redisClient != nil:
		defer redisClient.Close()
		refCache = cache.New(redisClient, referenceCachePrefix, cfg.ReferenceCacheTTL, logger)
		logger.Info().Msg("reference cache enabled")
	}

	metrics := telemetry.NewMetrics(nil)
	e := newServer(cfg, logger, pool, refCache, metrics)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer wires middleware, health endpoints and the API routes.
func newServer(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, refCache *cache.Cache, metrics *telemetry.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apierror.HTTPErrorHandler(logger)
	e.Validator = validate.New()

	// Global middleware
	e.Use(middleware.RequestID())
	e.Use(metrics.Middleware())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader},
	}))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	e.Use(middleware.RateLimit(rateLimitCfg, "/health", "/health/db", "/metrics"))
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool, func() *db.PoolStats { return db.GetPoolStats(pool) }))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// API
	apiV1 := e.Group("/api/v1", db.ConnMiddleware(pool))

	dirSvc := directory.NewDirectory(directory.NewRepoPG(pool), refCache)
	directory.NewHandler(dirSvc).RegisterRoutes(apiV1)

	schedSvc := scheduling.NewService(
		scheduling.NewWindowRepoPG(pool),
		scheduling.NewVisitRepoPG(pool),
		scheduling.NewTxRunnerPG(pool),
		dirSvc,
		logger,
		metrics,
	)
	resolver := auth.SentinelResolver{Sentinel: cfg.PrivilegedPatientID}
	scheduling.NewHandler(schedSvc).RegisterRoutes(apiV1, auth.CallerMiddleware(resolver))

	return e
}
