package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dfryer1193/miblog/blog/application"
	"github.com/dfryer1193/miblog/blog/domain"
	"github.com/dfryer1193/miblog/blog/persistence"
	"github.com/dfryer1193/miblog/internal/middleware"
	"github.com/dfryer1193/miblog/internal/rest"
	"github.com/dfryer1193/miblog/shared/config"
	"github.com/dfryer1193/miblog/shared/db"
	"github.com/dfryer1193/miblog/shared/db/postgres"
	"github.com/dfryer1193/miblog/shared/db/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const startupTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a yaml config file (default ./app.yaml if present)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setupLogging(cfg.Log)

	startCtx, cancelStart := context.WithTimeout(context.Background(), startupTimeout)
	repo, closeRepo, err := openRepository(startCtx, cfg)
	cancelStart()
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("Failed to open post storage")
	}
	defer closeRepo()

	postService, loc, err := newPostService(repo, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure post service")
	}

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.LoggingMiddleware())
	r.Use(gin.CustomRecovery(middleware.HandlePanics()))
	if len(cfg.Server.CORSOrigins) > 0 {
		r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	}
	rest.NewApi(r, rest.NewPostHandler(postService, loc))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("storage", cfg.Storage.Driver).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown server")
	}

	log.Info().Msg("Server stopped")
}

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		log.Warn().Str("level", cfg.Level).Msg("Unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// openRepository connects the configured store and wraps it with the Redis
// cache when one is configured. The returned func releases every connection.
func openRepository(ctx context.Context, cfg *config.Config) (domain.PostRepository, func(), error) {
	var (
		repo    domain.PostRepository
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		database := sqlite.NewSQLiteDB(&sqlite.SQLiteConfig{Path: cfg.Storage.SQLite.Path})
		sqlDB, err := db.Open(database)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() {
			if err := database.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close sqlite database")
			}
		})
		repo = persistence.NewPostRepository(sqlDB)

	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, postgres.Config{
			DSN:      cfg.Storage.Postgres.DSN,
			MaxConns: cfg.Storage.Postgres.MaxConns,
		})
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, pool.Close)
		if err := postgres.Migrate(ctx, pool); err != nil {
			closeAll()
			return nil, nil, err
		}
		repo = persistence.NewPostgresPostRepository(pool)

	case config.DriverMemory:
		log.Warn().Msg("Using in-memory post storage; posts are lost on restart")
		repo = persistence.NewMemoryPostRepository()

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	if cfg.CacheEnabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			closeAll()
			return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		closers = append(closers, func() {
			if err := rdb.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close redis client")
			}
		})
		log.Info().Str("addr", cfg.Cache.Redis.Addr).Dur("ttl", cfg.Cache.Redis.TTL).Msg("Post cache enabled")
		repo = persistence.NewCachedPostRepository(repo, rdb, cfg.Cache.Redis.TTL)
	}

	return repo, closeAll, nil
}

func newPostService(repo domain.PostRepository, cfg *config.Config) (*application.PostService, *time.Location, error) {
	mode, err := application.ParseRecencyMode(cfg.Posts.RecentMode)
	if err != nil {
		return nil, nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}

	service := application.NewPostService(repo,
		application.WithLocation(loc),
		application.WithRecentWindow(cfg.Posts.RecentWindowDays),
		application.WithRecencyMode(mode),
	)
	return service, loc, nil
}
