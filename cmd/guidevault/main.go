package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/voyagen/guidevault/internal/cache"
	"github.com/voyagen/guidevault/internal/config"
	"github.com/voyagen/guidevault/internal/server"
	"github.com/voyagen/guidevault/internal/service"
	"github.com/voyagen/guidevault/internal/store"
)

func main() {
	configPath := flag.String("config", "", "Optional config file path (YAML); else use env DATABASE_URL")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg.LogLevel)

	ctx := context.Background()

	// Run migrations. Look next to the working directory first, then next to
	// the executable (container layouts ship them beside the binary).
	absMigrations, err := filepath.Abs("migrations")
	if err != nil {
		absMigrations = "migrations"
	}
	if _, err := os.Stat(absMigrations); err != nil {
		if exe, e := os.Executable(); e == nil {
			absMigrations = filepath.Join(filepath.Dir(exe), "migrations")
		}
	}
	if err := store.RunMigrations(cfg.DatabaseURL, "file://"+absMigrations); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db")
	}
	defer pg.Close()

	// Connect to Redis if REDIS_URL is configured.
	var rds *cache.Redis
	var appStore store.Store = pg
	if cfg.RedisURL != "" {
		rds, err = cache.New(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("redis")
		}
		defer rds.Close()

		if err := rds.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("redis ping")
		}
		appStore = store.NewCachedStore(pg, rds)
		log.Info().Msg("redis connected (caching and sync queue enabled)")
	} else {
		log.Info().Msg("redis disabled (REDIS_URL not set); syncs run inline")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	applier := service.NewApplier(appStore, cfg.MaxBatchOps)
	syncer := service.NewSyncer(appStore, applier, cfg.FullSyncWindow, cfg.CurrentSyncWindow, cfg.SyncWorkers)

	if rds != nil {
		go runSyncWorker(ctx, rds, appStore, syncer, cfg)
	}

	srv := server.New(appStore, cfg, syncer, rds)
	if err := srv.ListenAndServe(ctx); err != nil {
		log.Fatal().Err(err).Msg("server")
	}
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl := zerolog.InfoLevel
	if level != "" {
		if parsed, err := zerolog.ParseLevel(level); err == nil {
			lvl = parsed
		}
	}
	log.Logger = zerolog.New(os.Stderr).Level(lvl).With().
		Timestamp().
		Str("service", "guidevault").
		Logger()
}

// runSyncWorker continuously dequeues sync jobs from Redis and processes
// them. It stops when ctx is cancelled (graceful shutdown).
func runSyncWorker(ctx context.Context, rds *cache.Redis, s store.Store, syncer *service.Syncer, cfg *config.Config) {
	logger := log.With().Str("component", "worker").Logger()
	logger.Info().Msg("sync worker started")
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("sync worker stopping")
			return
		default:
		}

		job, err := cache.Dequeue(ctx, rds, cache.DefaultQueue, 5*time.Second)
		if err != nil {
			logger.Error().Err(err).Msg("dequeue")
			time.Sleep(2 * time.Second)
			continue
		}
		if job == nil {
			continue // timeout, loop back to check ctx
		}

		mode, err := service.ParseSyncMode(job.Mode)
		if err != nil {
			logger.Error().Err(err).Int64("source_id", job.SourceID).Msg("bad job, dropped")
			continue
		}
		runSyncJob(ctx, rds, s, syncer, cfg, job.SourceID, mode, logger)
	}
}

func runSyncJob(ctx context.Context, rds *cache.Redis, s store.Store, syncer *service.Syncer, cfg *config.Config, sourceID int64, mode service.SyncMode, logger zerolog.Logger) {
	// One sync per source at a time; the lock TTL covers a slow full sync.
	unlock, err := cache.TryLock(ctx, rds, cache.SyncLockKey(sourceID), 30*time.Minute)
	if err != nil {
		if errors.Is(err, cache.ErrLocked) {
			logger.Warn().Int64("source_id", sourceID).Msg("source already syncing, job dropped")
			return
		}
		logger.Error().Err(err).Int64("source_id", sourceID).Msg("sync lock")
		return
	}
	defer unlock()

	src, err := s.GetSourceByID(ctx, sourceID)
	if err != nil {
		logger.Error().Err(err).Int64("source_id", sourceID).Msg("load source")
		return
	}

	start := time.Now()
	count, err := service.Ingest(ctx, s, syncer, *src, cfg.UserAgent, cfg.Timeout, mode)
	if err != nil {
		logger.Error().Err(err).Int64("source_id", sourceID).Str("mode", string(mode)).Msg("sync finished with errors")
		return
	}
	logger.Info().
		Int64("source_id", sourceID).
		Str("mode", string(mode)).
		Int("channels", count).
		Dur("took", time.Since(start)).
		Msg("sync finished")
}
