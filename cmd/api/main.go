package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"editpool/api/internal/app"
	"editpool/api/internal/config"
	"editpool/api/internal/export"
	"editpool/api/internal/persist"
	"editpool/api/internal/projector"
	"editpool/api/internal/search"
	"editpool/api/internal/store"
	"editpool/api/internal/worker"
)

// backend is the session store chosen by configuration plus what the rest of
// the process needs from it.
type backend struct {
	blobs    persist.BlobStore
	fallback search.Searcher
	ping     func(context.Context) error
	// reindex, when set, lists every stored annotation for a full search reindex.
	reindex func(context.Context) ([]search.AnnotationRecord, error)
	close   func()
}

func main() {
	cfg := config.Load()
	logger := cfg.InstallLogger()
	ctx := context.Background()

	diff, err := projector.ParseDiffMode(cfg.SuggestionDiff)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid suggestion diff mode")
	}

	be, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.PersistBackend).Msg("session backend unavailable")
	}
	defer be.close()

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, be.fallback)

	pool := worker.NewPool(cfg.Workers, cfg.WorkerQueue, worker.WithLogger(logger.With().Str("component", "worker").Logger()))
	defer pool.Shutdown()

	if meiliClient != nil && be.reindex != nil {
		pool.Submit("reindex", func(ctx context.Context) error {
			records, err := be.reindex(ctx)
			if err != nil {
				return err
			}
			log.Info().Int("annotations", len(records)).Msg("search reindex")
			return searchService.IndexAnnotations(ctx, records)
		})
	}

	service := app.NewService(persist.NewAdapter(be.blobs), searchService, export.NewService(), pool, app.Options{
		Diff: diff,
		Ping: be.ping,
	})

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Str("backend", cfg.PersistBackend).Str("diff", string(diff)).Msg("editpool API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}

func openBackend(ctx context.Context, cfg config.Config) (backend, error) {
	noop := func() {}
	switch cfg.PersistBackend {
	case config.BackendMemory:
		return backend{blobs: persist.NewMemoryStore(), fallback: search.NewMemory(), close: noop}, nil

	case config.BackendRedis:
		rs, err := persist.NewRedisStore(cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			return backend{}, err
		}
		return backend{blobs: rs, fallback: search.NewMemory(), ping: rs.Ping, close: func() { _ = rs.Close() }}, nil

	case config.BackendPostgres:
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return backend{}, err
		}
		if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
			db.Close()
			return backend{}, fmt.Errorf("migrations failed: %w", err)
		}
		pg := store.NewPostgresStore(db)
		fts := search.NewPgFTS(db)
		return backend{
			blobs:    pg,
			fallback: fts,
			ping:     pg.Ping,
			reindex:  fts.LoadAllRecords,
			close:    func() { _ = db.Close() },
		}, nil

	case config.BackendMinio:
		ms, err := persist.NewMinioStore(ctx, persist.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return backend{}, err
		}
		return backend{blobs: ms, fallback: search.NewMemory(), ping: ms.Ping, close: noop}, nil

	case config.BackendGit:
		if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
			return backend{}, fmt.Errorf("create repos dir: %w", err)
		}
		return backend{blobs: persist.NewGitStore(cfg.ReposDir), fallback: search.NewMemory(), close: noop}, nil

	default:
		return backend{}, fmt.Errorf("unknown persistence backend %q", cfg.PersistBackend)
	}
}
