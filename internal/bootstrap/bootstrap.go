// Package bootstrap builds the render pipeline shared by the API server, the
// standalone worker and the command line tools.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"gallery/internal/adapter/repo"
	"gallery/internal/infra"
	"gallery/internal/infra/credentials"
	"gallery/internal/providers/image"
	"gallery/internal/render"
	"gallery/internal/sqlinline"
	"gallery/internal/storage"
)

// Pipeline holds the long lived pieces of the render pipeline.
type Pipeline struct {
	Pool     *pgxpool.Pool
	SQL      *infra.SQLRunner
	Renders  *repo.RenderRepositoryPG
	Users    *repo.UserRepositoryPG
	Store    *storage.FileStore
	Registry *image.Registry
	Queue    render.Queue
	Redis    *redis.Client
	Executor *render.Executor
	Service  *render.Service
}

// New connects to the database, ensures the schema, resolves provider
// credentials and builds the executor on the configured queue backend.
func New(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (*Pipeline, error) {
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{Pool: pool}
	ok := false
	defer func() {
		if !ok {
			p.Close()
		}
	}()

	p.SQL = infra.NewSQLRunner(pool, *logger)
	if _, err := p.SQL.Exec(ctx, sqlinline.QEnsureSchema); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	p.Renders = repo.NewRenderRepository(p.SQL)
	p.Users = repo.NewUserRepository(p.SQL)

	storagePath := cfg.StoragePath
	if abs, err := filepath.Abs(storagePath); err == nil {
		storagePath = abs
	}
	if p.Store, err = storage.NewFileStore(storagePath); err != nil {
		return nil, err
	}

	creds, err := resolveCredentials(ctx, cfg, credentials.NewStore(p.SQL))
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{Timeout: cfg.ProviderTimeout}
	if p.Registry, err = image.NewRegistry(ctx, creds, image.WithHTTPClient(httpClient), image.WithLogger(logger)); err != nil {
		return nil, fmt.Errorf("provider registry: %w", err)
	}

	switch cfg.QueueBackend {
	case infra.QueueBackendRedis:
		if p.Redis, err = infra.NewRedisClient(ctx, cfg); err != nil {
			return nil, err
		}
		p.Queue = render.NewRedisQueue(p.Redis, cfg.RedisQueueKey)
	default:
		p.Queue = render.NewMemoryQueue()
	}

	p.Executor = render.NewExecutor(p.Renders, p.Registry, p.Store, p.Queue, render.ExecutorOptions{
		Workers:         cfg.RenderWorkers,
		ProviderTimeout: cfg.ProviderTimeout,
		Fetcher:         render.NewFetcher(&http.Client{}, cfg.DownloadTimeout),
		Logger:          logger,
	})
	p.Service = render.NewService(p.Renders, p.Registry, p.Executor, logger)

	ok = true
	return p, nil
}

// resolveCredentials prefers tokens stored in integration_tokens over the
// environment.
func resolveCredentials(ctx context.Context, cfg *infra.Config, store *credentials.Store) (image.Credentials, error) {
	creds := image.Credentials{
		ReplicateBaseURL: cfg.ReplicateBaseURL,
		OpenAIBaseURL:    cfg.OpenAIBaseURL,
		ImagenModel:      cfg.ImagenModel,
	}
	var err error
	if creds.ReplicateToken, err = store.Resolve(ctx, credentials.ProviderReplicate, cfg.ReplicateToken); err != nil {
		return creds, fmt.Errorf("load replicate token: %w", err)
	}
	if creds.OpenAIAPIKey, err = store.Resolve(ctx, credentials.ProviderOpenAI, cfg.OpenAIAPIKey); err != nil {
		return creds, fmt.Errorf("load openai key: %w", err)
	}
	if creds.GeminiAPIKey, err = store.Resolve(ctx, credentials.ProviderGemini, cfg.GeminiAPIKey); err != nil {
		return creds, fmt.Errorf("load gemini key: %w", err)
	}
	return creds, nil
}

// Close releases the Redis client and the database pool.
func (p *Pipeline) Close() {
	if p == nil {
		return
	}
	if p.Redis != nil {
		_ = p.Redis.Close()
	}
	if p.Pool != nil {
		p.Pool.Close()
	}
}
