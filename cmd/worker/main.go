package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gallery/internal/bootstrap"
	"gallery/internal/infra"
	"gallery/internal/render"
)

const (
	reapInterval = 30 * time.Second
	reapBatch    = 100
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	if cfg.QueueBackend != infra.QueueBackendRedis {
		logger.Fatal().Str("queue", cfg.QueueBackend).Msg("worker: QUEUE_BACKEND=redis is required; the memory queue runs inside the API")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, err := bootstrap.New(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build render pipeline")
	}
	defer pipeline.Close()

	queue, ok := pipeline.Queue.(*render.RedisQueue)
	if !ok {
		logger.Fatal().Msg("worker: redis queue unavailable")
	}
	go reapStale(ctx, queue, staleAfter(cfg), &logger)

	pipeline.Executor.Run(ctx)
	logger.Info().Msg("worker: stopped")
}

// staleAfter is how long a claim may stay unacknowledged before the render is
// handed to another worker.
func staleAfter(cfg *infra.Config) time.Duration {
	return 2*cfg.ProviderTimeout + cfg.DownloadTimeout
}

// reapStale periodically requeues renders claimed by workers that died.
func reapStale(ctx context.Context, queue *render.RedisQueue, olderThan time.Duration, logger *infra.Logger) {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n, err := queue.RequeueStale(ctx, olderThan, reapBatch)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error().Err(err).Msg("worker: requeue stale claims")
			}
			continue
		}
		if n > 0 {
			logger.Warn().Int64("requeued", n).Msg("worker: requeued stale claims")
		}
		if waiting, processing, err := queue.Len(ctx); err == nil {
			logger.Debug().Int64("waiting", waiting).Int64("processing", processing).Msg("worker: queue depth")
		}
	}
}
