package render

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gallery/internal/domain"
	"gallery/internal/infra"
	"gallery/internal/providers/image"
)

// DefaultStrength is the image-to-image prompt strength.
const DefaultStrength = 0.8

// Resolver maps a model key to its adapter.
type Resolver interface {
	Resolve(key string) (image.Adapter, error)
}

// AssetStore persists generated files and reads uploaded sources.
type AssetStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	Read(ctx context.Context, key string) ([]byte, error)
}

// DefaultParams returns the generation parameters every render starts from.
func DefaultParams() image.Params {
	return image.Params{
		"width":               1024,
		"height":              1024,
		"num_outputs":         1,
		"guidance_scale":      7.5,
		"num_inference_steps": 50,
	}
}

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	Workers         int
	ProviderTimeout time.Duration
	ClaimTimeout    time.Duration
	Fetcher         *Fetcher
	Logger          *infra.Logger
	Now             func() time.Time
}

// Executor runs renders on a fixed pool of workers. It is the only writer of
// terminal statuses and asset paths.
type Executor struct {
	repo            domain.RenderRepository
	resolver        Resolver
	store           AssetStore
	queue           Queue
	fetcher         *Fetcher
	workers         int
	providerTimeout time.Duration
	claimTimeout    time.Duration
	logger          *infra.Logger
	now             func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewExecutor wires an executor. Workers defaults to 2.
func NewExecutor(repo domain.RenderRepository, resolver Resolver, store AssetStore, queue Queue, opts ExecutorOptions) *Executor {
	workers := opts.Workers
	if workers <= 0 {
		workers = 2
	}
	providerTimeout := opts.ProviderTimeout
	if providerTimeout <= 0 {
		providerTimeout = image.DefaultTimeout
	}
	claimTimeout := opts.ClaimTimeout
	if claimTimeout <= 0 {
		claimTimeout = 5 * time.Second
	}
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = NewFetcher(http.DefaultClient, DefaultDownloadTimeout)
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.Nop())
		logger = &l
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Executor{
		repo:            repo,
		resolver:        resolver,
		store:           store,
		queue:           queue,
		fetcher:         fetcher,
		workers:         workers,
		providerTimeout: providerTimeout,
		claimTimeout:    claimTimeout,
		logger:          logger,
		now:             now,
		inflight:        make(map[string]struct{}),
	}
}

// Submit schedules id and returns without waiting for the render.
func (e *Executor) Submit(ctx context.Context, id string) error {
	if err := e.queue.Enqueue(ctx, id); err != nil {
		return fmt.Errorf("enqueue render %s: %w", id, err)
	}
	return nil
}

// Run claims ids and feeds the workers until ctx is cancelled, then waits
// for in-progress renders to finish.
func (e *Executor) Run(ctx context.Context) {
	e.logger.Info().Int("workers", e.workers).Msg("render executor started")

	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for id := range jobs {
				e.work(ctx, n, id)
			}
		}(i + 1)
	}

	defer func() {
		close(jobs)
		wg.Wait()
		e.logger.Info().Msg("render executor stopped")
	}()

	for {
		id, err := e.queue.ClaimBlocking(ctx, e.claimTimeout)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if !errors.Is(err, ErrQueueEmpty) {
				e.logger.Error().Err(err).Msg("claim render")
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
			}
			continue
		}
		if !e.acquire(id) {
			// another worker holds it and will bring it to a terminal state
			e.logger.Debug().Str("render_id", id).Msg("render already in flight, dropping duplicate")
			e.ack(ctx, id)
			continue
		}
		select {
		case jobs <- id:
		case <-ctx.Done():
			e.release(id)
			return
		}
	}
}

func (e *Executor) work(ctx context.Context, worker int, id string) {
	defer e.release(id)
	if err := e.Process(ctx, id); err != nil {
		e.logger.Error().Err(err).Int("worker", worker).Str("render_id", id).Msg("process render")
	}
	if ctx.Err() != nil {
		return
	}
	e.ack(ctx, id)
}

func (e *Executor) ack(ctx context.Context, id string) {
	if err := e.queue.Ack(context.WithoutCancel(ctx), id); err != nil {
		e.logger.Error().Err(err).Str("render_id", id).Msg("ack render")
	}
}

func (e *Executor) acquire(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[id]; busy {
		return false
	}
	e.inflight[id] = struct{}{}
	return true
}

func (e *Executor) release(id string) {
	e.mu.Lock()
	delete(e.inflight, id)
	e.mu.Unlock()
}

// Process executes one render to completion. Missing and already finished
// renders are skipped. Pipeline failures end as a failed render and are not
// returned; only store errors that prevent recording an outcome are, along
// with ctx errors when the render was interrupted.
func (e *Executor) Process(ctx context.Context, id string) error {
	start := e.now()
	job, err := e.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			e.logger.Warn().Str("render_id", id).Msg("render not found, skipping")
			return nil
		}
		return fmt.Errorf("load render %s: %w", id, err)
	}
	log := e.logger.With().Str("render_id", id).Str("model_key", job.ModelKey).Logger()
	if job.Status.IsTerminal() {
		log.Debug().Str("status", string(job.Status)).Msg("render already finished, skipping")
		return nil
	}

	imagePath, thumbPath, meta, err := e.execute(ctx, job)
	if err == nil {
		if err = job.MarkDone(imagePath, thumbPath, meta); err == nil {
			err = e.repo.Update(ctx, job)
		}
		if err == nil {
			log.Info().Dur("duration", e.now().Sub(start)).Str("image_path", imagePath).Msg("render done")
			return nil
		}
	}

	if ctx.Err() != nil {
		// shutting down: leave it pending for redelivery
		log.Warn().Err(err).Msg("render interrupted")
		return ctx.Err()
	}
	log.Warn().Err(err).Msg("render failed")
	return e.fail(ctx, id, err)
}

// fail re-reads the render so the failure is written over the latest state.
func (e *Executor) fail(ctx context.Context, id string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	job, err := e.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			e.logger.Warn().Str("render_id", id).Msg("render vanished before failure was recorded")
			return nil
		}
		return fmt.Errorf("reload render %s: %w", id, err)
	}
	if job.Status.IsTerminal() {
		return nil
	}
	if err := job.MarkFailed(cause, e.now()); err != nil {
		return err
	}
	if err := e.repo.Update(ctx, job); err != nil {
		return fmt.Errorf("record failure of render %s: %w", id, err)
	}
	return nil
}

func (e *Executor) execute(ctx context.Context, job *domain.Render) (string, string, map[string]any, error) {
	adapter, err := e.resolver.Resolve(job.ModelKey)
	if err != nil {
		return "", "", nil, err
	}
	prompt := image.ComposePrompt(job.BasePrompt, job.StylePhrase)

	params := DefaultParams()
	for k, v := range job.GenerationParams() {
		params[k] = v
	}

	results, err := e.generate(ctx, adapter, job, prompt, params)
	if err != nil {
		return "", "", nil, err
	}
	if len(results) == 0 {
		return "", "", nil, &domain.ProviderError{Provider: job.ModelKey, Err: errors.New("no results")}
	}
	first := results[0]

	data := first.Data
	if len(data) == 0 {
		if first.URL == "" {
			return "", "", nil, &domain.ProviderError{Provider: job.ModelKey, Err: errors.New("result has neither data nor url")}
		}
		if data, err = e.fetcher.Fetch(ctx, first.URL); err != nil {
			return "", "", nil, err
		}
	}

	enc, err := EncodeImage(data)
	if err != nil {
		return "", "", nil, err
	}
	completed := e.now().UTC()
	fullKey, thumbKey := AssetKeys(job.ID, completed)
	if fullKey, err = e.store.Write(ctx, fullKey, enc.Full); err != nil {
		return "", "", nil, fmt.Errorf("write image: %w", err)
	}
	if thumbKey, err = e.store.Write(ctx, thumbKey, enc.Thumb); err != nil {
		return "", "", nil, fmt.Errorf("write thumbnail: %w", err)
	}

	generation := map[string]any{}
	for k, v := range first.Metadata {
		generation[k] = v
	}
	if first.URL != "" {
		generation["source_url"] = first.URL
	}
	generation["width"] = enc.Width
	generation["height"] = enc.Height

	return fullKey, thumbKey, map[string]any{
		domain.MetaGeneration:      generation,
		domain.MetaEffectivePrompt: prompt,
		domain.MetaCompletedAt:     completed.Format(time.RFC3339Nano),
	}, nil
}

func (e *Executor) generate(ctx context.Context, adapter image.Adapter, job *domain.Render, prompt string, params image.Params) ([]image.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.providerTimeout)
	defer cancel()

	if !job.IsImageToImage() {
		return adapter.TextToImage(ctx, prompt, "", params)
	}
	src, err := e.store.Read(ctx, *job.InputImagePath)
	if err != nil {
		return nil, fmt.Errorf("read source image %s: %w", *job.InputImagePath, err)
	}
	return adapter.ImageToImage(ctx, image.SourceImage{
		Data:     src,
		MIME:     http.DetectContentType(src),
		Filename: *job.InputImagePath,
	}, prompt, DefaultStrength, params)
}
