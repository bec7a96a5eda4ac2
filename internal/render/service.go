package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gallery/internal/domain"
	"gallery/internal/infra"
	"gallery/internal/providers/image"
)

// Catalog is the registry surface the service needs.
type Catalog interface {
	Resolver
	ListModels() []string
}

// Submitter schedules a render id for execution.
type Submitter interface {
	Submit(ctx context.Context, id string) error
}

// Service is the entry point for creating and inspecting renders.
type Service struct {
	repo      domain.RenderRepository
	catalog   Catalog
	submitter Submitter
	logger    *infra.Logger
	newID     func() string
	now       func() time.Time
}

// NewService wires the service.
func NewService(repo domain.RenderRepository, catalog Catalog, submitter Submitter, logger *infra.Logger) *Service {
	if logger == nil {
		l := infra.Logger(zerolog.Nop())
		logger = &l
	}
	return &Service{
		repo:      repo,
		catalog:   catalog,
		submitter: submitter,
		logger:    logger,
		newID:     func() string { return uuid.NewString() },
		now:       time.Now,
	}
}

// SubmitRender validates the request, stores a pending render and schedules
// it. An unknown model is rejected before anything is stored.
func (s *Service) SubmitRender(ctx context.Context, p domain.NewRenderParams) (*domain.Render, error) {
	if _, err := s.catalog.Resolve(p.ModelKey); err != nil {
		return nil, err
	}
	job, err := domain.NewRender(s.newID(), p, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create render: %w", err)
	}
	if err := s.submitter.Submit(ctx, job.ID); err != nil {
		s.abandon(ctx, job, err)
		return nil, err
	}
	s.logger.Info().Str("render_id", job.ID).Str("model_key", job.ModelKey).Msg("render submitted")
	return job.Clone(), nil
}

// abandon fails a render that could not be scheduled so it does not stay
// pending forever.
func (s *Service) abandon(ctx context.Context, job *domain.Render, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := job.MarkFailed(cause, s.now()); err != nil {
		return
	}
	if err := s.repo.Update(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("render_id", job.ID).Msg("record unscheduled render")
	}
}

// GetRenderStatus returns the current snapshot of a render.
func (s *Service) GetRenderStatus(ctx context.Context, id string) (*domain.Render, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// ListModels returns the registered model keys.
func (s *Service) ListModels() []string {
	return s.catalog.ListModels()
}

// MaxMatrixJobs bounds the renders a single matrix request may create.
const MaxMatrixJobs = 100

// MatrixRequest asks for one render per style and model pair.
type MatrixRequest struct {
	BasePrompt string
	Styles     []string
	Models     []string
	UserID     *string
	Params     image.Params
}

// MatrixError reports a combination that could not be submitted.
type MatrixError struct {
	Style string
	Model string
	Err   error
}

func (e MatrixError) Error() string {
	return fmt.Sprintf("%s x %s: %v", e.Style, e.Model, e.Err)
}

func (e MatrixError) Unwrap() error { return e.Err }

// MatrixResult lists what was created and what was not.
type MatrixResult struct {
	Jobs   []*domain.Render
	Errors []MatrixError
}

// CreateMatrix submits every distinct style and model combination at zero
// cost. Each combination stands alone, so one failure does not stop the rest.
func (s *Service) CreateMatrix(ctx context.Context, req MatrixRequest) (*MatrixResult, error) {
	if strings.TrimSpace(req.BasePrompt) == "" {
		return nil, fmt.Errorf("%w: base prompt is required", domain.ErrInvalidRender)
	}
	styles, models := distinct(req.Styles), distinct(req.Models)
	if len(styles) == 0 || len(models) == 0 {
		return nil, fmt.Errorf("%w: at least one style and one model are required", domain.ErrInvalidRender)
	}
	if n := len(styles) * len(models); n > MaxMatrixJobs {
		return nil, fmt.Errorf("%w: matrix of %d renders exceeds %d", domain.ErrInvalidRender, n, MaxMatrixJobs)
	}

	res := &MatrixResult{Jobs: []*domain.Render{}, Errors: []MatrixError{}}
	for _, style := range styles {
		for _, model := range models {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			job, err := s.SubmitRender(ctx, domain.NewRenderParams{
				UserID:      req.UserID,
				StylePhrase: style,
				BasePrompt:  req.BasePrompt,
				ModelKey:    model,
				CostCredits: 0,
				Params:      req.Params,
			})
			if err != nil {
				res.Errors = append(res.Errors, MatrixError{Style: style, Model: model, Err: err})
				continue
			}
			res.Jobs = append(res.Jobs, job)
		}
	}
	s.logger.Info().Int("created", len(res.Jobs)).Int("failed", len(res.Errors)).Msg("matrix submitted")
	return res, nil
}

// distinct trims values and drops blanks and repeats, keeping first-seen order.
func distinct(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// IsClientError reports whether err stems from the request rather than the
// system.
func IsClientError(err error) bool {
	var unknown *domain.UnknownModelError
	return errors.As(err, &unknown) || errors.Is(err, domain.ErrInvalidRender)
}
