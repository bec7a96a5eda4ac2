package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/text/cases"

	"gallery/internal/domain"
	"gallery/internal/infra"
	"gallery/internal/sqlinline"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// RenderRepositoryPG implements domain.RenderRepository and
// domain.GalleryRepository on top of the marker-checked SQL runner.
type RenderRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewRenderRepository constructs the repository.
func NewRenderRepository(sql infra.SQLExecutor) *RenderRepositoryPG {
	return &RenderRepositoryPG{sql: sql}
}

// Create inserts a new render row.
func (r *RenderRepositoryPG) Create(ctx context.Context, render *domain.Render) error {
	meta, err := encodeMetadata(render.Metadata)
	if err != nil {
		return err
	}
	_, err = r.sql.Exec(ctx, sqlinline.QInsertRender,
		render.ID,
		render.UserID,
		render.StylePhrase,
		render.ModelKey,
		render.BasePrompt,
		render.ImagePath,
		render.ThumbPath,
		render.InputImagePath,
		string(render.Status),
		render.CostCredits,
		meta,
		render.CreatedAt,
	)
	return err
}

// Get fetches a render by id.
func (r *RenderRepositoryPG) Get(ctx context.Context, id string) (*domain.Render, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectRender, id)
	render, err := scanRender(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return render, nil
}

// Update writes status, paths and metadata. Rows that already left pending
// are not touched and the call reports ErrInvalidTransition.
func (r *RenderRepositoryPG) Update(ctx context.Context, render *domain.Render) error {
	meta, err := encodeMetadata(render.Metadata)
	if err != nil {
		return err
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateRender,
		render.ID,
		string(render.Status),
		render.ImagePath,
		render.ThumbPath,
		meta,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: render %s is missing or no longer pending", domain.ErrInvalidTransition, render.ID)
	}
	return nil
}

// Search pages through completed renders whose style contains q.Text.
func (r *RenderRepositoryPG) Search(ctx context.Context, q domain.SearchQuery) (*domain.SearchResult, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := r.sql.Query(ctx, sqlinline.QSearchRenders, escapeLike(strings.TrimSpace(q.Text)), offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := &domain.SearchResult{Items: []domain.Render{}}
	for rows.Next() {
		var total int
		render, err := scanRender(rows, &total)
		if err != nil {
			return nil, err
		}
		result.Items = append(result.Items, *render)
		result.Total = total
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Styles lists distinct style phrases of completed renders. Phrases that only
// differ by case collapse to the first one seen.
func (r *RenderRepositoryPG) Styles(ctx context.Context) ([]string, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectDoneStyles)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fold := cases.Fold()
	seen := make(map[string]struct{})
	styles := []string{}
	for rows.Next() {
		var style string
		if err := rows.Scan(&style); err != nil {
			return nil, err
		}
		key := fold.String(strings.TrimSpace(style))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		styles = append(styles, style)
	}
	return styles, rows.Err()
}

// ListDone returns the newest completed renders.
func (r *RenderRepositoryPG) ListDone(ctx context.Context, limit int) ([]domain.Render, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	rows, err := r.sql.Query(ctx, sqlinline.QSelectDefaultRenders, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Render{}
	for rows.Next() {
		render, err := scanRender(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *render)
	}
	return out, rows.Err()
}

func scanRender(row pgx.Row, extra ...any) (*domain.Render, error) {
	var (
		render  domain.Render
		status  string
		rawMeta []byte
	)
	dest := []any{
		&render.ID,
		&render.UserID,
		&render.StylePhrase,
		&render.ModelKey,
		&render.BasePrompt,
		&render.ImagePath,
		&render.ThumbPath,
		&render.InputImagePath,
		&status,
		&render.CostCredits,
		&rawMeta,
		&render.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	render.Status = domain.RenderStatus(status)
	render.Metadata = map[string]any{}
	if len(rawMeta) > 0 {
		if err := json.Unmarshal(rawMeta, &render.Metadata); err != nil {
			return nil, fmt.Errorf("decode render metadata: %w", err)
		}
		if render.Metadata == nil {
			render.Metadata = map[string]any{}
		}
	}
	render.CreatedAt = render.CreatedAt.In(time.UTC)
	return &render, nil
}

func encodeMetadata(meta map[string]any) ([]byte, error) {
	if meta == nil {
		meta = map[string]any{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode render metadata: %w", err)
	}
	return raw, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
