package domain

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"
)

// RenderStatus enumerates render lifecycle states.
type RenderStatus string

const (
	RenderStatusPending RenderStatus = "pending"
	RenderStatusDone    RenderStatus = "done"
	RenderStatusFailed  RenderStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s RenderStatus) IsTerminal() bool {
	return s == RenderStatusDone || s == RenderStatusFailed
}

// Metadata keys written across the render lifecycle.
const (
	MetaCreatedAt       = "created_at"
	MetaModelAvailable  = "model_available"
	MetaParams          = "params"
	MetaCountry         = "country"
	MetaGeneration      = "generation"
	MetaEffectivePrompt = "effective_prompt"
	MetaCompletedAt     = "completed_at"
	MetaError           = "error"
	MetaFailedAt        = "failed_at"
)

// Render is a single request to apply a style phrase to a base prompt with one
// model. Only the render executor moves it out of pending.
type Render struct {
	ID             string
	UserID         *string
	StylePhrase    string
	BasePrompt     string
	ModelKey       string
	InputImagePath *string
	Status         RenderStatus
	ImagePath      string
	ThumbPath      string
	CostCredits    int
	Metadata       map[string]any
	CreatedAt      time.Time
}

// NewRenderParams carries the caller-supplied fields of a render.
type NewRenderParams struct {
	UserID         *string
	StylePhrase    string
	BasePrompt     string
	ModelKey       string
	InputImagePath *string
	CostCredits    int
	Params         map[string]any
	Country        string
}

// NewRender builds a pending render after validating the request fields.
// Style phrase and base prompt are stored trimmed, so the composed prompt is
// built from the trimmed values.
func NewRender(id string, p NewRenderParams, now time.Time) (*Render, error) {
	style := strings.TrimSpace(p.StylePhrase)
	base := strings.TrimSpace(p.BasePrompt)
	switch {
	case strings.TrimSpace(id) == "":
		return nil, fmt.Errorf("%w: id is required", ErrInvalidRender)
	case style == "":
		return nil, fmt.Errorf("%w: style phrase is required", ErrInvalidRender)
	case base == "":
		return nil, fmt.Errorf("%w: base prompt is required", ErrInvalidRender)
	case strings.TrimSpace(p.ModelKey) == "":
		return nil, fmt.Errorf("%w: model key is required", ErrInvalidRender)
	case p.CostCredits < 0:
		return nil, fmt.Errorf("%w: cost must not be negative", ErrInvalidRender)
	}

	now = now.UTC()
	meta := map[string]any{
		MetaCreatedAt:      now.Format(time.RFC3339Nano),
		MetaModelAvailable: true,
	}
	if len(p.Params) > 0 {
		meta[MetaParams] = maps.Clone(p.Params)
	}
	if c := strings.TrimSpace(p.Country); c != "" {
		meta[MetaCountry] = strings.ToUpper(c)
	}

	r := &Render{
		ID:          id,
		UserID:      p.UserID,
		StylePhrase: style,
		BasePrompt:  base,
		ModelKey:    strings.TrimSpace(p.ModelKey),
		Status:      RenderStatusPending,
		CostCredits: p.CostCredits,
		Metadata:    meta,
		CreatedAt:   now,
	}
	if p.InputImagePath != nil {
		if path := strings.TrimSpace(*p.InputImagePath); path != "" {
			r.InputImagePath = &path
		}
	}
	return r, nil
}

// IsImageToImage reports whether a source image drives the generation.
func (r *Render) IsImageToImage() bool {
	return r.InputImagePath != nil && *r.InputImagePath != ""
}

// GenerationParams returns a copy of the job-level parameter overrides.
func (r *Render) GenerationParams() map[string]any {
	raw, ok := r.Metadata[MetaParams]
	if !ok {
		return nil
	}
	params, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	return maps.Clone(params)
}

// MergeMetadata adds entries to the metadata map. Existing keys are kept
// unless the update carries the same key.
func (r *Render) MergeMetadata(entries map[string]any) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any, len(entries))
	}
	for k, v := range entries {
		r.Metadata[k] = v
	}
}

// MarkDone records both asset paths and moves the render to done.
func (r *Render) MarkDone(imagePath, thumbPath string, meta map[string]any) error {
	if r.Status != RenderStatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, RenderStatusDone)
	}
	if strings.TrimSpace(imagePath) == "" || strings.TrimSpace(thumbPath) == "" {
		return errors.New("render: image and thumbnail paths are required")
	}
	r.ImagePath = imagePath
	r.ThumbPath = thumbPath
	r.MergeMetadata(meta)
	r.Status = RenderStatusDone
	return nil
}

// MarkFailed moves the render to failed and records the cause. Asset paths
// are cleared.
func (r *Render) MarkFailed(cause error, at time.Time) error {
	if r.Status != RenderStatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, RenderStatusFailed)
	}
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	r.ImagePath = ""
	r.ThumbPath = ""
	r.MergeMetadata(map[string]any{
		MetaError:    msg,
		MetaFailedAt: at.UTC().Format(time.RFC3339Nano),
	})
	r.Status = RenderStatusFailed
	return nil
}

// Clone returns a deep enough copy for callers that must not share state with
// the store.
func (r *Render) Clone() *Render {
	if r == nil {
		return nil
	}
	out := *r
	if r.UserID != nil {
		v := *r.UserID
		out.UserID = &v
	}
	if r.InputImagePath != nil {
		v := *r.InputImagePath
		out.InputImagePath = &v
	}
	out.Metadata = maps.Clone(r.Metadata)
	return &out
}

// SearchQuery filters the public gallery.
type SearchQuery struct {
	Text   string
	Offset int
	Limit  int
}

// SearchResult is a page of completed renders.
type SearchResult struct {
	Items []Render
	Total int
}
