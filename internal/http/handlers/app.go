package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gallery/internal/domain"
	"gallery/internal/infra"
	"gallery/internal/middleware"
	"gallery/internal/render"
)

// RenderService is the render pipeline surface used by the HTTP layer.
type RenderService interface {
	SubmitRender(ctx context.Context, p domain.NewRenderParams) (*domain.Render, error)
	GetRenderStatus(ctx context.Context, id string) (*domain.Render, error)
	ListModels() []string
	CreateMatrix(ctx context.Context, req render.MatrixRequest) (*render.MatrixResult, error)
}

// IDTokenVerifier validates third-party identity tokens.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, token string) (map[string]any, error)
}

// AssetStore reads and writes stored files by key.
type AssetStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	Open(ctx context.Context, key string) (*os.File, error)
}

// App holds the dependencies shared by every handler.
type App struct {
	Renders        RenderService
	Gallery        domain.GalleryRepository
	Users          domain.UserRepository
	Store          AssetStore
	Verifier       IDTokenVerifier
	SessionSecret  string
	SessionTTL     time.Duration
	SecureCookies  bool
	StorageBaseURL string
	Logger         *infra.Logger

	now func() time.Time
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]any{
		"error": map[string]string{
			"code":    errCode,
			"message": message,
		},
	})
}

// renderError maps pipeline errors onto the JSON error envelope.
func (a *App) renderError(w http.ResponseWriter, r *http.Request, err error) {
	var unknown *domain.UnknownModelError
	switch {
	case errors.As(err, &unknown):
		a.error(w, http.StatusBadRequest, "unknown_model", err.Error())
	case errors.Is(err, domain.ErrInvalidRender):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "render not found")
	default:
		a.log(r).Error().Err(err).Msg("render request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// log prefers the request scoped logger installed by the access log middleware.
func (a *App) log(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	if a.Logger != nil {
		return a.Logger
	}
	nop := zerolog.Nop()
	return &nop
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

func (a *App) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}

// assetURL turns a storage key into a public URL.
func (a *App) assetURL(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	base := strings.TrimRight(a.StorageBaseURL, "/")
	return base + "/" + strings.TrimLeft(key, "/")
}

type renderDTO struct {
	ID             string         `json:"id"`
	Status         string         `json:"status"`
	StylePhrase    string         `json:"style_phrase"`
	BasePrompt     string         `json:"base_prompt"`
	ModelKey       string         `json:"model_key"`
	UserID         *string        `json:"user_id,omitempty"`
	InputImagePath *string        `json:"input_image_path,omitempty"`
	ImagePath      string         `json:"image_path,omitempty"`
	ThumbPath      string         `json:"thumb_path,omitempty"`
	ImageURL       string         `json:"image_url,omitempty"`
	ThumbURL       string         `json:"thumb_url,omitempty"`
	CostCredits    int            `json:"cost_credits"`
	Metadata       map[string]any `json:"metadata"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (a *App) toDTO(r *domain.Render) renderDTO {
	meta := r.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return renderDTO{
		ID:             r.ID,
		Status:         string(r.Status),
		StylePhrase:    r.StylePhrase,
		BasePrompt:     r.BasePrompt,
		ModelKey:       r.ModelKey,
		UserID:         r.UserID,
		InputImagePath: r.InputImagePath,
		ImagePath:      r.ImagePath,
		ThumbPath:      r.ThumbPath,
		ImageURL:       a.assetURL(r.ImagePath),
		ThumbURL:       a.assetURL(r.ThumbPath),
		CostCredits:    r.CostCredits,
		Metadata:       meta,
		CreatedAt:      r.CreatedAt,
	}
}

func (a *App) toDTOs(items []domain.Render) []renderDTO {
	out := make([]renderDTO, 0, len(items))
	for i := range items {
		out = append(out, a.toDTO(&items[i]))
	}
	return out
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
