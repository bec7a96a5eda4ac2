package handlers

import (
	"encoding/json"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"gallery/internal/domain"
	"gallery/internal/middleware"
	"gallery/internal/render"
)

// maxJSONBody caps request bodies of JSON endpoints.
const maxJSONBody = 1 << 20

type createRenderRequest struct {
	StylePhrase    string         `json:"style_phrase"`
	BasePrompt     string         `json:"base_prompt"`
	ModelKey       string         `json:"model_key"`
	InputImagePath string         `json:"input_image_path"`
	Params         map[string]any `json:"params"`
}

type renderAccepted struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}

// CreateRender stores a pending render and schedules it.
func (a *App) CreateRender(w http.ResponseWriter, r *http.Request) {
	var req createRenderRequest
	if !a.decode(w, r, &req) {
		return
	}
	userID := a.currentUserID(r)
	if src := strings.TrimSpace(req.InputImagePath); src != "" {
		if userID == "" || !strings.HasPrefix(path.Clean(src), uploadKey(userID, "")+"/") {
			a.error(w, http.StatusBadRequest, "bad_request", "input_image_path must reference one of your uploads")
			return
		}
	}
	job, err := a.Renders.SubmitRender(r.Context(), domain.NewRenderParams{
		UserID:         optionalString(userID),
		StylePhrase:    req.StylePhrase,
		BasePrompt:     req.BasePrompt,
		ModelKey:       req.ModelKey,
		InputImagePath: optionalString(req.InputImagePath),
		Params:         req.Params,
		Country:        middleware.CountryFromContext(r.Context()),
	})
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, renderAccepted{ID: job.ID, Status: string(job.Status)})
}

// GetRender returns the current snapshot of a render.
func (a *App) GetRender(w http.ResponseWriter, r *http.Request) {
	job, err := a.Renders.GetRenderStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.toDTO(job))
}

type matrixRequest struct {
	BasePrompt   string         `json:"base_prompt"`
	StylePhrases []string       `json:"style_phrases"`
	ModelKeys    []string       `json:"model_keys"`
	Params       map[string]any `json:"params"`
}

type matrixJob struct {
	ID          string `json:"id"`
	StylePhrase string `json:"style_phrase"`
	ModelKey    string `json:"model_key"`
	Status      string `json:"status"`
}

type matrixFailure struct {
	StylePhrase string `json:"style_phrase"`
	ModelKey    string `json:"model_key"`
	Error       string `json:"error"`
}

// CreateMatrix submits one render per style and model pair.
func (a *App) CreateMatrix(w http.ResponseWriter, r *http.Request) {
	var req matrixRequest
	if !a.decode(w, r, &req) {
		return
	}
	res, err := a.Renders.CreateMatrix(r.Context(), render.MatrixRequest{
		BasePrompt: req.BasePrompt,
		Styles:     req.StylePhrases,
		Models:     req.ModelKeys,
		UserID:     optionalString(a.currentUserID(r)),
		Params:     req.Params,
	})
	if err != nil && res == nil {
		a.renderError(w, r, err)
		return
	}

	jobs := make([]matrixJob, 0, len(res.Jobs))
	for _, job := range res.Jobs {
		jobs = append(jobs, matrixJob{ID: job.ID, StylePhrase: job.StylePhrase, ModelKey: job.ModelKey, Status: string(job.Status)})
	}
	failures := make([]matrixFailure, 0, len(res.Errors))
	for _, e := range res.Errors {
		failures = append(failures, matrixFailure{StylePhrase: e.Style, ModelKey: e.Model, Error: e.Err.Error()})
	}
	code := http.StatusAccepted
	if len(jobs) == 0 {
		code = http.StatusBadRequest
	}
	a.json(w, code, map[string]any{"jobs": jobs, "errors": failures})
}
