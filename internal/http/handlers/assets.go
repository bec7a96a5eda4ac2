package handlers

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"path"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"gallery/internal/domain"
	"gallery/internal/middleware"
)

const (
	maxUploadBytes = 10 << 20

	// applyStyleCost is charged for image-to-image renders of user uploads.
	applyStyleCost = 1
)

var (
	yearPattern     = regexp.MustCompile(`^[0-9]{4}$`)
	monthPattern    = regexp.MustCompile(`^(0[1-9]|1[0-2])$`)
	filenamePattern = regexp.MustCompile(`^[A-Za-z0-9-]+\.webp$`)
	uploadPattern   = regexp.MustCompile(`^[0-9a-f-]{36}\.(png|jpg|webp)$`)
)

var uploadExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

// ServeImage streams a stored render image or thumbnail.
func (a *App) ServeImage(w http.ResponseWriter, r *http.Request) {
	year := chi.URLParam(r, "year")
	month := chi.URLParam(r, "month")
	name := chi.URLParam(r, "filename")
	if !yearPattern.MatchString(year) || !monthPattern.MatchString(month) || !filenamePattern.MatchString(name) {
		a.error(w, http.StatusNotFound, "not_found", "image not found")
		return
	}
	f, err := a.Store.Open(r.Context(), path.Join("images", year, month, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			a.error(w, http.StatusNotFound, "not_found", "image not found")
			return
		}
		a.log(r).Error().Err(err).Msg("open image failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to read image")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to read image")
		return
	}
	w.Header().Set("Content-Type", "image/webp")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// Upload stores a source image for a later apply-style request.
func (a *App) Upload(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "login required")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+(1<<20))
	file, _, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "file field required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "failed to read upload")
		return
	}
	if len(data) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "empty upload")
		return
	}
	if len(data) > maxUploadBytes {
		a.error(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds 10MB")
		return
	}
	ext, ok := uploadExtensions[http.DetectContentType(data)]
	if !ok {
		a.error(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "only png, jpeg and webp are accepted")
		return
	}
	uploadID := uuid.NewString() + ext
	key, err := a.Store.Write(r.Context(), uploadKey(userID, uploadID), data)
	if err != nil {
		a.log(r).Error().Err(err).Msg("store upload failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to store upload")
		return
	}
	a.json(w, http.StatusCreated, map[string]any{"upload_id": uploadID, "path": key})
}

func uploadKey(userID, uploadID string) string {
	return path.Join("uploads", userID, uploadID)
}

type applyStyleRequest struct {
	UploadID    string         `json:"upload_id"`
	StylePhrase string         `json:"style_phrase"`
	ModelKey    string         `json:"model_key"`
	BasePrompt  string         `json:"base_prompt"`
	Params      map[string]any `json:"params"`
}

// ApplyStyle submits an image-to-image render of one of the caller's uploads.
func (a *App) ApplyStyle(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "login required")
		return
	}
	var req applyStyleRequest
	if !a.decode(w, r, &req) {
		return
	}
	uploadID := strings.TrimSpace(req.UploadID)
	if !uploadPattern.MatchString(uploadID) {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid upload_id")
		return
	}
	key := uploadKey(userID, uploadID)
	f, err := a.Store.Open(r.Context(), key)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "upload not found")
		return
	}
	f.Close()

	base := strings.TrimSpace(req.BasePrompt)
	if base == "" {
		base = "the uploaded image"
	}
	job, err := a.Renders.SubmitRender(r.Context(), domain.NewRenderParams{
		UserID:         &userID,
		StylePhrase:    req.StylePhrase,
		BasePrompt:     base,
		ModelKey:       req.ModelKey,
		InputImagePath: &key,
		CostCredits:    applyStyleCost,
		Params:         req.Params,
		Country:        middleware.CountryFromContext(r.Context()),
	})
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, renderAccepted{ID: job.ID, Status: string(job.Status)})
}
