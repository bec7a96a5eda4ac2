package handlers

import (
	"net/http"
	"strconv"

	"gallery/internal/domain"
)

const maxDefaultLimit = 100

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// Search pages through completed renders by style phrase.
func (a *App) Search(w http.ResponseWriter, r *http.Request) {
	q := domain.SearchQuery{
		Text:   r.URL.Query().Get("q"),
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 0),
	}
	res, err := a.Gallery.Search(r.Context(), q)
	if err != nil {
		a.log(r).Error().Err(err).Msg("search renders failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to search renders")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"items": a.toDTOs(res.Items),
		"total": res.Total,
	})
}

func (a *App) Styles(w http.ResponseWriter, r *http.Request) {
	styles, err := a.Gallery.Styles(r.Context())
	if err != nil {
		a.log(r).Error().Err(err).Msg("list styles failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load styles")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"styles": styles})
}

// Default returns the newest completed renders for the landing gallery.
func (a *App) Default(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 24)
	if limit <= 0 {
		limit = 24
	}
	if limit > maxDefaultLimit {
		limit = maxDefaultLimit
	}
	items, err := a.Gallery.ListDone(r.Context(), limit)
	if err != nil {
		a.log(r).Error().Err(err).Msg("list default renders failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load renders")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"items": a.toDTOs(items)})
}
