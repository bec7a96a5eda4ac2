package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"gallery/internal/domain"
	"gallery/internal/http/handlers"
	"gallery/internal/render"
)

type nopRenders struct{}

func (nopRenders) SubmitRender(ctx context.Context, p domain.NewRenderParams) (*domain.Render, error) {
	return nil, domain.ErrInvalidRender
}

func (nopRenders) GetRenderStatus(ctx context.Context, id string) (*domain.Render, error) {
	return nil, domain.ErrNotFound
}

func (nopRenders) ListModels() []string { return []string{"replicate:sdxl"} }

func (nopRenders) CreateMatrix(ctx context.Context, req render.MatrixRequest) (*render.MatrixResult, error) {
	return nil, domain.ErrInvalidRender
}

func newTestRouter() http.Handler {
	app := &handlers.App{Renders: nopRenders{}, SessionSecret: "s"}
	return NewRouter(app, Options{
		Logger:          zerolog.Nop(),
		AllowedOrigins:  []string{"https://gallery.example.com"},
		RateLimitPerMin: 1,
		SessionSecret:   "s",
	})
}

func TestRouterPublicRoutes(t *testing.T) {
	h := newTestRouter()
	for _, target := range []string{"/health", "/models", "/v1/openapi.json"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", target, rec.Code)
		}
		if rec.Header().Get("X-Request-ID") == "" {
			t.Fatalf("%s: missing request id", target)
		}
	}
}

func TestRouterRequiresSession(t *testing.T) {
	h := newTestRouter()
	for i, tc := range []struct{ method, target string }{
		{http.MethodGet, "/me"},
		{http.MethodPost, "/checkout"},
		{http.MethodGet, "/billing-portal"},
		{http.MethodPost, "/matrix"},
		{http.MethodPost, "/upload"},
		{http.MethodPost, "/apply-style"},
	} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(tc.method, tc.target, nil)
		req.RemoteAddr = fmt.Sprintf("203.0.113.%d:1234", i+1)
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: status = %d", tc.method, tc.target, rec.Code)
		}
	}
}

func TestRouterRateLimitsRenders(t *testing.T) {
	h := newTestRouter()
	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/renders", nil)
		req.RemoteAddr = "198.51.100.7:1234"
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusBadRequest || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
}

func TestRouterCORS(t *testing.T) {
	h := newTestRouter()
	req := httptest.NewRequest(http.MethodOptions, "/renders", nil)
	req.Header.Set("Origin", "https://gallery.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://gallery.example.com" {
		t.Fatalf("allow origin = %q", got)
	}
}
