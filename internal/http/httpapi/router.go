package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"

	"gallery/internal/http/handlers"
	"gallery/internal/middleware"
)

// Options configures the middleware stack around the handlers.
type Options struct {
	Logger          zerolog.Logger
	AllowedOrigins  []string
	RateLimitPerMin int
	SessionSecret   string
	Country         middleware.CountryLookup
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(
		middleware.RequestID,
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
			AllowCredentials: !containsWildcard(origins),
			MaxAge:           300,
		}),
		middleware.Country(opts.Country),
		middleware.Session(opts.SessionSecret),
	)

	r.Get("/health", app.Health)
	r.Get("/models", app.Models)
	r.Get("/render/{id}", app.GetRender)
	r.Get("/search", app.Search)
	r.Get("/styles", app.Styles)
	r.Get("/default", app.Default)
	r.Get("/images/{year}/{month}/{filename}", app.ServeImage)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/v1/openapi.json")))
	r.Post("/webhook/stripe", app.StripeWebhook)
	r.Post("/auth/google", app.AuthGoogle)
	r.Post("/auth/logout", app.Logout)

	// Writes that start paid or slow work are rate limited per client.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
		r.Post("/renders", app.CreateRender)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession)
			r.Post("/matrix", app.CreateMatrix)
			r.Post("/upload", app.Upload)
			r.Post("/apply-style", app.ApplyStyle)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession)
		r.Get("/me", app.Me)
		r.Post("/checkout", app.Checkout)
		r.Get("/billing-portal", app.BillingPortal)
	})

	return r
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
