package image

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/rs/zerolog"

	"gallery/internal/domain"
	"gallery/internal/infra"
)

// Registered model keys.
const (
	ModelSDXL   = "replicate:sdxl"
	ModelDalle3 = "openai:dalle3"
	ModelDalle2 = "openai:dalle2"
	ModelImagen = "google:imagen"
)

// Credentials holds provider tokens. An empty token leaves the provider out.
type Credentials struct {
	ReplicateToken   string
	ReplicateBaseURL string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	GeminiAPIKey     string
	ImagenModel      string
}

// RegistryOption customizes registry construction.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	httpClient *http.Client
	logger     *infra.Logger
	extra      map[string]Adapter
}

// WithHTTPClient sets the client used by HTTP based adapters.
func WithHTTPClient(c *http.Client) RegistryOption {
	return func(cfg *registryConfig) { cfg.httpClient = c }
}

// WithLogger sets the registry logger.
func WithLogger(l *infra.Logger) RegistryOption {
	return func(cfg *registryConfig) { cfg.logger = l }
}

// WithAdapter registers an adapter under key, replacing any built-in one.
func WithAdapter(key string, a Adapter) RegistryOption {
	return func(cfg *registryConfig) {
		if cfg.extra == nil {
			cfg.extra = make(map[string]Adapter)
		}
		cfg.extra[key] = a
	}
}

// Registry maps model keys to adapters. It is built once and read-only
// afterwards, so concurrent lookups need no locking.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry registers an adapter for every provider that has a token.
func NewRegistry(ctx context.Context, creds Credentials, opts ...RegistryOption) (*Registry, error) {
	cfg := registryConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger
	if logger == nil {
		l := infra.Logger(zerolog.Nop())
		logger = &l
	}

	r := &Registry{adapters: make(map[string]Adapter)}

	if strings.TrimSpace(creds.ReplicateToken) != "" {
		a, err := NewReplicateAdapter(ReplicateOptions{
			Token:      creds.ReplicateToken,
			BaseURL:    creds.ReplicateBaseURL,
			HTTPClient: cfg.httpClient,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		r.adapters[ModelSDXL] = a
	}

	if strings.TrimSpace(creds.OpenAIAPIKey) != "" {
		for key, model := range map[string]openai.ImageModel{
			ModelDalle3: openai.ImageModelDallE3,
			ModelDalle2: openai.ImageModelDallE2,
		} {
			a, err := NewOpenAIAdapter(OpenAIOptions{
				APIKey:     creds.OpenAIAPIKey,
				BaseURL:    creds.OpenAIBaseURL,
				Model:      model,
				HTTPClient: cfg.httpClient,
			})
			if err != nil {
				return nil, err
			}
			r.adapters[key] = a
		}
	}

	if strings.TrimSpace(creds.GeminiAPIKey) != "" {
		a, err := NewImagenAdapter(ctx, creds.GeminiAPIKey, creds.ImagenModel)
		if err != nil {
			return nil, err
		}
		r.adapters[ModelImagen] = a
	}

	for key, a := range cfg.extra {
		r.adapters[key] = a
	}

	logger.Info().Strs("models", r.ListModels()).Msg("provider registry ready")
	return r, nil
}

// Resolve returns the adapter registered for key.
func (r *Registry) Resolve(key string) (Adapter, error) {
	if r != nil {
		if a, ok := r.adapters[key]; ok {
			return a, nil
		}
	}
	return nil, &domain.UnknownModelError{ModelKey: key}
}

// ListModels returns the registered keys in sorted order.
func (r *Registry) ListModels() []string {
	if r == nil {
		return []string{}
	}
	keys := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// ComposePrompt joins the base prompt and style phrase with one space. The
// inputs are used verbatim.
func ComposePrompt(base, style string) string {
	return base + " " + style
}

// DefaultTimeout bounds a single provider call when the caller sets none.
const DefaultTimeout = 120 * time.Second
