package image

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"gallery/internal/domain"
)

const (
	ProviderGoogle     = "google"
	DefaultImagenModel = "imagen-3.0-generate-002"
)

// imagenModels is the slice of *genai.Models the adapter needs.
type imagenModels interface {
	GenerateImages(ctx context.Context, model, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

// ImagenAdapter generates through the Gemini API Imagen models. Results carry
// inline bytes, so no download step follows.
type ImagenAdapter struct {
	models imagenModels
	model  string
}

// NewImagenAdapter builds a genai client for the Gemini API backend.
func NewImagenAdapter(ctx context.Context, apiKey, model string) (*ImagenAdapter, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("imagen: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("imagen: new client: %w", err)
	}
	return newImagenAdapter(client.Models, model), nil
}

func newImagenAdapter(models imagenModels, model string) *ImagenAdapter {
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultImagenModel
	}
	return &ImagenAdapter{models: models, model: model}
}

// TextToImage calls GenerateImages. Width and height collapse to the nearest
// supported aspect ratio.
func (a *ImagenAdapter) TextToImage(ctx context.Context, prompt, negative string, params Params) ([]Result, error) {
	n := clamp(params.Int("num_outputs", 1), 1, 4)
	ratio := aspectRatio(params.Int("width", 1024), params.Int("height", 1024))
	cfg := &genai.GenerateImagesConfig{
		NumberOfImages: int32(n),
		AspectRatio:    ratio,
	}
	sent := map[string]any{"prompt": prompt, "number_of_images": n, "aspect_ratio": ratio}
	if neg := strings.TrimSpace(negative); neg != "" {
		cfg.NegativePrompt = neg
		sent["negative_prompt"] = neg
	}
	if params.Has("guidance_scale") {
		g := float32(params.Float("guidance_scale", 7.5))
		cfg.GuidanceScale = &g
		sent["guidance_scale"] = g
	}

	resp, err := a.models.GenerateImages(ctx, a.model, prompt, cfg)
	if err != nil {
		return nil, a.fail(err)
	}
	if resp == nil {
		return nil, a.fail(errors.New("empty response"))
	}
	out := make([]Result, 0, len(resp.GeneratedImages))
	for _, img := range resp.GeneratedImages {
		if img == nil || img.Image == nil || len(img.Image.ImageBytes) == 0 {
			continue
		}
		meta := resultMetadata(ProviderGoogle, a.model, sent)
		if img.Image.MIMEType != "" {
			meta["mime_type"] = img.Image.MIMEType
		}
		if img.RAIFilteredReason != "" {
			meta["rai_filtered_reason"] = img.RAIFilteredReason
		}
		out = append(out, Result{Data: img.Image.ImageBytes, Metadata: meta})
	}
	if len(out) == 0 {
		return nil, a.fail(errors.New("no images returned"))
	}
	return out, nil
}

// ImageToImage is not offered by the Gemini API backend.
func (a *ImagenAdapter) ImageToImage(ctx context.Context, source SourceImage, prompt string, strength float64, params Params) ([]Result, error) {
	return nil, a.fail(fmt.Errorf("image-to-image: %w", errors.ErrUnsupported))
}

func (a *ImagenAdapter) fail(err error) error {
	return &domain.ProviderError{Provider: ProviderGoogle, Model: a.model, Err: err}
}

func aspectRatio(w, h int) string {
	if w <= 0 || h <= 0 {
		return "1:1"
	}
	r := float64(w) / float64(h)
	switch {
	case r >= 1.6:
		return "16:9"
	case r >= 1.2:
		return "4:3"
	case r <= 0.625:
		return "9:16"
	case r <= 0.83:
		return "3:4"
	default:
		return "1:1"
	}
}

var _ Adapter = (*ImagenAdapter)(nil)
