package image

import (
	"context"
	"maps"
)

// Params carries generation knobs such as width, height, num_outputs,
// scheduler, num_inference_steps, guidance_scale, seed, size, quality and
// style. Adapters pick what their provider understands.
type Params map[string]any

// Clone returns a shallow copy.
func (p Params) Clone() Params {
	if p == nil {
		return Params{}
	}
	return maps.Clone(p)
}

// SourceImage is the conditioning input of an image-to-image request.
type SourceImage struct {
	Data     []byte
	MIME     string
	Filename string
}

// Result is one generated image. Either URL or Data is set.
type Result struct {
	URL      string
	Data     []byte
	Metadata map[string]any
}

// Adapter is implemented by every provider integration.
type Adapter interface {
	TextToImage(ctx context.Context, prompt, negative string, params Params) ([]Result, error)
	ImageToImage(ctx context.Context, source SourceImage, prompt string, strength float64, params Params) ([]Result, error)
}

// Result metadata keys.
const (
	MetaProvider    = "provider"
	MetaModel       = "model"
	MetaInputParams = "input_params"
)

func resultMetadata(provider, model string, sent map[string]any) map[string]any {
	return map[string]any{
		MetaProvider:    provider,
		MetaModel:       model,
		MetaInputParams: sent,
	}
}
