package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"gallery/internal/domain"
)

const ProviderOpenAI = "openai"

// OpenAIOptions configures the DALL-E adapters.
type OpenAIOptions struct {
	APIKey     string
	BaseURL    string
	Model      openai.ImageModel
	HTTPClient *http.Client
	MaxRetries int
}

// OpenAIAdapter generates with DALL-E 3 or DALL-E 2. Image-to-image always
// goes through the DALL-E 2 edits endpoint since DALL-E 3 has none.
type OpenAIAdapter struct {
	client openai.Client
	model  openai.ImageModel
}

// NewOpenAIAdapter constructs the adapter. The API key is required.
func NewOpenAIAdapter(opts OpenAIOptions) (*OpenAIAdapter, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return nil, errors.New("openai: api key is required")
	}
	model := opts.Model
	if model == "" {
		model = openai.ImageModelDallE3
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithMaxRetries(opts.MaxRetries),
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(base))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	return &OpenAIAdapter{client: openai.NewClient(reqOpts...), model: model}, nil
}

// TextToImage calls the images generation endpoint. DALL-E has no negative
// prompt, so one is folded into the prompt text.
func (a *OpenAIAdapter) TextToImage(ctx context.Context, prompt, negative string, params Params) ([]Result, error) {
	if neg := strings.TrimSpace(negative); neg != "" {
		prompt = prompt + ". Avoid: " + neg
	}
	size := a.size(params)
	format := responseFormat(params)
	req := openai.ImageGenerateParams{
		Model:          a.model,
		Prompt:         prompt,
		Size:           openai.ImageGenerateParamsSize(size),
		ResponseFormat: openai.ImageGenerateParamsResponseFormat(format),
	}
	sent := map[string]any{"prompt": prompt, "size": size, "response_format": format}

	n := 1
	if a.model == openai.ImageModelDallE2 {
		n = clamp(params.Int("num_outputs", 1), 1, 10)
	}
	req.N = openai.Int(int64(n))
	sent["n"] = n

	if a.model == openai.ImageModelDallE3 {
		quality := params.String("quality", "standard")
		if quality != "hd" {
			quality = "standard"
		}
		req.Quality = openai.ImageGenerateParamsQuality(quality)
		sent["quality"] = quality
		if style := params.String("style", ""); style == "vivid" || style == "natural" {
			req.Style = openai.ImageGenerateParamsStyle(style)
			sent["style"] = style
		}
	}

	resp, err := a.client.Images.Generate(ctx, req)
	if err != nil {
		return nil, a.fail(string(a.model), err)
	}
	return a.results(string(a.model), resp, sent)
}

// ImageToImage uses the DALL-E 2 edit endpoint. Strength has no equivalent
// and is only recorded.
func (a *OpenAIAdapter) ImageToImage(ctx context.Context, source SourceImage, prompt string, strength float64, params Params) ([]Result, error) {
	model := openai.ImageModelDallE2
	png, err := toPNG(source)
	if err != nil {
		return nil, a.fail(string(model), err)
	}
	size := squareSize(params.Int("width", 1024), params.Int("height", 1024))
	format := responseFormat(params)
	n := clamp(params.Int("num_outputs", 1), 1, 10)
	req := openai.ImageEditParams{
		Image: openai.ImageEditParamsImageUnion{
			OfFile: openai.File(bytes.NewReader(png), "source.png", "image/png"),
		},
		Prompt:         prompt,
		Model:          model,
		N:              openai.Int(int64(n)),
		Size:           openai.ImageEditParamsSize(size),
		ResponseFormat: openai.ImageEditParamsResponseFormat(format),
	}
	sent := map[string]any{
		"prompt":          prompt,
		"size":            size,
		"n":               n,
		"response_format": format,
		"strength":        strength,
	}
	resp, err := a.client.Images.Edit(ctx, req)
	if err != nil {
		return nil, a.fail(string(model), err)
	}
	return a.results(string(model), resp, sent)
}

func (a *OpenAIAdapter) results(model string, resp *openai.ImagesResponse, sent map[string]any) ([]Result, error) {
	if resp == nil || len(resp.Data) == 0 {
		return nil, a.fail(model, errors.New("no images returned"))
	}
	out := make([]Result, 0, len(resp.Data))
	for _, img := range resp.Data {
		meta := resultMetadata(ProviderOpenAI, model, sent)
		if img.RevisedPrompt != "" {
			meta["revised_prompt"] = img.RevisedPrompt
		}
		res := Result{URL: img.URL, Metadata: meta}
		if img.B64JSON != "" {
			data, err := base64.StdEncoding.DecodeString(img.B64JSON)
			if err != nil {
				return nil, a.fail(model, fmt.Errorf("decode b64 image: %w", err))
			}
			res.Data = data
		}
		if res.URL == "" && len(res.Data) == 0 {
			continue
		}
		out = append(out, res)
	}
	if len(out) == 0 {
		return nil, a.fail(model, errors.New("no images returned"))
	}
	return out, nil
}

func (a *OpenAIAdapter) fail(model string, err error) error {
	return &domain.ProviderError{Provider: ProviderOpenAI, Model: model, Err: err}
}

// size maps width and height onto the sizes each model accepts.
func (a *OpenAIAdapter) size(params Params) string {
	if s := params.String("size", ""); s != "" {
		return s
	}
	w, h := params.Int("width", 1024), params.Int("height", 1024)
	if a.model == openai.ImageModelDallE2 {
		return squareSize(w, h)
	}
	switch {
	case w > h:
		return "1792x1024"
	case h > w:
		return "1024x1792"
	default:
		return "1024x1024"
	}
}

func squareSize(w, h int) string {
	edge := max(w, h)
	switch {
	case edge <= 256:
		return "256x256"
	case edge <= 512:
		return "512x512"
	default:
		return "1024x1024"
	}
}

func responseFormat(params Params) string {
	if params.String("response_format", "") == "b64_json" {
		return "b64_json"
	}
	return "url"
}

func toPNG(source SourceImage) ([]byte, error) {
	if len(source.Data) == 0 {
		return nil, errors.New("source image is empty")
	}
	if http.DetectContentType(source.Data) == "image/png" {
		return source.Data, nil
	}
	img, err := imaging.Decode(bytes.NewReader(source.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode source image: %w", err)
	}
	return buf.Bytes(), nil
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

var _ Adapter = (*OpenAIAdapter)(nil)
