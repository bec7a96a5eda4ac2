package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gallery/internal/domain"
	"gallery/internal/infra"
)

const (
	ProviderReplicate = "replicate"

	// SDXLVersion pins the stability-ai/sdxl model version.
	SDXLVersion = "7762fd07cf82c948538e41f63f77d685e02b063e37e496e96eefd46c929f9bdc"

	defaultReplicateBaseURL = "https://api.replicate.com/v1"
	maxPredictionBytes      = 1 << 20
)

// ReplicateOptions configures the Replicate predictions client.
type ReplicateOptions struct {
	Token        string
	BaseURL      string
	Version      string
	HTTPClient   *http.Client
	PollInterval time.Duration
	Logger       *infra.Logger
}

// ReplicateAdapter runs SDXL predictions through the Replicate HTTP API.
type ReplicateAdapter struct {
	token        string
	baseURL      string
	version      string
	client       *http.Client
	pollInterval time.Duration
	logger       *infra.Logger
}

type predictionRequest struct {
	Version string         `json:"version"`
	Input   map[string]any `json:"input"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
	Metrics map[string]any `json:"metrics"`
}

// NewReplicateAdapter constructs the adapter. The token is required.
func NewReplicateAdapter(opts ReplicateOptions) (*ReplicateAdapter, error) {
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, errors.New("replicate: api token is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 150 * time.Second}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultReplicateBaseURL
	}
	version := strings.TrimSpace(opts.Version)
	if version == "" {
		version = SDXLVersion
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.Nop())
		logger = &l
	}
	return &ReplicateAdapter{
		token:        token,
		baseURL:      baseURL,
		version:      version,
		client:       client,
		pollInterval: poll,
		logger:       logger,
	}, nil
}

// TextToImage runs a prompt-only prediction.
func (a *ReplicateAdapter) TextToImage(ctx context.Context, prompt, negative string, params Params) ([]Result, error) {
	input := a.baseInput(prompt, params)
	if neg := strings.TrimSpace(negative); neg != "" {
		input["negative_prompt"] = neg
	}
	return a.run(ctx, input, input)
}

// ImageToImage sends the source inline as a data URI.
func (a *ReplicateAdapter) ImageToImage(ctx context.Context, source SourceImage, prompt string, strength float64, params Params) ([]Result, error) {
	if len(source.Data) == 0 {
		return nil, a.fail(errors.New("source image is empty"))
	}
	input := a.baseInput(prompt, params)
	input["prompt_strength"] = strength
	recorded := maps.Clone(input)
	if source.Filename != "" {
		recorded["input_image"] = source.Filename
	}
	mime := source.MIME
	if mime == "" {
		mime = http.DetectContentType(source.Data)
	}
	input["image"] = "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(source.Data)
	return a.run(ctx, input, recorded)
}

func (a *ReplicateAdapter) baseInput(prompt string, params Params) map[string]any {
	input := map[string]any{
		"prompt":              prompt,
		"width":               params.Int("width", 1024),
		"height":              params.Int("height", 1024),
		"num_outputs":         params.Int("num_outputs", 1),
		"guidance_scale":      params.Float("guidance_scale", 7.5),
		"num_inference_steps": params.Int("num_inference_steps", 50),
	}
	if s := params.String("scheduler", ""); s != "" {
		input["scheduler"] = s
	}
	if params.Has("seed") {
		input["seed"] = params.Int("seed", 0)
	}
	return input
}

// run sends input and records the recorded subset in each result's metadata.
func (a *ReplicateAdapter) run(ctx context.Context, input, recorded map[string]any) ([]Result, error) {
	body, err := json.Marshal(predictionRequest{Version: a.version, Input: input})
	if err != nil {
		return nil, a.fail(fmt.Errorf("encode request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/predictions", bytes.NewReader(body))
	if err != nil {
		return nil, a.fail(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "wait")

	pred, err := a.do(req)
	if err != nil {
		return nil, a.fail(err)
	}
	for !isTerminalPrediction(pred.Status) {
		if pred.URLs.Get == "" {
			return nil, a.fail(fmt.Errorf("prediction %s is %s without a poll url", pred.ID, pred.Status))
		}
		select {
		case <-ctx.Done():
			return nil, a.fail(ctx.Err())
		case <-time.After(a.pollInterval):
		}
		poll, err := http.NewRequestWithContext(ctx, http.MethodGet, pred.URLs.Get, nil)
		if err != nil {
			return nil, a.fail(fmt.Errorf("build poll request: %w", err))
		}
		if pred, err = a.do(poll); err != nil {
			return nil, a.fail(err)
		}
	}
	if pred.Status != "succeeded" {
		return nil, a.fail(fmt.Errorf("prediction %s %s: %v", pred.ID, pred.Status, pred.Error))
	}

	urls, err := predictionURLs(pred.Output)
	if err != nil {
		return nil, a.fail(err)
	}
	if len(urls) == 0 {
		return nil, a.fail(errors.New("prediction returned no images"))
	}
	a.logger.Debug().Str("prediction_id", pred.ID).Int("outputs", len(urls)).Msg("replicate: prediction succeeded")

	out := make([]Result, 0, len(urls))
	for _, u := range urls {
		meta := resultMetadata(ProviderReplicate, a.version, recorded)
		meta["prediction_id"] = pred.ID
		if len(pred.Metrics) > 0 {
			meta["metrics"] = pred.Metrics
		}
		out = append(out, Result{URL: u, Metadata: meta})
	}
	return out, nil
}

func (a *ReplicateAdapter) do(req *http.Request) (*prediction, error) {
	req.Header.Set("Authorization", "Bearer "+a.token)
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPredictionBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(raw) > maxPredictionBytes {
		return nil, fmt.Errorf("response exceeds %d bytes", maxPredictionBytes)
	}
	if resp.StatusCode >= 300 {
		var detail struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(raw, &detail) == nil && detail.Detail != "" {
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode, detail.Detail)
		}
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var pred prediction
	if err := json.Unmarshal(raw, &pred); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &pred, nil
}

func (a *ReplicateAdapter) fail(err error) error {
	return &domain.ProviderError{Provider: ProviderReplicate, Model: a.version, Err: err}
}

func isTerminalPrediction(status string) bool {
	switch status {
	case "succeeded", "failed", "canceled":
		return true
	}
	return false
}

// predictionURLs accepts both a single url and a list of urls.
func predictionURLs(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return compact(list), nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return compact([]string{single}), nil
	}
	return nil, fmt.Errorf("unexpected prediction output: %s", string(raw))
}

func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var _ Adapter = (*ReplicateAdapter)(nil)
