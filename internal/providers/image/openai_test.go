package image

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gallery/internal/domain"
)

func newTestOpenAI(t *testing.T, model openai.ImageModel, handler http.HandlerFunc) *OpenAIAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	a, err := NewOpenAIAdapter(OpenAIOptions{
		APIKey:     "sk-test",
		BaseURL:    srv.URL + "/v1/",
		Model:      model,
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	return a
}

func TestOpenAIDalle3FoldsNegativePrompt(t *testing.T) {
	var body map[string]any
	a := newTestOpenAI(t, openai.ImageModelDallE3, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"created":1,"data":[{"url":"https://cdn.example.com/d3.png","revised_prompt":"rp"}]}`))
	})

	res, err := a.TextToImage(context.Background(), "a cat", "dogs", Params{"width": 1792, "height": 1024, "num_outputs": 4, "quality": "hd"})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "a cat. Avoid: dogs", body["prompt"])
	assert.Equal(t, "1792x1024", body["size"])
	assert.EqualValues(t, 1, body["n"])
	assert.Equal(t, "hd", body["quality"])
	assert.Equal(t, "rp", res[0].Metadata["revised_prompt"])
	assert.Equal(t, string(openai.ImageModelDallE3), res[0].Metadata[MetaModel])
}

func TestOpenAIDecodesInlineImages(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	a := newTestOpenAI(t, openai.ImageModelDallE2, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"created":1,"data":[{"b64_json":"` + payload + `"}]}`))
	})
	res, err := a.TextToImage(context.Background(), "a cat", "", Params{"response_format": "b64_json", "width": 300, "height": 300})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, []byte("png-bytes"), res[0].Data)
	assert.Equal(t, "512x512", res[0].Metadata[MetaInputParams].(map[string]any)["size"])
}

func TestOpenAIEmptyDataIsProviderError(t *testing.T) {
	a := newTestOpenAI(t, openai.ImageModelDallE3, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"created":1,"data":[]}`))
	})
	_, err := a.TextToImage(context.Background(), "a cat", "", nil)
	var perr *domain.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ProviderOpenAI, perr.Provider)
}

func TestOpenAIUpstreamErrorIsProviderError(t *testing.T) {
	a := newTestOpenAI(t, openai.ImageModelDallE3, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"content policy","type":"invalid_request_error"}}`))
	})
	_, err := a.TextToImage(context.Background(), "a cat", "", nil)
	var perr *domain.ProviderError
	require.ErrorAs(t, err, &perr)
}

func TestOpenAIImageToImageUsesEdits(t *testing.T) {
	a := newTestOpenAI(t, openai.ImageModelDallE3, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/edits", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "dall-e-2", r.FormValue("model"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"created":1,"data":[{"url":"https://cdn.example.com/edit.png"}]}`))
	})
	res, err := a.ImageToImage(context.Background(), SourceImage{Data: tinyPNG(t)}, "a cat", 0.8, nil)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "https://cdn.example.com/edit.png", res[0].URL)
	assert.Equal(t, 0.8, res[0].Metadata[MetaInputParams].(map[string]any)["strength"])
}

func TestSquareSize(t *testing.T) {
	assert.Equal(t, "256x256", squareSize(100, 256))
	assert.Equal(t, "512x512", squareSize(512, 300))
	assert.Equal(t, "1024x1024", squareSize(1024, 1024))
	assert.Equal(t, "1024x1024", squareSize(4000, 10))
}
