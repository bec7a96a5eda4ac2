package render

import (
	"bytes"
	"context"
	"fmt"
	goimage "image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"gallery/internal/domain"
	"gallery/internal/providers/image"
)

type memRepo struct {
	mu      sync.Mutex
	renders map[string]*domain.Render
	gets    int
	updates int
	creates int
}

func newMemRepo() *memRepo {
	return &memRepo{renders: make(map[string]*domain.Render)}
}

func (r *memRepo) Create(ctx context.Context, render *domain.Render) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	r.renders[render.ID] = render.Clone()
	return nil
}

func (r *memRepo) Get(ctx context.Context, id string) (*domain.Render, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	render, ok := r.renders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return render.Clone(), nil
}

func (r *memRepo) Update(ctx context.Context, render *domain.Render) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	cur, ok := r.renders[render.ID]
	if !ok || cur.Status != domain.RenderStatusPending {
		return fmt.Errorf("%w: %s", domain.ErrInvalidTransition, render.ID)
	}
	r.renders[render.ID] = render.Clone()
	return nil
}

func (r *memRepo) snapshot(id string) *domain.Render {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.renders[id].Clone()
}

func (r *memRepo) seed(t *testing.T, id string, p domain.NewRenderParams) *domain.Render {
	t.Helper()
	job, err := domain.NewRender(id, p, testNow())
	require.NoError(t, err)
	require.NoError(t, r.Create(context.Background(), job))
	return job
}

type fakeAdapter struct {
	textFn  func(ctx context.Context, prompt, negative string, params image.Params) ([]image.Result, error)
	imageFn func(ctx context.Context, src image.SourceImage, prompt string, strength float64, params image.Params) ([]image.Result, error)
}

func (f *fakeAdapter) TextToImage(ctx context.Context, prompt, negative string, params image.Params) ([]image.Result, error) {
	return f.textFn(ctx, prompt, negative, params)
}

func (f *fakeAdapter) ImageToImage(ctx context.Context, src image.SourceImage, prompt string, strength float64, params image.Params) ([]image.Result, error) {
	return f.imageFn(ctx, src, prompt, strength, params)
}

type fakeCatalog map[string]image.Adapter

func (c fakeCatalog) Resolve(key string) (image.Adapter, error) {
	if a, ok := c[key]; ok {
		return a, nil
	}
	return nil, &domain.UnknownModelError{ModelKey: key}
}

func (c fakeCatalog) ListModels() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

func pngBytes(t testing.TB, w, h int) []byte {
	t.Helper()
	img := goimage.NewRGBA(goimage.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 200, G: 40, B: 40, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
