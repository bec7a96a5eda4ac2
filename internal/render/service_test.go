package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gallery/internal/domain"
	"gallery/internal/providers/image"
)

type failingSubmitter struct{ err error }

func (f failingSubmitter) Submit(ctx context.Context, id string) error { return f.err }

func okAdapter(t *testing.T) *fakeAdapter {
	data := pngBytes(t, 16, 16)
	return &fakeAdapter{textFn: func(ctx context.Context, prompt, negative string, params image.Params) ([]image.Result, error) {
		return []image.Result{{Data: data}}, nil
	}}
}

func TestSubmitRenderStartsPending(t *testing.T) {
	h := newHarness(t, fakeCatalog{"m": okAdapter(t)}, ExecutorOptions{})
	svc := NewService(h.repo, h.catalog, h.executor, nil)

	job, err := svc.SubmitRender(context.Background(), domain.NewRenderParams{
		StylePhrase: "oil painting",
		BasePrompt:  "a cat",
		ModelKey:    "m",
		CostCredits: 1,
		Country:     "id",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RenderStatusPending, job.Status)

	got, err := svc.GetRenderStatus(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RenderStatusPending, got.Status)
	assert.Equal(t, "ID", got.Metadata[domain.MetaCountry])
	assert.Equal(t, 1, h.queue.Len())
}

func TestSubmitRenderUnknownModelCreatesNothing(t *testing.T) {
	h := newHarness(t, fakeCatalog{}, ExecutorOptions{})
	svc := NewService(h.repo, h.catalog, h.executor, nil)

	_, err := svc.SubmitRender(context.Background(), domain.NewRenderParams{StylePhrase: "s", BasePrompt: "b", ModelKey: "nope:x"})
	var unknown *domain.UnknownModelError
	require.ErrorAs(t, err, &unknown)
	assert.Zero(t, h.repo.creates)
	assert.Zero(t, h.queue.Len())
}

func TestSubmitRenderInvalidInput(t *testing.T) {
	h := newHarness(t, fakeCatalog{"m": okAdapter(t)}, ExecutorOptions{})
	svc := NewService(h.repo, h.catalog, h.executor, nil)

	_, err := svc.SubmitRender(context.Background(), domain.NewRenderParams{StylePhrase: "  ", BasePrompt: "b", ModelKey: "m"})
	assert.ErrorIs(t, err, domain.ErrInvalidRender)
	assert.True(t, IsClientError(err))
	assert.Zero(t, h.repo.creates)
}

func TestSubmitRenderEnqueueFailureFailsJob(t *testing.T) {
	h := newHarness(t, fakeCatalog{"m": okAdapter(t)}, ExecutorOptions{})
	svc := NewService(h.repo, h.catalog, failingSubmitter{err: errors.New("redis down")}, nil)
	svc.newID = func() string { return "fixed" }

	_, err := svc.SubmitRender(context.Background(), domain.NewRenderParams{StylePhrase: "s", BasePrompt: "b", ModelKey: "m"})
	require.Error(t, err)
	assert.False(t, IsClientError(err))
	assert.Equal(t, domain.RenderStatusFailed, h.repo.snapshot("fixed").Status)
}

func TestGetRenderStatusNotFound(t *testing.T) {
	h := newHarness(t, fakeCatalog{}, ExecutorOptions{})
	svc := NewService(h.repo, h.catalog, h.executor, nil)
	_, err := svc.GetRenderStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateMatrixIndependentJobs(t *testing.T) {
	data := pngBytes(t, 16, 16)
	good := &fakeAdapter{textFn: func(ctx context.Context, prompt, negative string, params image.Params) ([]image.Result, error) {
		return []image.Result{{Data: data}}, nil
	}}
	flaky := &fakeAdapter{textFn: func(ctx context.Context, prompt, negative string, params image.Params) ([]image.Result, error) {
		if prompt == "a cat watercolor" {
			return nil, &domain.ProviderError{Provider: "b", Err: errors.New("upstream 500")}
		}
		return []image.Result{{Data: data}}, nil
	}}
	h := newHarness(t, fakeCatalog{"a:one": good, "b:two": flaky}, ExecutorOptions{Workers: 2})
	svc := NewService(h.repo, h.catalog, h.executor, nil)

	res, err := svc.CreateMatrix(context.Background(), MatrixRequest{
		BasePrompt: "a cat",
		Styles:     []string{"oil painting", "watercolor"},
		Models:     []string{"a:one", "b:two"},
	})
	require.NoError(t, err)
	require.Len(t, res.Jobs, 4)
	assert.Empty(t, res.Errors)
	for _, job := range res.Jobs {
		assert.Zero(t, job.CostCredits)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.executor.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	require.Eventually(t, func() bool {
		for _, job := range res.Jobs {
			if !h.repo.snapshot(job.ID).Status.IsTerminal() {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)

	counts := map[domain.RenderStatus]int{}
	for _, job := range res.Jobs {
		snap := h.repo.snapshot(job.ID)
		counts[snap.Status]++
		if snap.Status == domain.RenderStatusFailed {
			assert.Equal(t, "watercolor", snap.StylePhrase)
			assert.Equal(t, "b:two", snap.ModelKey)
		}
	}
	assert.Equal(t, 3, counts[domain.RenderStatusDone])
	assert.Equal(t, 1, counts[domain.RenderStatusFailed])
}

func TestCreateMatrixUnknownModelOnlyFailsThatPair(t *testing.T) {
	h := newHarness(t, fakeCatalog{"a:one": okAdapter(t)}, ExecutorOptions{})
	svc := NewService(h.repo, h.catalog, h.executor, nil)

	res, err := svc.CreateMatrix(context.Background(), MatrixRequest{
		BasePrompt: "a cat",
		Styles:     []string{"oil painting", "watercolor"},
		Models:     []string{"a:one", "missing:model"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Jobs, 2)
	require.Len(t, res.Errors, 2)
	var unknown *domain.UnknownModelError
	assert.ErrorAs(t, res.Errors[0], &unknown)
	assert.Equal(t, 2, h.repo.creates)
}

func TestCreateMatrixValidates(t *testing.T) {
	h := newHarness(t, fakeCatalog{}, ExecutorOptions{})
	svc := NewService(h.repo, h.catalog, h.executor, nil)
	_, err := svc.CreateMatrix(context.Background(), MatrixRequest{BasePrompt: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidRender)
}

func TestCreateMatrixRejectsOversizedCrossProduct(t *testing.T) {
	h := newHarness(t, fakeCatalog{"a:one": okAdapter(t), "b:two": okAdapter(t)}, ExecutorOptions{})
	svc := NewService(h.repo, h.catalog, h.executor, nil)

	styles := make([]string, MaxMatrixJobs/2+1)
	for i := range styles {
		styles[i] = fmt.Sprintf("style %d", i)
	}
	res, err := svc.CreateMatrix(context.Background(), MatrixRequest{
		BasePrompt: "a cat",
		Styles:     styles,
		Models:     []string{"a:one", "b:two"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRender)
	assert.Nil(t, res)
	assert.Zero(t, h.repo.creates)
}

func TestCreateMatrixDropsRepeatedEntries(t *testing.T) {
	h := newHarness(t, fakeCatalog{"a:one": okAdapter(t)}, ExecutorOptions{})
	svc := NewService(h.repo, h.catalog, h.executor, nil)

	res, err := svc.CreateMatrix(context.Background(), MatrixRequest{
		BasePrompt: "a cat",
		Styles:     []string{"watercolor", " watercolor ", "", "oil painting"},
		Models:     []string{"a:one", "a:one"},
	})
	require.NoError(t, err)
	require.Len(t, res.Jobs, 2)
	assert.Equal(t, "watercolor", res.Jobs[0].StylePhrase)
	assert.Equal(t, "oil painting", res.Jobs[1].StylePhrase)
	assert.Equal(t, 2, h.repo.creates)
}
