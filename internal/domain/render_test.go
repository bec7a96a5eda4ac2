package domain

import (
	"errors"
	"testing"
	"time"
)

func newPending(t *testing.T) *Render {
	t.Helper()
	r, err := NewRender("r-1", NewRenderParams{
		StylePhrase: " oil painting ",
		BasePrompt:  "a cat",
		ModelKey:    "replicate:sdxl",
		CostCredits: 1,
		Params:      map[string]any{"width": 512},
	}, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewRender: %v", err)
	}
	return r
}

func TestNewRenderStartsPending(t *testing.T) {
	r := newPending(t)
	if r.Status != RenderStatusPending {
		t.Fatalf("status = %q, want pending", r.Status)
	}
	if r.StylePhrase != "oil painting" {
		t.Fatalf("style phrase not trimmed: %q", r.StylePhrase)
	}
	if r.ImagePath != "" || r.ThumbPath != "" {
		t.Fatalf("paths must be empty on creation")
	}
	if _, ok := r.Metadata[MetaCreatedAt]; !ok {
		t.Fatalf("metadata missing %s", MetaCreatedAt)
	}
	if got := r.GenerationParams()["width"]; got != 512 {
		t.Fatalf("params width = %v, want 512", got)
	}
	if r.IsImageToImage() {
		t.Fatalf("render without input image must be text-to-image")
	}
}

func TestNewRenderValidation(t *testing.T) {
	cases := []struct {
		name string
		id   string
		p    NewRenderParams
	}{
		{name: "missing id", id: "", p: NewRenderParams{StylePhrase: "s", BasePrompt: "b", ModelKey: "m"}},
		{name: "blank style", id: "x", p: NewRenderParams{StylePhrase: "  ", BasePrompt: "b", ModelKey: "m"}},
		{name: "blank prompt", id: "x", p: NewRenderParams{StylePhrase: "s", BasePrompt: "", ModelKey: "m"}},
		{name: "missing model", id: "x", p: NewRenderParams{StylePhrase: "s", BasePrompt: "b"}},
		{name: "negative cost", id: "x", p: NewRenderParams{StylePhrase: "s", BasePrompt: "b", ModelKey: "m", CostCredits: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRender(tc.id, tc.p, time.Now())
			if !errors.Is(err, ErrInvalidRender) {
				t.Fatalf("err = %v, want ErrInvalidRender", err)
			}
		})
	}
}

func TestMarkDoneSetsPathsAndMergesMetadata(t *testing.T) {
	r := newPending(t)
	err := r.MarkDone("images/2024/03/r-1.webp", "images/2024/03/r-1-thumb.webp", map[string]any{
		MetaEffectivePrompt: "a cat oil painting",
	})
	if err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	if r.Status != RenderStatusDone {
		t.Fatalf("status = %q, want done", r.Status)
	}
	if r.ImagePath == "" || r.ThumbPath == "" {
		t.Fatalf("paths must be set on done")
	}
	if _, ok := r.Metadata[MetaCreatedAt]; !ok {
		t.Fatalf("merge dropped %s", MetaCreatedAt)
	}
	if r.Metadata[MetaEffectivePrompt] != "a cat oil painting" {
		t.Fatalf("effective prompt not merged: %#v", r.Metadata)
	}
}

func TestMarkDoneRequiresBothPaths(t *testing.T) {
	r := newPending(t)
	if err := r.MarkDone("images/a.webp", "", nil); err == nil {
		t.Fatal("expected error for missing thumbnail path")
	}
	if r.Status != RenderStatusPending || r.ImagePath != "" {
		t.Fatalf("render mutated on rejected transition: %#v", r)
	}
}

func TestMarkFailedRecordsErrorWithoutPaths(t *testing.T) {
	r := newPending(t)
	if err := r.MarkFailed(errors.New("timeout"), time.Now()); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if r.Status != RenderStatusFailed {
		t.Fatalf("status = %q, want failed", r.Status)
	}
	if r.ImagePath != "" || r.ThumbPath != "" {
		t.Fatalf("failed render must not carry paths")
	}
	if r.Metadata[MetaError] != "timeout" {
		t.Fatalf("error not recorded: %#v", r.Metadata)
	}
	if _, ok := r.Metadata[MetaFailedAt]; !ok {
		t.Fatalf("metadata missing %s", MetaFailedAt)
	}
}

func TestTerminalStatesAreFinal(t *testing.T) {
	done := newPending(t)
	if err := done.MarkDone("a", "b", nil); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	if err := done.MarkFailed(errors.New("late"), time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("done -> failed err = %v, want ErrInvalidTransition", err)
	}
	if err := done.MarkDone("c", "d", nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("done -> done err = %v, want ErrInvalidTransition", err)
	}

	failed := newPending(t)
	if err := failed.MarkFailed(nil, time.Now()); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if err := failed.MarkDone("a", "b", nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("failed -> done err = %v, want ErrInvalidTransition", err)
	}
	if failed.ImagePath != "" {
		t.Fatalf("failed render gained a path")
	}
}

func TestCloneDoesNotShareMetadata(t *testing.T) {
	r := newPending(t)
	c := r.Clone()
	c.MergeMetadata(map[string]any{"extra": true})
	if _, ok := r.Metadata["extra"]; ok {
		t.Fatalf("clone shares metadata map with original")
	}
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("boom")
	var pe *ProviderError
	if !errors.As(error(&ProviderError{Provider: "openai", Err: cause}), &pe) || !errors.Is(pe, cause) {
		t.Fatalf("ProviderError must unwrap to its cause")
	}
	if !errors.Is(&DownloadError{URL: "u", Err: cause}, cause) {
		t.Fatalf("DownloadError must unwrap to its cause")
	}
	if !errors.Is(&EncodingError{Op: "decode", Err: cause}, cause) {
		t.Fatalf("EncodingError must unwrap to its cause")
	}
	if got := (&UnknownModelError{ModelKey: "x:y"}).Error(); got != `model "x:y" not available` {
		t.Fatalf("UnknownModelError message = %q", got)
	}
}
