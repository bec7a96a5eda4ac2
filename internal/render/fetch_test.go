package render

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gallery/internal/domain"
)

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte("payload"))
		case "/empty":
			w.WriteHeader(http.StatusOK)
		case "/slow":
			select {
			case <-time.After(time.Second):
			case <-r.Context().Done():
			}
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	f := NewFetcher(srv.Client(), 50*time.Millisecond)

	data, err := f.Fetch(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	for _, path := range []string{"/empty", "/slow", "/missing"} {
		_, err := f.Fetch(context.Background(), srv.URL+path)
		var dlErr *domain.DownloadError
		require.ErrorAs(t, err, &dlErr, path)
		assert.Equal(t, srv.URL+path, dlErr.URL)
	}

	_, err = f.Fetch(context.Background(), "ftp://example.com/x.png")
	var dlErr *domain.DownloadError
	assert.ErrorAs(t, err, &dlErr)
}
