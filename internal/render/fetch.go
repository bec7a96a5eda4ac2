package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gallery/internal/domain"
)

const (
	DefaultDownloadTimeout = 30 * time.Second
	maxDownloadBytes       = 64 << 20
)

// Fetcher downloads provider output urls.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
}

// NewFetcher builds a fetcher whose downloads are bounded by timeout.
func NewFetcher(client *http.Client, timeout time.Duration) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultDownloadTimeout
	}
	return &Fetcher{client: client, timeout: timeout}
}

// Fetch returns the body of rawURL. Transport failures, non-2xx answers and
// empty bodies are reported as *domain.DownloadError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, &domain.DownloadError{URL: rawURL, Err: errors.New("invalid url")}
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, &domain.DownloadError{URL: rawURL, Err: err}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &domain.DownloadError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.DownloadError{URL: rawURL, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, &domain.DownloadError{URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}
	switch {
	case len(data) == 0:
		return nil, &domain.DownloadError{URL: rawURL, Err: errors.New("empty body")}
	case len(data) > maxDownloadBytes:
		return nil, &domain.DownloadError{URL: rawURL, Err: errors.New("body exceeds size limit")}
	}
	return data, nil
}
