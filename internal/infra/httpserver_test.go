package infra

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestHTTPServerServeStopsOnCancel(t *testing.T) {
	cfg := &Config{Port: "0", HTTPIdleTimeout: time.Second}
	srv := NewHTTPServer(cfg, http.NotFoundHandler(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestHTTPServerServeReportsListenError(t *testing.T) {
	cfg := &Config{Port: "not-a-port"}
	srv := NewHTTPServer(cfg, http.NotFoundHandler(), zerolog.Nop())
	if err := srv.Serve(context.Background()); err == nil {
		t.Fatal("expected listen error")
	}
}
