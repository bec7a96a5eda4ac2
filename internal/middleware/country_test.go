package middleware

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"gallery/internal/infra/geoip"
)

type assertError string

func (e assertError) Error() string { return string(e) }

func TestResolveCountry(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(r *http.Request)
		resolver CountryLookup
		want     string
	}{
		{
			name: "header precedence",
			setup: func(r *http.Request) {
				r.Header.Set("X-Country-Code", "us")
				r.Header.Set("CF-IPCountry", "id")
			},
			want: "US",
		},
		{
			name: "cloudflare unknown is ignored",
			setup: func(r *http.Request) {
				r.Header.Set("CF-IPCountry", "XX")
			},
			want: "",
		},
		{
			name: "accept-language region",
			setup: func(r *http.Request) {
				r.Header.Set("Accept-Language", "en-GB,en;q=0.9")
			},
			want: "GB",
		},
		{
			name: "script subtag is skipped",
			setup: func(r *http.Request) {
				r.Header.Set("Accept-Language", "zh-Hant-TW")
			},
			want: "TW",
		},
		{
			name: "resolver fallback",
			resolver: func(ip string) (string, error) {
				if ip != "203.0.113.4" {
					t.Fatalf("unexpected ip: %s", ip)
				}
				return "my", nil
			},
			want: "MY",
		},
		{
			name: "resolver error returns empty",
			resolver: func(ip string) (string, error) {
				return "", assertError("boom")
			},
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "203.0.113.4:80"
			if tc.setup != nil {
				tc.setup(req)
			}
			got := ResolveCountry(req, tc.resolver)
			if got != tc.want {
				t.Fatalf("ResolveCountry() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCountryMiddleware(t *testing.T) {
	var got string
	h := Country(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = CountryFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("CF-IPCountry", "de")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "DE" {
		t.Fatalf("CountryFromContext() = %q, want DE", got)
	}
}

func TestResolveCountryLogsUnexpectedLookupErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	for _, tc := range []struct {
		err     error
		wantLog bool
	}{
		{err: fmt.Errorf("wrapped: %w", geoip.ErrNonPublicAddress)},
		{err: geoip.ErrNoCountry},
		{err: errors.New("corrupt database"), wantLog: true},
	} {
		buf.Reset()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(logger.WithContext(req.Context()))
		got := ResolveCountry(req, func(string) (string, error) { return "", tc.err })
		if got != "" {
			t.Fatalf("%v: country = %q", tc.err, got)
		}
		if logged := strings.Contains(buf.String(), "country lookup failed"); logged != tc.wantLog {
			t.Fatalf("%v: logged = %v, want %v (%s)", tc.err, logged, tc.wantLog, buf.String())
		}
	}
}
