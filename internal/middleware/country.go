package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"gallery/internal/infra/geoip"
)

type countryContextKey struct{}

// CountryKey stores the requester's ISO country code in the context.
var CountryKey = countryContextKey{}

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

// Country records a best-effort requester country on the request context.
// It is attached to render metadata and never blocks a request.
func Country(lookup CountryLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if country := ResolveCountry(r, lookup); country != "" {
				r = r.WithContext(context.WithValue(r.Context(), CountryKey, country))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CountryFromContext returns the ISO country code stored in the request context.
func CountryFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CountryKey).(string); ok {
		return v
	}
	return ""
}

// ResolveCountry checks edge proxy headers, then the Accept-Language region,
// then the GeoIP lookup.
func ResolveCountry(r *http.Request, lookup CountryLookup) string {
	if r == nil {
		return ""
	}
	for _, key := range []string{"X-Country-Code", "CF-IPCountry", "X-Appengine-Country"} {
		if val := strings.TrimSpace(r.Header.Get(key)); isCountryCode(val) {
			return strings.ToUpper(val)
		}
	}
	if region := localeRegion(r.Header.Get("Accept-Language")); region != "" {
		return region
	}
	if lookup != nil {
		if ip := ClientIP(r); ip != "" {
			country, err := lookup(ip)
			if err == nil && isCountryCode(country) {
				return strings.ToUpper(country)
			}
			if err != nil && !errors.Is(err, geoip.ErrNoCountry) && !errors.Is(err, geoip.ErrNonPublicAddress) {
				zerolog.Ctx(r.Context()).Debug().Err(err).Str("ip", ip).Msg("country lookup failed")
			}
		}
	}
	return ""
}

func localeRegion(accept string) string {
	for _, part := range strings.Split(accept, ",") {
		token := strings.TrimSpace(strings.Split(part, ";")[0])
		if token == "" {
			continue
		}
		if idx := strings.LastIndexAny(token, "-_"); idx > 0 && idx < len(token)-1 {
			if region := token[idx+1:]; isCountryCode(region) {
				return strings.ToUpper(region)
			}
		}
	}
	return ""
}

// isCountryCode accepts two ASCII letters. Cloudflare's "XX" and "T1" are
// rejected along with anything else.
func isCountryCode(s string) bool {
	if len(s) != 2 || strings.EqualFold(s, "XX") {
		return false
	}
	for i := 0; i < 2; i++ {
		c := s[i] | 0x20
		if c < 'a' || c > 'z' {
			return false
		}
	}
	return true
}
