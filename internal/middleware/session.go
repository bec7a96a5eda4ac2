package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
)

// SessionCookie is the cookie carrying the signed session token.
const SessionCookie = "session"

const sessionIssuer = "style-gallery"

// SessionClaims is the payload of a session token.
type SessionClaims struct {
	Sub    string `json:"sub"`
	Email  string `json:"email,omitempty"`
	Exp    int64  `json:"exp"`
	Issuer string `json:"iss"`
}

type sessionKey struct{}

var (
	errInvalidSession = errors.New("invalid session")
	errExpired        = errors.New("session expired")
)

func sessionCodec(secret string) *securecookie.SecureCookie {
	// Expiry is carried in the claims, so the codec's own timestamp check is off.
	return securecookie.New([]byte(secret), nil).
		MaxAge(0).
		SetSerializer(securecookie.JSONEncoder{})
}

// SignSession issues a signed session token for the claims. Issuer defaults
// to the service name.
func SignSession(secret string, claims SessionClaims) (string, error) {
	if claims.Issuer == "" {
		claims.Issuer = sessionIssuer
	}
	return sessionCodec(secret).Encode(SessionCookie, claims)
}

// VerifySession checks signature, issuer and expiry.
func VerifySession(secret, token string, now time.Time) (*SessionClaims, error) {
	var claims SessionClaims
	if err := sessionCodec(secret).Decode(SessionCookie, token, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidSession, err)
	}
	if claims.Issuer != sessionIssuer || claims.Sub == "" {
		return nil, errInvalidSession
	}
	if claims.Exp != 0 && now.Unix() > claims.Exp {
		return nil, errExpired
	}
	return &claims, nil
}

// Session attaches the claims of a valid session cookie or bearer token to
// the context. Requests without one pass through anonymously.
func Session(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := sessionToken(r); token != "" {
				if claims, err := VerifySession(secret, token, time.Now()); err == nil {
					r = r.WithContext(ContextWithSession(r.Context(), claims))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSession rejects anonymous requests with 401.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if SessionFromContext(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "login required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// ContextWithSession stores claims on ctx.
func ContextWithSession(ctx context.Context, claims *SessionClaims) context.Context {
	if claims == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionKey{}, claims)
}

// SessionFromContext returns the session claims, or nil when anonymous.
func SessionFromContext(ctx context.Context) *SessionClaims {
	claims, _ := ctx.Value(sessionKey{}).(*SessionClaims)
	return claims
}

// UserIDFromContext returns the session user id, or "".
func UserIDFromContext(ctx context.Context) string {
	if claims := SessionFromContext(ctx); claims != nil {
		return claims.Sub
	}
	return ""
}
