package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"gallery/internal/domain"
	"gallery/internal/middleware"
)

const defaultSessionTTL = 7 * 24 * time.Hour

type googleVerifyRequest struct {
	IDToken string `json:"id_token"`
}

type googleVerifyResponse struct {
	Token string         `json:"token"`
	User  userProfileDTO `json:"user"`
}

type userProfileDTO struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	StripeCustomerID *string   `json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func toProfile(u *domain.User) userProfileDTO {
	return userProfileDTO{
		ID:               u.ID,
		Email:            u.Email,
		StripeCustomerID: u.StripeCustomerID,
		CreatedAt:        u.CreatedAt,
	}
}

// AuthGoogle exchanges a Google ID token for a session cookie.
func (a *App) AuthGoogle(w http.ResponseWriter, r *http.Request) {
	var req googleVerifyRequest
	if !a.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.IDToken) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id_token required")
		return
	}
	if a.Verifier == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "google sign-in is not configured")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	claims, err := a.Verifier.VerifyIDToken(ctx, req.IDToken)
	if err != nil {
		a.log(r).Warn().Err(err).Msg("google verify failed")
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid google token")
		return
	}
	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	if sub == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid google token")
		return
	}
	user, err := a.Users.UpsertByGoogleSub(r.Context(), &domain.User{GoogleSub: sub, Email: email})
	if err != nil {
		a.log(r).Error().Err(err).Msg("upsert user failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to persist user")
		return
	}

	ttl := a.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	expires := a.clock().Add(ttl)
	token, err := middleware.SignSession(a.SessionSecret, middleware.SessionClaims{
		Sub:   user.ID,
		Email: user.Email,
		Exp:   expires.Unix(),
	})
	if err != nil {
		a.log(r).Error().Err(err).Msg("sign session failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to sign session")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   a.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	a.json(w, http.StatusOK, googleVerifyResponse{Token: token, User: toProfile(user)})
}

// Logout clears the session cookie.
func (a *App) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the profile of the session user.
func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	user, err := a.Users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		a.log(r).Error().Err(err).Msg("load user failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load user")
		return
	}
	a.json(w, http.StatusOK, toProfile(user))
}
