package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
)

// Billing endpoints return canned payloads until a payment provider is wired.

func (a *App) Checkout(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "login required")
		return
	}
	sessionID := "cs_mock_" + uuid.NewString()
	a.json(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"url":        "https://checkout.stripe.com/pay/" + sessionID,
		"mock":       true,
	})
}

func (a *App) BillingPortal(w http.ResponseWriter, r *http.Request) {
	if a.currentUserID(r) == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "login required")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"url":  "https://billing.stripe.com/p/session/mock",
		"mock": true,
	})
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

func (a *App) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	var ev stripeEvent
	if err := json.Unmarshal(body, &ev); err != nil || ev.Type == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid event")
		return
	}
	a.log(r).Info().Str("event_id", ev.ID).Str("event_type", ev.Type).Msg("stripe webhook received")
	a.json(w, http.StatusOK, map[string]bool{"received": true})
}
