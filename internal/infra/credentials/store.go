package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gallery/internal/infra"
	"gallery/internal/sqlinline"
)

// Providers whose API tokens can be stored in integration_tokens.
const (
	ProviderReplicate = "replicate"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
)

// Providers lists every provider name accepted by SetToken.
var Providers = []string{ProviderReplicate, ProviderOpenAI, ProviderGemini}

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Token returns the stored token for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// Resolve prefers a stored token and falls back to the environment value.
func (s *Store) Resolve(ctx context.Context, provider, fallback string) (string, error) {
	if s == nil {
		return strings.TrimSpace(fallback), nil
	}
	token, err := s.Token(ctx, provider)
	if err != nil {
		return "", err
	}
	if token == "" {
		return strings.TrimSpace(fallback), nil
	}
	return token, nil
}

func (s *Store) SetToken(ctx context.Context, provider, token string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !knownProvider(provider) {
		return fmt.Errorf("unknown provider %q", provider)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%s api key is required", provider)
	}
	return s.upsert(ctx, provider, token, nil)
}

// DeleteToken removes the stored token for provider and reports whether one
// existed. Resolve falls back to the environment afterwards.
func (s *Store) DeleteToken(ctx context.Context, provider string) (bool, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !knownProvider(provider) {
		return false, fmt.Errorf("unknown provider %q", provider)
	}
	tag, err := s.sql.Exec(ctx, sqlinline.QDeleteIntegrationToken, provider)
	if err != nil {
		return false, fmt.Errorf("delete %s token: %w", provider, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) GeminiAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderGemini)
}

func (s *Store) OpenAIAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderOpenAI)
}

func (s *Store) ReplicateToken(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderReplicate)
}

func knownProvider(name string) bool {
	for _, p := range Providers {
		if p == name {
			return true
		}
	}
	return false
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}
