package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/promostream/promostream/internal/models"
)

func newExchangeService(endpointURL string) *CredentialService {
	return NewCredentialService(nil, zap.NewNop(), map[string]TokenEndpoint{
		"mercadolivre": {URL: endpointURL, ClientID: "app-id", ClientSecret: "app-secret"},
	}, 5*time.Minute)
}

func TestExchangeParsesTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "app-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "old-refresh", r.PostForm.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","token_type":"Bearer","expires_in":21600,"refresh_token":"new-refresh"}`))
	}))
	defer server.Close()

	svc := newExchangeService(server.URL)
	token, err := svc.exchange(context.Background(), svc.endpoints["mercadolivre"], "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "new-access", token.AccessToken)
	assert.Equal(t, "new-refresh", token.RefreshToken)
	assert.Equal(t, 21600, token.ExpiresIn)
}

func TestExchangeInvalidGrantIsAuthRequired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	svc := newExchangeService(server.URL)
	_, err := svc.exchange(context.Background(), svc.endpoints["mercadolivre"], "dead-refresh")
	assert.ErrorIs(t, err, models.ErrAuthRequired)
	assert.False(t, models.IsTransient(err))
}

func TestExchangeServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	svc := newExchangeService(server.URL)
	_, err := svc.exchange(context.Background(), svc.endpoints["mercadolivre"], "some-refresh")
	require.Error(t, err)
	assert.True(t, models.IsTransient(err))
}

func TestExchangeEmptyAccessTokenIsAuthRequired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"expires_in":21600}`))
	}))
	defer server.Close()

	svc := newExchangeService(server.URL)
	_, err := svc.exchange(context.Background(), svc.endpoints["mercadolivre"], "some-refresh")
	assert.ErrorIs(t, err, models.ErrAuthRequired)
}

func TestCredentialUsableHonorsSafetyMargin(t *testing.T) {
	now := time.Date(2024, 11, 20, 12, 0, 0, 0, time.UTC)
	margin := 5 * time.Minute

	cred := models.Credential{AccessToken: "tok", ExpiresAt: now.Add(10 * time.Minute)}
	assert.True(t, cred.Usable(now, margin))

	// Expiring inside the margin counts as unusable even though the token
	// is technically still live.
	cred.ExpiresAt = now.Add(4 * time.Minute)
	assert.False(t, cred.Usable(now, margin))

	cred.ExpiresAt = now.Add(10 * time.Minute)
	cred.AccessToken = ""
	assert.False(t, cred.Usable(now, margin))
}
