package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/promostream/promostream/internal/models"
)

// TokenEndpoint describes where and how a source's refresh exchange runs.
type TokenEndpoint struct {
	URL          string
	ClientID     string
	ClientSecret string
}

// CredentialService owns the OAuth token lifecycle for every source that
// has one. Refreshes for a given source are serialized through a
// single-flight group: a caller that observes an in-flight refresh waits
// for its result instead of issuing a duplicate exchange, which could
// invalidate the rotating refresh token mid-flight.
type CredentialService struct {
	db           *gorm.DB
	logger       *zap.Logger
	client       *http.Client
	endpoints    map[string]TokenEndpoint
	safetyMargin time.Duration
	flight       singleflight.Group
}

func NewCredentialService(db *gorm.DB, logger *zap.Logger, endpoints map[string]TokenEndpoint, safetyMargin time.Duration) *CredentialService {
	return &CredentialService{
		db:           db,
		logger:       logger,
		client:       &http.Client{Timeout: 15 * time.Second},
		endpoints:    endpoints,
		safetyMargin: safetyMargin,
	}
}

// GetValidToken returns an access token usable for at least the safety
// margin, refreshing first when required. A dead refresh token surfaces as
// models.ErrAuthRequired; it cannot be healed here.
func (s *CredentialService) GetValidToken(ctx context.Context, source string) (string, error) {
	var cred models.Credential
	if err := s.db.WithContext(ctx).Where("source = ?", source).First(&cred).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: no stored credential for %s", models.ErrAuthRequired, source)
		}
		return "", fmt.Errorf("failed to load credential: %w", err)
	}

	if cred.Usable(time.Now(), s.safetyMargin) {
		return cred.AccessToken, nil
	}

	token, err, _ := s.flight.Do(source, func() (interface{}, error) {
		return s.refresh(ctx, source)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

// refresh re-reads the credential inside the flight so a refresh completed
// by another process instance is picked up instead of repeated.
func (s *CredentialService) refresh(ctx context.Context, source string) (string, error) {
	var cred models.Credential
	if err := s.db.WithContext(ctx).Where("source = ?", source).First(&cred).Error; err != nil {
		return "", fmt.Errorf("failed to load credential: %w", err)
	}
	if cred.Usable(time.Now(), s.safetyMargin) {
		return cred.AccessToken, nil
	}
	if cred.RefreshToken == "" {
		return "", fmt.Errorf("%w: credential for %s has no refresh token", models.ErrAuthRequired, source)
	}

	endpoint, ok := s.endpoints[source]
	if !ok {
		return "", fmt.Errorf("no token endpoint configured for source %s", source)
	}

	resp, err := s.exchange(ctx, endpoint, cred.RefreshToken)
	if err != nil {
		return "", err
	}

	cred.AccessToken = resp.AccessToken
	if resp.RefreshToken != "" {
		cred.RefreshToken = resp.RefreshToken
	}
	cred.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)

	// Persist before returning so no caller ever holds a token that is
	// valid in memory but not yet durable.
	if err := s.db.WithContext(ctx).Save(&cred).Error; err != nil {
		return "", fmt.Errorf("failed to persist refreshed credential: %w", err)
	}

	s.logger.Info("Refreshed source credential",
		zap.String("source", source),
		zap.Time("expires_at", cred.ExpiresAt))

	return cred.AccessToken, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Error        string `json:"error"`
}

// exchange performs the refresh-token grant. 4xx responses mean the stored
// refresh token is dead (ErrAuthRequired); 5xx and transport errors are
// transient and left to the caller's retry policy.
func (s *CredentialService) exchange(ctx context.Context, endpoint TokenEndpoint, refreshToken string) (*tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", endpoint.ClientID)
	form.Set("client_secret", endpoint.ClientSecret)
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, models.Transient("token exchange", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.Transient("token exchange", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// handled below
	case resp.StatusCode >= 500:
		return nil, models.Transient("token exchange",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	default:
		// invalid_grant and friends: the refresh token itself is dead.
		return nil, fmt.Errorf("%w: token endpoint returned status %d: %s",
			models.ErrAuthRequired, resp.StatusCode, string(body))
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedUpstream, err)
	}
	if token.Error != "" || token.AccessToken == "" {
		return nil, fmt.Errorf("%w: token endpoint rejected refresh: %s",
			models.ErrAuthRequired, token.Error)
	}

	return &token, nil
}

// StoreInitialTokens records the result of a first-time authorization
// exchange performed by an operator.
func (s *CredentialService) StoreInitialTokens(ctx context.Context, source, accessToken, refreshToken string, expiresIn int) error {
	var cred models.Credential
	err := s.db.WithContext(ctx).Where("source = ?", source).First(&cred).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to load credential: %w", err)
	}

	cred.Source = source
	cred.AccessToken = accessToken
	cred.RefreshToken = refreshToken
	cred.ExpiresAt = time.Now().Add(time.Duration(expiresIn) * time.Second)
	if endpoint, ok := s.endpoints[source]; ok {
		cred.ClientID = endpoint.ClientID
		cred.ClientSecret = endpoint.ClientSecret
	}

	if err := s.db.WithContext(ctx).Save(&cred).Error; err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}
