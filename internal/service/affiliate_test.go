package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/promostream/promostream/internal/config"
	"github.com/promostream/promostream/internal/models"
)

type stubShortener struct {
	calls int
	short string
	err   error
}

func (s *stubShortener) Shorten(_ context.Context, _ string) (string, error) {
	s.calls++
	return s.short, s.err
}

func newTestAffiliate(cfg *config.AffiliateConfig, shortener Shortener) *AffiliateService {
	return NewAffiliateService(cfg, shortener, zap.NewNop())
}

func TestResolveAppendsClickParam(t *testing.T) {
	svc := newTestAffiliate(&config.AffiliateConfig{
		IDs:          map[string]string{"mercadolivre": "promostream-br"},
		Params:       map[string]string{},
		MaxURLLength: 500,
	}, &stubShortener{})

	got, err := svc.Resolve(context.Background(), "mercadolivre", "https://produto.mercadolivre.com.br/MLB-123")
	require.NoError(t, err)
	assert.Equal(t, "https://produto.mercadolivre.com.br/MLB-123?a=promostream-br", got)
}

func TestResolveUsesConfiguredParamName(t *testing.T) {
	svc := newTestAffiliate(&config.AffiliateConfig{
		IDs:          map[string]string{"amazon": "promostream-20"},
		Params:       map[string]string{"amazon": "tag"},
		MaxURLLength: 500,
	}, &stubShortener{})

	got, err := svc.Resolve(context.Background(), "amazon", "https://www.amazon.com.br/dp/B0ABCDEF12")
	require.NoError(t, err)
	assert.Equal(t, "https://www.amazon.com.br/dp/B0ABCDEF12?tag=promostream-20", got)
}

func TestResolveGraftsReferralQuery(t *testing.T) {
	svc := newTestAffiliate(&config.AffiliateConfig{
		IDs: map[string]string{
			"mercadolivre": "https://www.mercadolivre.com.br/social/promo?matt_word=promo&matt_tool=123",
		},
		MaxURLLength: 500,
	}, &stubShortener{})

	got, err := svc.Resolve(context.Background(), "mercadolivre",
		"https://produto.mercadolivre.com.br/MLB-123?matt_word=original")
	require.NoError(t, err)

	assert.Contains(t, got, "matt_tool=123")
	// The product URL's own parameter wins the collision.
	assert.Contains(t, got, "matt_word=original")
	assert.NotContains(t, got, "matt_word=promo")
}

func TestResolveNativeShortLinkNeverShortened(t *testing.T) {
	shortener := &stubShortener{short: "https://sho.rt/x"}
	svc := newTestAffiliate(&config.AffiliateConfig{MaxURLLength: 10}, shortener)

	long := "https://mercadolivre.com/sec/" + strings.Repeat("x", 200)
	got, err := svc.Resolve(context.Background(), "mercadolivre", long)
	require.NoError(t, err)
	assert.Equal(t, long, got)
	assert.Zero(t, shortener.calls)
}

func TestResolveShortensOnlyPastThreshold(t *testing.T) {
	shortener := &stubShortener{short: "https://sho.rt/abc"}
	svc := newTestAffiliate(&config.AffiliateConfig{MaxURLLength: 40}, shortener)

	atLimit := "https://example.com.br/" + strings.Repeat("a", 40-len("https://example.com.br/"))
	require.Len(t, atLimit, 40)
	got, err := svc.Resolve(context.Background(), "rss", atLimit)
	require.NoError(t, err)
	assert.Equal(t, atLimit, got)
	assert.Zero(t, shortener.calls)

	got, err = svc.Resolve(context.Background(), "rss", atLimit+"a")
	require.NoError(t, err)
	assert.Equal(t, "https://sho.rt/abc", got)
	assert.Equal(t, 1, shortener.calls)
}

func TestResolveShortenerFailureIsResolutionError(t *testing.T) {
	svc := newTestAffiliate(&config.AffiliateConfig{MaxURLLength: 10},
		&stubShortener{err: errors.New("redis down")})

	_, err := svc.Resolve(context.Background(), "rss", "https://example.com.br/very-long-path")
	assert.ErrorIs(t, err, models.ErrResolutionFailed)
}

func TestResolvePrefersNativeLinker(t *testing.T) {
	svc := newTestAffiliate(&config.AffiliateConfig{
		IDs:          map[string]string{"mercadolivre": "fallback-id"},
		MaxURLLength: 500,
	}, &stubShortener{})

	svc.RegisterNativeLinker("mercadolivre", func(_ context.Context, _ string) (string, error) {
		return "https://mercadolivre.com/sec/AbCd123", nil
	})

	got, err := svc.Resolve(context.Background(), "mercadolivre", "https://produto.mercadolivre.com.br/MLB-123")
	require.NoError(t, err)
	assert.Equal(t, "https://mercadolivre.com/sec/AbCd123", got)
}

func TestResolveNativeLinkerFailureFallsBack(t *testing.T) {
	svc := newTestAffiliate(&config.AffiliateConfig{
		IDs:          map[string]string{"mercadolivre": "fallback-id"},
		MaxURLLength: 500,
	}, &stubShortener{})

	svc.RegisterNativeLinker("mercadolivre", func(_ context.Context, _ string) (string, error) {
		return "", errors.New("affiliate API unavailable")
	})

	got, err := svc.Resolve(context.Background(), "mercadolivre", "https://produto.mercadolivre.com.br/MLB-123")
	require.NoError(t, err)
	assert.Contains(t, got, "a=fallback-id")
}
