package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/promostream/promostream/internal/config"
	"github.com/promostream/promostream/internal/models"
)

// Shortener is the URL-shortening collaborator used by the resolver.
type Shortener interface {
	Shorten(ctx context.Context, longURL string) (string, error)
}

// NativeLinker generates a monetized link through a source's own
// affiliate-program API.
type NativeLinker func(ctx context.Context, productURL string) (string, error)

// Native short-link prefixes per source. Links matching these already
// encode attribution; re-shortening them would silently strip it.
var nativeShortLinkPrefixes = []string{
	"https://mercadolivre.com/sec/",
	"https://www.mercadolivre.com/sec/",
	"https://amzn.to/",
	"https://s.shopee.com.br/",
}

// AffiliateService turns a raw product URL into a monetized, optionally
// shortened URL. Resolution order matters: native generation first, then
// referral-link query grafting, then the legacy click parameter; native
// short links pass through untouched, and only then does length-based
// shortening apply.
type AffiliateService struct {
	cfg       *config.AffiliateConfig
	shortener Shortener
	logger    *zap.Logger
	linkers   map[string]NativeLinker
}

func NewAffiliateService(cfg *config.AffiliateConfig, shortener Shortener, logger *zap.Logger) *AffiliateService {
	return &AffiliateService{
		cfg:       cfg,
		shortener: shortener,
		logger:    logger,
		linkers:   make(map[string]NativeLinker),
	}
}

// RegisterNativeLinker installs a source-native link generator, preferred
// over every other mechanism for that source.
func (s *AffiliateService) RegisterNativeLinker(source string, linker NativeLinker) {
	s.linkers[source] = linker
}

func (s *AffiliateService) Resolve(ctx context.Context, source, productURL string) (string, error) {
	monetized, err := s.monetize(ctx, source, productURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrResolutionFailed, err)
	}

	if IsNativeShortLink(monetized) {
		return monetized, nil
	}

	if len(monetized) > s.cfg.MaxURLLength {
		short, err := s.shortener.Shorten(ctx, monetized)
		if err != nil {
			return "", fmt.Errorf("%w: %v", models.ErrResolutionFailed, err)
		}
		return short, nil
	}

	return monetized, nil
}

func (s *AffiliateService) monetize(ctx context.Context, source, productURL string) (string, error) {
	if linker, ok := s.linkers[source]; ok {
		monetized, err := linker(ctx, productURL)
		if err == nil && monetized != "" {
			return monetized, nil
		}
		if err != nil {
			s.logger.Warn("Native affiliate link generation failed, using fallback",
				zap.String("source", source),
				zap.Error(err))
		}
	}

	affiliateID := s.cfg.IDs[source]
	if affiliateID == "" {
		// Nothing to attribute with; the raw URL is still postable.
		return productURL, nil
	}

	// A full URL as affiliate identifier is a social/referral link: only
	// its query parameters carry the attribution.
	if strings.HasPrefix(affiliateID, "http://") || strings.HasPrefix(affiliateID, "https://") {
		return graftQueryParams(productURL, affiliateID)
	}

	param := s.cfg.Params[source]
	if param == "" {
		param = "a"
	}
	return appendQueryParam(productURL, param, affiliateID)
}

// IsNativeShortLink reports whether the URL matches a known native
// short-link pattern.
func IsNativeShortLink(rawURL string) bool {
	for _, prefix := range nativeShortLinkPrefixes {
		if strings.HasPrefix(rawURL, prefix) {
			return true
		}
	}
	return false
}

// graftQueryParams copies the query parameters of referralURL onto
// productURL, keeping the product URL's own parameters when they collide.
func graftQueryParams(productURL, referralURL string) (string, error) {
	product, err := url.Parse(productURL)
	if err != nil {
		return "", fmt.Errorf("invalid product URL: %w", err)
	}
	referral, err := url.Parse(referralURL)
	if err != nil {
		return "", fmt.Errorf("invalid referral URL: %w", err)
	}

	query := product.Query()
	for key, values := range referral.Query() {
		if query.Has(key) {
			continue
		}
		for _, v := range values {
			query.Add(key, v)
		}
	}
	product.RawQuery = query.Encode()

	return product.String(), nil
}

func appendQueryParam(productURL, param, value string) (string, error) {
	parsed, err := url.Parse(productURL)
	if err != nil {
		return "", fmt.Errorf("invalid product URL: %w", err)
	}
	query := parsed.Query()
	query.Set(param, value)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
