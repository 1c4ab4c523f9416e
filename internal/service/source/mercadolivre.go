package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/promostream/promostream/internal/config"
	"github.com/promostream/promostream/internal/models"
)

// MercadoLivreAdapter is an API-first composite: it queries the official
// search API with an OAuth token and falls back to scraping the public
// deals page when the API path fails for any reason other than a dead
// refresh token. The fallback is a deliberate degradation and is logged as
// such, not swallowed.
type MercadoLivreAdapter struct {
	cfg     *config.MercadoLivreConfig
	tokens  TokenProvider
	logger  *zap.Logger
	client  *http.Client
	scraper *dealsPageScraper
}

func NewMercadoLivreAdapter(cfg *config.MercadoLivreConfig, tokens TokenProvider, logger *zap.Logger) *MercadoLivreAdapter {
	return &MercadoLivreAdapter{
		cfg:    cfg,
		tokens: tokens,
		logger: logger,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		scraper: newMercadoLivreScraper(cfg.DealsPageURL, logger),
	}
}

func (a *MercadoLivreAdapter) Name() string { return NameMercadoLivre }

func (a *MercadoLivreAdapter) Fetch(ctx context.Context, limit int) ([]RawListing, error) {
	listings, err := a.fetchFromAPI(ctx, limit)
	if err == nil {
		return listings, nil
	}

	// A dead refresh token cannot be healed by scraping the same source;
	// it has to reach the operator.
	if errors.Is(err, models.ErrAuthRequired) {
		return nil, err
	}

	a.logger.Warn("Mercado Livre API fetch failed, degrading to page scrape",
		zap.Error(err))

	return a.scraper.scrape(ctx, limit)
}

// NativeAffiliateLink asks the affiliate-program API for a monetized link.
// The result is usually a native short link that already carries
// attribution.
func (a *MercadoLivreAdapter) NativeAffiliateLink(ctx context.Context, productURL string) (string, error) {
	token, err := a.tokens.GetValidToken(ctx, NameMercadoLivre)
	if err != nil {
		return "", fmt.Errorf("failed to obtain access token: %w", err)
	}

	payload, err := json.Marshal(map[string]interface{}{
		"urls": []string{productURL},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal link request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.cfg.APIBaseURL+"/affiliate-program/api/v1/urls", strings.NewReader(string(payload)))
	if err != nil {
		return "", fmt.Errorf("failed to create link request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", models.Transient("mercadolivre affiliate link", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("affiliate link API returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		URLs []struct {
			ShortURL string `json:"short_url"`
		} `json:"urls"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrMalformedUpstream, err)
	}
	if len(response.URLs) == 0 || response.URLs[0].ShortURL == "" {
		return "", fmt.Errorf("%w: affiliate link API returned no url", models.ErrMalformedUpstream)
	}

	return response.URLs[0].ShortURL, nil
}

type meliSearchResponse struct {
	Results []meliSearchItem `json:"results"`
}

type meliSearchItem struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Price         float64 `json:"price"`
	OriginalPrice float64 `json:"original_price"`
	Thumbnail     string  `json:"thumbnail"`
	Permalink     string  `json:"permalink"`
	CategoryID    string  `json:"category_id"`
}

func (a *MercadoLivreAdapter) fetchFromAPI(ctx context.Context, limit int) ([]RawListing, error) {
	token, err := a.tokens.GetValidToken(ctx, NameMercadoLivre)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain access token: %w", err)
	}

	url := fmt.Sprintf("%s/sites/%s/search?deal=promotions&sort=price_asc&limit=%d",
		a.cfg.APIBaseURL, a.cfg.SiteID, limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, models.Transient("mercadolivre search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			return nil, models.Transient("mercadolivre search",
				fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
		}
		return nil, fmt.Errorf("mercadolivre API returned status %d: %s", resp.StatusCode, string(body))
	}

	var response meliSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedUpstream, err)
	}

	listings := make([]RawListing, 0, len(response.Results))
	for _, item := range response.Results {
		if item.ID == "" || item.Permalink == "" || item.Price <= 0 {
			continue
		}
		listings = append(listings, RawListing{
			Source:        NameMercadoLivre,
			NativeID:      item.ID,
			Title:         item.Title,
			Price:         item.Price,
			OriginalPrice: item.OriginalPrice,
			Category:      item.CategoryID,
			ImageURL:      item.Thumbnail,
			ProductURL:    item.Permalink,
		})
	}

	return listings, nil
}
