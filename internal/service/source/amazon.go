package source

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/promostream/promostream/internal/config"
	"github.com/promostream/promostream/internal/models"
	"github.com/promostream/promostream/pkg/util"
)

var (
	asinPattern    = regexp.MustCompile(`/dp/([A-Z0-9]{10})`)
	reviewsPattern = regexp.MustCompile(`([\d.]+)`)
)

// AmazonAdapter scrapes the deals grid. Amazon has no OAuth surface here,
// so there is no API variant to fall back from.
type AmazonAdapter struct {
	cfg    *config.AmazonConfig
	logger *zap.Logger
}

func NewAmazonAdapter(cfg *config.AmazonConfig, logger *zap.Logger) *AmazonAdapter {
	return &AmazonAdapter{cfg: cfg, logger: logger}
}

func (a *AmazonAdapter) Name() string { return NameAmazon }

func (a *AmazonAdapter) Fetch(ctx context.Context, limit int) ([]RawListing, error) {
	c := colly.NewCollector(
		colly.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36"),
	)
	c.SetRequestTimeout(30 * time.Second)

	var listings []RawListing

	c.OnHTML("div[data-component-type=s-search-result], div.DealGridItem-module__dealItem", func(e *colly.HTMLElement) {
		if len(listings) >= limit {
			return
		}
		if err := ctx.Err(); err != nil {
			return
		}

		href := e.ChildAttr("a.a-link-normal", "href")
		m := asinPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}
		asin := m[1]

		title := util.CleanTitle(e.ChildText("h2, span.DealContent-module__truncate"))
		if title == "" {
			return
		}

		price := util.ParseBRL(e.ChildText("span.a-price > span.a-offscreen"))
		if price <= 0 {
			return
		}
		original := util.ParseBRL(e.ChildText("span.a-price.a-text-price > span.a-offscreen"))

		rating := parseLeadingFloat(e.ChildAttr("span.a-icon-alt", "aria-label"))
		if rating == 0 {
			rating = parseLeadingFloat(e.ChildText("span.a-icon-alt"))
		}
		reviews := parseReviewCount(e.ChildText("span.a-size-base.s-underline-text"))

		listings = append(listings, RawListing{
			Source:        NameAmazon,
			NativeID:      asin,
			Title:         title,
			Price:         price,
			OriginalPrice: original,
			ImageURL:      e.ChildAttr("img.s-image", "src"),
			ProductURL:    "https://www.amazon.com.br/dp/" + asin,
			Rating:        rating,
			ReviewCount:   reviews,
		})
	})

	// Visit failures are timeouts, blocks or upstream errors; all of them
	// may clear by the next cycle.
	if err := c.Visit(a.cfg.DealsPageURL); err != nil {
		return nil, models.Transient("amazon deals scrape", err)
	}
	c.Wait()

	a.logger.Info("Scraped Amazon deals page", zap.Int("listings", len(listings)))

	return listings, nil
}

func parseLeadingFloat(s string) float64 {
	m := reviewsPattern.FindString(strings.ReplaceAll(s, ",", "."))
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseReviewCount(s string) int {
	s = strings.NewReplacer(".", "", ",", "", "(", "", ")", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
