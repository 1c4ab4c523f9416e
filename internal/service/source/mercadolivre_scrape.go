package source

import (
	"context"
	"regexp"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/promostream/promostream/internal/models"
	"github.com/promostream/promostream/pkg/util"
)

var meliItemIDPattern = regexp.MustCompile(`MLB-?\d+`)

// dealsPageScraper is the scraping variant behind the Mercado Livre
// composite adapter. It parses the public deals page so a broken API never
// takes the whole source down.
type dealsPageScraper struct {
	pageURL string
	logger  *zap.Logger
}

func newMercadoLivreScraper(pageURL string, logger *zap.Logger) *dealsPageScraper {
	return &dealsPageScraper{pageURL: pageURL, logger: logger}
}

func (s *dealsPageScraper) scrape(ctx context.Context, limit int) ([]RawListing, error) {
	c := colly.NewCollector(
		colly.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36"),
	)
	c.SetRequestTimeout(30 * time.Second)

	var listings []RawListing

	c.OnHTML("div.andes-card, li.promotion-item", func(e *colly.HTMLElement) {
		if len(listings) >= limit {
			return
		}
		if err := ctx.Err(); err != nil {
			return
		}

		listing, ok := s.parseCard(e.DOM)
		if !ok {
			return
		}
		listings = append(listings, listing)
	})

	if err := c.Visit(s.pageURL); err != nil {
		return nil, models.Transient("mercadolivre page scrape", err)
	}
	c.Wait()

	s.logger.Info("Scraped Mercado Livre deals page",
		zap.Int("listings", len(listings)))

	return listings, nil
}

func (s *dealsPageScraper) parseCard(sel *goquery.Selection) (RawListing, bool) {
	link := sel.Find("a").First()
	href, ok := link.Attr("href")
	if !ok || href == "" {
		return RawListing{}, false
	}

	title := util.CleanTitle(sel.Find("p.promotion-item__title, h3").First().Text())
	if title == "" {
		return RawListing{}, false
	}

	price := util.ParseBRL(sel.Find("span.andes-money-amount--cents-superscript, span.promotion-item__price").First().Text())
	if price <= 0 {
		return RawListing{}, false
	}
	original := util.ParseBRL(sel.Find("s.andes-money-amount--previous, span.promotion-item__oldprice").First().Text())

	image, _ := sel.Find("img").First().Attr("src")

	nativeID := meliItemIDPattern.FindString(href)

	return RawListing{
		Source:        NameMercadoLivre,
		NativeID:      nativeID,
		Title:         title,
		Price:         price,
		OriginalPrice: original,
		ImageURL:      image,
		ProductURL:    href,
	}, true
}
