package source

import (
	"context"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/promostream/promostream/internal/config"
	"github.com/promostream/promostream/pkg/util"
)

// RSSAdapter ingests syndication feeds from deal-aggregator sites. Prices
// ride inside entry titles ("Produto X de R$ 199,90 por R$ 99,90");
// entries without a parseable price are dropped rather than defaulted to
// zero.
type RSSAdapter struct {
	cfg    *config.RSSConfig
	logger *zap.Logger
	parser *gofeed.Parser
}

func NewRSSAdapter(cfg *config.RSSConfig, logger *zap.Logger) *RSSAdapter {
	return &RSSAdapter{
		cfg:    cfg,
		logger: logger,
		parser: gofeed.NewParser(),
	}
}

func (a *RSSAdapter) Name() string { return NameRSS }

func (a *RSSAdapter) Fetch(ctx context.Context, limit int) ([]RawListing, error) {
	var listings []RawListing

	for _, feedURL := range a.cfg.FeedURLs {
		if len(listings) >= limit {
			break
		}

		feed, err := a.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			a.logger.Warn("Failed to parse feed, skipping",
				zap.String("feed_url", feedURL),
				zap.Error(err))
			continue
		}

		for _, item := range feed.Items {
			if len(listings) >= limit {
				break
			}
			listing, ok := ListingFromFeedItem(item)
			if !ok {
				continue
			}
			listings = append(listings, listing)
		}
	}

	return listings, nil
}

// ListingFromFeedItem converts one feed entry into a RawListing. The
// second return is false when the title carries no parseable price.
func ListingFromFeedItem(item *gofeed.Item) (RawListing, bool) {
	if item == nil || item.Link == "" || item.Title == "" {
		return RawListing{}, false
	}

	prices := util.ExtractBRLPrices(item.Title)
	if len(prices) == 0 {
		return RawListing{}, false
	}

	// With two prices the lower one is the current price and the higher the
	// original; a single price means no known discount.
	current := prices[0]
	original := 0.0
	if len(prices) >= 2 {
		if prices[1] < current {
			current, original = prices[1], prices[0]
		} else {
			original = prices[1]
		}
	}

	nativeID := item.GUID
	if nativeID == "" {
		nativeID = item.Link
	}

	var image string
	if item.Image != nil {
		image = item.Image.URL
	}

	var category string
	if len(item.Categories) > 0 {
		category = item.Categories[0]
	}

	return RawListing{
		Source:        NameRSS,
		NativeID:      nativeID,
		Title:         util.CleanTitle(item.Title),
		Price:         current,
		OriginalPrice: original,
		Category:      category,
		ImageURL:      image,
		ProductURL:    item.Link,
	}, true
}
