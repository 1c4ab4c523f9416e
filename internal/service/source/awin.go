package source

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/promostream/promostream/internal/config"
	"github.com/promostream/promostream/internal/models"
)

// Awin feed column layout. Feeds are produced by the network, not by us,
// so every row is treated as hostile input.
const (
	awinColID = iota
	awinColName
	awinColPrice
	awinColOldPrice
	awinColCategory
	awinColImageURL
	awinColDeepLink
	awinFieldCount
)

// AwinAdapter ingests the affiliate network's bulk product feed: a
// delimited file that is usually gzip-compressed but has been observed
// mislabeling its Content-Encoding, so compression is detected from the
// payload itself.
type AwinAdapter struct {
	cfg    *config.AwinConfig
	logger *zap.Logger
	client *http.Client
}

func NewAwinAdapter(cfg *config.AwinConfig, logger *zap.Logger) *AwinAdapter {
	return &AwinAdapter{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

func (a *AwinAdapter) Name() string { return NameAwin }

func (a *AwinAdapter) Fetch(ctx context.Context, limit int) ([]RawListing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.FeedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed request: %w", err)
	}
	if a.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, models.Transient("awin feed download", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 {
			return nil, models.Transient("awin feed download",
				fmt.Errorf("status %d", resp.StatusCode))
		}
		return nil, fmt.Errorf("awin feed returned status %d", resp.StatusCode)
	}

	listings, skipped, err := a.parseFeed(resp.Body, limit)
	if err != nil {
		return nil, err
	}

	a.logger.Info("Parsed Awin product feed",
		zap.Int("listings", len(listings)),
		zap.Int("skipped_rows", skipped))

	return listings, nil
}

// parseFeed streams the feed body row by row. Malformed rows are counted
// and skipped; only an unreadable stream fails the source.
func (a *AwinAdapter) parseFeed(body io.Reader, limit int) ([]RawListing, int, error) {
	reader, err := decompressIfGzip(body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", models.ErrMalformedUpstream, err)
	}

	cr := csv.NewReader(reader)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var listings []RawListing
	skipped := 0
	header := true

	for len(listings) < limit {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		if header {
			header = false
			if looksLikeHeader(record) {
				continue
			}
		}

		listing, ok := parseAwinRow(record)
		if !ok {
			skipped++
			continue
		}
		listings = append(listings, listing)
	}

	return listings, skipped, nil
}

// decompressIfGzip sniffs the gzip magic bytes (0x1f 0x8b) instead of
// trusting a declared Content-Encoding header.
func decompressIfGzip(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil {
		// Too short to even hold magic bytes; let the CSV reader see it.
		return br, nil
	}
	if magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		return zr, nil
	}
	return br, nil
}

func looksLikeHeader(record []string) bool {
	if len(record) <= awinColPrice {
		return false
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(record[awinColPrice]), 64)
	return err != nil
}

func parseAwinRow(record []string) (RawListing, bool) {
	if len(record) < awinFieldCount {
		return RawListing{}, false
	}

	id := strings.TrimSpace(record[awinColID])
	name := strings.TrimSpace(record[awinColName])
	link := strings.TrimSpace(record[awinColDeepLink])
	if id == "" || name == "" || link == "" {
		return RawListing{}, false
	}

	price, err := strconv.ParseFloat(strings.TrimSpace(record[awinColPrice]), 64)
	if err != nil || price <= 0 {
		return RawListing{}, false
	}
	oldPrice, _ := strconv.ParseFloat(strings.TrimSpace(record[awinColOldPrice]), 64)

	return RawListing{
		Source:        NameAwin,
		NativeID:      id,
		Title:         name,
		Price:         price,
		OriginalPrice: oldPrice,
		Category:      strings.TrimSpace(record[awinColCategory]),
		ImageURL:      strings.TrimSpace(record[awinColImageURL]),
		ProductURL:    link,
	}, true
}
