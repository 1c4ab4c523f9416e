package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/promostream/promostream/internal/models"
	"github.com/promostream/promostream/internal/service/source"
)

// SourceError reports one failed source inside an otherwise successful
// collection cycle.
type SourceError struct {
	Source       string `json:"source"`
	Message      string `json:"message"`
	AuthRequired bool   `json:"auth_required"`
}

// CollectResult aggregates one collection cycle across all sources.
type CollectResult struct {
	PerSource map[string]int `json:"per_source"`
	Created   int            `json:"created"`
	Updated   int            `json:"updated"`
	Skipped   int            `json:"skipped"`
	Total     int            `json:"total"`
	Errors    []SourceError  `json:"errors"`
	Duration  time.Duration  `json:"-"`
}

// CollectorService runs every enabled adapter and funnels the output
// through affiliate resolution and the normalizer. One broken source never
// cancels the others.
type CollectorService struct {
	adapters   []source.Adapter
	affiliate  *AffiliateService
	normalizer *NormalizerService
	logger     *zap.Logger
	fetchLimit int
}

func NewCollectorService(adapters []source.Adapter, affiliate *AffiliateService, normalizer *NormalizerService, logger *zap.Logger, fetchLimit int) *CollectorService {
	return &CollectorService{
		adapters:   adapters,
		affiliate:  affiliate,
		normalizer: normalizer,
		logger:     logger,
		fetchLimit: fetchLimit,
	}
}

// CollectAll fans the adapters out concurrently, waits for every one to
// settle, then processes the fetched listings source by source.
func (s *CollectorService) CollectAll(ctx context.Context) *CollectResult {
	start := time.Now()
	result := &CollectResult{PerSource: make(map[string]int)}

	fetched, errs := fetchAll(ctx, s.adapters, s.fetchLimit)
	result.Errors = errs

	// Deterministic processing order keeps logs and counts comparable
	// between cycles.
	names := make([]string, 0, len(fetched))
	for name := range fetched {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		count := s.processListings(ctx, fetched[name], result)
		result.PerSource[name] = count
		result.Total += count
	}

	result.Duration = time.Since(start)

	s.logger.Info("Collection cycle completed",
		zap.Int("total", result.Total),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed_sources", len(result.Errors)),
		zap.Duration("duration", result.Duration))

	return result
}

// fetchAll is a wait-for-all join: every adapter runs to completion even
// when siblings fail, and failures come back as values, never panics.
func fetchAll(ctx context.Context, adapters []source.Adapter, limit int) (map[string][]source.RawListing, []SourceError) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		fetched = make(map[string][]source.RawListing)
		errs    []SourceError
	)

	for _, adapter := range adapters {
		wg.Add(1)
		go func(a source.Adapter) {
			defer wg.Done()

			listings, err := a.Fetch(ctx, limit)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, SourceError{
					Source:       a.Name(),
					Message:      err.Error(),
					AuthRequired: errors.Is(err, models.ErrAuthRequired),
				})
				return
			}
			fetched[a.Name()] = listings
		}(adapter)
	}

	wg.Wait()
	return fetched, errs
}

// processListings resolves, normalizes and upserts one source's listings.
// A resolution failure skips that offer only.
func (s *CollectorService) processListings(ctx context.Context, listings []source.RawListing, result *CollectResult) int {
	processed := 0
	for _, raw := range listings {
		offer := s.normalizer.Normalize(raw)

		affiliateURL, err := s.affiliate.Resolve(ctx, raw.Source, raw.ProductURL)
		if err != nil {
			s.logger.Warn("Skipping offer after link resolution failure",
				zap.String("source", raw.Source),
				zap.String("title", raw.Title),
				zap.Error(err))
			result.Skipped++
			continue
		}
		offer.AffiliateURL = affiliateURL

		outcome, err := s.normalizer.Upsert(ctx, &offer)
		if err != nil {
			s.logger.Error("Failed to upsert offer",
				zap.String("source", raw.Source),
				zap.String("natural_key", offer.NaturalKey),
				zap.Error(err))
			result.Skipped++
			continue
		}

		switch outcome {
		case UpsertCreated:
			result.Created++
		case UpsertUpdated:
			result.Updated++
		}
		processed++
	}
	return processed
}
