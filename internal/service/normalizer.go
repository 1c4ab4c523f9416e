package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"

	"gorm.io/gorm"

	"github.com/promostream/promostream/internal/models"
	"github.com/promostream/promostream/internal/service/source"
	"github.com/promostream/promostream/pkg/util"
)

// UpsertOutcome reports whether an upsert inserted a fresh row or refreshed
// an existing one.
type UpsertOutcome int

const (
	UpsertCreated UpsertOutcome = iota
	UpsertUpdated
)

// NormalizerService maps adapter output onto the canonical Offer and merges
// it against existing rows keyed by (source, natural key).
type NormalizerService struct {
	db *gorm.DB
}

func NewNormalizerService(db *gorm.DB) *NormalizerService {
	return &NormalizerService{db: db}
}

// Normalize converts a RawListing into an Offer. The natural key is the
// source-native id when the adapter had one, otherwise a stable hash of
// title and source.
func (s *NormalizerService) Normalize(raw source.RawListing) models.Offer {
	key := raw.NativeID
	if key == "" {
		key = NaturalKeyHash(raw.Source, raw.Title)
	}

	return models.Offer{
		Source:          raw.Source,
		NaturalKey:      key,
		Title:           util.CleanTitle(raw.Title),
		Price:           raw.Price,
		OriginalPrice:   raw.OriginalPrice,
		DiscountPercent: util.DiscountPercent(raw.OriginalPrice, raw.Price),
		Category:        raw.Category,
		ImageURL:        raw.ImageURL,
		ProductURL:      raw.ProductURL,
		Rating:          raw.Rating,
		ReviewCount:     raw.ReviewCount,
	}
}

// Upsert inserts offer or refreshes the mutable fields of the row already
// holding its natural key. Posting state and cached post text survive
// price refreshes untouched: a price change never un-publishes an offer.
func (s *NormalizerService) Upsert(ctx context.Context, offer *models.Offer) (UpsertOutcome, error) {
	var existing models.Offer
	err := s.db.WithContext(ctx).
		Where("source = ? AND natural_key = ?", offer.Source, offer.NaturalKey).
		First(&existing).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		if createErr := s.db.WithContext(ctx).Create(offer).Error; createErr != nil {
			return 0, fmt.Errorf("failed to create offer: %w", createErr)
		}
		return UpsertCreated, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query existing offer: %w", err)
	}

	MergeMutableFields(&existing, offer)

	if err := s.db.WithContext(ctx).Save(&existing).Error; err != nil {
		return 0, fmt.Errorf("failed to update offer: %w", err)
	}
	*offer = existing
	return UpsertUpdated, nil
}

// MergeMutableFields copies the re-ingestable fields of fresh onto existing
// and leaves posting state alone.
func MergeMutableFields(existing, fresh *models.Offer) {
	existing.Title = fresh.Title
	existing.Price = fresh.Price
	existing.OriginalPrice = fresh.OriginalPrice
	existing.DiscountPercent = fresh.DiscountPercent
	existing.Category = fresh.Category
	existing.ImageURL = fresh.ImageURL
	existing.ProductURL = fresh.ProductURL
	existing.Rating = fresh.Rating
	existing.ReviewCount = fresh.ReviewCount
	if fresh.AffiliateURL != "" {
		existing.AffiliateURL = fresh.AffiliateURL
	}
}

// NaturalKeyHash derives a stable dedup key for listings whose source
// exposes no native id.
func NaturalKeyHash(sourceName, title string) string {
	h := fnv.New64a()
	h.Write([]byte(sourceName))
	h.Write([]byte{0})
	h.Write([]byte(util.CleanTitle(title)))
	return fmt.Sprintf("h%016x", h.Sum64())
}
