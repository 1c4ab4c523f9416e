package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promostream/promostream/internal/models"
	"github.com/promostream/promostream/internal/service/source"
)

func TestNormalizeDerivesDiscountAndKey(t *testing.T) {
	svc := NewNormalizerService(nil)

	offer := svc.Normalize(source.RawListing{
		Source:        source.NameMercadoLivre,
		NativeID:      "MLB123456",
		Title:         "  Fone   Bluetooth  ",
		Price:         150,
		OriginalPrice: 300,
		ProductURL:    "https://produto.mercadolivre.com.br/MLB-123456",
	})

	assert.Equal(t, "MLB123456", offer.NaturalKey)
	assert.Equal(t, "Fone Bluetooth", offer.Title)
	assert.Equal(t, 50, offer.DiscountPercent)
}

func TestNormalizeFallsBackToHashKey(t *testing.T) {
	svc := NewNormalizerService(nil)

	a := svc.Normalize(source.RawListing{Source: source.NameRSS, Title: "Smart TV 50"})
	b := svc.Normalize(source.RawListing{Source: source.NameRSS, Title: " Smart  TV 50 "})
	c := svc.Normalize(source.RawListing{Source: source.NameAwin, Title: "Smart TV 50"})

	// Whitespace noise must not split the dedup key, but source must.
	assert.Equal(t, a.NaturalKey, b.NaturalKey)
	assert.NotEqual(t, a.NaturalKey, c.NaturalKey)
	assert.Regexp(t, `^h[0-9a-f]{16}$`, a.NaturalKey)
}

func TestNaturalKeyHashStable(t *testing.T) {
	assert.Equal(t,
		NaturalKeyHash("amazon", "Echo Dot"),
		NaturalKeyHash("amazon", "Echo Dot"))
	assert.NotEqual(t,
		NaturalKeyHash("amazon", "Echo Dot"),
		NaturalKeyHash("amazon", "Echo Dot 5"))
}

func TestUpsertIdempotentOnNaturalKey(t *testing.T) {
	db := newTestDB(t)
	svc := NewNormalizerService(db)
	ctx := context.Background()

	first := svc.Normalize(source.RawListing{
		Source:        source.NameAmazon,
		NativeID:      "B0AAAA0001",
		Title:         "Echo Dot",
		Price:         299,
		OriginalPrice: 399,
		ProductURL:    "https://www.amazon.com.br/dp/B0AAAA0001",
	})
	outcome, err := svc.Upsert(ctx, &first)
	require.NoError(t, err)
	assert.Equal(t, UpsertCreated, outcome)

	// Posted between ingestion cycles.
	require.NoError(t, db.Model(&models.Offer{}).Where("id = ?", first.ID).
		Updates(map[string]interface{}{"is_posted": true, "post_text": "cached copy"}).Error)

	second := svc.Normalize(source.RawListing{
		Source:        source.NameAmazon,
		NativeID:      "B0AAAA0001",
		Title:         "Echo Dot 5ª geração",
		Price:         249,
		OriginalPrice: 399,
		ProductURL:    "https://www.amazon.com.br/dp/B0AAAA0001",
	})
	outcome, err = svc.Upsert(ctx, &second)
	require.NoError(t, err)
	assert.Equal(t, UpsertUpdated, outcome)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	db.Model(&models.Offer{}).Count(&count)
	assert.Equal(t, int64(1), count)

	var stored models.Offer
	require.NoError(t, db.First(&stored, first.ID).Error)
	assert.Equal(t, "Echo Dot 5ª geração", stored.Title)
	assert.Equal(t, 249.0, stored.Price)
	assert.True(t, stored.IsPosted)
	assert.Equal(t, "cached copy", stored.PostText)
}

func TestMergeMutableFieldsKeepsPostingState(t *testing.T) {
	postedAt := time.Date(2024, 11, 19, 10, 0, 0, 0, time.UTC)
	existing := &models.Offer{
		Title:        "Old title",
		Price:        200,
		IsPosted:     true,
		PostText:     "cached copy",
		ChannelPosts: models.ChannelPosts{"telegram": postedAt},
		AffiliateURL: "https://mercadolivre.com/sec/old",
	}
	fresh := &models.Offer{
		Title:           "New title",
		Price:           180,
		OriginalPrice:   300,
		DiscountPercent: 40,
	}

	MergeMutableFields(existing, fresh)

	assert.Equal(t, "New title", existing.Title)
	assert.Equal(t, 180.0, existing.Price)
	assert.Equal(t, 40, existing.DiscountPercent)

	assert.True(t, existing.IsPosted)
	assert.Equal(t, "cached copy", existing.PostText)
	assert.Equal(t, postedAt, existing.ChannelPosts["telegram"])
	// A fresh listing with no resolved link keeps the one already stored.
	assert.Equal(t, "https://mercadolivre.com/sec/old", existing.AffiliateURL)
}

func TestMergeMutableFieldsUpdatesAffiliateURL(t *testing.T) {
	existing := &models.Offer{AffiliateURL: "https://old.example/x"}
	fresh := &models.Offer{AffiliateURL: "https://new.example/y"}

	MergeMutableFields(existing, fresh)
	assert.Equal(t, "https://new.example/y", existing.AffiliateURL)
}
