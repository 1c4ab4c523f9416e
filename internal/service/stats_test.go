package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/promostream/promostream/internal/models"
)

func TestStartOfDayUsesLocalMidnight(t *testing.T) {
	brt := time.FixedZone("BRT", -3*60*60)
	now := time.Date(2024, 11, 20, 1, 30, 0, 0, brt)

	got := startOfDay(now)
	assert.Equal(t, time.Date(2024, 11, 20, 0, 0, 0, 0, brt), got)

	// Truncating on the absolute timeline would have put "today" back on
	// the previous local evening.
	assert.NotEqual(t, now.Truncate(24*time.Hour), got)
}

func TestSummaryCounts(t *testing.T) {
	db := newTestDB(t)
	svc := NewStatsService(db, zap.NewNop())

	offers := []models.Offer{
		{Source: "amazon", NaturalKey: "B0AAAA0001", Title: "Echo Dot", Price: 249.90, ProductURL: "https://x/1", IsPosted: true},
		{Source: "mercadolivre", NaturalKey: "MLB1", Title: "Fone", Price: 99.90, ProductURL: "https://x/2"},
	}
	for i := range offers {
		require.NoError(t, db.Create(&offers[i]).Error)
	}
	require.NoError(t, db.Create(&models.PostHistory{
		OfferID: offers[0].ID, Channel: "telegram", Status: models.PostStatusSuccess,
	}).Error)
	require.NoError(t, db.Create(&models.PostHistory{
		OfferID: offers[0].ID, Channel: "whatsapp", Status: models.PostStatusFailed, Error: "gateway down",
	}).Error)

	summary, err := svc.Summary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), summary.TotalOffers)
	assert.Equal(t, int64(1), summary.PostedOffers)
	assert.Equal(t, int64(2), summary.OffersToday)
	assert.Equal(t, int64(2), summary.PostsToday)
	assert.Equal(t, int64(1), summary.SuccessesToday)
	assert.Equal(t, int64(1), summary.FailuresToday)
	require.NotNil(t, summary.LastPostAt)
}
