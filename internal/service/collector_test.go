package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promostream/promostream/internal/models"
	"github.com/promostream/promostream/internal/service/source"
)

type stubAdapter struct {
	name     string
	listings []source.RawListing
	err      error
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) Fetch(_ context.Context, _ int) ([]source.RawListing, error) {
	return a.listings, a.err
}

func TestFetchAllIsolatesFailingSources(t *testing.T) {
	adapters := []source.Adapter{
		&stubAdapter{name: "mercadolivre", listings: []source.RawListing{
			{Source: "mercadolivre", NativeID: "MLB1", Title: "Fone"},
			{Source: "mercadolivre", NativeID: "MLB2", Title: "Teclado"},
		}},
		&stubAdapter{name: "amazon", listings: []source.RawListing{
			{Source: "amazon", NativeID: "B0AAAAAAA1", Title: "Echo Dot"},
		}},
		&stubAdapter{name: "awin", err: errors.New("feed unreachable")},
		&stubAdapter{name: "rss", listings: nil},
	}

	fetched, errs := fetchAll(context.Background(), adapters, 50)

	assert.Len(t, fetched["mercadolivre"], 2)
	assert.Len(t, fetched["amazon"], 1)
	assert.Contains(t, fetched, "rss")
	assert.NotContains(t, fetched, "awin")

	require.Len(t, errs, 1)
	assert.Equal(t, "awin", errs[0].Source)
	assert.Contains(t, errs[0].Message, "feed unreachable")
	assert.False(t, errs[0].AuthRequired)
}

func TestFetchAllFlagsAuthRequired(t *testing.T) {
	adapters := []source.Adapter{
		&stubAdapter{name: "mercadolivre", err: fmt.Errorf("fetching deals: %w", models.ErrAuthRequired)},
	}

	fetched, errs := fetchAll(context.Background(), adapters, 50)
	assert.Empty(t, fetched)
	require.Len(t, errs, 1)
	assert.True(t, errs[0].AuthRequired)
}

func TestFetchAllAllSourcesSettle(t *testing.T) {
	var adapters []source.Adapter
	for i := 0; i < 8; i++ {
		adapters = append(adapters, &stubAdapter{
			name:     fmt.Sprintf("src%d", i),
			listings: []source.RawListing{{Source: fmt.Sprintf("src%d", i), Title: "x"}},
		})
	}

	fetched, errs := fetchAll(context.Background(), adapters, 10)
	assert.Empty(t, errs)
	assert.Len(t, fetched, 8)
}
