package source

import (
	"testing"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListingFromFeedItemTwoPrices(t *testing.T) {
	listing, ok := ListingFromFeedItem(&gofeed.Item{
		Title: "Fone Bluetooth JBL de R$ 399,90 por R$ 199,90",
		Link:  "https://www.promobit.com.br/oferta/fone-jbl-123",
		GUID:  "promobit-123",
	})
	require.True(t, ok)

	assert.Equal(t, 199.90, listing.Price)
	assert.Equal(t, 399.90, listing.OriginalPrice)
	assert.Equal(t, "promobit-123", listing.NativeID)
	assert.Equal(t, NameRSS, listing.Source)
}

func TestListingFromFeedItemReversedPriceOrder(t *testing.T) {
	listing, ok := ListingFromFeedItem(&gofeed.Item{
		Title: "Smart TV 50\" por R$ 1.999,00 (antes R$ 2.799,00)",
		Link:  "https://www.promobit.com.br/oferta/tv-50",
	})
	require.True(t, ok)

	assert.Equal(t, 1999.00, listing.Price)
	assert.Equal(t, 2799.00, listing.OriginalPrice)
	// No GUID falls back to the link as the native id.
	assert.Equal(t, "https://www.promobit.com.br/oferta/tv-50", listing.NativeID)
}

func TestListingFromFeedItemSinglePrice(t *testing.T) {
	listing, ok := ListingFromFeedItem(&gofeed.Item{
		Title: "Cafeteira por R$ 149,90",
		Link:  "https://example.com/cafeteira",
	})
	require.True(t, ok)
	assert.Equal(t, 149.90, listing.Price)
	assert.Equal(t, 0.0, listing.OriginalPrice)
}

func TestListingFromFeedItemDropsPriceless(t *testing.T) {
	_, ok := ListingFromFeedItem(&gofeed.Item{
		Title: "Cupom de frete grátis na primeira compra",
		Link:  "https://example.com/cupom",
	})
	assert.False(t, ok)

	_, ok = ListingFromFeedItem(&gofeed.Item{Title: "Sem link R$ 10,00"})
	assert.False(t, ok)

	_, ok = ListingFromFeedItem(nil)
	assert.False(t, ok)
}
