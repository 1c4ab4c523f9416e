package source

import (
	"context"
)

// Source names used as Offer.Source and as keys in operator configuration.
const (
	NameMercadoLivre = "mercadolivre"
	NameAmazon       = "amazon"
	NameAwin         = "awin"
	NameRSS          = "rss"
)

// RawListing is the unnormalized output of one adapter before it flows
// through affiliate resolution and the normalizer.
type RawListing struct {
	Source        string
	NativeID      string
	Title         string
	Price         float64
	OriginalPrice float64
	Category      string
	ImageURL      string
	ProductURL    string
	Rating        float64
	ReviewCount   int
}

// Adapter fetches candidate offers from one origin. Implementations return
// an empty slice on empty or malformed upstream responses; only auth
// failures propagate as models.ErrAuthRequired so the orchestrator can keep
// the other sources running.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, limit int) ([]RawListing, error)
}

// TokenProvider supplies a valid access token for a source, refreshing it
// when needed.
type TokenProvider interface {
	GetValidToken(ctx context.Context, source string) (string, error)
}
