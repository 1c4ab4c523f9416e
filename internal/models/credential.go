package models

import (
	"time"
)

// Credential holds the OAuth token pair for one source. Rows are created on
// the first successful authorization exchange and refreshed in place; they
// are never deleted by the pipeline, an operator must re-authorize when the
// refresh token itself dies.
type Credential struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Source       string    `gorm:"uniqueIndex;not null;size:50" json:"source"`
	AccessToken  string    `gorm:"type:text" json:"-"`
	RefreshToken string    `gorm:"type:text" json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	ClientID     string    `gorm:"size:255" json:"client_id"`
	ClientSecret string    `gorm:"size:255" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Usable reports whether the access token can still be sent upstream. The
// safety margin keeps a token from expiring between the check and the
// request that uses it.
func (c *Credential) Usable(now time.Time, safetyMargin time.Duration) bool {
	if c.AccessToken == "" {
		return false
	}
	return now.Before(c.ExpiresAt.Add(-safetyMargin))
}
