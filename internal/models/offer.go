package models

import (
	"time"

	"gorm.io/gorm"
)

// Offer is the canonical normalized product listing. Re-ingestion of the
// same (source, natural_key) pair updates the existing row instead of
// creating a duplicate.
type Offer struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Source          string         `gorm:"size:50;not null;uniqueIndex:idx_source_natural_key" json:"source"`
	NaturalKey      string         `gorm:"size:500;not null;uniqueIndex:idx_source_natural_key" json:"natural_key"`
	Title           string         `gorm:"size:500;not null" json:"title"`
	Price           float64        `gorm:"not null" json:"price"`
	OriginalPrice   float64        `gorm:"default:0" json:"original_price"`
	DiscountPercent int            `gorm:"default:0;index" json:"discount_percent"`
	Category        string         `gorm:"size:100;index" json:"category"`
	ImageURL        string         `gorm:"size:1000" json:"image_url"`
	ProductURL      string         `gorm:"size:1000;not null" json:"product_url"`
	AffiliateURL    string         `gorm:"size:1000" json:"affiliate_url"`
	Rating          float64        `gorm:"default:0" json:"rating"`
	ReviewCount     int            `gorm:"default:0" json:"review_count"`
	IsPosted        bool           `gorm:"default:false;index" json:"is_posted"`
	ChannelPosts    ChannelPosts   `gorm:"type:jsonb" json:"channel_posts"`
	PostText        string         `gorm:"type:text" json:"post_text"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}
