package models

import (
	"time"
)

// AutomationConfig is the single active posting configuration. Exactly one
// row exists; its absence means automation is inactive.
type AutomationConfig struct {
	ID                 uint         `gorm:"primaryKey" json:"id"`
	Active             bool         `gorm:"default:false" json:"active"`
	StartHour          int          `gorm:"default:8" json:"start_hour"`
	EndHour            int          `gorm:"default:22" json:"end_hour"`
	MinIntervalMinutes int          `gorm:"default:30" json:"min_interval_minutes"`
	PeakWindows        PeakWindows  `gorm:"type:jsonb" json:"peak_windows"`
	EnabledSources     StringArray  `gorm:"type:text[]" json:"enabled_sources"`
	EnabledCategories  StringArray  `gorm:"type:text[]" json:"enabled_categories"`
	MinDiscount        int          `gorm:"default:0" json:"min_discount"`
	MaxPrice           float64      `gorm:"default:0" json:"max_price"`
	PeakBoostDiscount  bool         `gorm:"default:false" json:"peak_boost_discount"`
	PeakBoostPopular   bool         `gorm:"default:false" json:"peak_boost_popular"`
	DiscountWeight     int          `gorm:"default:70" json:"discount_weight"`
	EnabledChannels    StringArray  `gorm:"type:text[]" json:"enabled_channels"`
	TemplateTone       string       `gorm:"size:50;default:'casual'" json:"template_tone"`
	CreatedAt          time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}
