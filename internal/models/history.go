package models

import (
	"time"
)

// Post outcome values recorded in PostHistory.
const (
	PostStatusSuccess = "success"
	PostStatusFailed  = "failed"
)

// PostHistory is an append-only audit record of one publish attempt on one
// channel. Rows are never mutated or deleted by the pipeline.
type PostHistory struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OfferID   uint      `gorm:"not null;index" json:"offer_id"`
	Channel   string    `gorm:"size:50;not null;index" json:"channel"`
	Content   string    `gorm:"type:text" json:"content"`
	Status    string    `gorm:"size:20;not null;index" json:"status"`
	Error     string    `gorm:"type:text" json:"error"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`

	Offer Offer `gorm:"foreignKey:OfferID" json:"offer"`
}
