package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/promostream/promostream/internal/models"
)

// StatsSummary is the operator dashboard snapshot.
type StatsSummary struct {
	TotalOffers     int64      `json:"total_offers"`
	PostedOffers    int64      `json:"posted_offers"`
	OffersToday     int64      `json:"offers_today"`
	PostsToday      int64      `json:"posts_today"`
	SuccessesToday  int64      `json:"successes_today"`
	FailuresToday   int64      `json:"failures_today"`
	LastPostAt      *time.Time `json:"last_post_at"`
	LastCollectedAt *time.Time `json:"last_collected_at"`
}

// ChannelStats aggregates publish attempts for one channel.
type ChannelStats struct {
	Channel    string     `json:"channel"`
	Total      int64      `json:"total"`
	Successful int64      `json:"successful"`
	Failed     int64      `json:"failed"`
	LastPostAt *time.Time `json:"last_post_at"`
}

// SourceStats aggregates the catalog per source.
type SourceStats struct {
	Source      string  `json:"source"`
	Offers      int64   `json:"offers"`
	Posted      int64   `json:"posted"`
	AvgDiscount float64 `json:"avg_discount"`
}

// StatsService answers the operator-facing aggregate queries.
type StatsService struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewStatsService(db *gorm.DB, logger *zap.Logger) *StatsService {
	return &StatsService{db: db, logger: logger}
}

// startOfDay returns midnight of now's calendar day in now's own location,
// so daily counters roll over at local midnight rather than UTC.
func startOfDay(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func (s *StatsService) Summary(ctx context.Context) (*StatsSummary, error) {
	db := s.db.WithContext(ctx)
	today := startOfDay(time.Now())

	var summary StatsSummary
	counts := []struct {
		dest  *int64
		query *gorm.DB
	}{
		{&summary.TotalOffers, db.Model(&models.Offer{})},
		{&summary.PostedOffers, db.Model(&models.Offer{}).Where("is_posted = ?", true)},
		{&summary.OffersToday, db.Model(&models.Offer{}).Where("created_at >= ?", today)},
		{&summary.PostsToday, db.Model(&models.PostHistory{}).Where("created_at >= ?", today)},
		{&summary.SuccessesToday, db.Model(&models.PostHistory{}).Where("created_at >= ? AND status = ?", today, models.PostStatusSuccess)},
		{&summary.FailuresToday, db.Model(&models.PostHistory{}).Where("created_at >= ? AND status = ?", today, models.PostStatusFailed)},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("failed to compute summary counts: %w", err)
		}
	}

	var lastPost models.PostHistory
	if err := db.Where("status = ?", models.PostStatusSuccess).Order("created_at DESC").First(&lastPost).Error; err == nil {
		summary.LastPostAt = &lastPost.CreatedAt
	}

	var lastOffer models.Offer
	if err := db.Order("updated_at DESC").First(&lastOffer).Error; err == nil {
		summary.LastCollectedAt = &lastOffer.UpdatedAt
	}

	return &summary, nil
}

func (s *StatsService) PerChannel(ctx context.Context) ([]ChannelStats, error) {
	db := s.db.WithContext(ctx)

	var channels []string
	if err := db.Model(&models.PostHistory{}).Distinct("channel").Pluck("channel", &channels).Error; err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}

	stats := make([]ChannelStats, 0, len(channels))
	for _, name := range channels {
		var cs ChannelStats
		cs.Channel = name
		db.Model(&models.PostHistory{}).Where("channel = ?", name).Count(&cs.Total)
		db.Model(&models.PostHistory{}).Where("channel = ? AND status = ?", name, models.PostStatusSuccess).Count(&cs.Successful)
		db.Model(&models.PostHistory{}).Where("channel = ? AND status = ?", name, models.PostStatusFailed).Count(&cs.Failed)

		var last models.PostHistory
		if err := db.Where("channel = ? AND status = ?", name, models.PostStatusSuccess).Order("created_at DESC").First(&last).Error; err == nil {
			cs.LastPostAt = &last.CreatedAt
		}
		stats = append(stats, cs)
	}

	return stats, nil
}

func (s *StatsService) PerSource(ctx context.Context) ([]SourceStats, error) {
	db := s.db.WithContext(ctx)

	var sources []string
	if err := db.Model(&models.Offer{}).Distinct("source").Pluck("source", &sources).Error; err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}

	stats := make([]SourceStats, 0, len(sources))
	for _, name := range sources {
		var ss SourceStats
		ss.Source = name
		db.Model(&models.Offer{}).Where("source = ?", name).Count(&ss.Offers)
		db.Model(&models.Offer{}).Where("source = ? AND is_posted = ?", name, true).Count(&ss.Posted)

		var avg *float64
		db.Model(&models.Offer{}).Where("source = ?", name).Select("AVG(discount_percent)").Scan(&avg)
		if avg != nil {
			ss.AvgDiscount = *avg
		}
		stats = append(stats, ss)
	}

	return stats, nil
}
