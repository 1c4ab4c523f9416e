package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/promostream/promostream/internal/models"
)

// Score boosts applied at peak when the corresponding config flag is set.
const (
	peakBoostFactor         = 1.2
	highDiscountCutoff      = 50
	highPopularityCutoff    = 0.7
	popularityReviewCeiling = 5000
)

// CycleResult summarizes one posting cycle.
type CycleResult struct {
	Ran        int    `json:"ran"`
	Posted     int    `json:"posted"`
	SkipReason string `json:"skip_reason,omitempty"`
}

// ScoredOffer pairs an offer with its ranking score for preview output.
type ScoredOffer struct {
	Offer models.Offer `json:"offer"`
	Score float64      `json:"score"`
}

// AutomationService decides what gets posted, when, and where. The
// configuration is re-read from storage every cycle; it is never cached in
// the process, so concurrent cycles and other instances always see the
// operator's latest settings.
type AutomationService struct {
	db            *gorm.DB
	logger        *zap.Logger
	renderer      *RenderService
	dispatcher    *DispatcherService
	cycleInterval time.Duration
}

func NewAutomationService(db *gorm.DB, logger *zap.Logger, renderer *RenderService, dispatcher *DispatcherService, cycleInterval time.Duration) *AutomationService {
	return &AutomationService{
		db:            db,
		logger:        logger,
		renderer:      renderer,
		dispatcher:    dispatcher,
		cycleInterval: cycleInterval,
	}
}

// GetConfig loads the single configuration row. A missing row means
// automation has never been configured and is inactive.
func (s *AutomationService) GetConfig(ctx context.Context) (*models.AutomationConfig, error) {
	var cfg models.AutomationConfig
	err := s.db.WithContext(ctx).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load automation config: %w", err)
	}
	return &cfg, nil
}

// SaveConfig upserts the single configuration row.
func (s *AutomationService) SaveConfig(ctx context.Context, cfg *models.AutomationConfig) error {
	existing, err := s.GetConfig(ctx)
	if err != nil {
		return err
	}
	if existing != nil {
		cfg.ID = existing.ID
	}
	if err := s.db.WithContext(ctx).Save(cfg).Error; err != nil {
		return fmt.Errorf("failed to save automation config: %w", err)
	}
	return nil
}

// SetActive flips the automation on or off.
func (s *AutomationService) SetActive(ctx context.Context, active bool) error {
	cfg, err := s.GetConfig(ctx)
	if err != nil {
		return err
	}
	if cfg == nil {
		return fmt.Errorf("automation has not been configured yet")
	}
	cfg.Active = active
	return s.SaveConfig(ctx, cfg)
}

// InPostingWindow reports whether the hour falls inside [start, end). An
// end before the start means the window wraps past midnight.
func InPostingWindow(startHour, endHour, hour int) bool {
	if startHour == endHour {
		// Degenerate window: treat as always open.
		return true
	}
	if startHour < endHour {
		return hour >= startHour && hour < endHour
	}
	return hour >= startHour || hour < endHour
}

// Popularity maps rating and review count onto [0, 1], monotonic in both.
func Popularity(rating float64, reviewCount int) float64 {
	if rating <= 0 || reviewCount < 0 {
		return 0
	}
	if rating > 5 {
		rating = 5
	}
	volume := math.Log10(1+float64(reviewCount)) / math.Log10(1+popularityReviewCeiling)
	if volume > 1 {
		volume = 1
	}
	return (rating / 5) * volume
}

// PeakMultiplier returns the priority multiplier of the peak window
// covering the hour. With overlapping windows the highest multiplier
// applies. 1 outside any window.
func PeakMultiplier(windows models.PeakWindows, hour int) float64 {
	multiplier := 1.0
	for _, w := range windows {
		if w.Multiplier > multiplier && InPostingWindow(w.StartHour, w.EndHour, hour) {
			multiplier = w.Multiplier
		}
	}
	return multiplier
}

// ScoreOffer computes the ranking score for one offer under the given
// config at the given time.
func ScoreOffer(cfg *models.AutomationConfig, offer *models.Offer, now time.Time) float64 {
	w := float64(cfg.DiscountWeight) / 100
	popularity := Popularity(offer.Rating, offer.ReviewCount)
	score := w*float64(offer.DiscountPercent)/100 + (1-w)*popularity

	peak := PeakMultiplier(cfg.PeakWindows, now.Hour())
	score *= peak

	if peak > 1 {
		if cfg.PeakBoostDiscount && offer.DiscountPercent >= highDiscountCutoff {
			score *= peakBoostFactor
		}
		if cfg.PeakBoostPopular && popularity >= highPopularityCutoff {
			score *= peakBoostFactor
		}
	}

	return score
}

// RankOffers sorts eligible offers by descending score.
func RankOffers(cfg *models.AutomationConfig, offers []models.Offer, now time.Time) []ScoredOffer {
	scored := make([]ScoredOffer, 0, len(offers))
	for _, offer := range offers {
		scored = append(scored, ScoredOffer{
			Offer: offer,
			Score: ScoreOffer(cfg, &offer, now),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

// SelectCandidates filters and ranks unposted offers under the config,
// returning at most limit of them.
func (s *AutomationService) SelectCandidates(ctx context.Context, cfg *models.AutomationConfig, now time.Time, limit int) ([]ScoredOffer, error) {
	query := s.db.WithContext(ctx).
		Where("is_posted = ?", false).
		Where("discount_percent >= ?", cfg.MinDiscount)

	if cfg.MaxPrice > 0 {
		query = query.Where("price <= ?", cfg.MaxPrice)
	}
	if len(cfg.EnabledSources) > 0 {
		query = query.Where("source IN ?", []string(cfg.EnabledSources))
	}
	if len(cfg.EnabledCategories) > 0 {
		query = query.Where("category IN ?", []string(cfg.EnabledCategories))
	}

	var offers []models.Offer
	if err := query.Find(&offers).Error; err != nil {
		return nil, fmt.Errorf("failed to load candidate offers: %w", err)
	}

	ranked := RankOffers(cfg, offers, now)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// batchSize derives how many offers one cycle may post from the cycle
// cadence and the configured minimum interval between posts.
func (s *AutomationService) batchSize(cfg *models.AutomationConfig) int {
	if cfg.MinIntervalMinutes <= 0 {
		return 1
	}
	size := int(s.cycleInterval.Minutes()) / cfg.MinIntervalMinutes
	if size < 1 {
		return 1
	}
	return size
}

// Preview returns the next candidates without dispatching anything.
func (s *AutomationService) Preview(ctx context.Context, limit int) ([]ScoredOffer, error) {
	cfg, err := s.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("automation has not been configured yet")
	}
	return s.SelectCandidates(ctx, cfg, time.Now(), limit)
}

// RunCycle executes one posting cycle: no-op outside the posting window or
// while inactive, otherwise select, render, dispatch, pace.
func (s *AutomationService) RunCycle(ctx context.Context) (*CycleResult, error) {
	cfg, err := s.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	if cfg == nil || !cfg.Active {
		return &CycleResult{SkipReason: "automation inactive"}, nil
	}

	now := time.Now()
	if !InPostingWindow(cfg.StartHour, cfg.EndHour, now.Hour()) {
		return &CycleResult{SkipReason: "outside posting window"}, nil
	}

	candidates, err := s.SelectCandidates(ctx, cfg, now, s.batchSize(cfg))
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return &CycleResult{SkipReason: "no eligible offers"}, nil
	}

	result := &CycleResult{}
	pace := time.Duration(cfg.MinIntervalMinutes) * time.Minute

	// Offers are posted in ranking order, one at a time; only the channel
	// fan-out inside the dispatcher is concurrent.
	for i, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		offer := candidate.Offer
		text, err := s.renderer.RenderPost(ctx, &offer, cfg.TemplateTone)
		if err != nil {
			s.logger.Error("Failed to render post, skipping offer",
				zap.Uint("offer_id", offer.ID),
				zap.Error(err))
			continue
		}

		dispatch, err := s.dispatcher.Dispatch(ctx, &offer, text, cfg.EnabledChannels)
		if err != nil {
			s.logger.Error("Dispatch failed",
				zap.Uint("offer_id", offer.ID),
				zap.Error(err))
		}
		result.Ran++
		if dispatch != nil && dispatch.Posted {
			result.Posted++
		}

		if i < len(candidates)-1 {
			select {
			case <-time.After(pace):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
	}

	s.logger.Info("Posting cycle completed",
		zap.Int("ran", result.Ran),
		zap.Int("posted", result.Posted))

	return result, nil
}
