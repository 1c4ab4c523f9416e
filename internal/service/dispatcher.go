package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/promostream/promostream/internal/models"
	"github.com/promostream/promostream/internal/service/channel"
)

// perChannelTimeout bounds one send; a timed-out channel fails alone.
const perChannelTimeout = 45 * time.Second

// Attempt is the outcome of one channel send.
type Attempt struct {
	Channel string
	Err     error
}

// DispatchResult summarizes one offer's fan-out across channels.
type DispatchResult struct {
	OfferID   uint      `json:"offer_id"`
	Succeeded []string  `json:"succeeded"`
	Failed    []string  `json:"failed"`
	Posted    bool      `json:"posted"`
	At        time.Time `json:"at"`
}

// DispatcherService sends rendered posts to outbound channels and records
// one PostHistory row per attempt. Channels are isolated from each other: a
// failure on one never blocks the rest, and the offer flips to posted as
// soon as any single channel succeeds.
type DispatcherService struct {
	db       *gorm.DB
	logger   *zap.Logger
	channels map[string]channel.Channel
}

func NewDispatcherService(db *gorm.DB, logger *zap.Logger) *DispatcherService {
	return &DispatcherService{
		db:       db,
		logger:   logger,
		channels: make(map[string]channel.Channel),
	}
}

func (s *DispatcherService) Register(ch channel.Channel) error {
	name := ch.Name()
	if _, exists := s.channels[name]; exists {
		return fmt.Errorf("channel %s already registered", name)
	}
	s.channels[name] = ch
	s.logger.Info("Channel registered", zap.String("channel", name))
	return nil
}

// AvailableChannels lists every registered channel name.
func (s *DispatcherService) AvailableChannels() []string {
	names := make([]string, 0, len(s.channels))
	for name := range s.channels {
		names = append(names, name)
	}
	return names
}

// Dispatch fans the rendered post out to the enabled channels, records a
// history row per attempt, and marks the offer posted when at least one
// channel accepted it.
func (s *DispatcherService) Dispatch(ctx context.Context, offer *models.Offer, text string, enabled []string) (*DispatchResult, error) {
	targets := make([]channel.Channel, 0, len(enabled))
	result := &DispatchResult{OfferID: offer.ID, At: time.Now()}

	attempts := make([]Attempt, 0, len(enabled))
	for _, name := range enabled {
		ch, ok := s.channels[name]
		if !ok {
			attempts = append(attempts, Attempt{
				Channel: name,
				Err:     fmt.Errorf("channel %s not registered", name),
			})
			continue
		}
		targets = append(targets, ch)
	}

	attempts = append(attempts, FanOut(ctx, targets, text, offer.ImageURL)...)

	now := time.Now()
	for _, attempt := range attempts {
		history := models.PostHistory{
			OfferID: offer.ID,
			Channel: attempt.Channel,
			Content: text,
			Status:  models.PostStatusSuccess,
		}
		if attempt.Err != nil {
			history.Status = models.PostStatusFailed
			history.Error = attempt.Err.Error()
			result.Failed = append(result.Failed, attempt.Channel)

			s.logger.Error("Channel send failed",
				zap.String("channel", attempt.Channel),
				zap.Uint("offer_id", offer.ID),
				zap.Error(attempt.Err))
		} else {
			result.Succeeded = append(result.Succeeded, attempt.Channel)
			if offer.ChannelPosts == nil {
				offer.ChannelPosts = models.ChannelPosts{}
			}
			offer.ChannelPosts[attempt.Channel] = now
		}

		if err := s.db.WithContext(ctx).Create(&history).Error; err != nil {
			s.logger.Error("Failed to record post history",
				zap.String("channel", attempt.Channel),
				zap.Uint("offer_id", offer.ID),
				zap.Error(err))
		}
	}

	if len(result.Succeeded) > 0 {
		offer.IsPosted = true
		result.Posted = true
		if err := s.db.WithContext(ctx).Save(offer).Error; err != nil {
			return result, fmt.Errorf("failed to mark offer posted: %w", err)
		}
	}

	s.logger.Info("Dispatch completed",
		zap.Uint("offer_id", offer.ID),
		zap.Strings("succeeded", result.Succeeded),
		zap.Strings("failed", result.Failed))

	return result, nil
}

// FanOut sends to every channel concurrently and waits for all of them.
// Channels are independent destinations, so one slow or broken channel
// never holds back a sibling.
func FanOut(ctx context.Context, targets []channel.Channel, text, imageURL string) []Attempt {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		attempts = make([]Attempt, 0, len(targets))
	)

	for _, target := range targets {
		wg.Add(1)
		go func(ch channel.Channel) {
			defer wg.Done()

			sendCtx, cancel := context.WithTimeout(ctx, perChannelTimeout)
			defer cancel()

			err := ch.Publish(sendCtx, text, imageURL)

			mu.Lock()
			attempts = append(attempts, Attempt{Channel: ch.Name(), Err: err})
			mu.Unlock()
		}(target)
	}

	wg.Wait()
	return attempts
}
