package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/promostream/promostream/internal/config"
)

// Scheduler drives the three independent cadences: full collection,
// posting cycles, and the post-text backfill. Each trigger runs on its own
// ticker and goroutine, so a long collection never delays a posting cycle.
type Scheduler struct {
	config     *config.SchedulerConfig
	logger     *zap.Logger
	collector  *CollectorService
	automation *AutomationService
	renderer   *RenderService
	tickers    []*time.Ticker
	stopCh     chan struct{}
}

func NewScheduler(cfg *config.SchedulerConfig, logger *zap.Logger, collector *CollectorService, automation *AutomationService, renderer *RenderService) *Scheduler {
	return &Scheduler{
		config:     cfg,
		logger:     logger,
		collector:  collector,
		automation: automation,
		renderer:   renderer,
		stopCh:     make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Scheduler is disabled")
		return nil
	}

	collectEvery, err := time.ParseDuration(s.config.CollectInterval)
	if err != nil {
		return fmt.Errorf("invalid collect interval %q: %w", s.config.CollectInterval, err)
	}
	postEvery, err := time.ParseDuration(s.config.PostingInterval)
	if err != nil {
		return fmt.Errorf("invalid posting interval %q: %w", s.config.PostingInterval, err)
	}
	backfillEvery, err := time.ParseDuration(s.config.BackfillInterval)
	if err != nil {
		return fmt.Errorf("invalid backfill interval %q: %w", s.config.BackfillInterval, err)
	}
	backfillDelay, err := time.ParseDuration(s.config.BackfillDelay)
	if err != nil {
		return fmt.Errorf("invalid backfill delay %q: %w", s.config.BackfillDelay, err)
	}

	s.logger.Info("Starting scheduler",
		zap.Duration("collect_interval", collectEvery),
		zap.Duration("posting_interval", postEvery),
		zap.Duration("backfill_interval", backfillEvery))

	// Run first collection immediately
	go func() {
		s.logger.Info("Running initial collection")
		s.collector.CollectAll(ctx)
	}()

	s.every(ctx, collectEvery, "collection", func() {
		s.collector.CollectAll(ctx)
	})

	s.every(ctx, postEvery, "posting cycle", func() {
		result, err := s.automation.RunCycle(ctx)
		if err != nil {
			s.logger.Error("Posting cycle failed", zap.Error(err))
			return
		}
		if result.SkipReason != "" {
			s.logger.Debug("Posting cycle skipped", zap.String("reason", result.SkipReason))
		}
	})

	s.every(ctx, backfillEvery, "render backfill", func() {
		cfg, err := s.automation.GetConfig(ctx)
		if err != nil {
			s.logger.Error("Failed to load config for backfill", zap.Error(err))
			return
		}
		tone := "casual"
		if cfg != nil {
			tone = cfg.TemplateTone
		}
		rendered, err := s.renderer.Backfill(ctx, tone, 20, backfillDelay)
		if err != nil {
			s.logger.Error("Render backfill failed", zap.Error(err))
			return
		}
		if rendered > 0 {
			s.logger.Info("Render backfill completed", zap.Int("rendered", rendered))
		}
	})

	return nil
}

// every runs fn on its own ticker goroutine until the scheduler stops.
func (s *Scheduler) every(ctx context.Context, interval time.Duration, name string, fn func()) {
	ticker := time.NewTicker(interval)
	s.tickers = append(s.tickers, ticker)

	go func() {
		for {
			select {
			case <-ticker.C:
				start := time.Now()
				fn()
				s.logger.Debug("Scheduled run finished",
					zap.String("trigger", name),
					zap.Duration("duration", time.Since(start)))
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	for _, ticker := range s.tickers {
		ticker.Stop()
	}
	close(s.stopCh)
	s.logger.Info("Scheduler shutdown completed")
}
