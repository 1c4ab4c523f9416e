package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/promostream/promostream/internal/config"
	"github.com/promostream/promostream/internal/models"
)

// RenderService produces the outbound post copy for an offer, caching the
// result on the offer row. With an API key configured it asks the model;
// without one it falls back to a deterministic template.
type RenderService struct {
	cfg    *config.OpenAIConfig
	db     *gorm.DB
	logger *zap.Logger
	client *openai.Client
}

func NewRenderService(cfg *config.OpenAIConfig, db *gorm.DB, logger *zap.Logger) *RenderService {
	s := &RenderService{
		cfg:    cfg,
		db:     db,
		logger: logger,
	}
	if cfg.APIKey != "" {
		s.client = openai.NewClient(cfg.APIKey)
	}
	return s
}

// RenderPost returns post text for the offer, preferring the cached copy.
func (s *RenderService) RenderPost(ctx context.Context, offer *models.Offer, tone string) (string, error) {
	if offer.PostText != "" {
		return offer.PostText, nil
	}

	text, err := s.generate(ctx, offer, tone)
	if err != nil {
		s.logger.Warn("Post generation failed, using template",
			zap.Uint("offer_id", offer.ID),
			zap.Error(err))
		text = TemplatePost(offer)
	}

	offer.PostText = text
	if err := s.db.WithContext(ctx).Model(offer).Update("post_text", text).Error; err != nil {
		return "", fmt.Errorf("failed to cache post text: %w", err)
	}
	return text, nil
}

func (s *RenderService) generate(ctx context.Context, offer *models.Offer, tone string) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("no API key configured")
	}

	prompt := fmt.Sprintf(
		"Escreva um post curto (máximo 400 caracteres) em tom %s para divulgar esta oferta. "+
			"Inclua o preço e o desconto, termine com o link. Não invente informações.\n\n"+
			"Produto: %s\nPreço: R$ %.2f\nPreço original: R$ %.2f\nDesconto: %d%%\nLink: %s",
		tone, offer.Title, offer.Price, offer.OriginalPrice, offer.DiscountPercent, offer.AffiliateURL)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "Você escreve posts de ofertas para canais de divulgação. Seja direto e use no máximo dois emojis.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens: 300,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("chat completion returned empty text")
	}
	return text, nil
}

// TemplatePost is the deterministic fallback copy.
func TemplatePost(offer *models.Offer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔥 %s\n", offer.Title)
	if offer.DiscountPercent > 0 {
		fmt.Fprintf(&b, "De R$ %.2f por R$ %.2f (-%d%%)\n", offer.OriginalPrice, offer.Price, offer.DiscountPercent)
	} else {
		fmt.Fprintf(&b, "Por R$ %.2f\n", offer.Price)
	}
	link := offer.AffiliateURL
	if link == "" {
		link = offer.ProductURL
	}
	fmt.Fprintf(&b, "👉 %s", link)
	return b.String()
}

// Backfill renders missing post text for unposted offers. The inter-item
// delay keeps the generation API under its rate limit.
func (s *RenderService) Backfill(ctx context.Context, tone string, limit int, delay time.Duration) (int, error) {
	var offers []models.Offer
	if err := s.db.WithContext(ctx).
		Where("is_posted = ? AND (post_text = '' OR post_text IS NULL)", false).
		Order("discount_percent DESC").
		Limit(limit).
		Find(&offers).Error; err != nil {
		return 0, fmt.Errorf("failed to load offers for backfill: %w", err)
	}

	rendered := 0
	for i := range offers {
		if err := ctx.Err(); err != nil {
			return rendered, err
		}

		if _, err := s.RenderPost(ctx, &offers[i], tone); err != nil {
			s.logger.Error("Backfill render failed",
				zap.Uint("offer_id", offers[i].ID),
				zap.Error(err))
			continue
		}
		rendered++

		if i < len(offers)-1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return rendered, ctx.Err()
			}
		}
	}

	return rendered, nil
}
