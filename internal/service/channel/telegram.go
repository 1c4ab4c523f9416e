package channel

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/promostream/promostream/internal/config"
	"github.com/promostream/promostream/pkg/util"
)

// Bot API hard limits; longer text is rejected with a 400.
const (
	captionLimit = 1024
	messageLimit = 4096
)

// TelegramChannel broadcasts posts to a channel or group chat through the
// Bot API. Posts with an image go out as a photo with caption.
type TelegramChannel struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *zap.Logger
}

func NewTelegramChannel(cfg *config.TelegramConfig, logger *zap.Logger) (*TelegramChannel, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	logger.Info("Telegram channel ready", zap.String("bot", bot.Self.UserName))

	return &TelegramChannel{
		bot:    bot,
		chatID: cfg.ChatID,
		logger: logger,
	}, nil
}

func (c *TelegramChannel) Name() string { return NameTelegram }

func (c *TelegramChannel) Publish(ctx context.Context, text, imageURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg tgbotapi.Chattable
	if imageURL != "" {
		photo := tgbotapi.NewPhoto(c.chatID, tgbotapi.FileURL(imageURL))
		photo.Caption = util.Truncate(text, captionLimit)
		photo.ParseMode = tgbotapi.ModeHTML
		msg = photo
	} else {
		message := tgbotapi.NewMessage(c.chatID, util.Truncate(text, messageLimit))
		message.ParseMode = tgbotapi.ModeHTML
		message.DisableWebPagePreview = false
		msg = message
	}

	if _, err := c.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send failed: %w", err)
	}
	return nil
}
