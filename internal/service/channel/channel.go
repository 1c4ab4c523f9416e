package channel

import (
	"context"
)

// Channel names used in operator configuration and PostHistory rows.
const (
	NameTelegram = "telegram"
	NameWhatsApp = "whatsapp"
	NameDiscord  = "discord"
)

// Channel sends one rendered post to one outbound destination. A non-nil
// error means the attempt failed; the dispatcher records it and moves on to
// the remaining channels.
type Channel interface {
	Name() string
	Publish(ctx context.Context, text, imageURL string) error
}
