package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/promostream/promostream/internal/models"
	"github.com/promostream/promostream/internal/service/channel"
)

type stubChannel struct {
	name  string
	err   error
	delay time.Duration
	sent  atomic.Int32
}

func (c *stubChannel) Name() string { return c.name }

func (c *stubChannel) Publish(ctx context.Context, _ string, _ string) error {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.sent.Add(1)
	return c.err
}

func attemptByChannel(attempts []Attempt, name string) *Attempt {
	for i := range attempts {
		if attempts[i].Channel == name {
			return &attempts[i]
		}
	}
	return nil
}

func TestFanOutIsolatesFailures(t *testing.T) {
	telegram := &stubChannel{name: "telegram"}
	whatsapp := &stubChannel{name: "whatsapp", err: errors.New("instance disconnected")}
	discord := &stubChannel{name: "discord"}

	attempts := FanOut(context.Background(),
		[]channel.Channel{telegram, whatsapp, discord},
		"50% OFF", "https://img.example/p.jpg")

	require.Len(t, attempts, 3)

	tg := attemptByChannel(attempts, "telegram")
	require.NotNil(t, tg)
	assert.NoError(t, tg.Err)

	wa := attemptByChannel(attempts, "whatsapp")
	require.NotNil(t, wa)
	assert.Error(t, wa.Err)

	dc := attemptByChannel(attempts, "discord")
	require.NotNil(t, dc)
	assert.NoError(t, dc.Err)

	assert.Equal(t, int32(1), telegram.sent.Load())
	assert.Equal(t, int32(1), discord.sent.Load())
}

func TestFanOutWaitsForAllTargets(t *testing.T) {
	slow := &stubChannel{name: "telegram", delay: 30 * time.Millisecond}
	fast := &stubChannel{name: "discord"}

	attempts := FanOut(context.Background(), []channel.Channel{slow, fast}, "text", "")
	require.Len(t, attempts, 2)
	assert.Equal(t, int32(1), slow.sent.Load())
}

func TestFanOutNoTargets(t *testing.T) {
	attempts := FanOut(context.Background(), nil, "text", "")
	assert.Empty(t, attempts)
}

func TestDispatchRecordsPerChannelHistory(t *testing.T) {
	db := newTestDB(t)
	dispatcher := NewDispatcherService(db, zap.NewNop())
	require.NoError(t, dispatcher.Register(&stubChannel{name: "telegram"}))
	require.NoError(t, dispatcher.Register(&stubChannel{name: "whatsapp", err: errors.New("instance disconnected")}))

	offer := models.Offer{
		Source:     "amazon",
		NaturalKey: "B0AAAA0001",
		Title:      "Echo Dot",
		Price:      249.90,
		ProductURL: "https://www.amazon.com.br/dp/B0AAAA0001",
	}
	require.NoError(t, db.Create(&offer).Error)

	result, err := dispatcher.Dispatch(context.Background(), &offer, "50% OFF",
		[]string{"telegram", "whatsapp", "discord"})
	require.NoError(t, err)

	// A failing channel must not suppress the success entry for a sibling.
	assert.True(t, result.Posted)
	assert.ElementsMatch(t, []string{"telegram"}, result.Succeeded)
	assert.ElementsMatch(t, []string{"whatsapp", "discord"}, result.Failed)

	var history []models.PostHistory
	require.NoError(t, db.Find(&history).Error)
	require.Len(t, history, 3)

	byChannel := make(map[string]models.PostHistory, len(history))
	for _, h := range history {
		byChannel[h.Channel] = h
	}
	assert.Equal(t, models.PostStatusSuccess, byChannel["telegram"].Status)
	assert.Empty(t, byChannel["telegram"].Error)
	assert.Equal(t, models.PostStatusFailed, byChannel["whatsapp"].Status)
	assert.Contains(t, byChannel["whatsapp"].Error, "instance disconnected")
	assert.Equal(t, models.PostStatusFailed, byChannel["discord"].Status)
	assert.Contains(t, byChannel["discord"].Error, "not registered")

	var stored models.Offer
	require.NoError(t, db.First(&stored, offer.ID).Error)
	assert.True(t, stored.IsPosted)
	assert.Contains(t, stored.ChannelPosts, "telegram")
	assert.NotContains(t, stored.ChannelPosts, "whatsapp")
}

func TestDispatchAllFailuresLeavesOfferUnposted(t *testing.T) {
	db := newTestDB(t)
	dispatcher := NewDispatcherService(db, zap.NewNop())
	require.NoError(t, dispatcher.Register(&stubChannel{name: "telegram", err: errors.New("bot blocked")}))

	offer := models.Offer{
		Source:     "mercadolivre",
		NaturalKey: "MLB999",
		Title:      "Teclado Mecânico",
		Price:      199.90,
		ProductURL: "https://produto.mercadolivre.com.br/MLB-999",
	}
	require.NoError(t, db.Create(&offer).Error)

	result, err := dispatcher.Dispatch(context.Background(), &offer, "texto", []string{"telegram"})
	require.NoError(t, err)
	assert.False(t, result.Posted)
	assert.Empty(t, result.Succeeded)

	var stored models.Offer
	require.NoError(t, db.First(&stored, offer.ID).Error)
	assert.False(t, stored.IsPosted)
	assert.NotContains(t, stored.ChannelPosts, "telegram")

	var failures int64
	db.Model(&models.PostHistory{}).Where("status = ?", models.PostStatusFailed).Count(&failures)
	assert.Equal(t, int64(1), failures)
}

func TestFanOutHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	slow := &stubChannel{name: "telegram", delay: time.Second}
	attempts := FanOut(ctx, []channel.Channel{slow}, "text", "")
	require.Len(t, attempts, 1)
	assert.ErrorIs(t, attempts[0].Err, context.Canceled)
}
