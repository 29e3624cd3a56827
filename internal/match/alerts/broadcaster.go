package alerts

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	ws "github.com/gokatarajesh/matchday/pkg/http/ws"
)

// Broadcaster listens for alert events on Redis Pub/Sub and forwards them to
// the display clients watching each scope.
type Broadcaster struct {
	redis  *redis.Client
	hub    *ws.Hub
	logger zerolog.Logger
}

// NewBroadcaster creates a Pub/Sub powered alert broadcaster.
func NewBroadcaster(redis *redis.Client, hub *ws.Hub, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		redis:  redis,
		hub:    hub,
		logger: logger.With().Str("component", "alert_broadcaster").Logger(),
	}
}

// Run subscribes to every scope channel and blocks until the context is cancelled.
func (b *Broadcaster) Run(ctx context.Context) error {
	if b.redis == nil || b.hub == nil {
		return nil
	}

	sub := b.redis.PSubscribe(ctx, ChannelPrefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.forward(strings.TrimPrefix(msg.Channel, ChannelPrefix), msg.Payload)
		}
	}
}

func (b *Broadcaster) forward(scope, payload string) {
	var evt Event
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		b.logger.Warn().Err(err).Str("scope", scope).Msg("failed to decode alert payload")
		return
	}

	msg, err := ws.NewMessage(ws.TypeAlert, evt)
	if err != nil {
		b.logger.Warn().Err(err).Msg("failed to marshal alert WS payload")
		return
	}
	if err := b.hub.BroadcastToScope(scope, msg); err != nil {
		b.logger.Warn().Err(err).Str("scope", scope).Msg("failed to broadcast alert")
	}
}
