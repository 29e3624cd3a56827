package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Sink renders or forwards alert events (tone player, speech synthesizer, bus).
type Sink interface {
	Emit(ctx context.Context, evt Event) error
}

// Fanout delivers each event to every sink and joins the failures.
type Fanout []Sink

func (f Fanout) Emit(ctx context.Context, evt Event) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes events to the structured log.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "alerts").Logger()}
}

func (s *LogSink) Emit(_ context.Context, evt Event) error {
	s.logger.Info().
		Str("scope", evt.Scope).
		Str("kind", string(evt.Kind)).
		Int("value", evt.Value).
		Str("reason", string(evt.Reason)).
		Str("message", evt.Message).
		Msg("alert")
	return nil
}

// ChannelPrefix is the Redis Pub/Sub channel prefix; the scope key follows it.
const ChannelPrefix = "alerts:"

// RedisSink publishes events on the scope's Pub/Sub channel.
type RedisSink struct {
	redis *redis.Client
}

func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{redis: client}
}

func (s *RedisSink) Emit(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := s.redis.Publish(ctx, ChannelPrefix+evt.Scope, data).Err(); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// SubjectPrefix is the NATS subject prefix; the scope key follows it.
const SubjectPrefix = "match.alerts."

// NATSSink publishes events to NATS for out-of-process renderers.
type NATSSink struct {
	conn *nats.Conn
}

func NewNATSSink(conn *nats.Conn) *NATSSink {
	return &NATSSink{conn: conn}
}

func (s *NATSSink) Emit(_ context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := s.conn.Publish(SubjectPrefix+evt.Scope, data); err != nil {
		return fmt.Errorf("nats publish alert: %w", err)
	}
	return nil
}
