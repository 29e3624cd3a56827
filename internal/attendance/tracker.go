package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

type store interface {
	DeleteParticipation(ctx context.Context, matchID string) (int64, error)
	InsertParticipation(ctx context.Context, arg InsertParticipationParams) error
	CountPlayedOn(ctx context.Context, arg CountPlayedOnParams) ([]PlayedCount, error)
}

// TrackerOptions tunes how match days are bucketed.
type TrackerOptions struct {
	// Location decides where "today" starts. Defaults to UTC.
	Location *time.Location
	Clock    clockwork.Clock
}

// Tracker records who took part in each match and answers how many matches
// each participant played today.
type Tracker struct {
	store  store
	inTx   func(ctx context.Context, fn func(store) error) error
	clock  clockwork.Clock
	loc    *time.Location
	logger zerolog.Logger
}

// NewTracker creates a Postgres backed tracker.
func NewTracker(pool *pgxpool.Pool, opts TrackerOptions, logger zerolog.Logger) *Tracker {
	q := New(pool)
	t := newTracker(q, opts, logger)
	t.inTx = func(ctx context.Context, fn func(store) error) error {
		return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			return fn(q.WithTx(tx))
		})
	}
	return t
}

func newTracker(s store, opts TrackerOptions, logger zerolog.Logger) *Tracker {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Tracker{
		store: s,
		inTx: func(ctx context.Context, fn func(store) error) error {
			return fn(s)
		},
		clock:  opts.Clock,
		loc:    opts.Location,
		logger: logger.With().Str("component", "attendance").Logger(),
	}
}

// RecordParticipation replaces the participant list of a match occurrence.
// Calling it again with the same match id is idempotent.
func (t *Tracker) RecordParticipation(ctx context.Context, scope, matchID string, participantIDs []string) error {
	if matchID == "" {
		return fmt.Errorf("record participation: match id is required")
	}
	day := t.today()
	err := t.inTx(ctx, func(s store) error {
		if _, err := s.DeleteParticipation(ctx, matchID); err != nil {
			return fmt.Errorf("clear previous participation: %w", err)
		}
		for _, id := range participantIDs {
			if err := s.InsertParticipation(ctx, InsertParticipationParams{
				MatchID:       matchID,
				ParticipantID: id,
				Scope:         scope,
				PlayedOn:      day,
			}); err != nil {
				return fmt.Errorf("insert participant %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record participation: %w", err)
	}

	t.logger.Debug().
		Str("scope", scope).
		Str("match_id", matchID).
		Int("participants", len(participantIDs)).
		Msg("participation recorded")
	return nil
}

// ClearParticipation reverts everything recorded for a match.
func (t *Tracker) ClearParticipation(ctx context.Context, matchID string) error {
	n, err := t.store.DeleteParticipation(ctx, matchID)
	if err != nil {
		return fmt.Errorf("clear participation: %w", err)
	}
	t.logger.Debug().Str("match_id", matchID).Int64("rows", n).Msg("participation cleared")
	return nil
}

// PlayedCountsToday returns, for each requested participant, how many matches
// in scope they played today. Participants without matches map to 0.
func (t *Tracker) PlayedCountsToday(ctx context.Context, scope string, participantIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(participantIDs))
	if len(participantIDs) == 0 {
		return out, nil
	}
	rows, err := t.store.CountPlayedOn(ctx, CountPlayedOnParams{
		Scope:          scope,
		PlayedOn:       t.today(),
		ParticipantIDs: participantIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("count played today: %w", err)
	}
	for _, id := range participantIDs {
		out[id] = 0
	}
	for _, r := range rows {
		out[r.ParticipantID] = int(r.Played)
	}
	return out, nil
}

func (t *Tracker) today() pgtype.Date {
	now := t.clock.Now().In(t.loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return pgtype.Date{Time: day, Valid: true}
}
