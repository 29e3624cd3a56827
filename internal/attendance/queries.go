package attendance

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// Queries runs the participation statements against a pool or transaction.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx binds the queries to a transaction.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const deleteParticipation = `DELETE FROM match_participation WHERE match_id = $1`

func (q *Queries) DeleteParticipation(ctx context.Context, matchID string) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteParticipation, matchID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const insertParticipation = `
INSERT INTO match_participation (match_id, participant_id, scope, played_on)
VALUES ($1, $2, $3, $4)
ON CONFLICT (match_id, participant_id)
DO UPDATE SET scope = EXCLUDED.scope, played_on = EXCLUDED.played_on, recorded_at = now()`

type InsertParticipationParams struct {
	MatchID       string
	ParticipantID string
	Scope         string
	PlayedOn      pgtype.Date
}

func (q *Queries) InsertParticipation(ctx context.Context, arg InsertParticipationParams) error {
	_, err := q.db.Exec(ctx, insertParticipation, arg.MatchID, arg.ParticipantID, arg.Scope, arg.PlayedOn)
	return err
}

const countPlayedOn = `
SELECT participant_id, COUNT(DISTINCT match_id)::int AS played
FROM match_participation
WHERE scope = $1 AND played_on = $2 AND participant_id = ANY($3::text[])
GROUP BY participant_id`

type CountPlayedOnParams struct {
	Scope          string
	PlayedOn       pgtype.Date
	ParticipantIDs []string
}

type PlayedCount struct {
	ParticipantID string
	Played        int32
}

func (q *Queries) CountPlayedOn(ctx context.Context, arg CountPlayedOnParams) ([]PlayedCount, error) {
	rows, err := q.db.Query(ctx, countPlayedOn, arg.Scope, arg.PlayedOn, arg.ParticipantIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []PlayedCount
	for rows.Next() {
		var i PlayedCount
		if err := rows.Scan(&i.ParticipantID, &i.Played); err != nil {
			return nil, fmt.Errorf("scan played count: %w", err)
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
