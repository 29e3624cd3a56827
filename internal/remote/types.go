package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gokatarajesh/matchday/internal/match/settings"
)

var (
	// ErrSetExists is returned by CreateSet when the set number is already taken.
	ErrSetExists = errors.New("set already exists")
	// ErrUnavailable covers transport failures, timeouts and 5xx responses.
	ErrUnavailable = errors.New("match service unavailable")
	// ErrNotFound is returned when the match or set is unknown to the service.
	ErrNotFound = errors.New("match service resource not found")
)

// StatusError is a non-2xx answer that did not map to a sentinel.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("match service returned %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("match service returned %d", e.Status)
}

// Team identifies one side of a match.
type Team string

const (
	TeamA Team = "A"
	TeamB Team = "B"
)

// Set is a completed or pending set as known by the service.
type Set struct {
	ID              string `json:"id,omitempty"`
	Number          int    `json:"number"`
	Winner          Team   `json:"winner,omitempty"`
	DurationSeconds int    `json:"duration_seconds"`
}

// Match is the canonical remote match after payload normalization.
type Match struct {
	ID        string
	Finalized bool
	RosterA   []string
	RosterB   []string
	ScoreA    int
	ScoreB    int
	Sets      []Set
	Config    settings.Patch
	StartedAt *time.Time
}

// CreateMatchInput identifies the competition context of a new match.
type CreateMatchInput struct {
	Modality string `json:"modality"`
	Category string `json:"category"`
	Scope    string `json:"scope"`
}

// Assignment is a pair of rosters.
type Assignment struct {
	RosterA []string
	RosterB []string
}

// FinalizeInput is everything the service needs to close a match.
type FinalizeInput struct {
	MatchID   string     `json:"-"`
	ScoreA    int        `json:"score_a"`
	ScoreB    int        `json:"score_b"`
	Sets      []Set      `json:"sets"`
	AFK       []string   `json:"afk_participants,omitempty"`
	Operator  string     `json:"operator,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// FinalizeResult carries the rating deltas computed by the rating collaborator.
type FinalizeResult struct {
	RatingDeltas map[string]float64 `json:"rating_deltas"`
}

// MatchService is the remote system of record for matches.
type MatchService interface {
	CreateMatch(ctx context.Context, in CreateMatchInput) (string, error)
	AutoAssign(ctx context.Context, matchID string, pool []string, balanced bool) (Assignment, error)
	AssignTeams(ctx context.Context, matchID string, rosterA, rosterB []string) error
	FetchMatch(ctx context.Context, matchID string) (Match, error)
	UpdateConfig(ctx context.Context, matchID string, patch settings.Patch) (settings.Patch, error)
	UpdateScore(ctx context.Context, matchID string, scoreA, scoreB int) error
	CreateSet(ctx context.Context, matchID string, number int) (string, error)
	FinishSet(ctx context.Context, setID string, winner Team, durationSeconds int) error
	DeleteSet(ctx context.Context, setID string) error
	Finalize(ctx context.Context, in FinalizeInput) (FinalizeResult, error)
	DeleteMatch(ctx context.Context, matchID string) error
	ReopenMatch(ctx context.Context, matchID string) error
}
