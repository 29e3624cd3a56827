package match

import (
	"strings"

	"github.com/gosimple/slug"

	"github.com/gokatarajesh/matchday/internal/match/clock"
	"github.com/gokatarajesh/matchday/internal/match/settings"
	"github.com/gokatarajesh/matchday/internal/remote"
)

// Mode decides whether mutations are pushed to the match service.
type Mode string

const (
	ModeServerBacked Mode = "server_backed"
	ModeLocalOnly    Mode = "local_only"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusUncreated Status = "uncreated"
	StatusAssigning Status = "assigning"
	StatusLive      Status = "live"
	StatusPaused    Status = "paused"
	StatusFinalized Status = "finalized"
	StatusCancelled Status = "cancelled"
	StatusAbandoned Status = "abandoned"
)

// Side is one of the two teams.
type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

func (s Side) valid() bool {
	return s == SideA || s == SideB
}

func (s Side) team() remote.Team {
	return remote.Team(s)
}

// ParseSide accepts the same spellings the match service uses.
func ParseSide(v string) (Side, error) {
	key := strings.ToLower(strings.TrimSpace(v))
	key = strings.TrimPrefix(strings.TrimPrefix(key, "team"), "_")
	switch key {
	case "a":
		return SideA, nil
	case "b":
		return SideB, nil
	}
	return "", &ValidationError{Field: "side", Message: "side must be A or B"}
}

// Score is the running score; both values stay non-negative.
type Score struct {
	A int `json:"a"`
	B int `json:"b"`
}

// add ignores sides other than A and B.
func (s *Score) add(side Side, delta int) {
	var p *int
	switch side {
	case SideA:
		p = &s.A
	case SideB:
		p = &s.B
	default:
		return
	}
	*p += delta
	if *p < 0 {
		*p = 0
	}
}

// SetRecord is a completed set. SetID is empty until the match service acknowledged it.
type SetRecord struct {
	SetID               string `json:"set_id,omitempty"`
	Winner              Side   `json:"winner"`
	CompletionElapsedMs int64  `json:"completion_elapsed_ms"`
}

// SetView is a SetRecord with its derived duration.
type SetView struct {
	SetRecord
	Number     int   `json:"number"`
	DurationMs int64 `json:"duration_ms"`
}

// View is a read-only copy of a session with derived clock values.
type View struct {
	Scope            string          `json:"scope"`
	MatchID          string          `json:"match_id,omitempty"`
	Modality         string          `json:"modality,omitempty"`
	Category         string          `json:"category,omitempty"`
	Competition      string          `json:"competition,omitempty"`
	Mode             Mode            `json:"mode,omitempty"`
	Status           Status          `json:"status"`
	RosterA          []string        `json:"roster_a"`
	RosterB          []string        `json:"roster_b"`
	Score            Score           `json:"score"`
	Sets             []SetView       `json:"sets"`
	Config           settings.Config `json:"config"`
	Clock            clock.Display   `json:"clock"`
	Timing           clock.State     `json:"timing"`
	SuddenDeath      bool            `json:"sudden_death"`
	MutationInFlight bool            `json:"mutation_in_flight"`
}

// Notice is informational feedback that is not an error.
type Notice string

const (
	NoticeNone        Notice = ""
	NoticeRostersFull Notice = "rosters_full"
	NoticeResynced    Notice = "resynced_from_remote"
)

// CreateRequest starts a new match for a scope.
type CreateRequest struct {
	Modality    string `json:"modality"`
	Category    string `json:"category"`
	Competition string `json:"competition"`
	Mode        Mode   `json:"mode,omitempty"`
}

// Rosters replaces both team lists.
type Rosters struct {
	A []string `json:"roster_a"`
	B []string `json:"roster_b"`
}

// FinalizeRequest closes a match.
type FinalizeRequest struct {
	AFK      []string `json:"afk_participants,omitempty"`
	Operator string   `json:"operator,omitempty"`
}

// FinalizeResult is returned once the match service accepted the result.
type FinalizeResult struct {
	MatchID      string             `json:"match_id"`
	Status       Status             `json:"status"`
	Score        Score              `json:"score"`
	RatingDeltas map[string]float64 `json:"rating_deltas,omitempty"`
}

// LoadRequest rehydrates a session from an existing match.
type LoadRequest struct {
	MatchID     string      `json:"match_id"`
	Modality    string      `json:"modality"`
	Category    string      `json:"category"`
	Competition string      `json:"competition"`
	Mode        Mode        `json:"mode,omitempty"`
	RosterA     []string    `json:"roster_a,omitempty"`
	RosterB     []string    `json:"roster_b,omitempty"`
	Score       Score       `json:"score"`
	Sets        []SetRecord `json:"sets,omitempty"`
	StartedAtMs *int64      `json:"started_at_ms,omitempty"`
}

// NormalizeScope turns a free-form competition scope into its storage key.
func NormalizeScope(raw string) (string, error) {
	key := slug.Make(raw)
	if key == "" {
		return "", &ValidationError{Field: "scope", Message: "scope is required"}
	}
	return key, nil
}
