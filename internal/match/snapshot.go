package match

import (
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/gokatarajesh/matchday/internal/match/clock"
	"github.com/gokatarajesh/matchday/internal/match/roster"
	"github.com/gokatarajesh/matchday/internal/match/settings"
)

const snapshotVersion = 1

// Snapshot is the flat persisted record of a session. Timing fields are
// stored verbatim so a restored clock neither fast-forwards nor rewinds.
type Snapshot struct {
	Version     int    `json:"version"`
	Scope       string `json:"scope"`
	MatchID     string `json:"match_id"`
	Modality    string `json:"modality"`
	Category    string `json:"category"`
	Competition string `json:"competition"`
	Mode        Mode   `json:"mode"`

	RosterA []string    `json:"roster_a"`
	RosterB []string    `json:"roster_b"`
	ScoreA  int         `json:"score_a"`
	ScoreB  int         `json:"score_b"`
	Sets    []SetRecord `json:"sets"`

	AccumulatedMs           int64  `json:"accumulated_ms"`
	RunningSinceMs          *int64 `json:"running_since_ms"`
	MatchStartMs            *int64 `json:"match_start_ms"`
	CurrentSetStartOffsetMs int64  `json:"current_set_start_offset_ms"`
	AwaitingSetStart        bool   `json:"awaiting_set_start"`
	Paused                  bool   `json:"paused"`

	Config settings.Config `json:"config"`
}

func (s *Session) snapshot() Snapshot {
	st := s.timer.State()
	return Snapshot{
		Version:                 snapshotVersion,
		Scope:                   s.Scope,
		MatchID:                 s.MatchID,
		Modality:                s.Modality,
		Category:                s.Category,
		Competition:             s.Competition,
		Mode:                    s.Mode,
		RosterA:                 s.RosterA.Clone(),
		RosterB:                 s.RosterB.Clone(),
		ScoreA:                  s.Score.A,
		ScoreB:                  s.Score.B,
		Sets:                    append([]SetRecord{}, s.Sets...),
		AccumulatedMs:           st.AccumulatedMs,
		RunningSinceMs:          st.RunningSinceMs,
		MatchStartMs:            st.MatchStartMs,
		CurrentSetStartOffsetMs: st.CurrentSetStartOffsetMs,
		AwaitingSetStart:        st.AwaitingSetStart,
		Paused:                  st.Paused,
		Config:                  s.Config,
	}
}

// restoreSession rebuilds a session from its snapshot without touching timing.
func restoreSession(snap Snapshot, clk clockwork.Clock) (*Session, error) {
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	if err := snap.Config.Validate(); err != nil {
		return nil, fmt.Errorf("snapshot config: %w", err)
	}
	sets := snap.Sets
	if sets == nil {
		sets = []SetRecord{}
	}
	return &Session{
		Scope:       snap.Scope,
		MatchID:     snap.MatchID,
		Modality:    snap.Modality,
		Category:    snap.Category,
		Competition: snap.Competition,
		Mode:        snap.Mode,
		RosterA:     roster.Dedupe(snap.RosterA),
		RosterB:     roster.Dedupe(snap.RosterB),
		Score:       Score{A: snap.ScoreA, B: snap.ScoreB},
		Sets:        append([]SetRecord{}, sets...),
		Config:      snap.Config,
		timer: clock.Restore(clk, clock.State{
			AccumulatedMs:           snap.AccumulatedMs,
			RunningSinceMs:          snap.RunningSinceMs,
			MatchStartMs:            snap.MatchStartMs,
			CurrentSetStartOffsetMs: snap.CurrentSetStartOffsetMs,
			AwaitingSetStart:        snap.AwaitingSetStart,
			Paused:                  snap.Paused,
		}),
	}, nil
}
