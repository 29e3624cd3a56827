package match

import (
	"sort"

	"github.com/jonboulle/clockwork"

	"github.com/gokatarajesh/matchday/internal/match/alerts"
	"github.com/gokatarajesh/matchday/internal/match/clock"
	"github.com/gokatarajesh/matchday/internal/match/roster"
	"github.com/gokatarajesh/matchday/internal/match/settings"
	"github.com/gokatarajesh/matchday/internal/remote"
)

// Session is the root aggregate of one match in one scope. It only holds
// local state; the Controller owns synchronization.
type Session struct {
	Scope       string
	MatchID     string
	Modality    string
	Category    string
	Competition string
	Mode        Mode

	RosterA roster.Roster
	RosterB roster.Roster
	Score   Score
	Sets    []SetRecord
	Config  settings.Config

	timer *clock.Timer
	// clockRev changes on every clock intent so a rollback can tell whether
	// the timer was touched while a remote call was outstanding.
	clockRev int
}

func newSession(scope string, req CreateRequest, matchID string, cfg settings.Config, clk clockwork.Clock) *Session {
	return &Session{
		Scope:       scope,
		MatchID:     matchID,
		Modality:    req.Modality,
		Category:    req.Category,
		Competition: req.Competition,
		Mode:        req.Mode,
		RosterA:     roster.Roster{},
		RosterB:     roster.Roster{},
		Sets:        []SetRecord{},
		Config:      cfg,
		timer:       clock.NewTimer(clk),
	}
}

// Status derives the lifecycle state from identity and clock.
func (s *Session) Status() Status {
	if s.MatchID == "" {
		return StatusUncreated
	}
	st := s.timer.State()
	switch {
	case !st.Started():
		return StatusAssigning
	case st.Paused:
		return StatusPaused
	default:
		return StatusLive
	}
}

func (s *Session) participants() []string {
	out := make([]string, 0, len(s.RosterA)+len(s.RosterB))
	out = append(out, s.RosterA...)
	return append(out, s.RosterB...)
}

// appendSet stamps the boundary on the clock, appends the set and credits the winner.
func (s *Session) appendSet(winner Side) SetRecord {
	rec := SetRecord{
		Winner:              winner,
		CompletionElapsedMs: s.timer.MarkSetBoundary(s.Config.AutoPauseOnSetEnd),
	}
	s.Sets = append(s.Sets, rec)
	s.Score.add(winner, 1)
	return rec
}

// popSet removes the tail set, takes the point back and reopens the previous set window.
func (s *Session) popSet() (SetRecord, bool) {
	if len(s.Sets) == 0 {
		return SetRecord{}, false
	}
	last := s.Sets[len(s.Sets)-1]
	s.Sets = s.Sets[:len(s.Sets)-1]
	s.Score.add(last.Winner, -1)

	var offset int64
	if n := len(s.Sets); n > 0 {
		offset = s.Sets[n-1].CompletionElapsedMs
	}
	s.timer.ReopenSetWindow(offset)
	return last, true
}

func (s *Session) completions() []int64 {
	out := make([]int64, len(s.Sets))
	for i, set := range s.Sets {
		out[i] = set.CompletionElapsedMs
	}
	return out
}

// adoptRemote merges the system of record into local state. Remote wins for
// rosters, score and sets; config is merged field by field. Local completion
// offsets are kept for sets both sides know, since the remote only stores
// whole-second durations.
func (s *Session) adoptRemote(m remote.Match) {
	s.RosterA = roster.Dedupe(m.RosterA)
	s.RosterB = roster.Dedupe(m.RosterB)
	s.Score = Score{A: m.ScoreA, B: m.ScoreB}

	known := make(map[string]int64, len(s.Sets))
	for _, set := range s.Sets {
		if set.SetID != "" {
			known[set.SetID] = set.CompletionElapsedMs
		}
	}

	remoteSets := append([]remote.Set(nil), m.Sets...)
	sort.SliceStable(remoteSets, func(i, j int) bool { return remoteSets[i].Number < remoteSets[j].Number })

	sets := make([]SetRecord, 0, len(remoteSets))
	var cumulative int64
	for _, rs := range remoteSets {
		// sets created but never finished remotely have no winner yet
		if !Side(rs.Winner).valid() {
			continue
		}
		cumulative += int64(rs.DurationSeconds) * 1000
		completion := cumulative
		if local, ok := known[rs.ID]; ok {
			completion = local
			cumulative = local
		}
		sets = append(sets, SetRecord{
			SetID:               rs.ID,
			Winner:              Side(rs.Winner),
			CompletionElapsedMs: completion,
		})
	}
	s.Sets = sets

	if !m.Config.Empty() {
		merged := s.Config.Merge(m.Config)
		if merged.Validate() == nil {
			s.Config = merged
		}
	}
}

// clone copies everything a failed remote round trip may need to roll back.
func (s *Session) clone() *Session {
	out := *s
	out.RosterA = s.RosterA.Clone()
	out.RosterB = s.RosterB.Clone()
	out.Sets = append([]SetRecord{}, s.Sets...)
	out.timer = clock.Restore(s.timer.Clock(), s.timer.State())
	return &out
}

// rollback restores data fields from prev. The clock is only restored when no
// clock intent happened in between.
func (s *Session) rollback(prev *Session) {
	s.RosterA = prev.RosterA
	s.RosterB = prev.RosterB
	s.Score = prev.Score
	s.Sets = prev.Sets
	s.Config = prev.Config
	if s.clockRev == prev.clockRev {
		s.timer = clock.Restore(s.timer.Clock(), prev.timer.State())
	}
}

func (s *Session) alertInput() alerts.Input {
	st := s.timer.State()
	return alerts.Input{
		Started:             st.Started(),
		Paused:              st.Paused,
		ElapsedSeconds:      int(s.timer.ElapsedMs() / 1000),
		ElapsedInSetSeconds: int(s.timer.ElapsedInSetMs() / 1000),
		Config:              s.Config,
	}
}

func (s *Session) view(inFlight bool) View {
	durations := clock.SetDurations(s.completions())
	sets := make([]SetView, len(s.Sets))
	for i, set := range s.Sets {
		sets[i] = SetView{SetRecord: set, Number: i + 1, DurationMs: durations[i]}
	}
	in := s.alertInput()
	return View{
		Scope:            s.Scope,
		MatchID:          s.MatchID,
		Modality:         s.Modality,
		Category:         s.Category,
		Competition:      s.Competition,
		Mode:             s.Mode,
		Status:           s.Status(),
		RosterA:          s.RosterA.Clone(),
		RosterB:          s.RosterB.Clone(),
		Score:            s.Score,
		Sets:             sets,
		Config:           s.Config,
		Clock:            s.timer.Display(s.Config.MatchDurationSeconds, s.Config.SetDurationSeconds),
		Timing:           s.timer.State(),
		SuddenDeath:      in.Started && alerts.IsSuddenDeath(s.Config, in.ElapsedSeconds, in.ElapsedInSetSeconds),
		MutationInFlight: inFlight,
	}
}

// remoteSets converts the set history for the match service, rounding
// durations to whole seconds.
func (s *Session) remoteSets() []remote.Set {
	durations := clock.SetDurations(s.completions())
	out := make([]remote.Set, len(s.Sets))
	for i, set := range s.Sets {
		out[i] = remote.Set{
			ID:              set.SetID,
			Number:          i + 1,
			Winner:          set.Winner.team(),
			DurationSeconds: msToSeconds(durations[i]),
		}
	}
	return out
}

func msToSeconds(ms int64) int {
	return int((ms + 500) / 1000)
}
