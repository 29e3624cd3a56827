package match

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/matchday/internal/match/alerts"
	"github.com/gokatarajesh/matchday/internal/match/clock"
	"github.com/gokatarajesh/matchday/internal/match/roster"
	"github.com/gokatarajesh/matchday/internal/match/settings"
	"github.com/gokatarajesh/matchday/internal/metrics"
	"github.com/gokatarajesh/matchday/internal/remote"
)

// Attendance records who played which match.
type Attendance interface {
	RecordParticipation(ctx context.Context, scope, matchID string, participantIDs []string) error
	ClearParticipation(ctx context.Context, matchID string) error
	PlayedCountsToday(ctx context.Context, scope string, participantIDs []string) (map[string]int, error)
}

// ControllerOptions configures a Controller. Zero values fall back to defaults.
type ControllerOptions struct {
	Defaults      settings.Config
	DefaultMode   Mode
	RemoteTimeout time.Duration
	Clock         clockwork.Clock
	Store         SnapshotStore
	Sink          alerts.Sink
	Metrics       metrics.Recorder
	// OnChange receives a fresh view after every state change.
	OnChange func(View)
}

// Controller owns the session of one scope. Mutations apply locally first,
// then run their remote round trip inside the in-flight window. A second
// mutation while one is outstanding is rejected.
type Controller struct {
	scope      string
	remote     remote.MatchService
	attendance Attendance
	store      SnapshotStore
	sink       alerts.Sink
	sched      *alerts.Scheduler
	clock      clockwork.Clock
	defaults   settings.Config
	mode       Mode
	timeout    time.Duration
	metrics    metrics.Recorder
	onChange   func(View)
	logger     zerolog.Logger

	mu       sync.Mutex
	sess     *Session
	ended    Status
	inFlight bool
	rev      uint64
}

// NewController creates the controller for scope. remoteSvc and attendance may be nil.
func NewController(scope string, remoteSvc remote.MatchService, attendance Attendance, opts ControllerOptions, logger zerolog.Logger) *Controller {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.RemoteTimeout <= 0 {
		opts.RemoteTimeout = 10 * time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NoOp{}
	}
	if opts.Defaults == (settings.Config{}) {
		opts.Defaults = settings.Defaults()
	}
	if opts.DefaultMode == "" {
		opts.DefaultMode = ModeServerBacked
	}
	if remoteSvc == nil {
		opts.DefaultMode = ModeLocalOnly
	}
	return &Controller{
		scope:      scope,
		remote:     remoteSvc,
		attendance: attendance,
		store:      opts.Store,
		sink:       opts.Sink,
		sched:      alerts.NewScheduler(),
		clock:      opts.Clock,
		defaults:   opts.Defaults,
		mode:       opts.DefaultMode,
		timeout:    opts.RemoteTimeout,
		metrics:    opts.Metrics,
		onChange:   opts.OnChange,
		logger:     logger.With().Str("component", "match_controller").Str("scope", scope).Logger(),
	}
}

// Scope returns the scope key the controller serves.
func (c *Controller) Scope() string {
	return c.scope
}

// Active reports whether a session is open.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil
}

// View returns a read-only copy of the session.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() View {
	if c.sess == nil {
		status := c.ended
		if status == "" {
			status = StatusUncreated
		}
		return View{
			Scope:            c.scope,
			Status:           status,
			RosterA:          []string{},
			RosterB:          []string{},
			Sets:             []SetView{},
			Config:           c.defaults,
			Timing:           clock.NewState(),
			MutationInFlight: c.inFlight,
		}
	}
	return c.sess.view(c.inFlight)
}

// CreateMatch opens a session. Nothing is created when a field is missing.
func (c *Controller) CreateMatch(ctx context.Context, req CreateRequest) (View, error) {
	switch {
	case req.Modality == "":
		return View{}, &ValidationError{Field: "modality", Message: "modality is required"}
	case req.Category == "":
		return View{}, &ValidationError{Field: "category", Message: "category is required"}
	case req.Competition == "":
		return View{}, &ValidationError{Field: "competition", Message: "competition is required"}
	}
	mode, err := c.resolveMode(req.Mode)
	if err != nil {
		return View{}, err
	}
	req.Mode = mode

	c.mu.Lock()
	if c.sess != nil {
		c.mu.Unlock()
		return View{}, ErrSessionExists
	}
	if c.inFlight {
		c.mu.Unlock()
		return View{}, ErrMutationInFlight
	}
	c.inFlight = true
	c.rev++
	c.mu.Unlock()
	defer c.release()

	matchID := uuid.NewString()
	if mode == ModeServerBacked {
		err := c.call(ctx, "create_match", func(ctx context.Context) error {
			id, err := c.remote.CreateMatch(ctx, remote.CreateMatchInput{
				Modality: req.Modality,
				Category: req.Category,
				Scope:    req.Competition,
			})
			matchID = id
			return err
		})
		if err != nil {
			return View{}, fromRemote("create match", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess = newSession(c.scope, req, matchID, c.defaults, c.clock)
	c.ended = ""
	c.sched.Reset()
	c.persistLocked(ctx)
	c.logger.Info().Str("match_id", matchID).Str("mode", string(mode)).Msg("match created")
	return c.sess.view(false), nil
}

func (c *Controller) resolveMode(m Mode) (Mode, error) {
	switch m {
	case "":
		m = c.mode
	case ModeServerBacked, ModeLocalOnly:
	default:
		return "", &ValidationError{Field: "mode", Message: fmt.Sprintf("unknown mode %q", m)}
	}
	if m == ModeServerBacked && c.remote == nil {
		m = ModeLocalOnly
	}
	return m, nil
}

// AutoAssign fills the rosters from pool. With both rosters empty it asks for
// a fresh balanced split; otherwise it fills gaps locally, least played first.
func (c *Controller) AutoAssign(ctx context.Context, pool []string, playedToday map[string]int) (Notice, error) {
	sess, err := c.acquire()
	if err != nil {
		return NoticeNone, err
	}
	defer c.release()

	c.mu.Lock()
	fresh := len(sess.RosterA) == 0 && len(sess.RosterB) == 0
	if !fresh {
		res := roster.FillGaps(sess.RosterA, sess.RosterB, pool, playedToday)
		if res.Full {
			c.mu.Unlock()
			return NoticeRostersFull, nil
		}
		sess.RosterA, sess.RosterB = res.A, res.B
		c.persistLocked(ctx)
		c.mu.Unlock()
		return NoticeNone, nil
	}
	candidates := roster.FreshPool(pool, playedToday)
	matchID, mode := sess.MatchID, sess.Mode
	c.mu.Unlock()

	if len(candidates) == 0 {
		return NoticeNone, &ValidationError{Field: "pool", Message: "no participants available to assign"}
	}

	var a, b roster.Roster
	if mode == ModeServerBacked {
		var asg remote.Assignment
		err := c.call(ctx, "auto_assign", func(ctx context.Context) error {
			var err error
			asg, err = c.remote.AutoAssign(ctx, matchID, candidates, true)
			return err
		})
		if err != nil {
			return NoticeNone, fromRemote("auto assign", err)
		}
		a, b = roster.Dedupe(asg.RosterA), roster.Dedupe(asg.RosterB)
	} else {
		a, b = roster.Split(candidates)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	sess.RosterA, sess.RosterB = a, b
	c.persistLocked(ctx)
	return NoticeNone, nil
}

// SaveAssignment optionally replaces the rosters, saves them remotely and
// records attendance for everyone on them.
func (c *Controller) SaveAssignment(ctx context.Context, rosters *Rosters) error {
	var a, b roster.Roster
	if rosters != nil {
		a, b = roster.Dedupe(rosters.A), roster.Dedupe(rosters.B)
		for _, id := range a {
			if b.Contains(id) {
				return &ValidationError{Field: "rosters", Message: fmt.Sprintf("participant %s is on both teams", id)}
			}
		}
		if len(a) > roster.MaxPerSide || len(b) > roster.MaxPerSide {
			return &ValidationError{Field: "rosters", Message: fmt.Sprintf("at most %d participants per team", roster.MaxPerSide)}
		}
	}

	sess, err := c.acquire()
	if err != nil {
		return err
	}
	defer c.release()

	c.mu.Lock()
	prev := sess.clone()
	if rosters != nil {
		sess.RosterA, sess.RosterB = a, b
	}
	c.persistLocked(ctx)
	matchID, mode := sess.MatchID, sess.Mode
	rosterA, rosterB := sess.RosterA.Clone(), sess.RosterB.Clone()
	participants := sess.participants()
	c.mu.Unlock()

	if mode == ModeServerBacked {
		err := c.call(ctx, "assign_teams", func(ctx context.Context) error {
			return c.remote.AssignTeams(ctx, matchID, rosterA, rosterB)
		})
		if err != nil {
			c.restore(ctx, sess, prev)
			return fromRemote("save assignment", err)
		}
	}

	if err := c.recordAttendance(ctx, matchID, participants); err != nil {
		return err
	}
	return nil
}

func (c *Controller) recordAttendance(ctx context.Context, matchID string, participants []string) error {
	if c.attendance == nil || len(participants) == 0 {
		return nil
	}
	if err := c.attendance.RecordParticipation(ctx, c.scope, matchID, participants); err != nil {
		c.logger.Warn().Err(err).Str("match_id", matchID).Msg("record participation failed")
		return fmt.Errorf("record participation: %w: %w", ErrRemoteUnavailable, err)
	}
	return nil
}

// AdjustScore moves a team score by delta, never below zero. The remote push
// is best effort.
func (c *Controller) AdjustScore(ctx context.Context, side Side, delta int) (View, error) {
	if !side.valid() {
		return View{}, &ValidationError{Field: "side", Message: "side must be A or B"}
	}
	sess, err := c.acquire()
	if err != nil {
		return View{}, err
	}
	defer c.release()

	c.mu.Lock()
	sess.Score.add(side, delta)
	c.persistLocked(ctx)
	c.mu.Unlock()

	c.pushScore(ctx, sess)
	return c.settledView(sess), nil
}

// pushScore sends the current score; failures are only logged.
func (c *Controller) pushScore(ctx context.Context, sess *Session) {
	c.mu.Lock()
	matchID, mode, score := sess.MatchID, sess.Mode, sess.Score
	c.mu.Unlock()
	if mode != ModeServerBacked {
		return
	}
	_ = c.call(ctx, "update_score", func(ctx context.Context) error {
		return c.remote.UpdateScore(ctx, matchID, score.A, score.B)
	})
}

// AddSet closes the current set for winner. Locally the set and its point
// land together; remotely the set is created and finished in two calls, and a
// failure in either reverts both.
func (c *Controller) AddSet(ctx context.Context, winner Side) (Notice, error) {
	if !winner.valid() {
		return NoticeNone, &ValidationError{Field: "winner", Message: "winner must be A or B"}
	}
	sess, err := c.acquire()
	if err != nil {
		return NoticeNone, err
	}
	defer c.release()

	c.mu.Lock()
	if !sess.timer.State().Started() {
		c.mu.Unlock()
		return NoticeNone, fmt.Errorf("add set: %w: clock not started", ErrInvalidState)
	}
	prev := sess.clone()
	sess.appendSet(winner)
	idx := len(sess.Sets) - 1
	durations := clock.SetDurations(sess.completions())
	duration := msToSeconds(durations[idx])
	matchID, mode := sess.MatchID, sess.Mode
	c.persistLocked(ctx)
	c.mu.Unlock()

	if mode != ModeServerBacked {
		return NoticeNone, nil
	}

	var setID string
	err = c.call(ctx, "create_set", func(ctx context.Context) error {
		var err error
		setID, err = c.remote.CreateSet(ctx, matchID, idx+1)
		return err
	})
	if errors.Is(err, remote.ErrSetExists) {
		return c.resyncAfterConflict(ctx, sess, idx)
	}
	if err != nil {
		c.restore(ctx, sess, prev)
		return NoticeNone, fromRemote("create set", err)
	}

	err = c.call(ctx, "finish_set", func(ctx context.Context) error {
		return c.remote.FinishSet(ctx, setID, winner.team(), duration)
	})
	if err != nil {
		_ = c.call(ctx, "delete_set", func(ctx context.Context) error {
			return c.remote.DeleteSet(ctx, setID)
		})
		c.restore(ctx, sess, prev)
		return NoticeNone, fromRemote("finish set", err)
	}

	c.mu.Lock()
	if idx < len(sess.Sets) {
		sess.Sets[idx].SetID = setID
	}
	c.persistLocked(ctx)
	c.mu.Unlock()

	c.pushScore(ctx, sess)
	return NoticeNone, nil
}

// resyncAfterConflict drops the optimistic set at idx and adopts the remote
// match. The clock keeps the boundary that was just stamped.
func (c *Controller) resyncAfterConflict(ctx context.Context, sess *Session, idx int) (Notice, error) {
	c.mu.Lock()
	if idx < len(sess.Sets) {
		dropped := sess.Sets[idx]
		sess.Sets = append(sess.Sets[:idx], sess.Sets[idx+1:]...)
		sess.Score.add(dropped.Winner, -1)
	}
	matchID := sess.MatchID
	c.persistLocked(ctx)
	c.mu.Unlock()

	var m remote.Match
	err := c.call(ctx, "fetch_match", func(ctx context.Context) error {
		var err error
		m, err = c.remote.FetchMatch(ctx, matchID)
		return err
	})
	if err != nil {
		return NoticeNone, fromRemote("resync after set conflict", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	sess.adoptRemote(m)
	c.persistLocked(ctx)
	c.logger.Info().Str("match_id", matchID).Msg("set already existed remotely, resynced")
	return NoticeResynced, nil
}

// RemoveLastSet pops the last set and takes its point back. A set the match
// service confirmed is deleted there first.
func (c *Controller) RemoveLastSet(ctx context.Context) (View, error) {
	sess, err := c.acquire()
	if err != nil {
		return View{}, err
	}
	defer c.release()

	c.mu.Lock()
	if len(sess.Sets) == 0 {
		c.mu.Unlock()
		return View{}, fmt.Errorf("remove set: %w: no sets recorded", ErrInvalidState)
	}
	last := sess.Sets[len(sess.Sets)-1]
	mode := sess.Mode
	c.mu.Unlock()

	if mode == ModeServerBacked && last.SetID != "" {
		err := c.call(ctx, "delete_set", func(ctx context.Context) error {
			return c.remote.DeleteSet(ctx, last.SetID)
		})
		if err != nil && !errors.Is(err, remote.ErrNotFound) {
			return View{}, fromRemote("delete set", err)
		}
	}

	c.mu.Lock()
	sess.popSet()
	c.persistLocked(ctx)
	c.mu.Unlock()

	c.pushScore(ctx, sess)
	return c.settledView(sess), nil
}

// Finalize closes the match. On success the session is cleared; on failure
// it is left exactly as it was.
func (c *Controller) Finalize(ctx context.Context, req FinalizeRequest) (FinalizeResult, error) {
	sess, err := c.acquire()
	if err != nil {
		return FinalizeResult{}, err
	}
	defer c.release()

	c.mu.Lock()
	participants := sess.participants()
	if len(participants) == 0 {
		c.mu.Unlock()
		return FinalizeResult{}, &ValidationError{Field: "rosters", Message: "at least one participant is required to finalize"}
	}
	matchID, mode, score := sess.MatchID, sess.Mode, sess.Score
	rosterA, rosterB := sess.RosterA.Clone(), sess.RosterB.Clone()
	in := remote.FinalizeInput{
		MatchID:  matchID,
		ScoreA:   score.A,
		ScoreB:   score.B,
		Sets:     sess.remoteSets(),
		AFK:      roster.Dedupe(req.AFK),
		Operator: req.Operator,
	}
	if start := sess.timer.State().MatchStartMs; start != nil {
		t := time.UnixMilli(*start).UTC()
		in.StartedAt = &t
	}
	c.mu.Unlock()

	result := FinalizeResult{MatchID: matchID, Status: StatusFinalized, Score: score}
	if mode == ModeServerBacked {
		err := c.call(ctx, "assign_teams", func(ctx context.Context) error {
			return c.remote.AssignTeams(ctx, matchID, rosterA, rosterB)
		})
		if err != nil {
			return FinalizeResult{}, fromRemote("finalize: save rosters", err)
		}
	}
	if err := c.recordAttendance(ctx, matchID, participants); err != nil {
		return FinalizeResult{}, fmt.Errorf("finalize: %w", err)
	}
	if mode == ModeServerBacked {
		err := c.call(ctx, "finalize", func(ctx context.Context) error {
			res, err := c.remote.Finalize(ctx, in)
			result.RatingDeltas = res.RatingDeltas
			return err
		})
		if err != nil {
			return FinalizeResult{}, fromRemote("finalize", err)
		}
	}

	c.clear(ctx, StatusFinalized)
	c.logger.Info().Str("match_id", matchID).Int("score_a", score.A).Int("score_b", score.B).Msg("match finalized")
	return result, nil
}

// Cancel deletes the match remotely, reverts attendance and clears the session.
func (c *Controller) Cancel(ctx context.Context) error {
	sess, err := c.acquire()
	if err != nil {
		return err
	}
	defer c.release()

	c.mu.Lock()
	matchID, mode := sess.MatchID, sess.Mode
	c.mu.Unlock()

	if mode == ModeServerBacked {
		err := c.call(ctx, "delete_match", func(ctx context.Context) error {
			return c.remote.DeleteMatch(ctx, matchID)
		})
		if err != nil && !errors.Is(err, remote.ErrNotFound) {
			return fromRemote("cancel", err)
		}
	}
	if c.attendance != nil {
		if err := c.attendance.ClearParticipation(ctx, matchID); err != nil {
			c.logger.Warn().Err(err).Str("match_id", matchID).Msg("clear participation failed")
			return fmt.Errorf("cancel: clear participation: %w: %w", ErrRemoteUnavailable, err)
		}
	}

	c.clear(ctx, StatusCancelled)
	c.logger.Info().Str("match_id", matchID).Msg("match cancelled")
	return nil
}

// Abandon drops local state without contacting anyone.
func (c *Controller) Abandon(ctx context.Context) error {
	sess, err := c.acquire()
	if err != nil {
		return err
	}
	defer c.release()

	c.clear(ctx, StatusAbandoned)
	c.logger.Info().Str("match_id", sess.MatchID).Msg("match abandoned")
	return nil
}

// LoadExisting rehydrates a session from a match that already exists. A
// match the service still reports as finalized is refused.
func (c *Controller) LoadExisting(ctx context.Context, req LoadRequest) (View, error) {
	switch {
	case req.MatchID == "":
		return View{}, &ValidationError{Field: "match_id", Message: "match_id is required"}
	case req.Modality == "":
		return View{}, &ValidationError{Field: "modality", Message: "modality is required"}
	case req.Category == "":
		return View{}, &ValidationError{Field: "category", Message: "category is required"}
	case req.Competition == "":
		return View{}, &ValidationError{Field: "competition", Message: "competition is required"}
	}
	for _, set := range req.Sets {
		if !set.Winner.valid() {
			return View{}, &ValidationError{Field: "sets", Message: "set winner must be A or B"}
		}
	}
	mode, err := c.resolveMode(req.Mode)
	if err != nil {
		return View{}, err
	}

	c.mu.Lock()
	if c.sess != nil {
		c.mu.Unlock()
		return View{}, ErrSessionExists
	}
	if c.inFlight {
		c.mu.Unlock()
		return View{}, ErrMutationInFlight
	}
	c.inFlight = true
	c.rev++
	c.mu.Unlock()
	defer c.release()

	sess := newSession(c.scope, CreateRequest{
		Modality:    req.Modality,
		Category:    req.Category,
		Competition: req.Competition,
		Mode:        mode,
	}, req.MatchID, c.defaults, c.clock)
	startedAt := req.StartedAtMs

	if mode == ModeServerBacked {
		var m remote.Match
		err := c.call(ctx, "fetch_match", func(ctx context.Context) error {
			var err error
			m, err = c.remote.FetchMatch(ctx, req.MatchID)
			return err
		})
		if err != nil {
			return View{}, fromRemote("load match", err)
		}
		if m.Finalized {
			return View{}, ErrFinalizedNotReverted
		}
		sess.adoptRemote(m)
		if startedAt == nil && m.StartedAt != nil {
			ms := m.StartedAt.UnixMilli()
			startedAt = &ms
		}
	} else {
		sess.RosterA = roster.Dedupe(req.RosterA)
		sess.RosterB = roster.Dedupe(req.RosterB)
		sess.Score = Score{A: max(req.Score.A, 0), B: max(req.Score.B, 0)}
		sess.Sets = append([]SetRecord{}, req.Sets...)
	}

	var lastCompletion int64
	if n := len(sess.Sets); n > 0 {
		lastCompletion = sess.Sets[n-1].CompletionElapsedMs
	}
	if startedAt == nil && len(sess.Sets) > 0 {
		ms := c.clock.Now().UnixMilli() - lastCompletion
		startedAt = &ms
	}
	sess.timer = clock.Restore(c.clock, clock.State{
		AccumulatedMs:           lastCompletion,
		MatchStartMs:            startedAt,
		CurrentSetStartOffsetMs: lastCompletion,
		Paused:                  true,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess = sess
	c.ended = ""
	c.sched.Reset()
	c.sched.Prime(sess.alertInput())
	c.persistLocked(ctx)
	c.logger.Info().Str("match_id", req.MatchID).Int("sets", len(sess.Sets)).Msg("match loaded")
	return sess.view(false), nil
}

// StartClock starts the match clock.
func (c *Controller) StartClock(ctx context.Context) (View, error) {
	return c.clockIntent(ctx, func(t *clock.Timer) error {
		if err := t.Start(); err != nil {
			return fmt.Errorf("start clock: %w: %w", ErrInvalidState, err)
		}
		return nil
	})
}

// Pause stops the clock. Pausing a paused clock does nothing.
func (c *Controller) Pause(ctx context.Context) (View, error) {
	return c.clockIntent(ctx, func(t *clock.Timer) error {
		t.Pause()
		return nil
	})
}

// Resume restarts the clock and opens the next set window if one is pending.
func (c *Controller) Resume(ctx context.Context) (View, error) {
	return c.clockIntent(ctx, func(t *clock.Timer) error {
		if err := t.Resume(); err != nil {
			return fmt.Errorf("resume clock: %w: %w", ErrInvalidState, err)
		}
		return nil
	})
}

// EditElapsed overrides the elapsed total. It cannot go below the last set completion.
func (c *Controller) EditElapsed(ctx context.Context, totalMs int64) (View, error) {
	if totalMs < 0 {
		return View{}, &ValidationError{Field: "elapsed_ms", Message: "elapsed must not be negative"}
	}
	c.mu.Lock()
	if c.sess != nil {
		if n := len(c.sess.Sets); n > 0 && totalMs < c.sess.Sets[n-1].CompletionElapsedMs {
			c.mu.Unlock()
			return View{}, &ValidationError{Field: "elapsed_ms", Message: "elapsed must not precede the last set completion"}
		}
	}
	c.mu.Unlock()
	return c.clockIntent(ctx, func(t *clock.Timer) error {
		t.EditElapsed(totalMs)
		return nil
	})
}

// clockIntent applies a purely local timer change. Clock intents do not
// take the in-flight window; they bump clockRev so a concurrent rollback
// leaves the timer alone.
func (c *Controller) clockIntent(ctx context.Context, fn func(*clock.Timer) error) (View, error) {
	c.mu.Lock()
	if c.sess == nil {
		c.mu.Unlock()
		return View{}, ErrNoSession
	}
	if err := fn(c.sess.timer); err != nil {
		c.mu.Unlock()
		return View{}, err
	}
	c.sess.clockRev++
	c.persistLocked(ctx)
	v := c.sess.view(c.inFlight)
	c.mu.Unlock()

	c.notify(v)
	return v, nil
}

// UpdateConfig merges patch into the session config. Server backed sessions
// adopt the effective config the service answers with.
func (c *Controller) UpdateConfig(ctx context.Context, patch settings.Patch) (settings.Config, error) {
	sess, err := c.acquire()
	if err != nil {
		return settings.Config{}, err
	}
	defer c.release()

	c.mu.Lock()
	merged := sess.Config.Merge(patch)
	if err := merged.Validate(); err != nil {
		c.mu.Unlock()
		return settings.Config{}, &ValidationError{Field: "config", Message: err.Error()}
	}
	prev := sess.clone()
	sess.Config = merged
	c.persistLocked(ctx)
	matchID, mode := sess.MatchID, sess.Mode
	c.mu.Unlock()

	if mode != ModeServerBacked {
		return merged, nil
	}

	var effective settings.Patch
	err = c.call(ctx, "update_config", func(ctx context.Context) error {
		var err error
		effective, err = c.remote.UpdateConfig(ctx, matchID, patch)
		return err
	})
	if err != nil {
		c.restore(ctx, sess, prev)
		return settings.Config{}, fromRemote("update config", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if adopted := sess.Config.Merge(effective); adopted.Validate() == nil {
		sess.Config = adopted
	}
	c.persistLocked(ctx)
	return sess.Config, nil
}

// Reconcile pulls the remote match and adopts it. It is skipped while a
// mutation is in flight, and its result is dropped when one started meanwhile.
func (c *Controller) Reconcile(ctx context.Context) error {
	c.mu.Lock()
	sess := c.sess
	if sess == nil || sess.Mode != ModeServerBacked {
		c.mu.Unlock()
		return nil
	}
	if c.inFlight {
		c.mu.Unlock()
		c.metrics.Reconcile(metrics.ReconcileSkipped)
		return ErrStaleWriteIgnored
	}
	rev, matchID := c.rev, sess.MatchID
	c.mu.Unlock()

	var m remote.Match
	err := c.call(ctx, "fetch_match", func(ctx context.Context) error {
		var err error
		m, err = c.remote.FetchMatch(ctx, matchID)
		return err
	})
	if err != nil {
		c.metrics.Reconcile(metrics.ReconcileFailed)
		return fromRemote("reconcile", err)
	}

	c.mu.Lock()
	if c.inFlight || c.rev != rev || c.sess != sess {
		c.mu.Unlock()
		c.metrics.Reconcile(metrics.ReconcileSkipped)
		return ErrStaleWriteIgnored
	}
	sess.adoptRemote(m)
	c.persistLocked(ctx)
	v := sess.view(false)
	c.mu.Unlock()

	c.metrics.Reconcile(metrics.ReconcileApplied)
	c.notify(v)
	return nil
}

// Tick runs the alert scheduler once and emits whatever fired.
func (c *Controller) Tick(ctx context.Context) []alerts.Event {
	c.mu.Lock()
	if c.sess == nil {
		c.mu.Unlock()
		return nil
	}
	in := c.sess.alertInput()
	events := c.sched.Tick(in)
	now := c.clock.Now().UTC()
	for i := range events {
		events[i].Scope = c.scope
		events[i].MatchID = c.sess.MatchID
		events[i].At = now
	}
	running := in.Started && !in.Paused
	v := c.sess.view(c.inFlight)
	c.mu.Unlock()

	for _, evt := range events {
		c.metrics.Alert(string(evt.Kind))
		if c.sink == nil {
			continue
		}
		if err := c.sink.Emit(ctx, evt); err != nil {
			c.logger.Warn().Err(err).Str("kind", string(evt.Kind)).Msg("alert emit failed")
		}
	}
	if running {
		c.notify(v)
	}
	return events
}

// Restore installs a persisted snapshot, typically on process start.
// Announcements that already happened are not replayed.
func (c *Controller) Restore(snap Snapshot) error {
	sess, err := restoreSession(snap, c.clock)
	if err != nil {
		return fmt.Errorf("restore %s: %w", c.scope, err)
	}
	if sess.Mode == ModeServerBacked && c.remote == nil {
		sess.Mode = ModeLocalOnly
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != nil {
		return ErrSessionExists
	}
	c.sess = sess
	c.ended = ""
	c.sched.Reset()
	c.sched.Prime(sess.alertInput())
	return nil
}

// acquire opens the in-flight window for a mutation on the current session.
func (c *Controller) acquire() (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil, ErrNoSession
	}
	if c.inFlight {
		return nil, ErrMutationInFlight
	}
	c.inFlight = true
	c.rev++
	return c.sess, nil
}

// release closes the in-flight window and publishes the resulting view.
func (c *Controller) release() {
	c.mu.Lock()
	c.inFlight = false
	v := c.viewLocked()
	c.mu.Unlock()
	c.notify(v)
}

// restore rolls sess back to prev after a failed remote call.
func (c *Controller) restore(ctx context.Context, sess *Session, prev *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess.rollback(prev)
	c.persistLocked(ctx)
}

// clear ends the session with a terminal status.
func (c *Controller) clear(ctx context.Context, status Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess = nil
	c.ended = status
	c.sched.Reset()
	if c.store == nil {
		return
	}
	if err := c.store.Delete(ctx, c.scope); err != nil {
		c.logger.Warn().Err(err).Msg("delete snapshot failed")
	}
}

// persistLocked saves the current session. Failures are logged; local
// state stays authoritative.
func (c *Controller) persistLocked(ctx context.Context) {
	if c.store == nil || c.sess == nil {
		return
	}
	if err := c.store.Save(ctx, c.scope, c.sess.snapshot()); err != nil {
		c.logger.Warn().Err(err).Msg("save snapshot failed")
	}
}

// call runs one remote request under the remote timeout.
func (c *Controller) call(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := fn(ctx)
	c.metrics.RemoteCall(op, err)
	if err != nil {
		c.logger.Warn().Err(err).Str("op", op).Msg("remote call failed")
	}
	return err
}

// settledView is the view a mutation hands back to its caller, before the
// in-flight window closes.
func (c *Controller) settledView(sess *Session) View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sess.view(false)
}

func (c *Controller) notify(v View) {
	if c.onChange != nil {
		c.onChange(v)
	}
}
