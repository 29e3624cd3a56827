package clock

import (
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
)

var (
	ErrAlreadyStarted = errors.New("match clock already started")
	ErrNotStarted     = errors.New("match clock not started")
)

// State is the persisted form of the match clock. All instants are unix milliseconds.
type State struct {
	AccumulatedMs           int64  `json:"accumulated_ms"`
	RunningSinceMs          *int64 `json:"running_since_ms"`
	MatchStartMs            *int64 `json:"match_start_ms"`
	CurrentSetStartOffsetMs int64  `json:"current_set_start_offset_ms"`
	AwaitingSetStart        bool   `json:"awaiting_set_start"`
	Paused                  bool   `json:"paused"`
}

// NewState returns the state of a clock that has not been started yet.
func NewState() State {
	return State{Paused: true}
}

// Started reports whether Start has been called.
func (s State) Started() bool {
	return s.MatchStartMs != nil
}

// Timer accounts elapsed running time across pause/resume cycles.
// Elapsed time is always derived from the accumulated total plus the open
// running interval, so there is no per-tick drift.
//
// Timer is not safe for concurrent use; the owning session serialises access.
type Timer struct {
	clock clockwork.Clock
	st    State
}

// NewTimer creates a timer in the not-started state. A nil clock means the real clock.
func NewTimer(c clockwork.Clock) *Timer {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	return &Timer{clock: c, st: NewState()}
}

// Restore builds a timer from a persisted state without touching any field.
func Restore(c clockwork.Clock, st State) *Timer {
	t := NewTimer(c)
	t.st = copyState(st)
	return t
}

// Clock returns the time source the timer reads.
func (t *Timer) Clock() clockwork.Clock {
	return t.clock
}

// State returns a copy of the current state.
func (t *Timer) State() State {
	return copyState(t.st)
}

func (t *Timer) nowMs() int64 {
	return t.clock.Now().UnixMilli()
}

// Start starts the match clock. It may be called once.
func (t *Timer) Start() error {
	if t.st.Started() {
		return ErrAlreadyStarted
	}
	now := t.nowMs()
	t.st.MatchStartMs = &now
	running := now
	t.st.RunningSinceMs = &running
	t.st.Paused = false
	return nil
}

// Pause folds the open running interval into the accumulated total.
// It returns false when the clock was already paused.
func (t *Timer) Pause() bool {
	if t.st.Paused {
		return false
	}
	now := t.nowMs()
	if t.st.RunningSinceMs != nil {
		if delta := now - *t.st.RunningSinceMs; delta > 0 {
			t.st.AccumulatedMs += delta
		}
	}
	t.st.RunningSinceMs = nil
	t.st.Paused = true
	return true
}

// Resume restarts a paused clock. If a set just closed, the next set window
// opens at the current elapsed value.
func (t *Timer) Resume() error {
	if !t.st.Started() {
		return ErrNotStarted
	}
	if !t.st.Paused {
		return nil
	}
	now := t.nowMs()
	t.st.RunningSinceMs = &now
	t.st.Paused = false
	if t.st.AwaitingSetStart {
		t.st.CurrentSetStartOffsetMs = t.ElapsedMs()
		t.st.AwaitingSetStart = false
	}
	return nil
}

// ElapsedMs is the effective running time in milliseconds.
func (t *Timer) ElapsedMs() int64 {
	return effective(t.st, t.nowMs())
}

// Elapsed is ElapsedMs as a duration.
func (t *Timer) Elapsed() time.Duration {
	return time.Duration(t.ElapsedMs()) * time.Millisecond
}

// ElapsedInSetMs is the running time since the current set window opened,
// or zero while waiting for the next set to start.
func (t *Timer) ElapsedInSetMs() int64 {
	if t.st.AwaitingSetStart {
		return 0
	}
	d := t.ElapsedMs() - t.st.CurrentSetStartOffsetMs
	if d < 0 {
		return 0
	}
	return d
}

// MarkSetBoundary stamps a set completion and returns its elapsed offset.
// With autoPause the clock stops and the next window opens on Resume;
// otherwise the next window opens immediately since no Resume will follow.
func (t *Timer) MarkSetBoundary(autoPause bool) int64 {
	completion := t.ElapsedMs()
	if autoPause {
		t.st.AwaitingSetStart = true
		t.Pause()
		return completion
	}
	t.st.CurrentSetStartOffsetMs = completion
	t.st.AwaitingSetStart = false
	return completion
}

// ReopenSetWindow moves the set window back to the given offset. It is used
// when the last set is removed and play continues in the previous window.
func (t *Timer) ReopenSetWindow(offsetMs int64) {
	t.st.CurrentSetStartOffsetMs = offsetMs
	t.st.AwaitingSetStart = false
}

// EditElapsed overrides the total elapsed time.
func (t *Timer) EditElapsed(totalMs int64) {
	if totalMs < 0 {
		totalMs = 0
	}
	t.st.AccumulatedMs = totalMs
	if !t.st.Paused {
		now := t.nowMs()
		t.st.RunningSinceMs = &now
	}
	if t.st.CurrentSetStartOffsetMs > totalMs {
		t.st.CurrentSetStartOffsetMs = totalMs
	}
}

func effective(st State, nowMs int64) int64 {
	if st.Paused || st.RunningSinceMs == nil {
		return st.AccumulatedMs
	}
	delta := nowMs - *st.RunningSinceMs
	if delta < 0 {
		delta = 0
	}
	return st.AccumulatedMs + delta
}

func copyState(st State) State {
	out := st
	if st.RunningSinceMs != nil {
		v := *st.RunningSinceMs
		out.RunningSinceMs = &v
	}
	if st.MatchStartMs != nil {
		v := *st.MatchStartMs
		out.MatchStartMs = &v
	}
	return out
}
