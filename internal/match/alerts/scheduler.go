package alerts

import (
	"strconv"

	"github.com/gokatarajesh/matchday/internal/match/settings"
)

const (
	countdownFrom  = 10
	lastMinuteMark = 60
	notAnnounced   = -1
	zeroAnnounced  = 0
)

// Scheduler turns clock readings into one-shot notification events.
// It holds only its own arming state and never touches the session.
type Scheduler struct {
	lastCountdown       int
	lastRemaining       int
	startAnnounced      bool
	lastMinuteAnnounced bool
}

// NewScheduler returns a fully armed scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{lastCountdown: notAnnounced, lastRemaining: notAnnounced}
}

// Reset re-arms every notification.
func (s *Scheduler) Reset() {
	s.lastCountdown = notAnnounced
	s.lastRemaining = notAnnounced
	s.startAnnounced = false
	s.lastMinuteAnnounced = false
}

// Prime marks announcements that already happened before a restart so a
// rehydrated session does not replay them.
func (s *Scheduler) Prime(in Input) {
	if !in.Started {
		return
	}
	if in.ElapsedSeconds > 0 {
		s.startAnnounced = true
	}
	if in.Config.MatchDurationSeconds > 0 && in.Config.MatchDurationSeconds-in.ElapsedSeconds < lastMinuteMark {
		s.lastMinuteAnnounced = true
	}
	if trigger, ok := triggerRemaining(in); ok {
		s.lastRemaining = trigger
		if trigger <= 0 {
			s.lastCountdown = zeroAnnounced
		}
	}
}

// Tick evaluates one clock reading. Events come back in emission order with
// Kind-specific fields filled in; the caller stamps scope, match and time.
func (s *Scheduler) Tick(in Input) []Event {
	if !in.Started || in.Paused {
		return nil
	}
	cfg := in.Config
	var out []Event

	if cfg.Alerts.StartAnnouncement && !s.startAnnounced {
		out = append(out, speech(cfg, KindMatchStarted, cfg.Messages.MatchStarted, ""))
		s.startAnnounced = true
	}

	if cfg.MatchDurationSeconds > 0 && cfg.Alerts.LastMinute && !s.lastMinuteAnnounced &&
		cfg.MatchDurationSeconds-in.ElapsedSeconds == lastMinuteMark {
		out = append(out, speech(cfg, KindLastMinute, cfg.Messages.LastMinute, ""))
		s.lastMinuteAnnounced = true
	}

	remaining, ok := triggerRemaining(in)
	if !ok {
		return out
	}

	if cfg.Alerts.Countdown && remaining >= 1 && remaining <= countdownFrom && remaining != s.lastCountdown {
		evt := speech(cfg, KindCountdown, strconv.Itoa(remaining), "")
		evt.Value = remaining
		out = append(out, evt)
		s.lastCountdown = remaining
	}

	// A late tick can skip from the countdown window straight past zero.
	skippedZero := remaining < 0 && s.lastRemaining >= 1 && s.lastRemaining <= countdownFrom
	if (remaining == 0 || skippedZero) && s.lastCountdown != zeroAnnounced {
		if cfg.Alerts.Whistle != settings.WhistleNone {
			out = append(out, Event{Kind: KindWhistle, Tone: cfg.Alerts.Whistle, Volume: cfg.Voice.ToneVolume})
		}
		out = append(out, Event{Kind: KindBuzzer, Volume: cfg.Voice.ToneVolume})
		out = append(out, endOfWindowSpeech(in))
		s.lastCountdown = zeroAnnounced
	}

	if remaining > countdownFrom {
		s.lastCountdown = notAnnounced
	}
	s.lastRemaining = remaining
	return out
}

// triggerRemaining is the seconds left in whichever window ends first. Sets
// are the trigger window when timed; otherwise the match window is.
func triggerRemaining(in Input) (int, bool) {
	cfg := in.Config
	matchTimed := cfg.MatchDurationSeconds > 0
	matchRemaining := cfg.MatchDurationSeconds - in.ElapsedSeconds
	if cfg.SetClockFinite() {
		setRemaining := cfg.SetDurationSeconds - in.ElapsedInSetSeconds
		if matchTimed && matchRemaining < setRemaining {
			return matchRemaining, true
		}
		return setRemaining, true
	}
	if matchTimed {
		return matchRemaining, true
	}
	return 0, false
}

func endOfWindowSpeech(in Input) Event {
	cfg := in.Config
	switch {
	case IsSuddenDeath(cfg, in.ElapsedSeconds, in.ElapsedInSetSeconds):
		return speech(cfg, KindSpeech, cfg.Messages.SuddenDeath, ReasonSuddenDeath)
	case cfg.MatchDurationSeconds > 0 && in.ElapsedSeconds >= cfg.MatchDurationSeconds:
		return speech(cfg, KindSpeech, cfg.Messages.MatchEnded, ReasonMatchEnded)
	default:
		return speech(cfg, KindSpeech, cfg.Messages.SetEnded, ReasonSetEnded)
	}
}

func speech(cfg settings.Config, kind Kind, msg string, reason Reason) Event {
	return Event{
		Kind:    kind,
		Message: msg,
		Reason:  reason,
		Volume:  cfg.Voice.Volume,
		Rate:    cfg.Voice.Rate,
	}
}
