package alerts

import (
	"time"

	"github.com/gokatarajesh/matchday/internal/match/settings"
)

// Kind identifies a notification rendered by the tone player or speech synthesizer.
type Kind string

const (
	KindMatchStarted Kind = "match_started"
	KindLastMinute   Kind = "last_minute"
	KindCountdown    Kind = "countdown"
	KindWhistle      Kind = "whistle"
	KindBuzzer       Kind = "buzzer"
	KindSpeech       Kind = "speech"
)

// Reason explains which window produced a Speech event at zero.
type Reason string

const (
	ReasonSuddenDeath Reason = "sudden_death"
	ReasonMatchEnded  Reason = "match_ended"
	ReasonSetEnded    Reason = "set_ended"
)

// Event is a one-shot notification. Only the fields relevant to Kind are set.
type Event struct {
	Scope   string    `json:"scope"`
	MatchID string    `json:"match_id,omitempty"`
	Kind    Kind      `json:"kind"`
	Value   int       `json:"value,omitempty"`
	Tone    string    `json:"tone,omitempty"`
	Message string    `json:"message,omitempty"`
	Reason  Reason    `json:"reason,omitempty"`
	Volume  float64   `json:"volume,omitempty"`
	Rate    float64   `json:"rate,omitempty"`
	At      time.Time `json:"at"`
}

// Input is the clock and config view the scheduler evaluates each tick.
type Input struct {
	Started             bool
	Paused              bool
	ElapsedSeconds      int
	ElapsedInSetSeconds int
	Config              settings.Config
}

// IsSuddenDeath reports whether the authoritative window (the set window when
// sets are timed, otherwise the match window) has been exhausted with sudden
// death enabled.
func IsSuddenDeath(cfg settings.Config, elapsedSeconds, elapsedInSetSeconds int) bool {
	if !cfg.SuddenDeath {
		return false
	}
	if cfg.SetClockFinite() {
		return elapsedInSetSeconds >= cfg.SetDurationSeconds
	}
	if cfg.MatchDurationSeconds > 0 {
		return elapsedSeconds >= cfg.MatchDurationSeconds
	}
	return false
}
