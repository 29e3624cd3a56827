package settings

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Whistle tone variants understood by the tone player.
const (
	WhistleShort  = "short"
	WhistleLong   = "long"
	WhistleDouble = "double"
	WhistleNone   = "none"
)

// Config is the per-match configuration. Zero durations mean "unlimited".
type Config struct {
	MatchDurationSeconds int  `json:"match_duration_seconds" yaml:"match_duration_seconds"`
	SetDurationSeconds   int  `json:"set_duration_seconds" yaml:"set_duration_seconds"`
	SuddenDeath          bool `json:"sudden_death" yaml:"sudden_death"`
	AutoPauseOnSetEnd    bool `json:"auto_pause_on_set_end" yaml:"auto_pause_on_set_end"`

	Alerts   Alerts   `json:"alerts" yaml:"alerts"`
	Messages Messages `json:"messages" yaml:"messages"`
	Voice    Voice    `json:"voice" yaml:"voice"`
}

// Alerts toggles the individual cues fired by the alert scheduler.
type Alerts struct {
	Countdown         bool   `json:"countdown" yaml:"countdown"`
	Whistle           string `json:"whistle" yaml:"whistle"`
	StartAnnouncement bool   `json:"start_announcement" yaml:"start_announcement"`
	LastMinute        bool   `json:"last_minute" yaml:"last_minute"`
}

// Messages are the spoken templates.
type Messages struct {
	MatchStarted string `json:"match_started" yaml:"match_started"`
	LastMinute   string `json:"last_minute" yaml:"last_minute"`
	SetEnded     string `json:"set_ended" yaml:"set_ended"`
	MatchEnded   string `json:"match_ended" yaml:"match_ended"`
	SuddenDeath  string `json:"sudden_death" yaml:"sudden_death"`
}

// Voice holds speech synthesis and tone levels.
type Voice struct {
	Volume     float64 `json:"volume" yaml:"volume"`
	Rate       float64 `json:"rate" yaml:"rate"`
	ToneVolume float64 `json:"tone_volume" yaml:"tone_volume"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		MatchDurationSeconds: 1200,
		SetDurationSeconds:   0,
		SuddenDeath:          false,
		AutoPauseOnSetEnd:    true,
		Alerts: Alerts{
			Countdown:         true,
			Whistle:           WhistleLong,
			StartAnnouncement: true,
			LastMinute:        true,
		},
		Messages: Messages{
			MatchStarted: "Match started. Good luck!",
			LastMinute:   "Last minute of the match.",
			SetEnded:     "End of set.",
			MatchEnded:   "End of the match.",
			SuddenDeath:  "Sudden death! Next point wins the set.",
		},
		Voice: Voice{
			Volume:     1.0,
			Rate:       1.0,
			ToneVolume: 0.8,
		},
	}
}

// SetClockFinite reports whether sets have their own countdown.
func (c Config) SetClockFinite() bool {
	return c.SetDurationSeconds > 0
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	if c.MatchDurationSeconds < 0 {
		return fmt.Errorf("match_duration_seconds must not be negative")
	}
	if c.SetDurationSeconds < 0 {
		return fmt.Errorf("set_duration_seconds must not be negative")
	}
	switch c.Alerts.Whistle {
	case WhistleShort, WhistleLong, WhistleDouble, WhistleNone:
	default:
		return fmt.Errorf("unknown whistle type %q", c.Alerts.Whistle)
	}
	if c.Voice.Volume < 0 || c.Voice.Volume > 1 || c.Voice.ToneVolume < 0 || c.Voice.ToneVolume > 1 {
		return fmt.Errorf("volumes must be within [0,1]")
	}
	if c.Voice.Rate <= 0 {
		return fmt.Errorf("voice rate must be positive")
	}
	return nil
}

// Patch is a partial Config. Nil fields are left untouched by Merge.
type Patch struct {
	MatchDurationSeconds *int  `json:"match_duration_seconds,omitempty" yaml:"match_duration_seconds"`
	SetDurationSeconds   *int  `json:"set_duration_seconds,omitempty" yaml:"set_duration_seconds"`
	SuddenDeath          *bool `json:"sudden_death,omitempty" yaml:"sudden_death"`
	AutoPauseOnSetEnd    *bool `json:"auto_pause_on_set_end,omitempty" yaml:"auto_pause_on_set_end"`

	Countdown         *bool   `json:"countdown,omitempty" yaml:"countdown"`
	Whistle           *string `json:"whistle,omitempty" yaml:"whistle"`
	StartAnnouncement *bool   `json:"start_announcement,omitempty" yaml:"start_announcement"`
	LastMinute        *bool   `json:"last_minute,omitempty" yaml:"last_minute"`

	MatchStartedMessage *string `json:"match_started_message,omitempty" yaml:"match_started_message"`
	LastMinuteMessage   *string `json:"last_minute_message,omitempty" yaml:"last_minute_message"`
	SetEndedMessage     *string `json:"set_ended_message,omitempty" yaml:"set_ended_message"`
	MatchEndedMessage   *string `json:"match_ended_message,omitempty" yaml:"match_ended_message"`
	SuddenDeathMessage  *string `json:"sudden_death_message,omitempty" yaml:"sudden_death_message"`

	Volume     *float64 `json:"volume,omitempty" yaml:"volume"`
	Rate       *float64 `json:"rate,omitempty" yaml:"rate"`
	ToneVolume *float64 `json:"tone_volume,omitempty" yaml:"tone_volume"`
}

// Empty reports whether the patch carries no field at all.
func (p Patch) Empty() bool {
	return p == Patch{}
}

// Merge returns c with every non-nil field of p applied.
func (c Config) Merge(p Patch) Config {
	out := c
	setInt(&out.MatchDurationSeconds, p.MatchDurationSeconds)
	setInt(&out.SetDurationSeconds, p.SetDurationSeconds)
	setBool(&out.SuddenDeath, p.SuddenDeath)
	setBool(&out.AutoPauseOnSetEnd, p.AutoPauseOnSetEnd)

	setBool(&out.Alerts.Countdown, p.Countdown)
	setString(&out.Alerts.Whistle, p.Whistle)
	setBool(&out.Alerts.StartAnnouncement, p.StartAnnouncement)
	setBool(&out.Alerts.LastMinute, p.LastMinute)

	setString(&out.Messages.MatchStarted, p.MatchStartedMessage)
	setString(&out.Messages.LastMinute, p.LastMinuteMessage)
	setString(&out.Messages.SetEnded, p.SetEndedMessage)
	setString(&out.Messages.MatchEnded, p.MatchEndedMessage)
	setString(&out.Messages.SuddenDeath, p.SuddenDeathMessage)

	setFloat(&out.Voice.Volume, p.Volume)
	setFloat(&out.Voice.Rate, p.Rate)
	setFloat(&out.Voice.ToneVolume, p.ToneVolume)
	return out
}

// LoadDefaults reads a YAML patch file and applies it over the built-in defaults.
// An empty path yields the built-in defaults.
func LoadDefaults(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read match defaults: %w", err)
	}
	var p Patch
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Config{}, fmt.Errorf("parse match defaults: %w", err)
	}
	cfg = cfg.Merge(p)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate match defaults: %w", err)
	}
	return cfg, nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
