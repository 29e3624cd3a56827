package clock

// SetDurations reconstructs per-set durations from ascending completion offsets.
func SetDurations(completionsMs []int64) []int64 {
	out := make([]int64, len(completionsMs))
	var prev int64
	for i, c := range completionsMs {
		out[i] = c - prev
		prev = c
	}
	return out
}

// Display is what the scoreboard renders for the current instant.
type Display struct {
	ElapsedSeconds        int  `json:"elapsed_seconds"`
	MatchRemainingSeconds int  `json:"match_remaining_seconds"`
	SetElapsedSeconds     int  `json:"set_elapsed_seconds"`
	SetRemainingSeconds   *int `json:"set_remaining_seconds,omitempty"`
}

// Display computes the clock readout. With an unlimited set duration the set
// remaining value is omitted and set elapsed becomes the primary readout.
func (t *Timer) Display(matchDurationSeconds, setDurationSeconds int) Display {
	elapsed := int(t.ElapsedMs() / 1000)
	inSet := int(t.ElapsedInSetMs() / 1000)
	d := Display{
		ElapsedSeconds:        elapsed,
		MatchRemainingSeconds: matchDurationSeconds - elapsed,
		SetElapsedSeconds:     inSet,
	}
	if setDurationSeconds > 0 {
		rem := setDurationSeconds - inSet
		d.SetRemainingSeconds = &rem
	}
	return d
}
