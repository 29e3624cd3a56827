package roster

import "sort"

const (
	// MaxPerSide caps how many participants a single roster can hold.
	MaxPerSide = 9
	// MaxPool is the largest pool a fresh split considers.
	MaxPool = 2 * MaxPerSide
)

// Roster is an ordered set of participant ids: no duplicates, insertion order kept.
type Roster []string

// Contains reports whether id is on the roster.
func (r Roster) Contains(id string) bool {
	for _, v := range r {
		if v == id {
			return true
		}
	}
	return false
}

// Add appends id unless it is already present.
func (r Roster) Add(id string) Roster {
	if id == "" || r.Contains(id) {
		return r
	}
	return append(r, id)
}

// Dedupe drops repeated and empty ids while keeping first occurrences in order.
func Dedupe(ids []string) Roster {
	out := make(Roster, 0, len(ids))
	for _, id := range ids {
		out = out.Add(id)
	}
	return out
}

// Clone returns an independent copy.
func (r Roster) Clone() Roster {
	out := make(Roster, len(r))
	copy(out, r)
	return out
}

// Full reports whether the roster reached MaxPerSide.
func (r Roster) Full() bool {
	return len(r) >= MaxPerSide
}

// ByPlayedToday orders candidates so whoever played less today comes first.
// Ties keep the pool order.
func ByPlayedToday(pool []string, playedToday map[string]int) []string {
	out := make([]string, len(pool))
	copy(out, pool)
	sort.SliceStable(out, func(i, j int) bool {
		return playedToday[out[i]] < playedToday[out[j]]
	})
	return out
}

// FillResult is the outcome of a gap-filling pass.
type FillResult struct {
	A, B  Roster
	Added []string
	// Full is set when both rosters were already at capacity.
	Full bool
}

// FillGaps distributes pool members not yet rostered to whichever roster is
// currently smaller (A on ties), least-played first, until both rosters hold
// MaxPerSide participants.
func FillGaps(a, b Roster, pool []string, playedToday map[string]int) FillResult {
	res := FillResult{A: a.Clone(), B: b.Clone()}
	if res.A.Full() && res.B.Full() {
		res.Full = true
		return res
	}

	var candidates []string
	for _, id := range Dedupe(pool) {
		if !res.A.Contains(id) && !res.B.Contains(id) {
			candidates = append(candidates, id)
		}
	}

	for _, id := range ByPlayedToday(candidates, playedToday) {
		switch {
		case res.A.Full() && res.B.Full():
			return res
		case !res.A.Full() && (len(res.A) <= len(res.B) || res.B.Full()):
			res.A = res.A.Add(id)
		default:
			res.B = res.B.Add(id)
		}
		res.Added = append(res.Added, id)
	}
	return res
}

// FreshPool sorts the pool least-played first and keeps at most MaxPool members.
func FreshPool(pool []string, playedToday map[string]int) []string {
	sorted := ByPlayedToday(Dedupe(pool), playedToday)
	if len(sorted) > MaxPool {
		sorted = sorted[:MaxPool]
	}
	return sorted
}

// Split alternates an already sorted pool between the two rosters. It is the
// local stand-in for the match service's balanced assignment.
func Split(pool []string) (Roster, Roster) {
	a := make(Roster, 0, (len(pool)+1)/2)
	b := make(Roster, 0, len(pool)/2)
	for i, id := range pool {
		if i%2 == 0 {
			a = append(a, id)
		} else {
			b = append(b, id)
		}
	}
	return a, b
}
