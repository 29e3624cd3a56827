package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gokatarajesh/matchday/internal/match/settings"
)

// wireMatch accepts every shape the match service has been seen to return,
// depending on how far the match has been populated.
type wireMatch struct {
	ID        flexID          `json:"id"`
	MatchID   flexID          `json:"match_id"`
	Status    string          `json:"status"`
	Finalized bool            `json:"finalized"`
	TeamA     json.RawMessage `json:"team_a"`
	TeamB     json.RawMessage `json:"team_b"`
	Teams     *struct {
		A json.RawMessage `json:"a"`
		B json.RawMessage `json:"b"`
	} `json:"teams"`
	Score     json.RawMessage `json:"score"`
	ScoreA    *int            `json:"score_a"`
	ScoreB    *int            `json:"score_b"`
	Sets      []wireSet       `json:"sets"`
	Config    *settings.Patch `json:"config"`
	StartedAt *time.Time      `json:"started_at"`
}

type wireSet struct {
	ID              flexID `json:"id"`
	SetID           flexID `json:"set_id"`
	Number          int    `json:"number"`
	Winner          string `json:"winner"`
	Duration        *int   `json:"duration"`
	DurationSeconds *int   `json:"duration_seconds"`
}

// wrapped covers responses nested under a "match" or "data" key.
type wrapped struct {
	Match json.RawMessage `json:"match"`
	Data  json.RawMessage `json:"data"`
}

// flexID decodes ids sent either as strings or as numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be string or number: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

func firstID(ids ...flexID) string {
	for _, id := range ids {
		if id != "" {
			return string(id)
		}
	}
	return ""
}

// decodeMatch unwraps and normalizes a fetch-match payload.
func decodeMatch(body []byte) (Match, error) {
	var w wrapped
	if err := json.Unmarshal(body, &w); err == nil {
		switch {
		case len(w.Match) > 0 && !isNull(w.Match):
			body = w.Match
		case len(w.Data) > 0 && !isNull(w.Data):
			body = w.Data
		}
	}

	var wm wireMatch
	if err := json.Unmarshal(body, &wm); err != nil {
		return Match{}, fmt.Errorf("decode match payload: %w", err)
	}
	return normalizeMatch(wm)
}

func normalizeMatch(wm wireMatch) (Match, error) {
	m := Match{
		ID:        firstID(wm.ID, wm.MatchID),
		Finalized: wm.Finalized || strings.EqualFold(wm.Status, "finalized"),
		StartedAt: wm.StartedAt,
	}

	rawA, rawB := wm.TeamA, wm.TeamB
	if wm.Teams != nil {
		if len(rawA) == 0 {
			rawA = wm.Teams.A
		}
		if len(rawB) == 0 {
			rawB = wm.Teams.B
		}
	}
	var err error
	if m.RosterA, err = normalizeParticipants(rawA); err != nil {
		return Match{}, fmt.Errorf("team a: %w", err)
	}
	if m.RosterB, err = normalizeParticipants(rawB); err != nil {
		return Match{}, fmt.Errorf("team b: %w", err)
	}

	if m.ScoreA, m.ScoreB, err = normalizeScore(wm.Score, wm.ScoreA, wm.ScoreB); err != nil {
		return Match{}, err
	}

	m.Sets = make([]Set, 0, len(wm.Sets))
	for i, ws := range wm.Sets {
		s := Set{
			ID:     firstID(ws.ID, ws.SetID),
			Number: ws.Number,
			Winner: normalizeTeam(ws.Winner),
		}
		if s.Number == 0 {
			s.Number = i + 1
		}
		switch {
		case ws.DurationSeconds != nil:
			s.DurationSeconds = *ws.DurationSeconds
		case ws.Duration != nil:
			s.DurationSeconds = *ws.Duration
		}
		m.Sets = append(m.Sets, s)
	}

	if wm.Config != nil {
		m.Config = *wm.Config
	}
	return m, nil
}

// normalizeParticipants accepts ["p1"], [7], [{"id":"p1"}] or
// [{"participant_id":"p1"}] and returns ids in order without duplicates.
func normalizeParticipants(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || isNull(raw) {
		return []string{}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("participants must be a list: %w", err)
	}

	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		id, err := participantID(item)
		if err != nil {
			return nil, err
		}
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

func participantID(item json.RawMessage) (string, error) {
	if len(item) > 0 && item[0] == '{' {
		var obj struct {
			ID            flexID `json:"id"`
			ParticipantID flexID `json:"participant_id"`
			PlayerID      flexID `json:"player_id"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return "", fmt.Errorf("decode participant: %w", err)
		}
		return firstID(obj.ID, obj.ParticipantID, obj.PlayerID), nil
	}
	var id flexID
	if err := json.Unmarshal(item, &id); err != nil {
		return "", fmt.Errorf("decode participant: %w", err)
	}
	return string(id), nil
}

// normalizeScore accepts {"a":1,"b":2}, [1,2] or flat score_a/score_b fields.
func normalizeScore(raw json.RawMessage, flatA, flatB *int) (int, int, error) {
	var a, b int
	if flatA != nil {
		a = *flatA
	}
	if flatB != nil {
		b = *flatB
	}
	if len(raw) == 0 || isNull(raw) {
		return clampScore(a), clampScore(b), nil
	}

	if raw[0] == '[' {
		var pair []int
		if err := json.Unmarshal(raw, &pair); err != nil {
			return 0, 0, fmt.Errorf("decode score: %w", err)
		}
		if len(pair) != 2 {
			return 0, 0, fmt.Errorf("decode score: want 2 values, got %d", len(pair))
		}
		return clampScore(pair[0]), clampScore(pair[1]), nil
	}

	var obj map[string]int
	if err := json.Unmarshal(raw, &obj); err != nil {
		return 0, 0, fmt.Errorf("decode score: %w", err)
	}
	for k, v := range obj {
		switch normalizeTeam(k) {
		case TeamA:
			a = v
		case TeamB:
			b = v
		}
	}
	return clampScore(a), clampScore(b), nil
}

// normalizeTeam maps "A", "a", "team_a", "teamA" and "1" to TeamA (likewise for B).
func normalizeTeam(s string) Team {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.TrimPrefix(key, "team")
	key = strings.TrimPrefix(key, "_")
	switch key {
	case "a", "1":
		return TeamA
	case "b", "2":
		return TeamB
	}
	return ""
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// decodeID extracts an identifier from {"id":..}, {"match_id":..}, {"set_id":..}
// or a {"match":{"id":..}} wrapper.
func decodeID(body []byte) (string, error) {
	var resp struct {
		ID      flexID `json:"id"`
		MatchID flexID `json:"match_id"`
		SetID   flexID `json:"set_id"`
		Match   *struct {
			ID flexID `json:"id"`
		} `json:"match"`
		Set *struct {
			ID flexID `json:"id"`
		} `json:"set"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode id: %w", err)
	}
	id := firstID(resp.ID, resp.MatchID, resp.SetID)
	if id == "" && resp.Match != nil {
		id = string(resp.Match.ID)
	}
	if id == "" && resp.Set != nil {
		id = string(resp.Set.ID)
	}
	if id == "" {
		return "", fmt.Errorf("decode id: response carries no identifier")
	}
	return id, nil
}

// decodeAssignment normalizes an auto-assign response.
func decodeAssignment(body []byte) (Assignment, error) {
	var w wrapped
	if err := json.Unmarshal(body, &w); err == nil && len(w.Match) > 0 && !isNull(w.Match) {
		body = w.Match
	}
	var wm wireMatch
	if err := json.Unmarshal(body, &wm); err != nil {
		return Assignment{}, fmt.Errorf("decode assignment: %w", err)
	}
	m, err := normalizeMatch(wm)
	if err != nil {
		return Assignment{}, fmt.Errorf("decode assignment: %w", err)
	}
	return Assignment{RosterA: m.RosterA, RosterB: m.RosterB}, nil
}
