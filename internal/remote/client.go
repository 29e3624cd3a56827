package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/matchday/internal/match/settings"
)

// Config holds connection details for the match service.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client implements MatchService over the service's JSON API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     zerolog.Logger
}

var _ MatchService = (*Client)(nil)

// NewClient builds an HTTP client for the match service.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		logger:     logger.With().Str("component", "match_service_client").Logger(),
	}
}

// CreateMatch registers a new match and returns its identifier.
func (c *Client) CreateMatch(ctx context.Context, in CreateMatchInput) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/matches", in)
	if err != nil {
		return "", fmt.Errorf("create match: %w", err)
	}
	return decodeID(body)
}

// AutoAssign asks the service to split the pool into two rosters.
func (c *Client) AutoAssign(ctx context.Context, matchID string, pool []string, balanced bool) (Assignment, error) {
	req := struct {
		Pool     []string `json:"pool"`
		Balanced bool     `json:"balanced"`
	}{Pool: pool, Balanced: balanced}
	body, err := c.do(ctx, http.MethodPost, "/matches/"+url.PathEscape(matchID)+"/auto-assign", req)
	if err != nil {
		return Assignment{}, fmt.Errorf("auto assign: %w", err)
	}
	return decodeAssignment(body)
}

// AssignTeams stores both rosters.
func (c *Client) AssignTeams(ctx context.Context, matchID string, rosterA, rosterB []string) error {
	req := struct {
		TeamA []string `json:"team_a"`
		TeamB []string `json:"team_b"`
	}{TeamA: nonNil(rosterA), TeamB: nonNil(rosterB)}
	if _, err := c.do(ctx, http.MethodPut, "/matches/"+url.PathEscape(matchID)+"/teams", req); err != nil {
		return fmt.Errorf("assign teams: %w", err)
	}
	return nil
}

// FetchMatch returns the canonical view of a match.
func (c *Client) FetchMatch(ctx context.Context, matchID string) (Match, error) {
	body, err := c.do(ctx, http.MethodGet, "/matches/"+url.PathEscape(matchID), nil)
	if err != nil {
		return Match{}, fmt.Errorf("fetch match: %w", err)
	}
	m, err := decodeMatch(body)
	if err != nil {
		return Match{}, err
	}
	if m.ID == "" {
		m.ID = matchID
	}
	return m, nil
}

// UpdateConfig sends a partial configuration and returns the effective one.
func (c *Client) UpdateConfig(ctx context.Context, matchID string, patch settings.Patch) (settings.Patch, error) {
	body, err := c.do(ctx, http.MethodPatch, "/matches/"+url.PathEscape(matchID)+"/config", patch)
	if err != nil {
		return settings.Patch{}, fmt.Errorf("update config: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return patch, nil
	}
	var resp struct {
		Config *settings.Patch `json:"config"`
	}
	if err := json.Unmarshal(body, &resp); err == nil && resp.Config != nil {
		return *resp.Config, nil
	}
	var effective settings.Patch
	if err := json.Unmarshal(body, &effective); err != nil {
		return settings.Patch{}, fmt.Errorf("decode config: %w", err)
	}
	return effective, nil
}

// UpdateScore overwrites the running score.
func (c *Client) UpdateScore(ctx context.Context, matchID string, scoreA, scoreB int) error {
	req := struct {
		ScoreA int `json:"score_a"`
		ScoreB int `json:"score_b"`
	}{ScoreA: scoreA, ScoreB: scoreB}
	if _, err := c.do(ctx, http.MethodPut, "/matches/"+url.PathEscape(matchID)+"/score", req); err != nil {
		return fmt.Errorf("update score: %w", err)
	}
	return nil
}

// CreateSet opens set number n. A duplicate number yields ErrSetExists.
func (c *Client) CreateSet(ctx context.Context, matchID string, number int) (string, error) {
	req := struct {
		Number int `json:"number"`
	}{Number: number}
	body, err := c.do(ctx, http.MethodPost, "/matches/"+url.PathEscape(matchID)+"/sets", req)
	if err != nil {
		return "", fmt.Errorf("create set %d: %w", number, err)
	}
	return decodeID(body)
}

// FinishSet closes a set with its winner and duration.
func (c *Client) FinishSet(ctx context.Context, setID string, winner Team, durationSeconds int) error {
	req := struct {
		Winner          Team `json:"winner"`
		DurationSeconds int  `json:"duration_seconds"`
	}{Winner: winner, DurationSeconds: durationSeconds}
	if _, err := c.do(ctx, http.MethodPost, "/sets/"+url.PathEscape(setID)+"/finish", req); err != nil {
		return fmt.Errorf("finish set: %w", err)
	}
	return nil
}

// DeleteSet removes a set.
func (c *Client) DeleteSet(ctx context.Context, setID string) error {
	if _, err := c.do(ctx, http.MethodDelete, "/sets/"+url.PathEscape(setID), nil); err != nil {
		return fmt.Errorf("delete set: %w", err)
	}
	return nil
}

// Finalize closes the match and returns rating deltas.
func (c *Client) Finalize(ctx context.Context, in FinalizeInput) (FinalizeResult, error) {
	body, err := c.do(ctx, http.MethodPost, "/matches/"+url.PathEscape(in.MatchID)+"/finalize", in)
	if err != nil {
		return FinalizeResult{}, fmt.Errorf("finalize: %w", err)
	}
	var res FinalizeResult
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &res); err != nil {
			c.logger.Warn().Err(err).Str("match_id", in.MatchID).Msg("finalize response not decodable")
		}
	}
	return res, nil
}

// DeleteMatch removes a match and reverts its rating effects.
func (c *Client) DeleteMatch(ctx context.Context, matchID string) error {
	if _, err := c.do(ctx, http.MethodDelete, "/matches/"+url.PathEscape(matchID), nil); err != nil {
		return fmt.Errorf("delete match: %w", err)
	}
	return nil
}

// ReopenMatch reverts a finalized match so it can be corrected.
func (c *Client) ReopenMatch(ctx context.Context, matchID string) error {
	if _, err := c.do(ctx, http.MethodPost, "/matches/"+url.PathEscape(matchID)+"/reopen", nil); err != nil {
		return fmt.Errorf("reopen match: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("method", method).Str("path", path).Msg("match service request failed")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	return nil, classify(resp.StatusCode, body)
}

// classify maps a non-2xx answer onto the package sentinels.
func classify(status int, body []byte) error {
	var env struct {
		Error   string `json:"error"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &env)
	code := env.Error
	if code == "" {
		code = env.Code
	}
	statusErr := &StatusError{Status: status, Code: code, Message: env.Message}

	switch {
	case code == "set_exists" || (status == http.StatusConflict && strings.Contains(strings.ToLower(env.Message), "already exists")):
		return fmt.Errorf("%w: %w", ErrSetExists, statusErr)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, statusErr)
	case status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout:
		return fmt.Errorf("%w: %w", ErrUnavailable, statusErr)
	}
	return statusErr
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// IsUnavailable reports whether err is a transient service failure,
// including a deadline hit while waiting on the service.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
}
