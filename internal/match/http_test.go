package match

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/matchday/internal/remote"
	httperrors "github.com/gokatarajesh/matchday/pkg/http/errors"
)

func newTestMux(t *testing.T) (*http.ServeMux, *clockwork.FakeClock) {
	t.Helper()
	clk := clockwork.NewFakeClockAt(testStart)
	svc := newTestService(nil, nil, clk, NewMemoryStore())
	mux := http.NewServeMux()
	NewHTTPHandlers(svc, zerolog.Nop()).Register(mux)
	return mux, clk
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) sessionResponse {
	t.Helper()
	var out sessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httperrors.ErrorResponse {
	t.Helper()
	var out httperrors.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestHTTPSessionLifecycle(t *testing.T) {
	mux, clk := newTestMux(t)

	rec := doJSON(t, mux, http.MethodGet, "/v1/sessions/league-futsal", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusUncreated, decodeSession(t, rec).Session.Status)

	rec = doJSON(t, mux, http.MethodPost, "/v1/sessions/league-futsal/match", testCreate)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, StatusAssigning, decodeSession(t, rec).Session.Status)

	rec = doJSON(t, mux, http.MethodPost, "/v1/sessions/league-futsal/assign", Rosters{A: []string{"a1", "a2"}, B: []string{"b1"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/v1/sessions/league-futsal/clock/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusLive, decodeSession(t, rec).Session.Status)

	clk.Advance(90 * time.Second)

	rec = doJSON(t, mux, http.MethodPost, "/v1/sessions/league-futsal/score", scoreRequest{Side: "team_a", Delta: 1})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, Score{A: 1}, decodeSession(t, rec).Session.Score)

	rec = doJSON(t, mux, http.MethodPost, "/v1/sessions/league-futsal/sets", setRequest{Winner: "A"})
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeSession(t, rec).Session
	require.Len(t, view.Sets, 1)
	assert.Equal(t, SideA, view.Sets[0].Winner)

	rec = doJSON(t, mux, http.MethodDelete, "/v1/sessions/league-futsal/sets/last", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeSession(t, rec).Session.Sets)

	rec = doJSON(t, mux, http.MethodPost, "/v1/sessions/league-futsal/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusCancelled, decodeSession(t, rec).Session.Status)
}

func TestHTTPCreateTwiceConflicts(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/v1/sessions/league-futsal/match", testCreate)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/v1/sessions/league-futsal/match", testCreate)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, httperrors.ErrCodeSessionExists, decodeError(t, rec).Error)
}

func TestHTTPErrorMapping(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/v1/sessions/league-futsal/score", scoreRequest{Side: "A", Delta: 1})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, httperrors.ErrCodeNoSession, decodeError(t, rec).Error)

	rec = doJSON(t, mux, http.MethodPost, "/v1/sessions/league-futsal/match", CreateRequest{Modality: "futsal"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httperrors.ErrCodeValidationFailed, decodeError(t, rec).Error)

	require.Equal(t, http.StatusCreated, doJSON(t, mux, http.MethodPost, "/v1/sessions/league-futsal/match", testCreate).Code)

	rec = doJSON(t, mux, http.MethodPost, "/v1/sessions/league-futsal/score", scoreRequest{Side: "C", Delta: 1})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "side", decodeError(t, rec).Field)

	rec = doJSON(t, mux, http.MethodPost, "/v1/sessions/league-futsal/sets", setRequest{Winner: "B"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, httperrors.ErrCodeInvalidState, decodeError(t, rec).Error)

	rec = doJSON(t, mux, http.MethodPost, "/v1/sessions/league-futsal/clock/rewind", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/v1/sessions/league-futsal/clock/edit", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "elapsed_ms", decodeError(t, rec).Field)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/league-futsal/score", bytes.NewBufferString("{"))
	raw := httptest.NewRecorder()
	mux.ServeHTTP(raw, req)
	require.Equal(t, http.StatusBadRequest, raw.Code)
	assert.Equal(t, httperrors.ErrCodeInvalidRequest, decodeError(t, raw).Error)
}

func TestHTTPUpdateConfig(t *testing.T) {
	mux, _ := newTestMux(t)
	require.Equal(t, http.StatusCreated, doJSON(t, mux, http.MethodPost, "/v1/sessions/league-futsal/match", testCreate).Code)

	rec := doJSON(t, mux, http.MethodPatch, "/v1/sessions/league-futsal/config", map[string]interface{}{"set_duration_seconds": 300, "whistle": "double"})
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := decodeSession(t, rec).Session.Config
	assert.Equal(t, 300, cfg.SetDurationSeconds)
	assert.Equal(t, "double", cfg.Alerts.Whistle)

	rec = doJSON(t, mux, http.MethodPatch, "/v1/sessions/league-futsal/config", map[string]interface{}{"whistle": "trumpet"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "config", decodeError(t, rec).Field)
}

func TestHTTPRemoteFailureCarriesStatus(t *testing.T) {
	m := new(mockRemote)
	svc := newTestService(m, nil, clockwork.NewFakeClockAt(testStart), NewMemoryStore())
	mux := http.NewServeMux()
	NewHTTPHandlers(svc, zerolog.Nop()).Register(mux)

	m.On("CreateMatch", mock.Anything, mock.Anything).
		Return("", &remote.StatusError{Status: http.StatusUnprocessableEntity, Code: "bad_category"}).Once()

	rec := doJSON(t, mux, http.MethodPost, "/v1/sessions/league-futsal/match", testCreate)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, httperrors.ErrCodeServiceUnavailable, body.Error)
	assert.EqualValues(t, http.StatusUnprocessableEntity, body.Details["remote_status"])
	m.AssertExpectations(t)
}
