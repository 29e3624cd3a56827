package match

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/matchday/internal/match/settings"
	"github.com/gokatarajesh/matchday/internal/remote"
	httperrors "github.com/gokatarajesh/matchday/pkg/http/errors"
)

// HTTPHandlers provides REST endpoints for session intents.
type HTTPHandlers struct {
	service *Service
	logger  zerolog.Logger
}

// NewHTTPHandlers creates HTTP handlers for session endpoints.
func NewHTTPHandlers(service *Service, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		service: service,
		logger:  logger.With().Str("component", "match_http").Logger(),
	}
}

// Register mounts every session route on mux.
func (h *HTTPHandlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/sessions/{scope}", h.GetSession)
	mux.HandleFunc("POST /v1/sessions/{scope}/match", h.CreateMatch)
	mux.HandleFunc("POST /v1/sessions/{scope}/assign/auto", h.AutoAssign)
	mux.HandleFunc("POST /v1/sessions/{scope}/assign", h.SaveAssignment)
	mux.HandleFunc("POST /v1/sessions/{scope}/score", h.AdjustScore)
	mux.HandleFunc("POST /v1/sessions/{scope}/sets", h.AddSet)
	mux.HandleFunc("DELETE /v1/sessions/{scope}/sets/last", h.RemoveLastSet)
	mux.HandleFunc("POST /v1/sessions/{scope}/clock/{action}", h.Clock)
	mux.HandleFunc("PATCH /v1/sessions/{scope}/config", h.UpdateConfig)
	mux.HandleFunc("POST /v1/sessions/{scope}/finalize", h.Finalize)
	mux.HandleFunc("POST /v1/sessions/{scope}/cancel", h.Cancel)
	mux.HandleFunc("POST /v1/sessions/{scope}/abandon", h.Abandon)
	mux.HandleFunc("POST /v1/sessions/{scope}/load", h.Load)
	mux.HandleFunc("POST /v1/sessions/{scope}/reopen", h.Reopen)
}

type autoAssignRequest struct {
	Pool        []string       `json:"pool"`
	PlayedToday map[string]int `json:"played_today,omitempty"`
}

type scoreRequest struct {
	Side  string `json:"side"`
	Delta int    `json:"delta"`
}

type setRequest struct {
	Winner string `json:"winner"`
}

type editElapsedRequest struct {
	ElapsedMs *int64 `json:"elapsed_ms"`
}

// sessionResponse is a view plus an optional informational notice.
type sessionResponse struct {
	Session View   `json:"session"`
	Notice  Notice `json:"notice,omitempty"`
}

// GetSession handles GET /v1/sessions/{scope}
func (h *HTTPHandlers) GetSession(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, sessionResponse{Session: ctrl.View()})
}

// CreateMatch handles POST /v1/sessions/{scope}/match
func (h *HTTPHandlers) CreateMatch(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.service.Create(r.Context(), r.PathValue("scope"), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, sessionResponse{Session: view})
}

// AutoAssign handles POST /v1/sessions/{scope}/assign/auto
func (h *HTTPHandlers) AutoAssign(w http.ResponseWriter, r *http.Request) {
	var req autoAssignRequest
	if !h.decode(w, r, &req) {
		return
	}
	notice, err := h.service.AutoAssign(r.Context(), r.PathValue("scope"), req.Pool, req.PlayedToday)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondSession(w, r, notice)
}

// SaveAssignment handles POST /v1/sessions/{scope}/assign. An empty body
// saves the current rosters.
func (h *HTTPHandlers) SaveAssignment(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	var rosters *Rosters
	var req Rosters
	switch err := json.NewDecoder(r.Body).Decode(&req); {
	case errors.Is(err, io.EOF):
	case err != nil:
		h.respondError(w, http.StatusBadRequest, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	default:
		rosters = &req
	}
	if err := ctrl.SaveAssignment(r.Context(), rosters); err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sessionResponse{Session: ctrl.View()})
}

// AdjustScore handles POST /v1/sessions/{scope}/score
func (h *HTTPHandlers) AdjustScore(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req scoreRequest
	if !h.decode(w, r, &req) {
		return
	}
	side, err := ParseSide(req.Side)
	if err != nil {
		h.fail(w, err)
		return
	}
	view, err := ctrl.AdjustScore(r.Context(), side, req.Delta)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sessionResponse{Session: view})
}

// AddSet handles POST /v1/sessions/{scope}/sets
func (h *HTTPHandlers) AddSet(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req setRequest
	if !h.decode(w, r, &req) {
		return
	}
	winner, err := ParseSide(req.Winner)
	if err != nil {
		h.fail(w, err)
		return
	}
	notice, err := ctrl.AddSet(r.Context(), winner)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sessionResponse{Session: ctrl.View(), Notice: notice})
}

// RemoveLastSet handles DELETE /v1/sessions/{scope}/sets/last
func (h *HTTPHandlers) RemoveLastSet(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	view, err := ctrl.RemoveLastSet(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sessionResponse{Session: view})
}

// Clock handles POST /v1/sessions/{scope}/clock/{start|pause|resume|edit}
func (h *HTTPHandlers) Clock(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}

	var (
		view View
		err  error
	)
	switch r.PathValue("action") {
	case "start":
		view, err = ctrl.StartClock(r.Context())
	case "pause":
		view, err = ctrl.Pause(r.Context())
	case "resume":
		view, err = ctrl.Resume(r.Context())
	case "edit":
		var req editElapsedRequest
		if !h.decode(w, r, &req) {
			return
		}
		if req.ElapsedMs == nil {
			h.respondValidation(w, &ValidationError{Field: "elapsed_ms", Message: "elapsed_ms is required"})
			return
		}
		view, err = ctrl.EditElapsed(r.Context(), *req.ElapsedMs)
	default:
		h.respondError(w, http.StatusNotFound, httperrors.ErrCodeNotFound, "Unknown clock action")
		return
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sessionResponse{Session: view})
}

// UpdateConfig handles PATCH /v1/sessions/{scope}/config
func (h *HTTPHandlers) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	var patch settings.Patch
	if !h.decode(w, r, &patch) {
		return
	}
	if _, err := ctrl.UpdateConfig(r.Context(), patch); err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sessionResponse{Session: ctrl.View()})
}

// Finalize handles POST /v1/sessions/{scope}/finalize
func (h *HTTPHandlers) Finalize(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req FinalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.respondError(w, http.StatusBadRequest, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}
	result, err := ctrl.Finalize(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// Cancel handles POST /v1/sessions/{scope}/cancel
func (h *HTTPHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	if err := ctrl.Cancel(r.Context()); err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sessionResponse{Session: ctrl.View()})
}

// Abandon handles POST /v1/sessions/{scope}/abandon
func (h *HTTPHandlers) Abandon(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	if err := ctrl.Abandon(r.Context()); err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sessionResponse{Session: ctrl.View()})
}

// Load handles POST /v1/sessions/{scope}/load
func (h *HTTPHandlers) Load(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req LoadRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := ctrl.LoadExisting(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sessionResponse{Session: view})
}

// Reopen handles POST /v1/sessions/{scope}/reopen
func (h *HTTPHandlers) Reopen(w http.ResponseWriter, r *http.Request) {
	var req LoadRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.service.Reopen(r.Context(), r.PathValue("scope"), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, sessionResponse{Session: view})
}

func (h *HTTPHandlers) controller(w http.ResponseWriter, r *http.Request) (*Controller, bool) {
	ctrl, err := h.service.Controller(r.Context(), r.PathValue("scope"))
	if err != nil {
		h.fail(w, err)
		return nil, false
	}
	return ctrl, true
}

func (h *HTTPHandlers) respondSession(w http.ResponseWriter, r *http.Request, notice Notice) {
	ctrl, ok := h.controller(w, r)
	if !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, sessionResponse{Session: ctrl.View(), Notice: notice})
}

func (h *HTTPHandlers) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return false
	}
	return true
}

// fail maps session errors onto error codes; the code decides the status.
func (h *HTTPHandlers) fail(w http.ResponseWriter, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		h.respondValidation(w, verr)
		return
	}

	var code string
	switch {
	case errors.Is(err, ErrNoSession):
		code = httperrors.ErrCodeNoSession
	case errors.Is(err, ErrSessionExists):
		code = httperrors.ErrCodeSessionExists
	case errors.Is(err, ErrMutationInFlight):
		code = httperrors.ErrCodeMutationInFlight
	case errors.Is(err, ErrFinalizedNotReverted):
		code = httperrors.ErrCodeFinalizeNotAllowed
	case errors.Is(err, ErrConflict):
		code = httperrors.ErrCodeConflict
	case errors.Is(err, ErrInvalidState):
		code = httperrors.ErrCodeInvalidState
	case errors.Is(err, ErrRemoteUnavailable):
		var se *remote.StatusError
		if errors.As(err, &se) {
			httperrors.RespondErrorWithDetails(w, http.StatusServiceUnavailable, httperrors.ErrCodeServiceUnavailable, err.Error(),
				map[string]interface{}{"remote_status": se.Status})
			return
		}
		code = httperrors.ErrCodeServiceUnavailable
	default:
		h.logger.Error().Err(err).Msg("session request failed")
		httperrors.Respond(w, httperrors.ErrCodeInternalError, "Internal error")
		return
	}
	httperrors.Respond(w, code, err.Error())
}

func (h *HTTPHandlers) respondValidation(w http.ResponseWriter, verr *ValidationError) {
	httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, verr.Message, verr.Field)
}

func (h *HTTPHandlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *HTTPHandlers) respondError(w http.ResponseWriter, status int, code, message string) {
	httperrors.RespondError(w, status, code, message)
}
