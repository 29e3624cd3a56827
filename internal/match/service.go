package match

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/matchday/internal/remote"
)

// ServiceOptions configures the per-scope controllers and the create guard.
type ServiceOptions struct {
	Controller ControllerOptions
	// Locker serializes creates across instances. Optional.
	Locker ScopeLocker
}

// Service holds one Controller per scope.
type Service struct {
	remote     remote.MatchService
	attendance Attendance
	opts       ServiceOptions
	logger     zerolog.Logger

	mu          sync.RWMutex
	controllers map[string]*Controller
}

// NewService creates the session service. remoteSvc nil forces local-only sessions.
func NewService(remoteSvc remote.MatchService, attendance Attendance, opts ServiceOptions, logger zerolog.Logger) *Service {
	return &Service{
		remote:      remoteSvc,
		attendance:  attendance,
		opts:        opts,
		logger:      logger.With().Str("component", "match_service").Logger(),
		controllers: make(map[string]*Controller),
	}
}

// Controller returns the controller for a raw scope. On first use the
// scope's persisted snapshot, if any, is restored into it.
func (s *Service) Controller(ctx context.Context, rawScope string) (*Controller, error) {
	scope, err := NormalizeScope(rawScope)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	ctrl, ok := s.controllers[scope]
	s.mu.RUnlock()
	if ok {
		return ctrl, nil
	}

	ctrl = NewController(scope, s.remote, s.attendance, s.opts.Controller, s.logger)
	if err := s.restoreInto(ctx, ctrl); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.controllers[scope]; ok {
		return existing, nil
	}
	s.controllers[scope] = ctrl
	return ctrl, nil
}

// restoreInto loads the persisted snapshot of ctrl's scope. A snapshot that
// cannot be restored is deleted so the scope can be created again.
func (s *Service) restoreInto(ctx context.Context, ctrl *Controller) error {
	store := s.opts.Controller.Store
	if store == nil {
		return nil
	}
	snap, found, err := store.Load(ctx, ctrl.scope)
	if err != nil {
		return fmt.Errorf("load snapshot %s: %w", ctrl.scope, err)
	}
	if !found {
		return nil
	}
	if err := ctrl.Restore(snap); err != nil {
		s.logger.Warn().Err(err).Str("scope", ctrl.scope).Msg("snapshot discarded")
		if err := store.Delete(ctx, ctrl.scope); err != nil {
			s.logger.Warn().Err(err).Str("scope", ctrl.scope).Msg("delete discarded snapshot failed")
		}
		return nil
	}
	s.logger.Info().
		Str("scope", ctrl.scope).
		Str("match_id", snap.MatchID).
		Int("sets", len(snap.Sets)).
		Msg("session rehydrated")
	return nil
}

// Controllers returns every known controller ordered by scope.
func (s *Service) Controllers() []*Controller {
	s.mu.RLock()
	out := make([]*Controller, 0, len(s.controllers))
	for _, ctrl := range s.controllers {
		out = append(out, ctrl)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].scope < out[j].scope })
	return out
}

// Active counts open sessions.
func (s *Service) Active() int {
	n := 0
	for _, ctrl := range s.Controllers() {
		if ctrl.Active() {
			n++
		}
	}
	return n
}

// Create opens a match for scope. A snapshot persisted by another process for
// the same scope blocks the create.
func (s *Service) Create(ctx context.Context, rawScope string, req CreateRequest) (View, error) {
	ctrl, err := s.Controller(ctx, rawScope)
	if err != nil {
		return View{}, err
	}

	if s.opts.Locker != nil {
		unlock, err := s.opts.Locker.LockScope(ctx, ctrl.scope)
		if errors.Is(err, ErrScopeLocked) {
			return View{}, fmt.Errorf("create %s: %w", ctrl.scope, ErrMutationInFlight)
		}
		if err != nil {
			return View{}, fmt.Errorf("lock scope: %w", err)
		}
		defer func() {
			if err := unlock(); err != nil {
				s.logger.Warn().Err(err).Str("scope", ctrl.scope).Msg("failed to release scope lock")
			}
		}()
	}

	if store := s.opts.Controller.Store; store != nil && !ctrl.Active() {
		_, found, err := store.Load(ctx, ctrl.scope)
		if err != nil {
			return View{}, fmt.Errorf("check snapshot: %w", err)
		}
		if found {
			return View{}, fmt.Errorf("create %s: %w", ctrl.scope, ErrSessionExists)
		}
	}

	return ctrl.CreateMatch(ctx, req)
}

// AutoAssign fills rosters for scope. Missing played counts are read from
// the attendance tracker; when it fails the pool keeps its given order.
func (s *Service) AutoAssign(ctx context.Context, rawScope string, pool []string, playedToday map[string]int) (Notice, error) {
	ctrl, err := s.Controller(ctx, rawScope)
	if err != nil {
		return NoticeNone, err
	}
	if playedToday == nil && s.attendance != nil && len(pool) > 0 {
		counts, err := s.attendance.PlayedCountsToday(ctx, ctrl.scope, pool)
		if err != nil {
			s.logger.Warn().Err(err).Str("scope", ctrl.scope).Msg("played counts unavailable, assigning in pool order")
		} else {
			playedToday = counts
		}
	}
	return ctrl.AutoAssign(ctx, pool, playedToday)
}

// Reopen reverts a finalized match on the match service and loads it.
func (s *Service) Reopen(ctx context.Context, rawScope string, req LoadRequest) (View, error) {
	ctrl, err := s.Controller(ctx, rawScope)
	if err != nil {
		return View{}, err
	}
	if req.MatchID == "" {
		return View{}, &ValidationError{Field: "match_id", Message: "match_id is required"}
	}
	if s.remote == nil || req.Mode == ModeLocalOnly {
		return View{}, fmt.Errorf("reopen: %w: needs the match service", ErrInvalidState)
	}
	if ctrl.Active() {
		return View{}, ErrSessionExists
	}

	err = ctrl.call(ctx, "reopen_match", func(ctx context.Context) error {
		return s.remote.ReopenMatch(ctx, req.MatchID)
	})
	if err != nil {
		return View{}, fromRemote("reopen", err)
	}
	return ctrl.LoadExisting(ctx, req)
}

// Rehydrate restores every persisted session plus the listed scopes, so
// their controllers and alert ticks are running before the first request.
func (s *Service) Rehydrate(ctx context.Context, scopes []string) error {
	store := s.opts.Controller.Store
	if store == nil {
		return nil
	}
	stored, err := store.Scopes(ctx)
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}
	for _, raw := range append(stored, scopes...) {
		if _, err := s.Controller(ctx, raw); err != nil {
			return err
		}
	}
	return nil
}
