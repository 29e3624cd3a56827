package match

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/matchday/internal/metrics"
)

// SyncWorker periodically reconciles server backed sessions with the match service.
type SyncWorker struct {
	svc      *Service
	clock    clockwork.Clock
	interval time.Duration
	logger   zerolog.Logger
}

func NewSyncWorker(svc *Service, clk clockwork.Clock, interval time.Duration, logger zerolog.Logger) *SyncWorker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &SyncWorker{
		svc:      svc,
		clock:    clk,
		interval: interval,
		logger:   logger.With().Str("component", "session_sync_worker").Logger(),
	}
}

// Run blocks until context cancellation.
func (w *SyncWorker) Run(ctx context.Context) error {
	if w.svc == nil {
		return nil
	}

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	// run immediately
	w.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			w.tick(ctx)
		}
	}
}

func (w *SyncWorker) tick(ctx context.Context) {
	for _, ctrl := range w.svc.Controllers() {
		err := ctrl.Reconcile(ctx)
		if err == nil || errors.Is(err, ErrStaleWriteIgnored) {
			continue
		}
		w.logger.Warn().Err(err).Str("scope", ctrl.Scope()).Msg("reconcile failed")
	}
}

// TickWorker drives the alert scheduler of every session once per interval.
type TickWorker struct {
	svc      *Service
	clock    clockwork.Clock
	interval time.Duration
	metrics  metrics.Recorder
	logger   zerolog.Logger
}

func NewTickWorker(svc *Service, clk clockwork.Clock, interval time.Duration, rec metrics.Recorder, logger zerolog.Logger) *TickWorker {
	if interval <= 0 {
		interval = time.Second
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if rec == nil {
		rec = metrics.NoOp{}
	}
	return &TickWorker{
		svc:      svc,
		clock:    clk,
		interval: interval,
		metrics:  rec,
		logger:   logger.With().Str("component", "alert_tick_worker").Logger(),
	}
}

// Run blocks until context cancellation.
func (w *TickWorker) Run(ctx context.Context) error {
	if w.svc == nil {
		return nil
	}

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	w.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			w.tick(ctx)
		}
	}
}

func (w *TickWorker) tick(ctx context.Context) {
	active := 0
	for _, ctrl := range w.svc.Controllers() {
		if !ctrl.Active() {
			continue
		}
		active++
		for _, evt := range ctrl.Tick(ctx) {
			w.logger.Debug().Str("scope", evt.Scope).Str("kind", string(evt.Kind)).Int("value", evt.Value).Msg("alert fired")
		}
	}
	w.metrics.SessionsActive(active)
}
