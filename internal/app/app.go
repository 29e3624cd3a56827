package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/matchday/internal/attendance"
	"github.com/gokatarajesh/matchday/internal/config"
	"github.com/gokatarajesh/matchday/internal/logging"
	"github.com/gokatarajesh/matchday/internal/match"
	"github.com/gokatarajesh/matchday/internal/match/alerts"
	"github.com/gokatarajesh/matchday/internal/match/settings"
	"github.com/gokatarajesh/matchday/internal/metrics"
	"github.com/gokatarajesh/matchday/internal/remote"
	"github.com/gokatarajesh/matchday/internal/server"
	ws "github.com/gokatarajesh/matchday/pkg/http/ws"
)

type worker interface {
	Run(ctx context.Context) error
}

// Application aggregates shared infrastructure (DB, cache, HTTP server).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client
	nats  *nats.Conn
	http  *http.Server

	sessions  *match.Service
	workers   map[string]worker
	bgCancels []context.CancelFunc
}

// New bootstraps configs, logger, Postgres, Redis, the session engine and HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env, cfg.LogLevel)
	logger.Info().Msg("starting application bootstrap")

	connString := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.Database, cfg.Postgres.SSLMode, cfg.Postgres.MaxConns)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	var natsConn *nats.Conn
	if cfg.NATS.URL != "" {
		natsConn, err = nats.Connect(cfg.NATS.URL, nats.Name(cfg.Name))
		if err != nil {
			pool.Close()
			_ = redisClient.Close()
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		logger.Info().Str("url", cfg.NATS.URL).Msg("NATS alert sink enabled")
	}

	loc, err := time.LoadLocation(cfg.Session.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load session timezone: %w", err)
	}

	defaults, err := settings.LoadDefaults(cfg.Session.MatchDefaultsFile)
	if err != nil {
		return nil, err
	}

	recorder, err := metrics.NewPrometheus(nil)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	clk := clockwork.NewRealClock()
	tracker := attendance.NewTracker(pool, attendance.TrackerOptions{Location: loc, Clock: clk}, logger)

	var remoteSvc remote.MatchService
	if cfg.Remote.BaseURL != "" {
		remoteSvc = remote.NewClient(remote.Config{
			BaseURL: cfg.Remote.BaseURL,
			APIKey:  cfg.Remote.APIKey,
			Timeout: cfg.Remote.HTTPTimeout,
		}, logger)
	} else {
		logger.Warn().Msg("REMOTE_BASE_URL not configured; sessions run local-only")
	}

	wsHub := ws.NewHub(logger)
	store := match.NewRedisStore(redisClient, cfg.Session.SnapshotTTL, logger)

	sink := alerts.Fanout{alerts.NewLogSink(logger), alerts.NewRedisSink(redisClient)}
	if natsConn != nil {
		sink = append(sink, alerts.NewNATSSink(natsConn))
	}

	sessions := match.NewService(remoteSvc, tracker, match.ServiceOptions{
		Controller: match.ControllerOptions{
			Defaults:      defaults,
			DefaultMode:   match.Mode(cfg.Session.DefaultMode),
			RemoteTimeout: cfg.Session.RemoteTimeout,
			Clock:         clk,
			Store:         store,
			Sink:          sink,
			Metrics:       recorder,
			OnChange:      match.SessionUpdates(wsHub, logger),
		},
		Locker: store,
	}, logger)

	sessionHandlers := match.NewHTTPHandlers(sessions, logger)
	displayHandler := match.NewDisplayHandler(sessions, wsHub, logger)

	apiServer := server.NewHTTPServer(cfg, logger, pool, redisClient, sessionHandlers, displayHandler.HandleWebSocket)

	return &Application{
		cfg:      cfg,
		logger:   logger,
		pool:     pool,
		redis:    redisClient,
		nats:     natsConn,
		http:     apiServer,
		sessions: sessions,
		workers: map[string]worker{
			"alert broadcaster": alerts.NewBroadcaster(redisClient, wsHub, logger),
			"session sync":      match.NewSyncWorker(sessions, clk, cfg.Session.PollInterval, logger),
			"alert tick":        match.NewTickWorker(sessions, clk, cfg.Session.TickInterval, recorder, logger),
		},
		bgCancels: make([]context.CancelFunc, 0, 3),
	}, nil
}

// Run restores persisted sessions, starts the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	if err := a.sessions.Rehydrate(ctx, a.cfg.Session.ActiveScopes); err != nil {
		a.logger.Warn().Err(err).Msg("session rehydrate incomplete")
	}

	a.startBackgroundWorkers(ctx)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	for _, cancel := range a.bgCancels {
		cancel()
	}

	if a.nats != nil {
		if err := a.nats.Drain(); err != nil {
			a.logger.Error().Err(err).Msg("nats drain error")
		}
	}
	a.pool.Close()
	if err := a.redis.Close(); err != nil {
		a.logger.Error().Err(err).Msg("redis shutdown error")
	}

	a.logger.Info().Msg("shutdown complete")
	return nil
}

func (a *Application) startBackgroundWorkers(ctx context.Context) {
	for name, w := range a.workers {
		bgCtx, cancel := context.WithCancel(ctx)
		a.bgCancels = append(a.bgCancels, cancel)
		go func(name string, w worker) {
			if err := w.Run(bgCtx); err != nil && err != context.Canceled {
				a.logger.Warn().Err(err).Msgf("%s stopped", name)
			}
		}(name, w)
	}
}
