package server

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/matchday/internal/config"
	"github.com/gokatarajesh/matchday/internal/logging"
)

// RouteRegistrar mounts a group of routes on the mux.
type RouteRegistrar interface {
	Register(mux *http.ServeMux)
}

// NewHTTPServer wires base routes (health, metrics), the session API and the
// display WebSocket. sessionRoutes and alertsWSHandler can be nil.
func NewHTTPServer(cfg *config.App, logger zerolog.Logger, pool *pgxpool.Pool, redis *redis.Client, sessionRoutes RouteRegistrar, alertsWSHandler http.HandlerFunc) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/v1/ping", func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.IntoContext(r.Context(), logger)
		if err := pingDependencies(ctx, pool, redis); err != nil {
			logger.Error().Err(err).Msg("dependency ping failed")
			http.Error(w, "upstream error", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pong":true}`))
	})

	if sessionRoutes != nil {
		sessionRoutes.Register(mux)
	}

	if alertsWSHandler != nil {
		mux.HandleFunc("/ws/alerts", alertsWSHandler)
	} else {
		mux.HandleFunc("/ws/alerts", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "alert stream not configured", http.StatusNotImplemented)
		})
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	})

	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: c.Handler(mux),
	}
}

func pingDependencies(ctx context.Context, pool *pgxpool.Pool, redis *redis.Client) error {
	l := logging.FromContext(ctx)
	l.Debug().Msg("pinging dependencies")
	if pool != nil {
		if err := pool.Ping(ctx); err != nil {
			return err
		}
	}
	if redis != nil {
		if err := redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}
