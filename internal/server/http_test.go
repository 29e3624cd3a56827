package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/matchday/internal/config"
)

func testConfig() *config.App {
	return &config.App{
		HTTPAddr: "127.0.0.1:0",
		CORS: config.CORS{
			AllowedOrigins: []string{"http://localhost:3000"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         60,
		},
	}
}

func serve(t *testing.T, srv *http.Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestPingWithoutDependencies(t *testing.T) {
	srv := NewHTTPServer(testConfig(), zerolog.Nop(), nil, nil, nil, nil)

	rec := serve(t, srv, httptest.NewRequest(http.MethodGet, "/v1/ping", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pong":true}`, rec.Body.String())
}

func TestHealthz(t *testing.T) {
	srv := NewHTTPServer(testConfig(), zerolog.Nop(), nil, nil, nil, nil)

	rec := serve(t, srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestAlertStreamNotConfigured(t *testing.T) {
	srv := NewHTTPServer(testConfig(), zerolog.Nop(), nil, nil, nil, nil)

	rec := serve(t, srv, httptest.NewRequest(http.MethodGet, "/ws/alerts", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

type stubRoutes struct{}

func (stubRoutes) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/sessions/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
}

func TestSessionRoutesMountedWithCORS(t *testing.T) {
	srv := NewHTTPServer(testConfig(), zerolog.Nop(), nil, nil, stubRoutes{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/league", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := serve(t, srv, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/v1/sessions/league", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = serve(t, srv, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
