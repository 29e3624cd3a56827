//go:build integration
// +build integration

package match

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func newIntegrationRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr: envOrDefault("INTEGRATION_REDIS_ADDR", "localhost:6379"),
		DB:   15,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func uniqueScope(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func TestRedisStoreRoundTrip(t *testing.T) {
	client := newIntegrationRedis(t)
	store := NewRedisStore(client, time.Minute, zerolog.Nop())
	ctx := context.Background()
	scope := uniqueScope("roundtrip")
	t.Cleanup(func() { _ = store.Delete(ctx, scope) })

	clk := clockwork.NewFakeClockAt(testStart)
	ctrl := NewController(scope, nil, nil, ControllerOptions{Clock: clk, Store: store}, zerolog.Nop())
	_, err := ctrl.CreateMatch(ctx, testCreate)
	require.NoError(t, err)
	_, err = ctrl.StartClock(ctx)
	require.NoError(t, err)
	clk.Advance(42 * time.Second)
	_, err = ctrl.AddSet(ctx, SideB)
	require.NoError(t, err)

	snap, found, err := store.Load(ctx, scope)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, scope, snap.Scope)
	require.Len(t, snap.Sets, 1)

	restored := NewController(scope, nil, nil, ControllerOptions{Clock: clk, Store: store}, zerolog.Nop())
	require.NoError(t, restored.Restore(snap))
	assert.Equal(t, ctrl.View(), restored.View())

	require.NoError(t, store.Delete(ctx, scope))
	_, found, err = store.Load(ctx, scope)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStoreLockIsExclusive(t *testing.T) {
	client := newIntegrationRedis(t)
	store := NewRedisStore(client, 0, zerolog.Nop())
	ctx := context.Background()
	scope := uniqueScope("lock")

	unlock, err := store.LockScope(ctx, scope)
	require.NoError(t, err)

	_, err = store.LockScope(ctx, scope)
	assert.ErrorIs(t, err, ErrScopeLocked)

	require.NoError(t, unlock())
	again, err := store.LockScope(ctx, scope)
	require.NoError(t, err)
	require.NoError(t, again())
}

func TestSessionSurvivesRestart(t *testing.T) {
	client := newIntegrationRedis(t)
	store := NewRedisStore(client, time.Minute, zerolog.Nop())
	ctx := context.Background()
	scope := uniqueScope("restart")
	t.Cleanup(func() { _ = store.Delete(ctx, scope) })

	clk := clockwork.NewFakeClockAt(testStart)
	opts := ServiceOptions{
		Controller: ControllerOptions{Clock: clk, Store: store},
		Locker:     store,
	}

	first := NewService(nil, nil, opts, zerolog.Nop())
	mux := http.NewServeMux()
	NewHTTPHandlers(first, zerolog.Nop()).Register(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	post := func(path, body string) *http.Response {
		resp, err := http.Post(srv.URL+"/v1/sessions/"+scope+path, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	require.Equal(t, http.StatusCreated, post("/match", `{"modality":"futsal","category":"open","competition":"league"}`).StatusCode)
	require.Equal(t, http.StatusOK, post("/clock/start", ``).StatusCode)
	clk.Advance(2 * time.Minute)
	require.Equal(t, http.StatusOK, post("/score", `{"side":"A","delta":2}`).StatusCode)
	require.Equal(t, http.StatusOK, post("/clock/pause", ``).StatusCode)

	resp := post("/match", `{"modality":"futsal","category":"open","competition":"league"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	second := NewService(nil, nil, opts, zerolog.Nop())
	require.NoError(t, second.Rehydrate(ctx, []string{scope}))

	ctrl, err := second.Controller(ctx, scope)
	require.NoError(t, err)
	view := ctrl.View()
	assert.Equal(t, StatusPaused, view.Status)
	assert.Equal(t, Score{A: 2}, view.Score)
	assert.Equal(t, int64(120000), view.Timing.AccumulatedMs)

	body, err := json.Marshal(view)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"mode":"local_only"`)
}
