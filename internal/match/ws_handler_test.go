package match

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ws "github.com/gokatarajesh/matchday/pkg/http/ws"
)

func readMessage(t *testing.T, conn *websocket.Conn) ws.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg ws.Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestDisplaySocketSendsViewAndAnswersPing(t *testing.T) {
	svc := newTestService(nil, nil, clockwork.NewFakeClockAt(testStart), NewMemoryStore())
	handler := NewDisplayHandler(svc, ws.NewHub(zerolog.Nop()), zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/alerts?scope=League%20Futsal"
	header := http.Header{"Origin": []string{"http://display.local"}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	first := readMessage(t, conn)
	require.Equal(t, ws.TypeSessionUpdate, first.Type)
	var view View
	require.NoError(t, json.Unmarshal(first.Payload, &view))
	assert.Equal(t, "league-futsal", view.Scope)
	assert.Equal(t, StatusUncreated, view.Status)

	require.NoError(t, conn.WriteJSON(ws.Message{Type: ws.TypePing, RequestID: "r1"}))
	pong := readMessage(t, conn)
	assert.Equal(t, ws.TypePong, pong.Type)
	assert.Equal(t, "r1", pong.RequestID)
}

func TestDisplaySocketRejectsMissingScope(t *testing.T) {
	svc := newTestService(nil, nil, clockwork.NewFakeClockAt(testStart), NewMemoryStore())
	handler := NewDisplayHandler(svc, ws.NewHub(zerolog.Nop()), zerolog.Nop())

	rec := httptest.NewRecorder()
	handler.HandleWebSocket(rec, httptest.NewRequest(http.MethodGet, "/ws/alerts", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
