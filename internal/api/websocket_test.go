package api

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Corphon/DragonSwordMap/internal/models"
)

func dialViewport(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/viewport"
	if token != "" {
		u += "?token=" + url.QueryEscape(token)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	return conn
}

// readUntil 跳过其他消息直到收到指定类型
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg map[string]interface{}
		require.NoError(t, conn.ReadJSON(&msg), "waiting for %s", msgType)
		if msg["type"] == msgType {
			return msg
		}
	}
}

func TestViewportAdminLongPress(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e := newTestEnv(t)
	token := e.adminToken(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	conn := dialViewport(t, srv, token)
	defer conn.Close()

	hello := readUntil(t, conn, "hello")
	assert.Equal(t, string(models.ModeAdmin), hello["mode"])

	require.NoError(t, conn.WriteJSON(ViewportMessage{Type: msgPointerDown, X: 100, Y: 100}))
	state := readUntil(t, conn, "state")
	assert.Equal(t, "long_press_pending", state["state"])

	event := readUntil(t, conn, "long_press")
	trigger, ok := event["trigger"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "map", trigger["kind"])
	assert.NotContains(t, event, "mass_action")

	require.NoError(t, conn.WriteJSON(ViewportMessage{Type: msgPointerUp}))
	state = readUntil(t, conn, "state")
	assert.Equal(t, "idle", state["state"])
}

func TestViewportUserFilterLongPress(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e := newTestEnv(t)
	for i := 0; i < 2; i++ {
		_, err := e.pins.Create(models.PinRegionQuest, float64(10+i), 10, "")
		require.NoError(t, err)
	}
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	conn := dialViewport(t, srv, "")
	defer conn.Close()

	hello := readUntil(t, conn, "hello")
	assert.Equal(t, string(models.ModeUser), hello["mode"])

	// 用户模式下地图按下直接拖动
	require.NoError(t, conn.WriteJSON(ViewportMessage{Type: msgPointerDown, X: 10, Y: 10}))
	state := readUntil(t, conn, "state")
	assert.Equal(t, "panning", state["state"])
	require.NoError(t, conn.WriteJSON(ViewportMessage{Type: msgPointerUp}))
	readUntil(t, conn, "state")

	require.NoError(t, conn.WriteJSON(ViewportMessage{Type: msgFilterDown, Category: models.PinRegionQuest}))
	event := readUntil(t, conn, "long_press")
	ma, ok := event["mass_action"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, string(models.MassActionComplete), ma["action"])
	assert.EqualValues(t, 2, ma["total"])

	require.NoError(t, conn.WriteJSON(ViewportMessage{Type: msgFilterDown, Category: models.PinPotato}))
	readUntil(t, conn, "error")

	require.NoError(t, conn.WriteJSON(ViewportMessage{Type: msgReadout, X: 0, Y: 0}))
	readout := readUntil(t, conn, "readout")
	assert.Contains(t, readout, "x")

	require.NoError(t, conn.WriteJSON(ViewportMessage{Type: "teleport"}))
	readUntil(t, conn, "error")
}

func TestViewportFocusAndStatus(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	e := newTestEnv(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	conn := dialViewport(t, srv, "")
	defer conn.Close()
	readUntil(t, conn, "hello")

	assert.Equal(t, 1, e.handler.Hub().Count())
	w := e.do(t, http.MethodGet, "/api/ws/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status map[string]interface{}
	decode(t, w, &status)
	assert.EqualValues(t, 1, status["total_connections"])

	require.NoError(t, conn.WriteJSON(ViewportMessage{Type: msgResize, Width: 1000, Height: 800}))
	readUntil(t, conn, "state")

	require.NoError(t, conn.WriteJSON(ViewportMessage{Type: msgFocus, LocationID: "orbis"}))
	state := readUntil(t, conn, "state")
	transform, ok := state["transform"].(map[string]interface{})
	require.True(t, ok)
	assert.InDelta(t, models.FocusZoom, transform["scale"], 1e-9)

	require.NoError(t, conn.WriteJSON(ViewportMessage{Type: msgFocus, LocationID: "atlantis"}))
	readUntil(t, conn, "error")

	require.NoError(t, conn.WriteJSON(ViewportMessage{Type: msgResize}))
	readUntil(t, conn, "error")
}
