package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/playground/internal/domain/workspace"
	"github.com/GriffinCanCode/playground/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/playground/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/playground/internal/sandbox/host"
	"github.com/GriffinCanCode/playground/internal/storage/memory"
)

const expressApp = `
const express = require('express');
const app = express();
app.get('/', (req, res) => res.json({ message: 'hello' }));
app.listen(3000);
`

type received struct {
	Type  string         `json:"type"`
	ID    string         `json:"id"`
	Data  map[string]any `json:"data"`
	Error string         `json:"error"`
	Raw   any            `json:"-"`
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func setup(t *testing.T, origins ...string) (*httptest.Server, *workspace.Manager, *monitoring.Metrics) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	metrics := monitoring.NewMetricsWith(prometheus.NewRegistry())
	manager := workspace.NewManager(workspace.Deps{
		Documents: host.NewDocumentStore(),
		Store:     memory.New(),
		Metrics:   metrics,
		Logger:    zap.NewNop(),
	}, workspace.Config{FlashDuration: 20 * time.Millisecond, RequestTimeout: time.Second})
	t.Cleanup(manager.CloseAll)

	tracer := tracing.New("test", nil)
	t.Cleanup(tracer.Close)

	router := gin.New()
	router.GET("/stream", NewHandler(manager, metrics, tracer, zap.NewNop(), origins...).HandleConnection)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, manager, metrics
}

func dial(t *testing.T, srv *httptest.Server) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, conn: conn}
}

func (c *client) send(msg ClientMessage) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(msg))
}

// next reads until a message of type kind satisfying match arrives. An
// empty kind leaves the decision to match.
func (c *client) next(kind string, match func(received) bool) received {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	require.NoError(c.t, c.conn.SetReadDeadline(deadline))
	for {
		_, data, err := c.conn.ReadMessage()
		require.NoError(c.t, err, "waiting for %s", kind)
		var msg received
		if err := sonic.Unmarshal(data, &msg); err != nil {
			// data of some notifications is not an object
			var loose struct {
				Type  string `json:"type"`
				ID    string `json:"id"`
				Error string `json:"error"`
				Data  any    `json:"data"`
			}
			require.NoError(c.t, sonic.Unmarshal(data, &loose))
			msg = received{Type: loose.Type, ID: loose.ID, Error: loose.Error, Raw: loose.Data}
		}
		if (kind == "" || msg.Type == kind) && (match == nil || match(msg)) {
			return msg
		}
	}
}

func TestWelcomeOpensWorkspace(t *testing.T) {
	srv, manager, metrics := setup(t)
	c := dial(t, srv)

	welcome := c.next(TypeWelcome, nil)
	assert.NotEmpty(t, welcome.Data["workspace_id"])
	assert.NotEmpty(t, welcome.Data["trace_id"])
	assert.Equal(t, 1, manager.Count())
	assert.Eventually(t, func() bool { return metrics.GetSnapshot().ActiveConnections == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.conn.Close())
	assert.Eventually(t, func() bool { return manager.Count() == 0 }, 3*time.Second, 10*time.Millisecond,
		"workspace is closed with its connection")
}

func TestPing(t *testing.T) {
	srv, _, _ := setup(t)
	c := dial(t, srv)
	c.next(TypeWelcome, nil)

	c.send(ClientMessage{Type: TypePing, ID: "p1"})
	assert.Equal(t, "p1", c.next(TypePong, nil).ID)
}

func TestRunStreamsLogs(t *testing.T) {
	srv, _, _ := setup(t)
	c := dial(t, srv)
	c.next(TypeWelcome, nil)

	c.send(ClientMessage{Type: TypeCodeChanged, ID: "1", Code: `console.log("from the socket")`})
	c.next(TypeAck, func(m received) bool { return m.ID == "1" })
	c.send(ClientMessage{Type: TypeRun, ID: "2"})

	entry := c.next(workspace.NotifyLog, func(m received) bool { return m.Data["text"] == "from the socket" })
	assert.Equal(t, "log", entry.Data["kind"])
}

func TestRequestRoundTrip(t *testing.T) {
	srv, _, _ := setup(t)
	c := dial(t, srv)
	c.next(TypeWelcome, nil)

	c.send(ClientMessage{Type: TypeSelectMode, ID: "mode", Mode: "express"})
	c.next(TypeAck, func(m received) bool { return m.ID == "mode" })
	c.send(ClientMessage{Type: TypeCodeChanged, ID: "code", Code: expressApp})
	c.next(TypeAck, func(m received) bool { return m.ID == "code" })
	c.send(ClientMessage{Type: TypeRun, ID: "run"})
	c.next(workspace.NotifyServer, func(m received) bool { return m.Data["ready"] == true })

	c.send(ClientMessage{Type: TypeRequest, ID: "req", Path: "/"})
	var ack, resp *received
	for ack == nil || resp == nil {
		m := c.next("", func(m received) bool {
			return (m.Type == TypeAck && m.ID == "req") || m.Type == workspace.NotifyResponse
		})
		if m.Type == TypeAck {
			ack = &m
		} else {
			resp = &m
		}
	}
	reqID, _ := ack.Data["request_id"].(string)
	require.NotEmpty(t, reqID)

	assert.EqualValues(t, 200, resp.Data["status"])
	assert.Equal(t, reqID, resp.Data["id"])
	assert.Equal(t, map[string]any{"message": "hello"}, resp.Data["data"])
}

func TestCommandErrors(t *testing.T) {
	srv, _, _ := setup(t)
	c := dial(t, srv)
	c.next(TypeWelcome, nil)

	tests := []struct {
		msg  ClientMessage
		want string
	}{
		{ClientMessage{Type: "teleport", ID: "a"}, "unknown message type"},
		{ClientMessage{Type: TypeSelectMode, ID: "b", Mode: "cobol"}, "unknown environment mode"},
		{ClientMessage{Type: TypeTheme, ID: "c", Theme: "sepia"}, "sepia"},
		{ClientMessage{Type: TypeRequest, ID: "d", Path: "/"}, workspace.ErrNotServerMode.Error()},
		{ClientMessage{Type: TypeRequest, ID: "e", Path: "relative"}, "must start with /"},
	}
	for _, tt := range tests {
		c.send(tt.msg)
		got := c.next(TypeError, func(m received) bool { return m.ID == tt.msg.ID })
		assert.Contains(t, got.Error, tt.want, tt.msg.Type)
	}

	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, "invalid message format", c.next(TypeError, nil).Error)
}

func TestLockAndSnapshot(t *testing.T) {
	srv, _, _ := setup(t)
	c := dial(t, srv)
	c.next(TypeWelcome, nil)

	c.send(ClientMessage{Type: TypeLock, ID: "lock", Locked: true})
	c.next(TypeAck, func(m received) bool { return m.ID == "lock" })

	c.send(ClientMessage{Type: TypeCodeChanged, ID: "edit", Code: "x"})
	got := c.next(TypeError, func(m received) bool { return m.ID == "edit" })
	assert.Equal(t, workspace.ErrLocked.Error(), got.Error)

	c.send(ClientMessage{Type: TypeSnapshot, ID: "snap"})
	snap := c.next(TypeAck, func(m received) bool { return m.ID == "snap" })
	assert.Equal(t, true, snap.Data["locked"])
	assert.Equal(t, "dom", snap.Data["mode"])
}

func TestOriginCheck(t *testing.T) {
	srv, _, _ := setup(t, "https://editor.example.com")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://editor.example.com")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = conn.Close()
}
