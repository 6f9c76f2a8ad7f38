package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/playground/internal/domain/workspace"
	"github.com/GriffinCanCode/playground/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/playground/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
	"github.com/GriffinCanCode/playground/internal/sandbox/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 << 10
	sendBuffer     = 256
)

// Client message types
const (
	TypeSelectMode  = "select_mode"
	TypeCodeChanged = "code_changed"
	TypeRun         = "run"
	TypeReset       = "reset"
	TypeTheme       = "theme"
	TypeRequest     = "request"
	TypeLock        = "lock"
	TypeSnapshot    = "snapshot"
	TypePing        = "ping"
)

// Server-only message types
const (
	TypeWelcome = "welcome"
	TypeAck     = "ack"
	TypeError   = "error"
	TypePong    = "pong"
)

// ClientMessage is a command from the editor UI
type ClientMessage struct {
	Type   string `json:"type"`
	ID     string `json:"id,omitempty"`
	Mode   string `json:"mode,omitempty"`
	Code   string `json:"code,omitempty"`
	Theme  string `json:"theme,omitempty"`
	Method string `json:"method,omitempty"`
	Path   string `json:"path,omitempty"`
	Locked bool   `json:"locked,omitempty"`
}

// ServerMessage is a workspace notification or a command result
type ServerMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Handler manages WebSocket connections. Each connection owns one workspace.
type Handler struct {
	workspaces *workspace.Manager
	metrics    *monitoring.Metrics
	tracer     *tracing.Tracer
	log        *zap.Logger
	upgrader   websocket.Upgrader
}

// NewHandler creates a new WebSocket handler. origins lists the allowed
// Origin headers; "*" or an empty list allows any.
func NewHandler(workspaces *workspace.Manager, metrics *monitoring.Metrics, tracer *tracing.Tracer, log *zap.Logger, origins ...string) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if tracer == nil {
		tracer = tracing.New("playground-ws", nil)
	}
	h := &Handler{
		workspaces: workspaces,
		metrics:    metrics,
		tracer:     tracer,
		log:        log.Named("ws"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin(origins),
	}
	return h
}

func checkOrigin(origins []string) func(*http.Request) bool {
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, origin)
	}
}

// conn is one upgraded connection and its outgoing queue
type conn struct {
	ws      *websocket.Conn
	send    chan ServerMessage
	done    chan struct{}
	once    sync.Once
	log     *zap.Logger
	metrics *monitoring.Metrics
}

// Notify implements workspace.Listener. It never blocks the workspace; a
// client that cannot keep up is disconnected.
func (c *conn) Notify(n workspace.Notification) {
	c.push(ServerMessage{Type: n.Type, Data: n.Data})
}

func (c *conn) push(msg ServerMessage) {
	msg.Timestamp = time.Now().UnixMilli()
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		c.log.Warn("Client too slow, closing", zap.String("type", msg.Type))
		c.close()
	}
}

func (c *conn) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			data, err := sonic.Marshal(msg)
			if err != nil {
				c.log.Error("Failed to encode message", zap.String("type", msg.Type), zap.Error(err))
				continue
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug("WebSocket write failed", zap.Error(err))
				c.close()
				return
			}
			if c.metrics != nil {
				c.metrics.RecordWSMessage("out", msg.Type)
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// HandleConnection handles WebSocket upgrade and messages
func (h *Handler) HandleConnection(c *gin.Context) {
	wsConn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	cl := &conn{
		ws:      wsConn,
		send:    make(chan ServerMessage, sendBuffer),
		done:    make(chan struct{}),
		log:     h.log,
		metrics: h.metrics,
	}
	go cl.writePump()
	defer cl.close()

	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	// The connection's trace ID parents every command span
	span, ctx := h.tracer.StartSpan(context.Background(), "ws connection")
	defer h.tracer.Submit(span)

	w, err := h.workspaces.Open(ctx, cl)
	if err != nil {
		h.log.Error("Failed to open workspace", zap.Error(err))
		cl.push(ServerMessage{Type: TypeError, Error: err.Error()})
		return
	}
	defer h.workspaces.Close(w.ID())

	log := h.log.With(zap.String("workspace_id", w.ID().String()))
	log.Info("WebSocket connected", zap.String("client_ip", c.ClientIP()))
	cl.push(ServerMessage{Type: TypeWelcome, Data: gin.H{
		"workspace_id": w.ID(),
		"trace_id":     span.TraceID,
		"modes":        mode.All(),
	}})

	wsConn.SetReadLimit(maxMessageSize)
	_ = wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		return wsConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("WebSocket read error", zap.Error(err))
			}
			break
		}
		_ = wsConn.SetReadDeadline(time.Now().Add(pongWait))

		var msg ClientMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			cl.push(ServerMessage{Type: TypeError, Error: "invalid message format"})
			continue
		}
		if h.metrics != nil {
			h.metrics.RecordWSMessage("in", msg.Type)
		}

		if msg.Type == TypePing {
			cl.push(ServerMessage{Type: TypePong, ID: msg.ID})
			continue
		}

		var result any
		err = h.tracer.Command(ctx, msg.Type, func(context.Context) error {
			var cmdErr error
			result, cmdErr = h.dispatch(w, msg)
			return cmdErr
		})
		if err != nil {
			log.Debug("Command rejected", zap.String("type", msg.Type), zap.Error(err))
			cl.push(ServerMessage{Type: TypeError, ID: msg.ID, Error: err.Error()})
			continue
		}
		cl.push(ServerMessage{Type: TypeAck, ID: msg.ID, Data: result})
	}
	log.Info("WebSocket disconnected")
}

var errUnknownType = errors.New("unknown message type")

// dispatch applies one command. The result is attached to the ack.
func (h *Handler) dispatch(w *workspace.Workspace, msg ClientMessage) (any, error) {
	switch msg.Type {
	case TypeSelectMode:
		m, err := mode.Parse(msg.Mode)
		if err != nil {
			return nil, err
		}
		return nil, w.SelectMode(m)
	case TypeCodeChanged:
		return nil, w.CodeChanged(msg.Code)
	case TypeRun:
		return nil, w.Run()
	case TypeReset:
		return nil, w.Reset()
	case TypeTheme:
		theme, err := protocol.ParseTheme(msg.Theme)
		if err != nil {
			return nil, err
		}
		return nil, w.SetTheme(theme)
	case TypeRequest:
		method := strings.ToUpper(strings.TrimSpace(msg.Method))
		if method == "" {
			method = http.MethodGet
		}
		if !strings.HasPrefix(msg.Path, "/") {
			return nil, fmt.Errorf("request path must start with /: %q", msg.Path)
		}
		reqID, err := w.SimulateRequest(method, msg.Path)
		if err != nil {
			return nil, err
		}
		return gin.H{"request_id": reqID}, nil
	case TypeLock:
		w.SetLocked(msg.Locked)
		return nil, nil
	case TypeSnapshot:
		return w.Snapshot(), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownType, msg.Type)
	}
}
