package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
	"github.com/GriffinCanCode/playground/internal/sandbox/protocol"
)

// MaxRelayedEvents bounds one relay batch
const MaxRelayedEvents = 500

// RelayedEvent is a context event observed by a browser-hosted sandbox
type RelayedEvent struct {
	Type      protocol.Kind `json:"type"`
	Payload   string        `json:"payload"`
	Timestamp string        `json:"timestamp,omitempty"`
}

// RelayRequest is a batch of events from one isolated context
type RelayRequest struct {
	Mode      string         `json:"mode" binding:"required"`
	ContextID string         `json:"context_id"`
	Events    []RelayedEvent `json:"events"`
}

// SandboxEvents ingests console and error events that sandbox documents
// served from /documents relay back, so they land in the server log.
func (h *Handlers) SandboxEvents(c *gin.Context) {
	var req RelayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event batch format"})
		return
	}
	m, err := mode.Parse(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Events) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No events provided"})
		return
	}
	if len(req.Events) > MaxRelayedEvents {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Too many events in one batch"})
		return
	}

	logger := h.log.Named("sandbox").With(
		zap.String("mode", m.String()),
		zap.String("context_id", req.ContextID),
		zap.String("source", "relay"))

	processed := 0
	for _, ev := range req.Events {
		if !relayable(ev.Type) {
			logger.Debug("Dropping relayed event", zap.String("type", string(ev.Type)))
			continue
		}
		h.logEvent(logger, ev)
		if h.metrics != nil {
			h.metrics.Received(m, ev.Type)
		}
		processed++
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"events_received":  len(req.Events),
		"events_processed":  processed,
		"timestamp":        time.Now().Unix(),
	})
}

func relayable(k protocol.Kind) bool {
	switch k {
	case protocol.ConsoleLog, protocol.ConsoleWarn, protocol.ConsoleError, protocol.RuntimeError:
		return true
	}
	return false
}

func (h *Handlers) logEvent(logger *zap.Logger, ev RelayedEvent) {
	fields := []zap.Field{zap.String("type", string(ev.Type))}
	if ev.Timestamp != "" {
		fields = append(fields, zap.String("sandbox_timestamp", ev.Timestamp))
	}

	switch ev.Type {
	case protocol.RuntimeError:
		logger.Warn(ev.Payload, fields...)
	case protocol.ConsoleError:
		logger.Info(ev.Payload, fields...)
	default:
		logger.Debug(ev.Payload, fields...)
	}
}
