package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ashureev/chatcord/internal/events"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

const eventWriteTimeout = 5 * time.Second

// EventsHandler streams orchestrator events over a websocket. Clients may
// pass ?after=<id> to replay buffered events they missed.
type EventsHandler struct {
	hub            *events.Hub
	conns          *ConnRegistry
	allowedOrigins []string
}

// NewEventsHandler creates an EventsHandler.
func NewEventsHandler(hub *events.Hub, conns *ConnRegistry, allowedOrigins []string) *EventsHandler {
	return &EventsHandler{hub: hub, conns: conns, allowedOrigins: allowedOrigins}
}

type wsMessage struct {
	Type string `json:"type"`
}

// ServeHTTP implements http.Handler for the websocket upgrade.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var afterID int64
	if raw := r.URL.Query().Get("after"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			Error(w, http.StatusBadRequest, "after must be a non-negative integer")
			return
		}
		afterID = n
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns(),
	})
	if err != nil {
		slog.Warn("Failed to accept event stream", "error", err, "ip", r.RemoteAddr)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	streamID := uuid.NewString()
	h.conns.Register(streamID, ws)
	defer h.conns.Unregister(streamID, ws)

	sub, missed := h.hub.Subscribe(afterID)
	defer sub.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		defer cancel()
		h.inputLoop(ctx, ws, streamID)
	}()

	for _, e := range missed {
		if err := h.write(ctx, ws, e); err != nil {
			return
		}
	}
	h.outputLoop(ctx, ws, sub)
	slog.Info("Event stream ended", "stream_id", streamID)
}

func (h *EventsHandler) originPatterns() []string {
	for _, o := range h.allowedOrigins {
		if o == "*" {
			return []string{"*"}
		}
	}
	return h.allowedOrigins
}

// inputLoop answers pings and returns when the client goes away.
func (h *EventsHandler) inputLoop(ctx context.Context, ws *websocket.Conn, streamID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("Event stream closed by client", "stream_id", streamID)
			} else if ctx.Err() == nil {
				slog.Debug("Event stream read error", "error", err, "stream_id", streamID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			if err := h.write(ctx, ws, map[string]string{"type": "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
				return
			}
		}
	}
}

func (h *EventsHandler) outputLoop(ctx context.Context, ws *websocket.Conn, sub *events.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C():
			if !ok {
				return
			}
			if err := h.write(ctx, ws, e); err != nil {
				slog.Debug("Event stream write error", "error", err)
				return
			}
		}
	}
}

func (h *EventsHandler) write(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, v)
}
