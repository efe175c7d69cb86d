package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/sentinel-vault/internal/events"
)

const (
	eventStreamBuffer = 100
	wsWriteTimeout    = 10 * time.Second
)

// EventsWSHandler streams bus events to WebSocket clients.
type EventsWSHandler struct {
	bus       *events.Bus
	log       zerolog.Logger
	heartbeat time.Duration
}

// NewEventsWSHandler creates a new events stream handler.
func NewEventsWSHandler(bus *events.Bus, log zerolog.Logger) *EventsWSHandler {
	return &EventsWSHandler{
		bus:       bus,
		log:       log.With().Str("component", "events_ws").Logger(),
		heartbeat: 30 * time.Second,
	}
}

// streamMessage is the frame sent for every event and control message
type streamMessage struct {
	Type      string                 `json:"type"`
	ID        string                 `json:"id,omitempty"`
	Module    string                 `json:"module,omitempty"`
	Timestamp string                 `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// ServeHTTP handles GET /api/events/ws. An optional ?types=A,B query
// restricts the stream to those event types.
func (h *EventsWSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var allowed map[events.EventType]bool
	if filter := r.URL.Query().Get("types"); filter != "" {
		allowed = make(map[events.EventType]bool)
		for _, t := range strings.Split(filter, ",") {
			allowed[events.EventType(strings.TrimSpace(t))] = true
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	// Clients never send; CloseRead handles control frames and cancels on disconnect
	ctx := conn.CloseRead(r.Context())

	stream, cancel := h.bus.Stream(eventStreamBuffer)
	defer cancel()

	h.log.Info().Int("type_filters", len(allowed)).Msg("Client connected to event stream")

	if err := h.write(ctx, conn, streamMessage{Type: "connected", Timestamp: time.Now().Format(time.RFC3339)}); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("Client disconnected from event stream")
			return

		case event, ok := <-stream:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if allowed != nil && !allowed[event.Type] {
				continue
			}
			msg := streamMessage{
				Type:      string(event.Type),
				ID:        event.ID,
				Module:    event.Module,
				Timestamp: event.Timestamp.Format(time.RFC3339),
				Data:      event.Data,
			}
			if err := h.write(ctx, conn, msg); err != nil {
				return
			}

		case <-heartbeat.C:
			if err := h.write(ctx, conn, streamMessage{Type: "heartbeat", Timestamp: time.Now().Format(time.RFC3339)}); err != nil {
				return
			}
		}
	}
}

func (h *EventsWSHandler) write(ctx context.Context, conn *websocket.Conn, msg streamMessage) error {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()

	if err := wsjson.Write(writeCtx, conn, msg); err != nil {
		h.log.Debug().Err(err).Str("type", msg.Type).Msg("Failed to write to event stream")
		return err
	}
	return nil
}
