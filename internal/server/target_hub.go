package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/aristath/allocator/internal/domain"
)

// TargetHub broadcasts newly computed targets to websocket subscribers.
// It implements domain.TargetPublisher.
type TargetHub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
	log   zerolog.Logger
}

// NewTargetHub creates a new target broadcast hub.
func NewTargetHub(log zerolog.Logger) *TargetHub {
	return &TargetHub{
		conns: make(map[*websocket.Conn]struct{}),
		log:   log.With().Str("component", "target_hub").Logger(),
	}
}

// HandleSubscribe upgrades the request to a websocket and registers the
// connection for target broadcasts. The connection stays open until the
// client goes away or the hub is closed.
func (h *TargetHub) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS is enforced by the router middleware
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	subscribers := len(h.conns)
	h.mu.Unlock()

	h.log.Info().Int("subscribers", subscribers).Msg("Target subscriber connected")

	// Block until the client disconnects; subscribers never send payloads
	ctx := r.Context()
	_, _, err = conn.Read(ctx)
	if err != nil {
		h.drop(conn)
	}
}

// PublishTargets sends the target list to every subscriber.
func (h *TargetHub) PublishTargets(targets []domain.Target) {
	payload, err := json.Marshal(map[string]interface{}{
		"targets": targets,
		"at":      time.Now().UTC(),
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode target broadcast")
		return
	}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.Write(ctx, websocket.MessageText, payload); err != nil {
			h.drop(c)
		}
		cancel()
	}

	h.log.Debug().
		Int("subscribers", len(conns)).
		Int("targets", len(targets)).
		Msg("Broadcast targets")
}

// CloseAll closes every subscriber connection (server shutdown).
func (h *TargetHub) CloseAll() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.Close(websocket.StatusNormalClosure, "server shutting down")
	}
}

func (h *TargetHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	_ = conn.Close(websocket.StatusNormalClosure, "")
}
