package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/agonlabs/arena-system/events"
	"github.com/agonlabs/arena-system/models"
	"github.com/agonlabs/arena-system/repositories"
)

const (
	keepaliveInterval = 15 * time.Second
	streamBufferSize  = 256
	persistTimeout    = 5 * time.Second
)

// StreamHandler serves the long-lived per-match event stream: server-initiated
// records in publish order, a periodic comment line to hold idle transports
// open, and spectator presence tracking tied to the connection lifetime.
type StreamHandler struct {
	bus       *events.Bus
	tracker   *events.Tracker
	matchRepo repositories.MatchRepository
	logger    *slog.Logger
}

func NewStreamHandler(bus *events.Bus, tracker *events.Tracker, matchRepo repositories.MatchRepository, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{bus: bus, tracker: tracker, matchRepo: matchRepo, logger: logger}
}

// EventsHandler handles GET /matches/{matchID}/events.
func (h *StreamHandler) EventsHandler(w http.ResponseWriter, r *http.Request) {
	matchID := chi.URLParam(r, "matchID")
	if matchID == "" {
		badRequestResponse(w, r, fmt.Errorf("missing matchID"))
		return
	}
	if _, err := h.matchRepo.GetByID(r.Context(), matchID); err != nil {
		notFoundResponse(w, r)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		serverErrorResponse(w, r, fmt.Errorf("response writer does not support streaming"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	connID := uuid.NewString()
	ch := make(chan models.MatchEvent, streamBufferSize)

	// Delivery into this connection must never block the publisher; a full
	// buffer drops the event for this subscriber only.
	unsubscribe := h.bus.Subscribe(matchID, func(event models.MatchEvent) {
		select {
		case ch <- event:
		default:
			h.logger.Warn("stream buffer full, dropping event",
				slog.String("match_id", matchID),
				slog.String("conn_id", connID),
				slog.String("type", event.Type))
		}
	})

	count := h.tracker.Connect(matchID, connID)
	h.persistSpectatorCount(matchID, count)
	h.logger.Info("spectator connected",
		slog.String("match_id", matchID),
		slog.String("conn_id", connID),
		slog.Int("count", count))

	// Cancellation and keepalive failure share one cleanup path, guarded
	// against double invocation.
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			unsubscribe()
			remaining := h.tracker.Disconnect(matchID, connID)
			h.persistSpectatorCount(matchID, remaining)
			h.bus.Publish(matchID, models.EventSpectators, map[string]int{"count": remaining})
			h.logger.Info("spectator disconnected",
				slog.String("match_id", matchID),
				slog.String("conn_id", connID),
				slog.Int("count", remaining))
		})
	}
	defer cleanup()

	// The first record every client sees is the current spectator count; the
	// publish also reaches the other subscribers of this match.
	h.bus.Publish(matchID, models.EventSpectators, map[string]int{"count": count})

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event := <-ch:
			raw, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("event marshal failed",
					slog.String("match_id", matchID),
					slog.Any("error", err))
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", raw); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// persistSpectatorCount writes the count through to the match record.
// Best-effort: the count is reconstructible from present connections, so a
// failed write is logged and the stream continues.
func (h *StreamHandler) persistSpectatorCount(matchID string, count int) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := h.matchRepo.UpdateSpectatorCount(ctx, matchID, count); err != nil {
		h.logger.Warn("spectator count write-through failed",
			slog.String("match_id", matchID),
			slog.Int("count", count),
			slog.Any("error", err))
	}
}
