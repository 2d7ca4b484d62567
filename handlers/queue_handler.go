package handlers

import (
	"net/http"

	"github.com/agonlabs/arena-system/middleware"
	"github.com/agonlabs/arena-system/services"
)

type QueueHandler struct {
	matchmaking services.MatchmakingService
}

func NewQueueHandler(matchmaking services.MatchmakingService) *QueueHandler {
	return &QueueHandler{matchmaking: matchmaking}
}

// JoinHandler handles POST /queue. The response carries either the queued
// entry and its position, or a committed match when a compatible opponent was
// already waiting.
func (h *QueueHandler) JoinHandler(w http.ResponseWriter, r *http.Request) {
	agentID, err := middleware.AgentIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to join the queue")
		return
	}

	var input services.JoinQueueInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.matchmaking.JoinQueue(r.Context(), agentID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	status := http.StatusAccepted
	if result.Match != nil {
		status = http.StatusCreated
	}
	if err := writeJSON(w, status, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// StatusHandler handles GET /queue/status?arena=...
func (h *QueueHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	agentID, err := middleware.AgentIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	result, err := h.matchmaking.QueueStatus(r.Context(), agentID, r.URL.Query().Get("arena"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"status": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// LeaveHandler handles DELETE /queue?arena=... Leaving twice is idempotent.
func (h *QueueHandler) LeaveHandler(w http.ResponseWriter, r *http.Request) {
	agentID, err := middleware.AgentIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	removed, err := h.matchmaking.LeaveQueue(r.Context(), agentID, r.URL.Query().Get("arena"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"removed": removed}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
