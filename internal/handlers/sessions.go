package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jwebster45206/quest-engine/pkg/condition"
	"github.com/jwebster45206/quest-engine/pkg/quest"
	"github.com/jwebster45206/quest-engine/pkg/queue"
	"github.com/jwebster45206/quest-engine/pkg/state"
	"github.com/jwebster45206/quest-engine/pkg/storage"
)

// RequestQueue is the part of the session queue the API writes to
type RequestQueue interface {
	Enqueue(ctx context.Context, req *queue.Request) error
	Depth(ctx context.Context, sessionID uuid.UUID) (int, error)
	Clear(ctx context.Context, sessionID uuid.UUID) error
}

// ObjectiveView is an objective status as served by the API
type ObjectiveView struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// QuestView is a persisted quest snapshot with readable statuses
type QuestView struct {
	QuestID    string          `json:"quest_id"`
	Status     string          `json:"status"`
	Objectives []ObjectiveView `json:"objectives"`
}

type SessionResponse struct {
	SessionID string           `json:"session_id"`
	World     *state.GameState `json:"world,omitempty"`
	Quests    []QuestView      `json:"quests"`
	Pending   int              `json:"pending"`
}

// AcceptedResponse is returned for every queued request
type AcceptedResponse struct {
	RequestID string `json:"request_id"`
	Type      string `json:"type"`
}

// SessionHandler reads persisted session state and queues work for the
// session's worker. Writes are applied asynchronously.
//
//	GET    /v1/sessions/{sessionID}
//	DELETE /v1/sessions/{sessionID}
//	POST   /v1/sessions/{sessionID}/events
//	POST   /v1/sessions/{sessionID}/quests/{questID}
//	DELETE /v1/sessions/{sessionID}/quests/{questID}
type SessionHandler struct {
	log     *slog.Logger
	storage storage.Storage
	queue   RequestQueue
}

func NewSessionHandler(log *slog.Logger, storage storage.Storage, queue RequestQueue) *SessionHandler {
	return &SessionHandler{
		log:     log,
		storage: storage,
		queue:   queue,
	}
}

func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/v1/sessions")
	if len(parts) == 0 {
		writeError(w, h.log, http.StatusBadRequest, "Session ID is required. Expected /v1/sessions/{sessionID}")
		return
	}
	sessionID, ok := parseSessionID(w, h.log, parts[0])
	if !ok {
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleGet(w, r, sessionID)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.handleDelete(w, r, sessionID)
	case len(parts) == 2 && parts[1] == "events" && r.Method == http.MethodPost:
		h.handleEvent(w, r, sessionID)
	case len(parts) == 3 && parts[1] == "quests" && r.Method == http.MethodPost:
		h.handleStart(w, r, sessionID, parts[2])
	case len(parts) == 3 && parts[1] == "quests" && r.Method == http.MethodDelete:
		h.enqueue(w, r, queue.NewQuestRequest(queue.RequestTypeAbandonQuest, sessionID, parts[2]))
	case len(parts) <= 3:
		writeError(w, h.log, http.StatusMethodNotAllowed, "Method not allowed")
	default:
		writeError(w, h.log, http.StatusNotFound, "Not found")
	}
}

func (h *SessionHandler) handleGet(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) {
	ctx := r.Context()

	world, err := h.storage.LoadGameState(ctx, sessionID)
	if err != nil {
		h.log.Error("Failed to load game state", "error", err, "session_id", sessionID.String())
		writeError(w, h.log, http.StatusInternalServerError, "Failed to load session")
		return
	}
	snaps, err := h.storage.ListSnapshots(ctx, sessionID)
	if err != nil {
		h.log.Error("Failed to list snapshots", "error", err, "session_id", sessionID.String())
		writeError(w, h.log, http.StatusInternalServerError, "Failed to load session")
		return
	}
	pending, err := h.queue.Depth(ctx, sessionID)
	if err != nil {
		h.log.Warn("Failed to read queue depth", "error", err, "session_id", sessionID.String())
	}

	if world == nil && len(snaps) == 0 && pending == 0 {
		writeError(w, h.log, http.StatusNotFound, "Session not found")
		return
	}

	resp := SessionResponse{
		SessionID: sessionID.String(),
		World:     world,
		Quests:    make([]QuestView, 0, len(snaps)),
		Pending:   pending,
	}
	for _, snap := range snaps {
		resp.Quests = append(resp.Quests, questView(snap))
	}
	writeJSON(w, h.log, http.StatusOK, resp)
}

func questView(snap quest.Snapshot) QuestView {
	v := QuestView{
		QuestID:    snap.QuestID,
		Status:     snap.Status.String(),
		Objectives: make([]ObjectiveView, 0, len(snap.Objectives)),
	}
	for _, o := range snap.Objectives {
		v.Objectives = append(v.Objectives, ObjectiveView{ID: o.ID, Status: o.Status.String()})
	}
	return v
}

func (h *SessionHandler) handleDelete(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) {
	if err := h.queue.Clear(r.Context(), sessionID); err != nil {
		h.log.Error("Failed to clear queue", "error", err, "session_id", sessionID.String())
		writeError(w, h.log, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	if err := h.storage.DeleteSession(r.Context(), sessionID); err != nil {
		h.log.Error("Failed to delete session", "error", err, "session_id", sessionID.String())
		writeError(w, h.log, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	h.log.Info("Session deleted", "session_id", sessionID.String())
	w.WriteHeader(http.StatusNoContent)
}

// handleEvent queues one gameplay event. The body is an event envelope,
// e.g. {"kind":"item.collected","data":{"item_id":"key","amount":1}}.
func (h *SessionHandler) handleEvent(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, h.log, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}

	ev, err := condition.DecodeEvent(body)
	if err != nil {
		writeError(w, h.log, http.StatusBadRequest, err.Error())
		return
	}
	req, err := queue.NewEventRequest(sessionID, ev)
	if err != nil {
		writeError(w, h.log, http.StatusBadRequest, err.Error())
		return
	}
	h.enqueue(w, r, req)
}

func (h *SessionHandler) handleStart(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID, questID string) {
	if _, err := h.storage.GetQuest(r.Context(), questID); err != nil {
		if errors.Is(err, quest.ErrQuestNotFound) {
			writeError(w, h.log, http.StatusNotFound, "Quest not found")
			return
		}
		h.log.Error("Failed to get quest", "error", err, "quest_id", questID)
		writeError(w, h.log, http.StatusInternalServerError, "Failed to retrieve quest")
		return
	}
	h.enqueue(w, r, queue.NewQuestRequest(queue.RequestTypeStartQuest, sessionID, questID))
}

func (h *SessionHandler) enqueue(w http.ResponseWriter, r *http.Request, req *queue.Request) {
	if err := h.queue.Enqueue(r.Context(), req); err != nil {
		if errors.Is(err, queue.ErrInvalidRequest) {
			writeError(w, h.log, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error("Failed to enqueue request", "error", err, "session_id", req.SessionID.String(), "type", req.Type)
		writeError(w, h.log, http.StatusServiceUnavailable, "Failed to queue request")
		return
	}

	h.log.Debug("Request queued",
		"session_id", req.SessionID.String(),
		"request_id", req.RequestID,
		"type", req.Type,
		"quest_id", req.QuestID)
	writeJSON(w, h.log, http.StatusAccepted, AcceptedResponse{
		RequestID: req.RequestID,
		Type:      string(req.Type),
	})
}
