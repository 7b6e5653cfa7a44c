package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/jwebster45206/quest-engine/pkg/quest"
	"github.com/jwebster45206/quest-engine/pkg/storage"
)

// QuestSummary is one entry of the quest list
type QuestSummary struct {
	ID         string `json:"id"`
	Title      string `json:"title,omitempty"`
	File       string `json:"file"`
	Objectives int    `json:"objectives"`
}

// QuestHandler serves quest definitions.
//
//	GET /v1/quests
//	GET /v1/quests/{questID}
type QuestHandler struct {
	log     *slog.Logger
	storage storage.Storage
}

func NewQuestHandler(log *slog.Logger, storage storage.Storage) *QuestHandler {
	return &QuestHandler{
		log:     log,
		storage: storage,
	}
}

func (h *QuestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, h.log, http.StatusMethodNotAllowed, "Method not allowed. Only GET is supported.")
		return
	}

	parts := pathParts(r.URL.Path, "/v1/quests")
	switch len(parts) {
	case 0:
		h.handleList(w, r)
	case 1:
		h.handleGet(w, r, parts[0])
	default:
		writeError(w, h.log, http.StatusNotFound, "Not found")
	}
}

func (h *QuestHandler) handleList(w http.ResponseWriter, r *http.Request) {
	files, err := h.storage.ListQuests(r.Context())
	if err != nil {
		h.log.Error("Failed to list quests", "error", err)
		writeError(w, h.log, http.StatusInternalServerError, "Failed to list quests")
		return
	}

	ids := make([]string, 0, len(files))
	for id := range files {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]QuestSummary, 0, len(ids))
	for _, id := range ids {
		summary := QuestSummary{ID: id, File: files[id]}
		if cfg, err := h.storage.GetQuest(r.Context(), id); err == nil {
			summary.Title = cfg.Title
			summary.Objectives = len(cfg.Objectives)
		} else {
			h.log.Warn("Listed quest could not be loaded", "quest_id", id, "error", err)
		}
		out = append(out, summary)
	}
	writeJSON(w, h.log, http.StatusOK, out)
}

func (h *QuestHandler) handleGet(w http.ResponseWriter, r *http.Request, questID string) {
	if strings.Contains(questID, "..") {
		writeError(w, h.log, http.StatusBadRequest, "Invalid quest ID")
		return
	}

	cfg, err := h.storage.GetQuest(r.Context(), questID)
	if err != nil {
		if errors.Is(err, quest.ErrQuestNotFound) {
			writeError(w, h.log, http.StatusNotFound, "Quest not found")
			return
		}
		h.log.Error("Failed to get quest", "error", err, "quest_id", questID)
		writeError(w, h.log, http.StatusInternalServerError, "Failed to retrieve quest")
		return
	}
	writeJSON(w, h.log, http.StatusOK, cfg)
}
