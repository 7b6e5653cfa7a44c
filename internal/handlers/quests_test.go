package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jwebster45206/quest-engine/pkg/condition"
	"github.com/jwebster45206/quest-engine/pkg/quest"
	"github.com/jwebster45206/quest-engine/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleQuest(id string) *quest.Config {
	return &quest.Config{
		ID:    id,
		Title: "Find the Key",
		Objectives: []*quest.ObjectiveConfig{{
			ID: "get_key",
			Completion: &condition.Config{
				Kind:   condition.KindItemCollected,
				ItemID: "rusty_key",
				Count:  condition.CountOf(1),
			},
		}},
	}
}

func TestQuestHandler_ServeHTTP(t *testing.T) {
	store := storage.NewMockStorage()
	store.AddQuest(sampleQuest("find_key"))
	store.AddQuest(sampleQuest("another_key"))
	handler := NewQuestHandler(testLogger(), store)

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"list", http.MethodGet, "/v1/quests", http.StatusOK},
		{"list with slash", http.MethodGet, "/v1/quests/", http.StatusOK},
		{"get", http.MethodGet, "/v1/quests/find_key", http.StatusOK},
		{"missing", http.MethodGet, "/v1/quests/nowhere", http.StatusNotFound},
		{"traversal", http.MethodGet, "/v1/quests/..", http.StatusBadRequest},
		{"too deep", http.MethodGet, "/v1/quests/find_key/objectives", http.StatusNotFound},
		{"wrong method", http.MethodPost, "/v1/quests", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
		})
	}
}

func TestQuestHandler_Bodies(t *testing.T) {
	store := storage.NewMockStorage()
	store.AddQuest(sampleQuest("find_key"))
	store.AddQuest(sampleQuest("another_key"))
	handler := NewQuestHandler(testLogger(), store)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/quests", nil))
	var list []QuestSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "another_key", list[0].ID, "sorted by id")
	assert.Equal(t, QuestSummary{ID: "find_key", Title: "Find the Key", File: "find_key.json", Objectives: 1}, list[1])

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/quests/find_key", nil))
	var cfg quest.Config
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cfg))
	assert.Equal(t, "find_key", cfg.ID)
	require.Len(t, cfg.Objectives, 1)
	assert.Equal(t, "rusty_key", cfg.Objectives[0].Completion.ItemID)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/quests/nowhere", nil))
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &errResp))
	assert.Equal(t, "Quest not found", errResp.Error)
}
