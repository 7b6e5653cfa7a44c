package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jwebster45206/quest-engine/internal/services/events"
	"github.com/jwebster45206/quest-engine/pkg/quest"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEventsServer(t *testing.T, keepalive time.Duration) (*httptest.Server, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	h := NewEventsHandler(rdb, testLogger())
	if keepalive > 0 {
		h.keepalive = keepalive
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, rdb
}

// sseFrame reads one "event:/data:" frame, or a comment line.
func sseFrame(t *testing.T, r *bufio.Reader) (event, data string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, ": "):
			return "", strings.TrimPrefix(line, ": ")
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data
		}
	}
}

func openStream(t *testing.T, url string) *bufio.Reader {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return bufio.NewReader(resp.Body)
}

func TestEventsHandler_StreamsLifecycleEvents(t *testing.T) {
	srv, rdb := newEventsServer(t, 0)
	session := uuid.New()
	stream := openStream(t, srv.URL+"/v1/events/sessions/"+session.String())

	event, data := sseFrame(t, stream)
	assert.Equal(t, "connected", event)
	assert.Contains(t, data, session.String())

	b := events.NewBroadcaster(rdb, session, testLogger())
	require.NoError(t, b.PublishQuestCompleted(context.Background(), quest.QuestCompleted{
		Quest: quest.Snapshot{QuestID: "find_key", Status: quest.StatusCompleted},
	}))

	event, data = sseFrame(t, stream)
	assert.Equal(t, string(quest.EventQuestCompleted), event)
	var got events.Event
	require.NoError(t, json.Unmarshal([]byte(data), &got))
	assert.Equal(t, "find_key", got.QuestID)
	assert.Equal(t, session.String(), got.SessionID)

	// Other sessions' events are not forwarded.
	other := events.NewBroadcaster(rdb, uuid.New(), testLogger())
	require.NoError(t, other.PublishQuestFailed(context.Background(), quest.QuestFailed{
		Quest: quest.Snapshot{QuestID: "elsewhere", Status: quest.StatusFailed},
	}))
	require.NoError(t, b.PublishQuestFailed(context.Background(), quest.QuestFailed{
		Quest:       quest.Snapshot{QuestID: "find_key", Status: quest.StatusFailed},
		ObjectiveID: "get_key",
	}))
	event, data = sseFrame(t, stream)
	assert.Equal(t, string(quest.EventQuestFailed), event)
	assert.Contains(t, data, `"objective_id":"get_key"`)
	assert.NotContains(t, data, "elsewhere")
}

func TestEventsHandler_Keepalive(t *testing.T) {
	srv, _ := newEventsServer(t, 20*time.Millisecond)
	stream := openStream(t, srv.URL+"/v1/events/sessions/"+uuid.New().String())

	event, _ := sseFrame(t, stream)
	require.Equal(t, "connected", event)
	event, comment := sseFrame(t, stream)
	assert.Empty(t, event)
	assert.Equal(t, "keepalive", comment)
}

func TestEventsHandler_BadRequests(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	h := NewEventsHandler(rdb, testLogger())

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"wrong method", http.MethodPost, "/v1/events/sessions/" + uuid.New().String(), http.StatusMethodNotAllowed},
		{"missing id", http.MethodGet, "/v1/events/sessions", http.StatusBadRequest},
		{"bad id", http.MethodGet, "/v1/events/sessions/nope", http.StatusBadRequest},
		{"extra segments", http.MethodGet, "/v1/events/sessions/" + uuid.New().String() + "/more", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.expectedStatus, rr.Code)
		})
	}
}
