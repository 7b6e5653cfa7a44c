package handlers

import (
	"log/slog"
	"net/http"

	"github.com/jwebster45206/quest-engine/pkg/storage"
	"github.com/redis/go-redis/v9"
)

// NewRouter wires every API route. queuePing is reported by /health and
// may be nil.
func NewRouter(store storage.Storage, requests RequestQueue, queuePing Pinger, redisClient *redis.Client, log *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/health", NewHealthHandler(store, queuePing, log))

	questHandler := NewQuestHandler(log, store)
	mux.Handle("/v1/quests", questHandler)
	mux.Handle("/v1/quests/", questHandler)

	sessionHandler := NewSessionHandler(log, store, requests)
	mux.Handle("/v1/sessions", sessionHandler)
	mux.Handle("/v1/sessions/", sessionHandler)

	mux.Handle("/v1/events/sessions/", NewEventsHandler(redisClient, log))
	return mux
}
