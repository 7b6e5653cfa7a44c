package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/quest-engine/pkg/queue"
	"github.com/redis/go-redis/v9"
)

// EventQueue holds the pending requests of each session in a Redis list.
type EventQueue struct {
	client *Client
	logger *slog.Logger
}

func NewEventQueue(client *Client, logger *slog.Logger) *EventQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventQueue{
		client: client,
		logger: logger,
	}
}

func queueKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("game-events:%s", sessionID.String())
}

// Enqueue appends a request to its session's queue
func (q *EventQueue) Enqueue(ctx context.Context, req *queue.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	data, err := req.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize request: %w", err)
	}

	key := queueKey(req.SessionID)
	if err := q.client.rdb.RPush(ctx, key, data).Err(); err != nil {
		q.logger.Error("Failed to enqueue request", "error", err, "key", key, "request_id", req.RequestID)
		return fmt.Errorf("failed to enqueue request: %w", err)
	}

	q.logger.Debug("Enqueued request", "key", key, "request_id", req.RequestID, "type", req.Type)
	return nil
}

// Requeue puts a request back at the head of its session's queue, so it is
// the next one dequeued.
func (q *EventQueue) Requeue(ctx context.Context, req *queue.Request) error {
	data, err := req.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize request: %w", err)
	}
	if err := q.client.rdb.LPush(ctx, queueKey(req.SessionID), data).Err(); err != nil {
		return fmt.Errorf("failed to re-queue request: %w", err)
	}
	return nil
}

// BlockingDequeue waits up to timeout for the next request of a session.
// It returns nil, nil when the timeout expires with nothing queued.
// Malformed entries are dropped and reported as an error.
func (q *EventQueue) BlockingDequeue(ctx context.Context, sessionID uuid.UUID, timeout time.Duration) (*queue.Request, error) {
	key := queueKey(sessionID)
	result, err := q.client.rdb.BLPop(ctx, timeout, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue request: %w", err)
	}

	// BLPop returns [key, value]
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BLPop result: %v", result)
	}

	req, err := queue.FromJSON([]byte(result[1]))
	if err != nil {
		q.logger.Warn("Dropping malformed request", "error", err, "key", key)
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return req, nil
}

// Peek returns up to limit queued requests without removing them; limit <= 0
// returns all of them
func (q *EventQueue) Peek(ctx context.Context, sessionID uuid.UUID, limit int) ([]*queue.Request, error) {
	end := int64(limit - 1)
	if limit <= 0 {
		end = -1
	}
	raw, err := q.client.rdb.LRange(ctx, queueKey(sessionID), 0, end).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to peek requests: %w", err)
	}

	reqs := make([]*queue.Request, 0, len(raw))
	for _, r := range raw {
		req, err := queue.FromJSON([]byte(r))
		if err != nil {
			return nil, fmt.Errorf("failed to parse request: %w", err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// Clear removes all queued requests for a session
func (q *EventQueue) Clear(ctx context.Context, sessionID uuid.UUID) error {
	if err := q.client.rdb.Del(ctx, queueKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear request queue: %w", err)
	}
	q.logger.Debug("Cleared request queue", "session_id", sessionID.String())
	return nil
}

// Depth returns the number of requests queued for a session
func (q *EventQueue) Depth(ctx context.Context, sessionID uuid.UUID) (int, error) {
	count, err := q.client.rdb.LLen(ctx, queueKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue depth: %w", err)
	}
	return int(count), nil
}
