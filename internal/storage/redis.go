package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/quest-engine/pkg/quest"
	"github.com/jwebster45206/quest-engine/pkg/state"
	pkgstorage "github.com/jwebster45206/quest-engine/pkg/storage"
	"github.com/redis/go-redis/v9"
)

// RedisStorage implements the Storage interface using Redis for quest
// snapshots and the filesystem for quest definitions
type RedisStorage struct {
	client   *redis.Client
	logger   *slog.Logger
	questDir string
	ttl      time.Duration
}

// Ensure RedisStorage implements Storage interface
var _ pkgstorage.Storage = (*RedisStorage)(nil)

// NewRedisStorage connects to redisURL. Snapshot hashes expire ttl after
// their last write; ttl <= 0 keeps them forever.
func NewRedisStorage(redisURL, questDir string, ttl time.Duration, logger *slog.Logger) (*RedisStorage, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return NewRedisStorageWithClient(redis.NewClient(opt), questDir, ttl, logger), nil
}

// NewRedisStorageWithClient wraps an existing client. Close closes it.
func NewRedisStorageWithClient(client *redis.Client, questDir string, ttl time.Duration, logger *slog.Logger) *RedisStorage {
	if logger == nil {
		logger = slog.Default()
	}
	if questDir == "" {
		questDir = "./data/quests"
	}
	return &RedisStorage{
		client:   client,
		logger:   logger,
		questDir: questDir,
		ttl:      ttl,
	}
}

// Health and lifecycle methods

func (r *RedisStorage) Ping(ctx context.Context) error {
	cmd := r.client.Ping(ctx)
	if err := cmd.Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStorage) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

// Snapshot operations (Redis-backed)

func snapshotKey(sessionID uuid.UUID) string {
	return "quest-snapshots:" + sessionID.String()
}

func (r *RedisStorage) SaveSnapshot(ctx context.Context, sessionID uuid.UUID, snap quest.Snapshot) error {
	data, err := quest.MarshalSnapshot(snap)
	if err != nil {
		r.logger.Error("Failed to marshal snapshot", "quest_id", snap.QuestID, "error", err)
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	key := snapshotKey(sessionID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, snap.QuestID, data)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to save snapshot", "session_id", sessionID, "quest_id", snap.QuestID, "error", err)
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (r *RedisStorage) LoadSnapshot(ctx context.Context, sessionID uuid.UUID, questID string) (*quest.Snapshot, error) {
	data, err := r.client.HGet(ctx, snapshotKey(sessionID), questID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Return nil for not found
		}
		r.logger.Error("Failed to load snapshot", "session_id", sessionID, "quest_id", questID, "error", err)
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	snap, err := quest.UnmarshalSnapshot([]byte(data))
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListSnapshots returns the session's snapshots ordered by quest id.
// Entries that no longer decode are skipped with a warning.
func (r *RedisStorage) ListSnapshots(ctx context.Context, sessionID uuid.UUID) ([]quest.Snapshot, error) {
	entries, err := r.client.HGetAll(ctx, snapshotKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]quest.Snapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := quest.UnmarshalSnapshot([]byte(entries[id]))
		if err != nil {
			r.logger.Warn("Skipping unreadable snapshot", "session_id", sessionID, "quest_id", id, "error", err)
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

func (r *RedisStorage) DeleteSnapshot(ctx context.Context, sessionID uuid.UUID, questID string) error {
	if err := r.client.HDel(ctx, snapshotKey(sessionID), questID).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

func (r *RedisStorage) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	if err := r.client.Del(ctx, snapshotKey(sessionID), gameStateKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Game state operations (Redis-backed)

func gameStateKey(sessionID uuid.UUID) string {
	return "game-state:" + sessionID.String()
}

func (r *RedisStorage) SaveGameState(ctx context.Context, gs *state.GameState) error {
	data, err := gs.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal game state: %w", err)
	}
	if err := r.client.Set(ctx, gameStateKey(gs.SessionID), data, max(r.ttl, 0)).Err(); err != nil {
		r.logger.Error("Failed to save game state", "session_id", gs.SessionID, "error", err)
		return fmt.Errorf("failed to save game state: %w", err)
	}
	return nil
}

func (r *RedisStorage) LoadGameState(ctx context.Context, sessionID uuid.UUID) (*state.GameState, error) {
	data, err := r.client.Get(ctx, gameStateKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load game state: %w", err)
	}
	return state.FromJSON(data)
}

// Quest operations (filesystem-backed)

func (r *RedisStorage) ListQuests(ctx context.Context) (map[string]string, error) {
	files, err := LoadQuestDir(r.questDir)
	if err != nil {
		r.logger.Warn("Some quest files could not be loaded", "dir", r.questDir, "error", err)
	}

	quests := make(map[string]string, len(files))
	for _, f := range files {
		quests[f.Config.ID] = filepath.Base(f.Path)
	}
	return quests, nil
}

func (r *RedisStorage) GetQuest(ctx context.Context, questID string) (*quest.Config, error) {
	files, err := LoadQuestDir(r.questDir)
	if err != nil {
		r.logger.Warn("Some quest files could not be loaded", "dir", r.questDir, "error", err)
	}
	for _, f := range files {
		if f.Config.ID == questID {
			r.logger.Debug("Loaded quest", "quest_id", questID, "path", f.Path)
			return f.Config, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", quest.ErrQuestNotFound, questID)
}
