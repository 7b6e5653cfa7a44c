package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/jwebster45206/quest-engine/pkg/quest"
	"github.com/jwebster45206/quest-engine/pkg/state"
)

// Storage defines a unified interface for all storage operations
// This interface combines session persistence (Redis) with quest loading (filesystem)
type Storage interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	// Snapshot operations (Redis-backed), one entry per quest per session.
	// LoadSnapshot returns nil, nil when nothing is stored.
	SaveSnapshot(ctx context.Context, sessionID uuid.UUID, snap quest.Snapshot) error
	LoadSnapshot(ctx context.Context, sessionID uuid.UUID, questID string) (*quest.Snapshot, error)
	ListSnapshots(ctx context.Context, sessionID uuid.UUID) ([]quest.Snapshot, error)
	DeleteSnapshot(ctx context.Context, sessionID uuid.UUID, questID string) error
	DeleteSession(ctx context.Context, sessionID uuid.UUID) error

	// World state observed from gameplay events. LoadGameState returns
	// nil, nil when nothing is stored.
	SaveGameState(ctx context.Context, gs *state.GameState) error
	LoadGameState(ctx context.Context, sessionID uuid.UUID) (*state.GameState, error)

	// Quest operations (filesystem-backed)
	// ListQuests maps quest ids to the file that defines them
	ListQuests(ctx context.Context) (map[string]string, error)
	GetQuest(ctx context.Context, questID string) (*quest.Config, error)
}
