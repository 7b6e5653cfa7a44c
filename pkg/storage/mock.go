package storage

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/jwebster45206/quest-engine/pkg/quest"
	"github.com/jwebster45206/quest-engine/pkg/state"
)

// MockStorage is a mock implementation of Storage for testing
type MockStorage struct {
	mu        sync.RWMutex
	snapshots map[uuid.UUID]map[string]quest.Snapshot
	quests    map[string]*quest.Config
	worlds    map[uuid.UUID][]byte
	saves     int
	pingError error
}

// Ensure MockStorage implements Storage interface
var _ Storage = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		snapshots: make(map[uuid.UUID]map[string]quest.Snapshot),
		quests:    make(map[string]*quest.Config),
		worlds:    make(map[uuid.UUID][]byte),
	}
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

func (m *MockStorage) Close() error {
	return nil
}

func (m *MockStorage) SaveSnapshot(ctx context.Context, sessionID uuid.UUID, snap quest.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshots[sessionID] == nil {
		m.snapshots[sessionID] = make(map[string]quest.Snapshot)
	}
	snap.Objectives = slices.Clone(snap.Objectives)
	m.snapshots[sessionID][snap.QuestID] = snap
	m.saves++
	return nil
}

func (m *MockStorage) LoadSnapshot(ctx context.Context, sessionID uuid.UUID, questID string) (*quest.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[sessionID][questID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (m *MockStorage) ListSnapshots(ctx context.Context, sessionID uuid.UUID) ([]quest.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]quest.Snapshot, 0, len(m.snapshots[sessionID]))
	for _, s := range m.snapshots[sessionID] {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b quest.Snapshot) int { return cmp.Compare(a.QuestID, b.QuestID) })
	return out, nil
}

func (m *MockStorage) DeleteSnapshot(ctx context.Context, sessionID uuid.UUID, questID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots[sessionID], questID)
	return nil
}

func (m *MockStorage) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, sessionID)
	delete(m.worlds, sessionID)
	return nil
}

func (m *MockStorage) SaveGameState(ctx context.Context, gs *state.GameState) error {
	data, err := gs.ToJSON()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.worlds[gs.SessionID] = data
	return nil
}

func (m *MockStorage) LoadGameState(ctx context.Context, sessionID uuid.UUID) (*state.GameState, error) {
	m.mu.RLock()
	data, ok := m.worlds[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return state.FromJSON(data)
}

// SaveCount reports how many snapshots have been written (for testing)
func (m *MockStorage) SaveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

func (m *MockStorage) ListQuests(ctx context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]string, len(m.quests))
	for id := range m.quests {
		result[id] = id + ".json"
	}
	return result, nil
}

func (m *MockStorage) GetQuest(ctx context.Context, questID string) (*quest.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.quests[questID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", quest.ErrQuestNotFound, questID)
	}
	return cfg, nil
}

// AddQuest adds a quest config to the mock storage (for testing)
func (m *MockStorage) AddQuest(cfg *quest.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quests[cfg.ID] = cfg
}
