package worker

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jwebster45206/quest-engine/internal/services/queue"
	"github.com/jwebster45206/quest-engine/pkg/condition"
	"github.com/jwebster45206/quest-engine/pkg/eventbus"
	queuePkg "github.com/jwebster45206/quest-engine/pkg/queue"
	"github.com/jwebster45206/quest-engine/pkg/quest"
	"github.com/jwebster45206/quest-engine/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	mr      *miniredis.Miniredis
	client  *queue.Client
	queue   *queue.EventQueue
	store   *storage.MockStorage
	session uuid.UUID
	logger  *slog.Logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	client, err := queue.NewClient("redis://"+mr.Addr(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return &harness{
		mr:      mr,
		client:  client,
		queue:   queue.NewEventQueue(client, logger),
		store:   storage.NewMockStorage(),
		session: uuid.New(),
		logger:  logger,
	}
}

func (h *harness) worker(id string) *Worker {
	return New(Options{
		ID:           id,
		SessionID:    h.session,
		Queue:        h.queue,
		Storage:      h.store,
		RedisClient:  h.client.GetRedisClient(),
		TickInterval: 10 * time.Millisecond,
		Logger:       h.logger,
	})
}

// start runs w until the test ends and returns a func that stops it and
// reports Run's result.
func start(t *testing.T, w *Worker) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	var result error
	stopped := false
	stop := func() error {
		if stopped {
			return result
		}
		stopped = true
		cancel()
		select {
		case result = <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not stop")
		}
		return result
	}
	t.Cleanup(func() { stop() })
	return stop
}

func (h *harness) enqueueQuest(t *testing.T, typ queuePkg.RequestType, questID string) {
	t.Helper()
	require.NoError(t, h.queue.Enqueue(context.Background(), queuePkg.NewQuestRequest(typ, h.session, questID)))
}

func (h *harness) publish(t *testing.T, events ...eventbus.Event) {
	t.Helper()
	for _, ev := range events {
		req, err := queuePkg.NewEventRequest(h.session, ev)
		require.NoError(t, err)
		require.NoError(t, h.queue.Enqueue(context.Background(), req))
	}
}

// hasStatus reports whether the persisted snapshot of a quest has status st.
func (h *harness) hasStatus(questID string, st quest.Status) bool {
	snap, err := h.store.LoadSnapshot(context.Background(), h.session, questID)
	return err == nil && snap != nil && snap.Status == st
}

func (h *harness) hasSnapshot(questID string) bool {
	snap, _ := h.store.LoadSnapshot(context.Background(), h.session, questID)
	return snap != nil
}

func cellarQuest() *quest.Config {
	return &quest.Config{
		ID: "cellar",
		Objectives: []*quest.ObjectiveConfig{
			{ID: "keys", Completion: &condition.Config{Kind: condition.KindItemCollected, ItemID: "key", Count: condition.CountOf(2)}},
			{ID: "door", Prerequisites: []string{"keys"}, Completion: &condition.Config{Kind: condition.KindFlagEquals, FlagID: "door_open"}},
		},
	}
}

func TestWorker_ProcessesQueuedRequests(t *testing.T) {
	h := newHarness(t)
	h.store.AddQuest(cellarQuest())
	stop := start(t, h.worker("w1"))

	h.enqueueQuest(t, queuePkg.RequestTypeStartQuest, "cellar")
	h.publish(t,
		condition.ItemCollected{ItemID: "key", Amount: 1},
		condition.ItemCollected{ItemID: "key", Amount: 1},
	)

	require.Eventually(t, func() bool {
		snap, _ := h.store.LoadSnapshot(context.Background(), h.session, "cellar")
		return snap != nil && len(snap.Objectives) == 2 && snap.Objectives[1].Status == quest.StatusInProgress
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, h.hasStatus("cellar", quest.StatusInProgress))

	h.publish(t, condition.FlagChanged{FlagID: "door_open", Value: true})
	require.Eventually(t, func() bool { return h.hasStatus("cellar", quest.StatusCompleted) }, 5*time.Second, 10*time.Millisecond)

	assert.NoError(t, stop())
}

func TestWorker_TicksDriveTimers(t *testing.T) {
	h := newHarness(t)
	h.store.AddQuest(&quest.Config{
		ID: "wait",
		Objectives: []*quest.ObjectiveConfig{
			{ID: "hold", Completion: &condition.Config{Kind: condition.KindTimeElapsed, Seconds: 0.05}},
		},
	})
	start(t, h.worker("w1"))

	h.enqueueQuest(t, queuePkg.RequestTypeStartQuest, "wait")
	require.Eventually(t, func() bool { return h.hasStatus("wait", quest.StatusCompleted) }, 5*time.Second, 10*time.Millisecond)
}

func TestWorker_RestoresSnapshots(t *testing.T) {
	h := newHarness(t)
	h.store.AddQuest(cellarQuest())
	require.NoError(t, h.store.SaveSnapshot(context.Background(), h.session, quest.Snapshot{
		QuestID: "cellar",
		Status:  quest.StatusInProgress,
		Objectives: []quest.ObjectiveSnapshot{
			{ID: "keys", Status: quest.StatusCompleted},
			{ID: "door", Status: quest.StatusInProgress},
		},
	}))
	start(t, h.worker("w1"))

	h.publish(t, condition.FlagChanged{FlagID: "door_open", Value: true})
	require.Eventually(t, func() bool { return h.hasStatus("cellar", quest.StatusCompleted) }, 5*time.Second, 10*time.Millisecond)
}

func TestWorker_AbandonDeletesSnapshot(t *testing.T) {
	h := newHarness(t)
	h.store.AddQuest(cellarQuest())
	start(t, h.worker("w1"))

	h.enqueueQuest(t, queuePkg.RequestTypeStartQuest, "cellar")
	require.Eventually(t, func() bool { return h.hasStatus("cellar", quest.StatusInProgress) }, 5*time.Second, 10*time.Millisecond)

	h.enqueueQuest(t, queuePkg.RequestTypeAbandonQuest, "cellar")
	require.Eventually(t, func() bool { return !h.hasSnapshot("cellar") }, 5*time.Second, 10*time.Millisecond)
}

func TestWorker_UnknownQuestIsSkipped(t *testing.T) {
	h := newHarness(t)
	h.store.AddQuest(cellarQuest())
	start(t, h.worker("w1"))

	h.enqueueQuest(t, queuePkg.RequestTypeStartQuest, "ghost")
	h.enqueueQuest(t, queuePkg.RequestTypeStartQuest, "cellar")
	require.Eventually(t, func() bool { return h.hasStatus("cellar", quest.StatusInProgress) }, 5*time.Second, 10*time.Millisecond)
	assert.False(t, h.hasSnapshot("ghost"))
}

func TestWorker_PersistsAndRestoresWorld(t *testing.T) {
	h := newHarness(t)
	h.store.AddQuest(&quest.Config{
		ID: "hoard",
		Objectives: []*quest.ObjectiveConfig{
			{ID: "coins", Completion: &condition.Config{Kind: condition.KindItemCollected, ItemID: "coin", Count: condition.CountOf(3), FromInventory: true}},
		},
	})

	stop := start(t, h.worker("w1"))
	h.publish(t,
		condition.ItemCollected{ItemID: "coin", Amount: 2},
		condition.AreaEntered{AreaID: "vault"},
	)
	require.Eventually(t, func() bool {
		gs, _ := h.store.LoadGameState(context.Background(), h.session)
		return gs != nil && gs.Location == "vault"
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())

	// A new worker for the same session seeds the objective from the
	// restored inventory.
	w := h.worker("w2")
	start(t, w)
	h.enqueueQuest(t, queuePkg.RequestTypeStartQuest, "hoard")
	require.Eventually(t, func() bool { return h.hasStatus("hoard", quest.StatusInProgress) }, 5*time.Second, 10*time.Millisecond)

	h.publish(t, condition.ItemCollected{ItemID: "coin", Amount: 1})
	require.Eventually(t, func() bool { return h.hasStatus("hoard", quest.StatusCompleted) }, 5*time.Second, 10*time.Millisecond)
}

func TestWorker_SessionLock(t *testing.T) {
	h := newHarness(t)
	key := "quest-session-lock:" + h.session.String()

	require.NoError(t, h.mr.Set(key, "someone-else"))
	err := h.worker("w1").Run(context.Background())
	assert.ErrorIs(t, err, ErrSessionLocked)
	got, _ := h.mr.Get(key)
	assert.Equal(t, "someone-else", got, "lock held by another worker must survive")

	h.mr.Del(key)
	stop := start(t, h.worker("w2"))
	require.Eventually(t, func() bool { return h.mr.Exists(key) }, 5*time.Second, 10*time.Millisecond)
	got, _ = h.mr.Get(key)
	assert.Equal(t, "w2", got)

	assert.NoError(t, stop())
	assert.False(t, h.mr.Exists(key))
}

func TestWorker_StopsWhenSessionLockIsTakenOver(t *testing.T) {
	h := newHarness(t)
	key := "quest-session-lock:" + h.session.String()
	w := New(Options{
		ID:           "w1",
		SessionID:    h.session,
		Queue:        h.queue,
		Storage:      h.store,
		RedisClient:  h.client.GetRedisClient(),
		TickInterval: 10 * time.Millisecond,
		LockTTL:      90 * time.Millisecond,
		Logger:       h.logger,
	})

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()
	require.Eventually(t, func() bool {
		got, _ := h.mr.Get(key)
		return got == "w1"
	}, 5*time.Second, 10*time.Millisecond)

	// Another worker took the session after w1's lease lapsed.
	require.NoError(t, h.mr.Set(key, "w2"))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSessionLocked)
	case <-time.After(5 * time.Second):
		t.Fatal("worker kept running without its lock")
	}
	got, _ := h.mr.Get(key)
	assert.Equal(t, "w2", got)
	assert.Zero(t, h.mr.TTL(key), "w1 must not extend w2's lease")
}
