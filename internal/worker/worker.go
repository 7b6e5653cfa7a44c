package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/quest-engine/internal/services/events"
	"github.com/jwebster45206/quest-engine/internal/services/queue"
	"github.com/jwebster45206/quest-engine/pkg/eventbus"
	queuePkg "github.com/jwebster45206/quest-engine/pkg/queue"
	"github.com/jwebster45206/quest-engine/pkg/quest"
	"github.com/jwebster45206/quest-engine/pkg/state"
	"github.com/jwebster45206/quest-engine/pkg/storage"
	"github.com/redis/go-redis/v9"
)

const (
	dequeueTimeout = time.Second
	defaultLockTTL = 30 * time.Second
	retryDelay     = time.Second
)

var ErrSessionLocked = errors.New("session is owned by another worker")

// Options configures a Worker. Queue and Storage are required.
type Options struct {
	ID           string
	SessionID    uuid.UUID
	Queue        *queue.EventQueue
	Storage      storage.Storage
	RedisClient  *redis.Client // session lock; nil disables locking
	Broadcaster  *events.Broadcaster
	TickInterval time.Duration
	LockTTL      time.Duration // session lock lease; refreshed every third of it
	Logger       *slog.Logger
}

// Worker owns one session: its event bus, its world state, its quest
// manager and every mutation of quest state. Requests are received on a separate goroutine
// and handed to the run loop, which also drives ticks.
type Worker struct {
	id           string
	sessionID    uuid.UUID
	queue        *queue.EventQueue
	store        storage.Storage
	redisClient  *redis.Client
	broadcaster  *events.Broadcaster
	tickInterval time.Duration
	lockTTL      time.Duration
	log          *slog.Logger

	bus        *eventbus.Bus
	world      *state.GameState
	manager    *quest.Manager
	dirty      map[string]bool
	worldDirty bool
}

// New creates a new worker instance
func New(opts Options) *Worker {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	id := opts.ID
	if id == "" {
		id = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}
	tick := opts.TickInterval
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	ttl := opts.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	bus := eventbus.New(log)
	world := state.NewGameState(opts.SessionID)
	w := &Worker{
		id:           id,
		sessionID:    opts.SessionID,
		queue:        opts.Queue,
		store:        opts.Storage,
		redisClient:  opts.RedisClient,
		broadcaster:  opts.Broadcaster,
		tickInterval: tick,
		lockTTL:      ttl,
		log:          log.With("worker_id", id, "session_id", opts.SessionID.String()),
		bus:          bus,
		world:        world,
		manager:      quest.NewManager(bus, world.Context(), log),
		dirty:        make(map[string]bool),
	}

	// The world is subscribed first so conditions observe each event
	// already applied to it.
	world.Track(bus)

	for _, kind := range []eventbus.Kind{quest.EventObjectiveStatusChanged, quest.EventQuestCompleted, quest.EventQuestFailed} {
		bus.Subscribe(kind, w.markDirty)
	}
	return w
}

// Bus returns the worker's event bus.
func (w *Worker) Bus() *eventbus.Bus {
	return w.bus
}

// World returns the session's world state. Like Manager, it belongs to
// the run loop.
func (w *Worker) World() *state.GameState {
	return w.world
}

// Manager returns the worker's quest manager. It must only be used from
// the run loop, for example from a bus handler.
func (w *Worker) Manager() *quest.Manager {
	return w.manager
}

// Run restores the session, then processes requests and ticks until ctx is
// cancelled. It returns ErrSessionLocked if another worker holds the
// session, or takes it over after this worker's lease lapsed.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Worker starting")

	locked, err := w.acquireSessionLock(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire session lock: %w", err)
	}
	if !locked {
		return ErrSessionLocked
	}
	defer w.releaseSessionLock()

	w.restore(ctx)

	if w.broadcaster != nil {
		w.broadcaster.Attach(ctx, w.bus)
		defer w.broadcaster.Detach()
	}

	recvCtx, stopReceiving := context.WithCancel(ctx)
	reqs := make(chan *queuePkg.Request)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.receive(recvCtx, reqs)
	}()
	defer wg.Wait()
	defer stopReceiving()

	ticker := time.NewTicker(w.tickInterval)
	defer ticker.Stop()
	lastTick := time.Now()
	lastRefresh := lastTick

	for {
		select {
		case <-ctx.Done():
			w.flush(context.Background())
			w.log.Info("Worker shutting down")
			return nil

		case req := <-reqs:
			w.handle(ctx, req)
			w.flush(ctx)

		case now := <-ticker.C:
			w.manager.Tick(now.Sub(lastTick))
			lastTick = now
			w.flush(ctx)

			if now.Sub(lastRefresh) >= w.lockTTL/3 {
				if !w.refreshSessionLock(ctx) {
					return ErrSessionLocked
				}
				lastRefresh = now
			}
		}
	}
}

// receive feeds requests to the run loop until ctx is cancelled. A request
// dequeued after cancellation is put back at the head of the queue.
func (w *Worker) receive(ctx context.Context, out chan<- *queuePkg.Request) {
	for ctx.Err() == nil {
		req, err := w.queue.BlockingDequeue(ctx, w.sessionID, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error("Error dequeuing request", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}
			continue
		}
		if req == nil {
			continue
		}

		select {
		case out <- req:
		case <-ctx.Done():
			requeueCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := w.queue.Requeue(requeueCtx, req); err != nil {
				w.log.Error("Failed to re-queue request", "error", err, "request_id", req.RequestID)
			}
			cancel()
			return
		}
	}
}

func (w *Worker) handle(ctx context.Context, req *queuePkg.Request) {
	log := w.log.With("request_id", req.RequestID, "type", req.Type)
	if req.SessionID != w.sessionID {
		log.Warn("Ignoring request for another session", "request_session_id", req.SessionID.String())
		return
	}

	switch req.Type {
	case queuePkg.RequestTypeGameEvent:
		ev, err := req.DecodeEvent()
		if err != nil {
			log.Error("Failed to decode game event", "error", err)
			return
		}
		log.Debug("Publishing game event", "event_kind", ev.Kind())
		w.bus.Publish(ev)
		w.worldDirty = true

	case queuePkg.RequestTypeStartQuest:
		cfg, err := w.store.GetQuest(ctx, req.QuestID)
		if err != nil {
			log.Error("Failed to load quest", "error", err, "quest_id", req.QuestID)
			return
		}
		if _, err := w.manager.StartQuest(cfg); err != nil {
			log.Error("Failed to start quest", "error", err, "quest_id", req.QuestID)
			return
		}
		w.dirty[cfg.ID] = true

	case queuePkg.RequestTypeAbandonQuest:
		if err := w.manager.AbandonQuest(req.QuestID); err != nil {
			log.Warn("Failed to abandon quest", "error", err, "quest_id", req.QuestID)
			return
		}
		delete(w.dirty, req.QuestID)
		if err := w.store.DeleteSnapshot(ctx, w.sessionID, req.QuestID); err != nil {
			log.Error("Failed to delete snapshot", "error", err, "quest_id", req.QuestID)
		}

	default:
		log.Warn("Unknown request type")
	}
}

// restore reloads the world state, then rebuilds every quest that has a
// stored snapshot.
func (w *Worker) restore(ctx context.Context) {
	world, err := w.store.LoadGameState(ctx, w.sessionID)
	if err != nil {
		w.log.Error("Failed to load game state", "error", err)
	} else if world != nil {
		w.world.Location = world.Location
		w.world.Flags = world.Flags
		w.world.Inventory = world.Inventory
		w.world.Kills = world.Kills
	}

	snaps, err := w.store.ListSnapshots(ctx, w.sessionID)
	if err != nil {
		w.log.Error("Failed to list snapshots", "error", err)
		return
	}
	for _, snap := range snaps {
		cfg, err := w.store.GetQuest(ctx, snap.QuestID)
		if err != nil {
			w.log.Error("Cannot restore quest", "error", err, "quest_id", snap.QuestID)
			continue
		}
		if _, err := w.manager.RestoreQuest(cfg, snap); err != nil {
			w.log.Error("Cannot restore quest", "error", err, "quest_id", snap.QuestID)
		}
	}
	w.flush(ctx)
	w.log.Info("Session restored", "quests", len(w.manager.Quests()))
}

func (w *Worker) markDirty(ev eventbus.Event) {
	switch e := ev.(type) {
	case quest.ObjectiveStatusChanged:
		w.dirty[e.QuestID] = true
	case quest.QuestCompleted:
		w.dirty[e.Quest.QuestID] = true
	case quest.QuestFailed:
		w.dirty[e.Quest.QuestID] = true
	}
}

// flush persists the world state if it changed and the snapshot of every
// quest touched since the last flush.
func (w *Worker) flush(ctx context.Context) {
	if w.worldDirty {
		if err := w.store.SaveGameState(ctx, w.world); err != nil {
			w.log.Error("Failed to save game state", "error", err)
		} else {
			w.worldDirty = false
		}
	}
	if len(w.dirty) == 0 {
		return
	}
	ids := make([]string, 0, len(w.dirty))
	for id := range w.dirty {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		snap, err := w.manager.Snapshot(id)
		if err != nil {
			delete(w.dirty, id)
			continue
		}
		if err := w.store.SaveSnapshot(ctx, w.sessionID, snap); err != nil {
			w.log.Error("Failed to save snapshot", "error", err, "quest_id", id)
			continue
		}
		delete(w.dirty, id)
	}
}

func (w *Worker) lockKey() string {
	return fmt.Sprintf("quest-session-lock:%s", w.sessionID.String())
}

// acquireSessionLock attempts to acquire the session lock
// Returns true if lock was acquired, false if already locked
func (w *Worker) acquireSessionLock(ctx context.Context) (bool, error) {
	if w.redisClient == nil {
		return true, nil
	}
	return w.redisClient.SetNX(ctx, w.lockKey(), w.id, w.lockTTL).Result()
}

var refreshScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// refreshSessionLock extends the lock, but only while this worker owns it.
// It reports false when the lock has been lost.
func (w *Worker) refreshSessionLock(ctx context.Context) bool {
	if w.redisClient == nil {
		return true
	}
	n, err := refreshScript.Run(ctx, w.redisClient, []string{w.lockKey()}, w.id, w.lockTTL.Milliseconds()).Int()
	if err != nil {
		w.log.Error("Failed to refresh session lock", "error", err)
		return true
	}
	if n == 0 {
		w.log.Warn("Session lock is no longer owned by this worker")
		return false
	}
	return true
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// releaseSessionLock releases the lock, but only if this worker owns it
func (w *Worker) releaseSessionLock() {
	if w.redisClient == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, w.redisClient, []string{w.lockKey()}, w.id).Err(); err != nil {
		w.log.Error("Failed to release session lock", "error", err)
	}
}
