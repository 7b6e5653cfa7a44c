package quest

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jwebster45206/quest-engine/pkg/condition"
	"github.com/jwebster45206/quest-engine/pkg/eventbus"
)

// Bus is what the Manager needs from the event bus: conditions subscribe
// through it and lifecycle events are published on it.
type Bus interface {
	condition.Source
	Publish(ev eventbus.Event)
}

// Manager owns the active quests and is the only mutator of quest and
// objective status. It is driven from a single goroutine: bus dispatch and
// Tick must not run concurrently for the same manager.
type Manager struct {
	bus    Bus
	qctx   *condition.Context
	logger *slog.Logger

	quests map[string]*QuestState
	order  []string
}

// NewManager creates a manager publishing on bus. qctx may be nil.
func NewManager(bus Bus, qctx *condition.Context, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		bus:    bus,
		qctx:   qctx,
		logger: logger,
		quests: make(map[string]*QuestState),
	}
}

// StartQuest validates cfg, registers a new quest and activates every
// objective whose prerequisites are already satisfied.
func (m *Manager) StartQuest(cfg *Config) (*QuestState, error) {
	if err := cfg.Validate(); err != nil {
		m.logger.Error("Quest failed to start", "error", err)
		return nil, err
	}
	if _, ok := m.quests[cfg.ID]; ok {
		return nil, fmt.Errorf("%w: %q", ErrQuestActive, cfg.ID)
	}

	q := newQuestState(cfg)
	m.register(q)
	q.status = StatusInProgress
	m.logger.Info("Quest started", "quest_id", q.ID, "objectives", len(q.order))

	m.activateReady(q)
	if m.live(q) {
		m.resolveQuest(q)
	}
	return q, nil
}

// AbandonQuest unbinds every objective of the quest and forgets it. No
// lifecycle event is published.
func (m *Manager) AbandonQuest(id string) error {
	q, ok := m.quests[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrQuestNotFound, id)
	}
	q.releaseAll()
	delete(m.quests, id)
	m.order = slices.DeleteFunc(m.order, func(s string) bool { return s == id })
	m.logger.Debug("Quest abandoned", "quest_id", id, "status", q.status.String())
	return nil
}

// Quest returns the quest with the given id.
func (m *Manager) Quest(id string) (*QuestState, bool) {
	q, ok := m.quests[id]
	return q, ok
}

// Quests returns every known quest in start order, terminal ones included.
func (m *Manager) Quests() []*QuestState {
	out := make([]*QuestState, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.quests[id])
	}
	return out
}

// Tick advances every poll-driven condition of every objective that was in
// progress when the tick began. Objectives activated during the tick start
// accumulating on the next one.
func (m *Manager) Tick(delta time.Duration) {
	type due struct {
		q *QuestState
		o *ObjectiveState
	}
	var polled []due
	for _, qid := range m.order {
		q, ok := m.quests[qid]
		if !ok || !m.live(q) {
			continue
		}
		for _, oid := range q.order {
			o := q.objectives[oid]
			if o.status == StatusInProgress && o.binder != nil {
				polled = append(polled, due{q: q, o: o})
			}
		}
	}

	for _, d := range polled {
		if !m.live(d.q) || d.o.status != StatusInProgress {
			continue
		}
		d.o.binder.Tick(delta)
	}
}

// Snapshot captures the statuses of one quest.
func (m *Manager) Snapshot(id string) (Snapshot, error) {
	q, ok := m.quests[id]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrQuestNotFound, id)
	}
	return q.Snapshot(), nil
}

// Snapshots captures every quest in start order.
func (m *Manager) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.quests[id].Snapshot())
	}
	return out
}

// RestoreQuest rebuilds a quest from its config and a snapshot. In-progress
// objectives are bound again with fresh condition progress. A snapshot that
// has started an objective whose prerequisites are not all completed is
// rejected with ErrSnapshotMismatch. Terminal quests
// are restored inert. Restored statuses do not publish lifecycle events;
// transitions that follow from them do.
func (m *Manager) RestoreQuest(cfg *Config, snap Snapshot) (*QuestState, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := snap.validate(); err != nil {
		return nil, err
	}
	if snap.QuestID != cfg.ID {
		return nil, fmt.Errorf("%w: snapshot %q, config %q", ErrSnapshotMismatch, snap.QuestID, cfg.ID)
	}
	if _, ok := m.quests[cfg.ID]; ok {
		return nil, fmt.Errorf("%w: %q", ErrQuestActive, cfg.ID)
	}

	q := newQuestState(cfg)
	for _, entry := range snap.Objectives {
		o, ok := q.objectives[entry.ID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown objective %q", ErrSnapshotMismatch, entry.ID)
		}
		o.status = entry.Status
	}
	for _, o := range q.Objectives() {
		if o.status != StatusNotStarted && !q.prerequisitesMet(o) {
			return nil, fmt.Errorf("%w: objective %q is %s before its prerequisites completed", ErrSnapshotMismatch, o.ID, o.status)
		}
	}
	q.status = snap.Status
	m.register(q)
	m.logger.Info("Quest restored", "quest_id", q.ID, "status", q.status.String())

	if q.status != StatusInProgress {
		return q, nil
	}

	var rebound []*ObjectiveState
	for _, o := range q.Objectives() {
		if o.status != StatusInProgress {
			continue
		}
		if !m.build(q, o) {
			continue
		}
		o.binder.Bind()
		rebound = append(rebound, o)
	}
	for _, o := range rebound {
		m.onObjectiveChanged(q, o)
	}
	if m.live(q) {
		m.activateReady(q)
	}
	if m.live(q) {
		m.resolveQuest(q)
	}
	return q, nil
}

func (m *Manager) register(q *QuestState) {
	m.quests[q.ID] = q
	m.order = append(m.order, q.ID)
}

// live reports whether q is still managed and not yet resolved.
func (m *Manager) live(q *QuestState) bool {
	return m.quests[q.ID] == q && !q.status.IsTerminal()
}

func (m *Manager) activateReady(q *QuestState) {
	for _, id := range q.order {
		if !m.live(q) {
			return
		}
		o := q.objectives[id]
		if o.status != StatusNotStarted || o.err != nil || !q.prerequisitesMet(o) {
			continue
		}
		m.activate(q, o)
	}
}

// activate moves o to InProgress, announces it, then binds its trees. Trees
// that are already satisfied resolve the objective immediately.
func (m *Manager) activate(q *QuestState, o *ObjectiveState) {
	if !m.build(q, o) {
		return
	}

	prev := o.status
	o.status = StatusInProgress
	m.logger.Debug("Objective activated", "quest_id", q.ID, "objective_id", o.ID)
	m.bus.Publish(ObjectiveStatusChanged{QuestID: q.ID, Objective: o.snapshot(), Previous: prev})

	if !m.live(q) || o.status != StatusInProgress {
		return
	}
	o.binder.Bind()
	m.onObjectiveChanged(q, o)
}

func (m *Manager) build(q *QuestState, o *ObjectiveState) bool {
	err := o.build(m.bus, m.qctx, func() { m.onObjectiveChanged(q, o) })
	if err != nil {
		o.err = &ConfigurationError{QuestID: q.ID, ObjectiveID: o.ID, Err: err}
		m.logger.Error("Objective cannot activate", "quest_id", q.ID, "objective_id", o.ID, "error", err)
		return false
	}
	return true
}

func (m *Manager) onObjectiveChanged(q *QuestState, o *ObjectiveState) {
	if !m.live(q) || o.status != StatusInProgress {
		return
	}
	next := o.evaluate()
	if next == StatusInProgress {
		return
	}

	prev := o.status
	o.status = next
	o.release()
	m.logger.Info("Objective resolved", "quest_id", q.ID, "objective_id", o.ID, "status", next.String())
	m.bus.Publish(ObjectiveStatusChanged{QuestID: q.ID, Objective: o.snapshot(), Previous: prev})

	m.afterObjectiveResolved(q, o)
}

func (m *Manager) afterObjectiveResolved(q *QuestState, o *ObjectiveState) {
	if !m.live(q) {
		return
	}
	switch {
	case o.status == StatusFailed && !o.Optional:
		m.failQuest(q, o.ID)
		return
	case o.status == StatusFailed:
		m.warnBlocked(q, o)
	case o.status == StatusCompleted:
		m.activateReady(q)
	}
	if m.live(q) {
		m.resolveQuest(q)
	}
}

// warnBlocked logs required objectives that can no longer start because an
// optional prerequisite failed.
func (m *Manager) warnBlocked(q *QuestState, failed *ObjectiveState) {
	for _, o := range q.Objectives() {
		if o.Optional || o.status != StatusNotStarted {
			continue
		}
		if slices.Contains(o.Prerequisites, failed.ID) {
			m.logger.Warn("Objective blocked by failed optional prerequisite",
				"quest_id", q.ID, "objective_id", o.ID, "prerequisite", failed.ID)
		}
	}
}

func (m *Manager) resolveQuest(q *QuestState) {
	switch q.resolution() {
	case StatusCompleted:
		q.status = StatusCompleted
		q.releaseAll()
		m.logger.Info("Quest completed", "quest_id", q.ID)
		m.bus.Publish(QuestCompleted{Quest: q.Snapshot()})
	case StatusFailed:
		m.failQuest(q, "")
	}
}

func (m *Manager) failQuest(q *QuestState, objectiveID string) {
	q.status = StatusFailed
	q.releaseAll()
	m.logger.Info("Quest failed", "quest_id", q.ID, "objective_id", objectiveID)
	m.bus.Publish(QuestFailed{Quest: q.Snapshot(), ObjectiveID: objectiveID})
}
