package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/quest-engine/pkg/eventbus"
	"github.com/jwebster45206/quest-engine/pkg/quest"
	"github.com/redis/go-redis/v9"
)

// Event is the JSON message published on a session's channel
type Event struct {
	Type        eventbus.Kind `json:"type"`
	SessionID   string        `json:"session_id"`
	QuestID     string        `json:"quest_id"`
	Data        any           `json:"data"`
	PublishedAt time.Time     `json:"published_at"`
}

// Subscriber is the part of the event bus the broadcaster listens on
type Subscriber interface {
	Subscribe(kind eventbus.Kind, handler eventbus.Handler) eventbus.Subscription
	Unsubscribe(sub eventbus.Subscription)
}

// Broadcaster forwards quest lifecycle events to Redis Pub/Sub so other
// processes can follow a session
type Broadcaster struct {
	redisClient *redis.Client
	sessionID   uuid.UUID
	logger      *slog.Logger

	mu   sync.Mutex
	bus  Subscriber
	subs []eventbus.Subscription
	ctx  context.Context
}

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, sessionID uuid.UUID, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		redisClient: redisClient,
		sessionID:   sessionID,
		logger:      logger,
	}
}

// Channel returns the Pub/Sub channel for a session
func Channel(sessionID uuid.UUID) string {
	return fmt.Sprintf("quest-events:%s", sessionID.String())
}

// Attach subscribes to the three lifecycle kinds on bus. ctx bounds every
// publish made on behalf of the bus. Attaching again first detaches.
func (b *Broadcaster) Attach(ctx context.Context, bus Subscriber) {
	b.Detach()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.bus = bus
	b.ctx = ctx
	b.subs = []eventbus.Subscription{
		bus.Subscribe(quest.EventObjectiveStatusChanged, b.forward),
		bus.Subscribe(quest.EventQuestCompleted, b.forward),
		bus.Subscribe(quest.EventQuestFailed, b.forward),
	}
}

// Detach removes the bus subscriptions. It is safe to call when not attached.
func (b *Broadcaster) Detach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bus == nil {
		return
	}
	for _, sub := range b.subs {
		b.bus.Unsubscribe(sub)
	}
	b.bus = nil
	b.subs = nil
}

func (b *Broadcaster) forward(ev eventbus.Event) {
	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	var err error
	switch e := ev.(type) {
	case quest.ObjectiveStatusChanged:
		err = b.PublishObjectiveStatusChanged(ctx, e)
	case quest.QuestCompleted:
		err = b.PublishQuestCompleted(ctx, e)
	case quest.QuestFailed:
		err = b.PublishQuestFailed(ctx, e)
	}
	if err != nil {
		b.logger.Warn("Dropped lifecycle event", "event_kind", ev.Kind(), "error", err)
	}
}

// PublishObjectiveStatusChanged publishes a quest.objective_status_changed event
func (b *Broadcaster) PublishObjectiveStatusChanged(ctx context.Context, e quest.ObjectiveStatusChanged) error {
	return b.publishToSession(ctx, Event{
		Type:    e.Kind(),
		QuestID: e.QuestID,
		Data:    e,
	})
}

// PublishQuestCompleted publishes a quest.completed event
func (b *Broadcaster) PublishQuestCompleted(ctx context.Context, e quest.QuestCompleted) error {
	return b.publishToSession(ctx, Event{
		Type:    e.Kind(),
		QuestID: e.Quest.QuestID,
		Data:    e,
	})
}

// PublishQuestFailed publishes a quest.failed event
func (b *Broadcaster) PublishQuestFailed(ctx context.Context, e quest.QuestFailed) error {
	return b.publishToSession(ctx, Event{
		Type:    e.Kind(),
		QuestID: e.Quest.QuestID,
		Data:    e,
	})
}

// publishToSession publishes an event to the session-specific channel
func (b *Broadcaster) publishToSession(ctx context.Context, event Event) error {
	channel := Channel(b.sessionID)
	event.SessionID = b.sessionID.String()
	event.PublishedAt = time.Now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event_type", event.Type)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", event.Type,
		"quest_id", event.QuestID,
	)

	return nil
}
