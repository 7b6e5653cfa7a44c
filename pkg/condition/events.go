package condition

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jwebster45206/quest-engine/pkg/eventbus"
)

// Gameplay event kinds consumed by leaf conditions.
const (
	EventItemCollected eventbus.Kind = "item.collected"
	EventAreaEntered   eventbus.Kind = "area.entered"
	EventFlagChanged   eventbus.Kind = "flag.changed"
	EventEnemyKilled   eventbus.Kind = "enemy.killed"
)

// ErrUnknownEvent is returned when decoding an envelope whose kind has no
// registered payload type.
var ErrUnknownEvent = errors.New("unknown event kind")

// ItemCollected is published when the player gains (or, with a negative
// amount, loses) items.
type ItemCollected struct {
	ItemID string `json:"item_id"`
	Amount int    `json:"amount"`
}

func (ItemCollected) Kind() eventbus.Kind { return EventItemCollected }

// AreaEntered is published when the player enters an area.
type AreaEntered struct {
	AreaID string `json:"area_id"`
}

func (AreaEntered) Kind() eventbus.Kind { return EventAreaEntered }

// FlagChanged is published whenever a world flag is written.
type FlagChanged struct {
	FlagID string `json:"flag_id"`
	Value  bool   `json:"value"`
}

func (FlagChanged) Kind() eventbus.Kind { return EventFlagChanged }

// EnemyKilled is published when one or more enemies of a type are defeated.
// A zero Count is treated as a single kill.
type EnemyKilled struct {
	EnemyID string `json:"enemy_id"`
	Count   int    `json:"count,omitempty"`
}

func (EnemyKilled) Kind() eventbus.Kind { return EventEnemyKilled }

// Envelope is the wire form of a gameplay event.
type Envelope struct {
	Kind eventbus.Kind   `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// EncodeEvent wraps ev in an Envelope and marshals it.
func EncodeEvent(ev eventbus.Event) ([]byte, error) {
	if ev == nil {
		return nil, fmt.Errorf("cannot encode nil event")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", ev.Kind(), err)
	}
	return json.Marshal(Envelope{Kind: ev.Kind(), Data: data})
}

// DecodeEvent unmarshals an Envelope into its typed gameplay event.
func DecodeEvent(data []byte) (eventbus.Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}

	var ev eventbus.Event
	var err error
	switch env.Kind {
	case EventItemCollected:
		var p ItemCollected
		err = unmarshalPayload(env.Data, &p)
		ev = p
	case EventAreaEntered:
		var p AreaEntered
		err = unmarshalPayload(env.Data, &p)
		ev = p
	case EventFlagChanged:
		var p FlagChanged
		err = unmarshalPayload(env.Data, &p)
		ev = p
	case EventEnemyKilled:
		var p EnemyKilled
		err = unmarshalPayload(env.Data, &p)
		ev = p
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", env.Kind, err)
	}
	return ev, nil
}

func unmarshalPayload(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
