package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/quest-engine/pkg/condition"
	"github.com/jwebster45206/quest-engine/pkg/eventbus"
)

// RequestType identifies the type of request in the queue
type RequestType string

const (
	// RequestTypeGameEvent carries a gameplay event to publish on the bus
	RequestTypeGameEvent RequestType = "game_event"

	// RequestTypeStartQuest starts a quest by id
	RequestTypeStartQuest RequestType = "start_quest"

	// RequestTypeAbandonQuest drops a quest by id
	RequestTypeAbandonQuest RequestType = "abandon_quest"
)

var ErrInvalidRequest = errors.New("invalid queue request")

// Request is one unit of work for a session's worker.
type Request struct {
	RequestID string      `json:"request_id"`
	Type      RequestType `json:"type"`
	SessionID uuid.UUID   `json:"session_id"`

	// Game event fields; Event holds an encoded condition.Envelope
	Event json.RawMessage `json:"event,omitempty"`

	// Quest command fields
	QuestID string `json:"quest_id,omitempty"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewEventRequest wraps a gameplay event for the session queue.
func NewEventRequest(sessionID uuid.UUID, ev eventbus.Event) (*Request, error) {
	data, err := condition.EncodeEvent(ev)
	if err != nil {
		return nil, err
	}
	return &Request{
		RequestID:  uuid.New().String(),
		Type:       RequestTypeGameEvent,
		SessionID:  sessionID,
		Event:      data,
		EnqueuedAt: time.Now(),
	}, nil
}

// NewQuestRequest builds a start or abandon command.
func NewQuestRequest(t RequestType, sessionID uuid.UUID, questID string) *Request {
	return &Request{
		RequestID:  uuid.New().String(),
		Type:       t,
		SessionID:  sessionID,
		QuestID:    questID,
		EnqueuedAt: time.Now(),
	}
}

// DecodeEvent returns the gameplay event carried by a game_event request.
func (r *Request) DecodeEvent() (eventbus.Event, error) {
	if r.Type != RequestTypeGameEvent {
		return nil, fmt.Errorf("%w: %s request carries no event", ErrInvalidRequest, r.Type)
	}
	return condition.DecodeEvent(r.Event)
}

// Validate checks that the fields required by the request type are present.
func (r *Request) Validate() error {
	if r.SessionID == uuid.Nil {
		return fmt.Errorf("%w: missing session id", ErrInvalidRequest)
	}
	switch r.Type {
	case RequestTypeGameEvent:
		if len(r.Event) == 0 {
			return fmt.Errorf("%w: game_event without event", ErrInvalidRequest)
		}
	case RequestTypeStartQuest, RequestTypeAbandonQuest:
		if r.QuestID == "" {
			return fmt.Errorf("%w: %s without quest id", ErrInvalidRequest, r.Type)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidRequest, r.Type)
	}
	return nil
}

// ToJSON converts the request to JSON bytes for Redis
func (r *Request) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON parses and validates a request from JSON bytes
func FromJSON(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}
