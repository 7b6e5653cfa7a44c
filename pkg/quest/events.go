package quest

import "github.com/jwebster45206/quest-engine/pkg/eventbus"

// Lifecycle event kinds published by the Manager. Each is published once
// per underlying transition.
const (
	EventObjectiveStatusChanged eventbus.Kind = "quest.objective_status_changed"
	EventQuestCompleted         eventbus.Kind = "quest.completed"
	EventQuestFailed            eventbus.Kind = "quest.failed"
)

// ObjectiveStatusChanged reports an objective transition.
type ObjectiveStatusChanged struct {
	QuestID   string            `json:"quest_id"`
	Objective ObjectiveSnapshot `json:"objective"`
	Previous  Status            `json:"previous"`
}

func (ObjectiveStatusChanged) Kind() eventbus.Kind { return EventObjectiveStatusChanged }

// QuestCompleted reports that every required objective completed.
type QuestCompleted struct {
	Quest Snapshot `json:"quest"`
}

func (QuestCompleted) Kind() eventbus.Kind { return EventQuestCompleted }

// QuestFailed reports that a required objective failed.
type QuestFailed struct {
	Quest       Snapshot `json:"quest"`
	ObjectiveID string   `json:"objective_id,omitempty"`
}

func (QuestFailed) Kind() eventbus.Kind { return EventQuestFailed }
