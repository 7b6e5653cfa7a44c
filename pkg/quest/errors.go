package quest

import (
	"errors"
	"fmt"
)

var (
	ErrNilQuest             = errors.New("quest config is nil")
	ErrMissingQuestID       = errors.New("quest id is required")
	ErrNoObjectives         = errors.New("quest has no objectives")
	ErrNilObjective         = errors.New("quest references a nil objective")
	ErrMissingObjectiveID   = errors.New("objective id is required")
	ErrDuplicateObjective   = errors.New("duplicate objective id")
	ErrUnknownPrerequisite  = errors.New("unknown prerequisite objective")
	ErrPrerequisiteCycle    = errors.New("prerequisite cycle")
	ErrMissingCompletion    = errors.New("objective has no completion condition")
	ErrQuestActive          = errors.New("quest already started")
	ErrQuestNotFound        = errors.New("quest not found")
	ErrSnapshotMismatch     = errors.New("snapshot does not match quest config")
	ErrInvalidSnapshotState = errors.New("invalid snapshot status")
)

// ConfigurationError reports an authoring problem detected when a quest is
// started or an objective is activated. It is fatal to that quest or
// objective only.
type ConfigurationError struct {
	QuestID     string
	ObjectiveID string // empty for quest-level problems
	Err         error
}

func (e *ConfigurationError) Error() string {
	if e.ObjectiveID != "" {
		return fmt.Sprintf("quest %q objective %q: %v", e.QuestID, e.ObjectiveID, e.Err)
	}
	return fmt.Sprintf("quest %q: %v", e.QuestID, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
