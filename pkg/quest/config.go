// Package quest runs quests: ordered objectives gated by prerequisites and
// resolved by condition trees, with lifecycle events published on an event
// bus.
package quest

import (
	"fmt"

	"github.com/jwebster45206/quest-engine/pkg/condition"
)

// Config is the authored definition of a quest. It is read-only at runtime
// and may be started by several managers.
type Config struct {
	ID          string             `json:"id"`
	Title       string             `json:"title,omitempty"`
	Description string             `json:"description,omitempty"`
	Objectives  []*ObjectiveConfig `json:"objectives"`
}

// ObjectiveConfig is the authored definition of one objective.
type ObjectiveConfig struct {
	ID            string            `json:"id"`
	Description   string            `json:"description,omitempty"`
	Optional      bool              `json:"optional,omitempty"`
	Prerequisites []string          `json:"prerequisites,omitempty"`
	Completion    *condition.Config `json:"completion"`
	Failure       *condition.Config `json:"failure,omitempty"`
}

// Validate checks quest-level structure: ids, prerequisites and cycles.
// Problems found here stop the quest from starting. Condition trees are
// checked per objective by ValidateObjectives, since a broken objective
// only blocks itself.
func (c *Config) Validate() error {
	if c == nil {
		return &ConfigurationError{Err: ErrNilQuest}
	}
	if c.ID == "" {
		return &ConfigurationError{Err: ErrMissingQuestID}
	}
	if len(c.Objectives) == 0 {
		return &ConfigurationError{QuestID: c.ID, Err: ErrNoObjectives}
	}

	ids := make(map[string]*ObjectiveConfig, len(c.Objectives))
	for i, o := range c.Objectives {
		if o == nil {
			return &ConfigurationError{QuestID: c.ID, Err: fmt.Errorf("%w at index %d", ErrNilObjective, i)}
		}
		if o.ID == "" {
			return &ConfigurationError{QuestID: c.ID, Err: fmt.Errorf("%w at index %d", ErrMissingObjectiveID, i)}
		}
		if _, dup := ids[o.ID]; dup {
			return &ConfigurationError{QuestID: c.ID, ObjectiveID: o.ID, Err: ErrDuplicateObjective}
		}
		ids[o.ID] = o
	}

	for _, o := range c.Objectives {
		for _, p := range o.Prerequisites {
			if _, ok := ids[p]; !ok {
				return &ConfigurationError{QuestID: c.ID, ObjectiveID: o.ID, Err: fmt.Errorf("%w: %q", ErrUnknownPrerequisite, p)}
			}
		}
	}

	// Depth-first search for prerequisite cycles.
	const (
		unvisited = iota
		visiting
		done
	)
	marks := make(map[string]int, len(ids))
	var visit func(id string) error
	visit = func(id string) error {
		switch marks[id] {
		case visiting:
			return &ConfigurationError{QuestID: c.ID, ObjectiveID: id, Err: ErrPrerequisiteCycle}
		case done:
			return nil
		}
		marks[id] = visiting
		for _, p := range ids[id].Prerequisites {
			if err := visit(p); err != nil {
				return err
			}
		}
		marks[id] = done
		return nil
	}
	for _, o := range c.Objectives {
		if err := visit(o.ID); err != nil {
			return err
		}
	}

	return nil
}

// ValidateObjectives returns one error per objective whose condition trees
// cannot be built.
func (c *Config) ValidateObjectives() []error {
	var errs []error
	for _, o := range c.Objectives {
		if o == nil {
			continue
		}
		if err := o.Validate(); err != nil {
			errs = append(errs, &ConfigurationError{QuestID: c.ID, ObjectiveID: o.ID, Err: err})
		}
	}
	return errs
}

// Validate checks the objective's condition trees.
func (o *ObjectiveConfig) Validate() error {
	if o.Completion == nil {
		return ErrMissingCompletion
	}
	if err := o.Completion.Validate(); err != nil {
		return fmt.Errorf("completion: %w", err)
	}
	if o.Failure != nil {
		if err := o.Failure.Validate(); err != nil {
			return fmt.Errorf("failure: %w", err)
		}
	}
	return nil
}
