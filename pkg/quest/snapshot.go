package quest

import (
	"encoding/json"
	"fmt"
)

// Snapshot carries enough to restore quest and objective statuses.
// Condition progress is not included; restored objectives start their
// conditions fresh.
type Snapshot struct {
	QuestID    string              `json:"quest_id"`
	Status     Status              `json:"status"`
	Objectives []ObjectiveSnapshot `json:"objectives"`
}

// ObjectiveSnapshot is one (objective id, status) pair.
type ObjectiveSnapshot struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

// MarshalSnapshot encodes a snapshot as JSON.
func MarshalSnapshot(s Snapshot) ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalSnapshot decodes and sanity checks a JSON snapshot.
func UnmarshalSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	if err := s.validate(); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

func (s Snapshot) validate() error {
	if s.QuestID == "" {
		return fmt.Errorf("%w: missing quest id", ErrInvalidSnapshotState)
	}
	if !s.Status.Valid() {
		return fmt.Errorf("%w: quest %q status %d", ErrInvalidSnapshotState, s.QuestID, s.Status)
	}
	for _, o := range s.Objectives {
		if !o.Status.Valid() {
			return fmt.Errorf("%w: objective %q status %d", ErrInvalidSnapshotState, o.ID, o.Status)
		}
	}
	return nil
}
