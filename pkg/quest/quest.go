package quest

// QuestState is the runtime aggregate of one started quest. It owns its
// objectives exclusively.
type QuestState struct {
	ID          string
	Title       string
	Description string

	status     Status
	objectives map[string]*ObjectiveState
	order      []string
}

func newQuestState(cfg *Config) *QuestState {
	q := &QuestState{
		ID:          cfg.ID,
		Title:       cfg.Title,
		Description: cfg.Description,
		status:      StatusNotStarted,
		objectives:  make(map[string]*ObjectiveState, len(cfg.Objectives)),
		order:       make([]string, 0, len(cfg.Objectives)),
	}
	for _, oc := range cfg.Objectives {
		q.objectives[oc.ID] = newObjectiveState(oc)
		q.order = append(q.order, oc.ID)
	}
	return q
}

// Status returns the quest status.
func (q *QuestState) Status() Status {
	return q.status
}

// Objective looks up an objective by id.
func (q *QuestState) Objective(id string) (*ObjectiveState, bool) {
	o, ok := q.objectives[id]
	return o, ok
}

// Objectives returns the objectives in authored order.
func (q *QuestState) Objectives() []*ObjectiveState {
	out := make([]*ObjectiveState, len(q.order))
	for i, id := range q.order {
		out[i] = q.objectives[id]
	}
	return out
}

// Snapshot captures the quest and objective statuses.
func (q *QuestState) Snapshot() Snapshot {
	s := Snapshot{
		QuestID:    q.ID,
		Status:     q.status,
		Objectives: make([]ObjectiveSnapshot, len(q.order)),
	}
	for i, id := range q.order {
		s.Objectives[i] = q.objectives[id].snapshot()
	}
	return s
}

func (q *QuestState) prerequisitesMet(o *ObjectiveState) bool {
	for _, p := range o.Prerequisites {
		dep, ok := q.objectives[p]
		if !ok || dep.status != StatusCompleted {
			return false
		}
	}
	return true
}

// resolution derives the quest status from its objectives. Required
// objectives decide the outcome and only a failed required objective fails
// the quest. A quest with no required objectives completes once every
// objective is terminal, whatever their outcomes.
func (q *QuestState) resolution() Status {
	required := 0
	completed := 0
	allTerminal := true

	for _, id := range q.order {
		o := q.objectives[id]
		if !o.status.IsTerminal() {
			allTerminal = false
		}
		if o.Optional {
			continue
		}
		required++
		switch o.status {
		case StatusFailed:
			return StatusFailed
		case StatusCompleted:
			completed++
		}
	}

	if required > 0 {
		if completed == required {
			return StatusCompleted
		}
		return StatusInProgress
	}
	if allTerminal {
		return StatusCompleted
	}
	return StatusInProgress
}

func (q *QuestState) releaseAll() {
	for _, id := range q.order {
		q.objectives[id].release()
	}
}
