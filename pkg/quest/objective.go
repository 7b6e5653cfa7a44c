package quest

import (
	"slices"

	"github.com/jwebster45206/quest-engine/pkg/condition"
)

// ObjectiveState is the runtime state of one objective. Its status is only
// changed by the Manager that owns the quest.
type ObjectiveState struct {
	ID            string
	Description   string
	Optional      bool
	Prerequisites []string

	status Status
	cfg    *ObjectiveConfig
	binder *condition.Binder
	err    error
}

func newObjectiveState(cfg *ObjectiveConfig) *ObjectiveState {
	return &ObjectiveState{
		ID:            cfg.ID,
		Description:   cfg.Description,
		Optional:      cfg.Optional,
		Prerequisites: slices.Clone(cfg.Prerequisites),
		status:        StatusNotStarted,
		cfg:           cfg,
	}
}

// Status returns the current status.
func (o *ObjectiveState) Status() Status {
	return o.status
}

// Err returns the configuration error that prevented activation, if any.
func (o *ObjectiveState) Err() error {
	return o.err
}

// Completion returns the live completion tree, or nil if the objective has
// not been activated.
func (o *ObjectiveState) Completion() condition.Instance {
	if o.binder == nil {
		return nil
	}
	return o.binder.Completion()
}

// Failure returns the live failure tree, or nil.
func (o *ObjectiveState) Failure() condition.Instance {
	if o.binder == nil {
		return nil
	}
	return o.binder.Failure()
}

// Bound reports whether the objective's conditions are currently listening
// for events.
func (o *ObjectiveState) Bound() bool {
	return o.binder != nil && o.binder.Bound()
}

// Progress reports completion-tree progress when the tree exposes it.
func (o *ObjectiveState) Progress() (current, required float64, ok bool) {
	p, ok := o.Completion().(condition.Progresser)
	if !ok {
		return 0, 0, false
	}
	current, required = p.Progress()
	return current, required, true
}

// build creates fresh condition trees and a binder wired to onChanged. It
// does not bind.
func (o *ObjectiveState) build(src condition.Source, qctx *condition.Context, onChanged func()) error {
	if err := o.cfg.Validate(); err != nil {
		return err
	}

	completion, err := o.cfg.Completion.CreateInstance()
	if err != nil {
		return err
	}
	var failure condition.Instance
	if o.cfg.Failure != nil {
		failure, err = o.cfg.Failure.CreateInstance()
		if err != nil {
			return err
		}
	}

	o.binder = condition.NewBinder(src, qctx, completion, failure, onChanged)
	return nil
}

// evaluate returns the status the objective should move to. Failure wins
// when both trees are met at the same evaluation point.
func (o *ObjectiveState) evaluate() Status {
	if o.status != StatusInProgress || o.binder == nil {
		return o.status
	}
	if f := o.binder.Failure(); f != nil && f.IsMet() {
		return StatusFailed
	}
	if o.binder.Completion().IsMet() {
		return StatusCompleted
	}
	return StatusInProgress
}

func (o *ObjectiveState) release() {
	if o.binder != nil {
		o.binder.Unbind()
	}
}

func (o *ObjectiveState) snapshot() ObjectiveSnapshot {
	return ObjectiveSnapshot{ID: o.ID, Status: o.status}
}
