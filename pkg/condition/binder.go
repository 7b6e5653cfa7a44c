package condition

import "time"

// Binder owns the bind/unbind lifecycle of an objective's completion tree
// and optional failure tree, and drives their polling.
//
// The failure tree is always bound and polled before the completion tree,
// so when one event or tick satisfies both, the failure side is observed
// first.
type Binder struct {
	source     Source
	qctx       *Context
	completion Instance
	failure    Instance
	onChanged  func()

	bound   bool
	binding bool
	pending bool
}

// NewBinder prepares a binder. failure may be nil. onChanged runs after any
// change in either tree while bound.
func NewBinder(src Source, qctx *Context, completion, failure Instance, onChanged func()) *Binder {
	return &Binder{
		source:     src,
		qctx:       qctx,
		completion: completion,
		failure:    failure,
		onChanged:  onChanged,
	}
}

// Completion returns the completion tree.
func (b *Binder) Completion() Instance {
	return b.completion
}

// Failure returns the failure tree, or nil.
func (b *Binder) Failure() Instance {
	return b.failure
}

// Bound reports whether the trees are currently bound.
func (b *Binder) Bound() bool {
	return b.bound
}

// Bind subscribes both trees. Changes reported while binding (leaves that
// are already satisfied) are coalesced into a single callback once both
// trees are bound.
func (b *Binder) Bind() {
	if b.bound {
		return
	}
	b.bound = true
	b.binding = true
	if b.failure != nil {
		b.failure.Bind(b.source, b.qctx, b.changed)
	}
	if b.completion != nil {
		b.completion.Bind(b.source, b.qctx, b.changed)
	}
	b.binding = false

	if b.pending {
		b.pending = false
		b.changed()
	}
}

// Unbind releases both trees. It is safe to call repeatedly and on a binder
// that was never bound.
func (b *Binder) Unbind() {
	if !b.bound {
		return
	}
	b.bound = false
	b.pending = false
	if b.failure != nil {
		b.failure.Unbind(b.source)
	}
	if b.completion != nil {
		b.completion.Unbind(b.source)
	}
}

// Tick polls every poll-driven instance in both trees. It stops early if a
// callback unbinds the trees mid-pass.
func (b *Binder) Tick(delta time.Duration) {
	for _, tree := range []Instance{b.failure, b.completion} {
		if !b.bound {
			return
		}
		if p, ok := tree.(Poller); ok && p.NeedsPolling() {
			p.Poll(b.qctx, delta)
		}
	}
}

// NeedsPolling reports whether a Tick would do any work.
func (b *Binder) NeedsPolling() bool {
	if !b.bound {
		return false
	}
	for _, tree := range []Instance{b.failure, b.completion} {
		if p, ok := tree.(Poller); ok && p.NeedsPolling() {
			return true
		}
	}
	return false
}

func (b *Binder) changed() {
	if !b.bound {
		return
	}
	if b.binding {
		b.pending = true
		return
	}
	if b.onChanged != nil {
		b.onChanged()
	}
}
