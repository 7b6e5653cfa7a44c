// Package condition builds and evaluates quest condition trees. Leaf
// conditions react to gameplay events or to explicit polling; composite
// conditions combine them under AND/OR.
package condition

import (
	"time"

	"github.com/jwebster45206/quest-engine/pkg/eventbus"
)

// Source is the event-source half a condition needs to bind itself.
// *eventbus.Bus satisfies it.
type Source interface {
	Subscribe(kind eventbus.Kind, handler eventbus.Handler) eventbus.Subscription
	Unsubscribe(sub eventbus.Subscription)
}

// Instance is the runtime, mutable state of one condition. Instances are
// created per objective activation and are never shared.
type Instance interface {
	// IsMet reports the current boolean state.
	IsMet() bool

	// Bind subscribes the instance to src. onChanged is invoked whenever the
	// instance's progress changes; the caller re-evaluates IsMet to decide
	// whether a transition happened. Binding an already bound instance is a
	// no-op.
	Bind(src Source, qctx *Context, onChanged func())

	// Unbind releases every subscription taken by Bind. After it returns no
	// further onChanged calls are made. Calling it twice, or on an instance
	// that was never bound, does nothing.
	Unbind(src Source)

	// Describe returns a short human readable summary.
	Describe() string
}

// Poller is implemented by instances that advance on explicit ticks rather
// than (or in addition to) pushed events.
type Poller interface {
	// NeedsPolling reports whether Poll currently has any work to do.
	NeedsPolling() bool

	// Poll advances the instance by delta, reporting changes through the
	// callback given to Bind.
	Poll(qctx *Context, delta time.Duration)
}

// Progresser exposes numeric progress for UI consumers.
type Progresser interface {
	Progress() (current, required float64)
}

// AreaService reports where the player currently is.
type AreaService interface {
	CurrentArea() string
}

// InventoryService reports how many of an item the player holds.
type InventoryService interface {
	Count(itemID string) int
}

// FlagService reports world flag values. ok is false for unknown flags.
type FlagService interface {
	Flag(flagID string) (value bool, ok bool)
}

// Context is the optional capability bag leaves may query. Any field may be
// nil, as may the Context itself; a missing service means no data is
// available, never an error.
type Context struct {
	Areas     AreaService
	Inventory InventoryService
	Flags     FlagService
}

func (c *Context) currentArea() (string, bool) {
	if c == nil || c.Areas == nil {
		return "", false
	}
	return c.Areas.CurrentArea(), true
}

func (c *Context) inventoryCount(itemID string) (int, bool) {
	if c == nil || c.Inventory == nil {
		return 0, false
	}
	return c.Inventory.Count(itemID), true
}

func (c *Context) flag(flagID string) (bool, bool) {
	if c == nil || c.Flags == nil {
		return false, false
	}
	return c.Flags.Flag(flagID)
}

// binding holds the subscription and callback of one leaf.
type binding struct {
	source    Source
	sub       eventbus.Subscription
	onChanged func()
	bound     bool
}

// attach subscribes handler to kind. A nil handler binds without
// subscribing, for purely polled leaves. The handler is dropped once the
// leaf is detached, even if the bus already snapshotted it for an in-flight
// publish.
func (b *binding) attach(src Source, kind eventbus.Kind, onChanged func(), handler eventbus.Handler) bool {
	if b.bound {
		return false
	}
	b.bound = true
	b.source = src
	b.onChanged = onChanged
	if handler != nil && src != nil {
		b.sub = src.Subscribe(kind, func(ev eventbus.Event) {
			if !b.bound {
				return
			}
			handler(ev)
		})
	}
	return true
}

func (b *binding) detach(src Source) {
	if !b.bound {
		return
	}
	b.bound = false
	if src == nil {
		src = b.source
	}
	if src != nil && b.sub.Valid() {
		src.Unsubscribe(b.sub)
	}
	b.sub = eventbus.Subscription{}
	b.source = nil
	b.onChanged = nil
}

func (b *binding) notify() {
	if b.bound && b.onChanged != nil {
		b.onChanged()
	}
}
