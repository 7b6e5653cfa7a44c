package condition

import (
	"fmt"
	"time"

	"github.com/jwebster45206/quest-engine/pkg/eventbus"
)

// ItemCollectedCondition is met once the running count of an item reaches
// the required amount. Negative amounts move the count back down and can
// make the condition unmet again.
type ItemCollectedCondition struct {
	itemID        string
	required      int
	fromInventory bool
	count         int
	binding       binding
}

// NewItemCollected returns an unbound condition waiting for required of itemID.
func NewItemCollected(itemID string, required int) *ItemCollectedCondition {
	return &ItemCollectedCondition{itemID: itemID, required: required}
}

// IsMet reports whether the count has reached the required amount.
func (c *ItemCollectedCondition) IsMet() bool {
	return c.count >= c.required
}

// Bind subscribes to item pickups. With fromInventory set, the count is
// seeded from the inventory service first.
func (c *ItemCollectedCondition) Bind(src Source, qctx *Context, onChanged func()) {
	if !c.binding.attach(src, EventItemCollected, onChanged, c.handle) {
		return
	}
	if c.fromInventory {
		if n, ok := qctx.inventoryCount(c.itemID); ok {
			c.count = max(n, 0)
		}
	}
	if c.IsMet() {
		c.binding.notify()
	}
}

// Unbind stops counting. It is safe to call more than once.
func (c *ItemCollectedCondition) Unbind(src Source) {
	c.binding.detach(src)
}

// handle reports every matching event, not only threshold crossings, so
// progress consumers see intermediate counts.
func (c *ItemCollectedCondition) handle(ev eventbus.Event) {
	e, ok := ev.(ItemCollected)
	if !ok || e.ItemID != c.itemID {
		return
	}
	c.count = max(c.count+e.Amount, 0)
	c.binding.notify()
}

// Progress returns the count so far, capped at the required amount.
func (c *ItemCollectedCondition) Progress() (float64, float64) {
	return float64(min(c.count, max(c.required, 0))), float64(max(c.required, 0))
}

// Describe renders the condition for quest logs.
func (c *ItemCollectedCondition) Describe() string {
	return fmt.Sprintf("collect %d %s", c.required, c.itemID)
}

// AreaEnteredCondition is met the first time the player enters an area and
// stays met. When an area service is available it is also checked at bind
// time and on every poll.
type AreaEnteredCondition struct {
	areaID  string
	entered bool
	binding binding
}

// NewAreaEntered returns an unbound condition for entering areaID.
func NewAreaEntered(areaID string) *AreaEnteredCondition {
	return &AreaEnteredCondition{areaID: areaID}
}

// IsMet reports whether the area has been entered since bind.
func (c *AreaEnteredCondition) IsMet() bool {
	return c.entered
}

// Bind subscribes to area events. With an area service it is met at once
// when the player already stands in the area.
func (c *AreaEnteredCondition) Bind(src Source, qctx *Context, onChanged func()) {
	if !c.binding.attach(src, EventAreaEntered, onChanged, c.handle) {
		return
	}
	if area, ok := qctx.currentArea(); ok && area == c.areaID {
		c.entered = true
	}
	if c.entered {
		c.binding.notify()
	}
}

// Unbind drops the area subscription.
func (c *AreaEnteredCondition) Unbind(src Source) {
	c.binding.detach(src)
}

func (c *AreaEnteredCondition) handle(ev eventbus.Event) {
	e, ok := ev.(AreaEntered)
	if !ok || e.AreaID != c.areaID || c.entered {
		return
	}
	c.entered = true
	c.binding.notify()
}

// NeedsPolling is true while bound and the area has not been entered.
func (c *AreaEnteredCondition) NeedsPolling() bool {
	return c.binding.bound && !c.entered
}

// Poll checks the area service, if any, for the current area.
func (c *AreaEnteredCondition) Poll(qctx *Context, _ time.Duration) {
	if !c.NeedsPolling() {
		return
	}
	area, ok := qctx.currentArea()
	if !ok || area != c.areaID {
		return
	}
	c.entered = true
	c.binding.notify()
}

// Describe renders the condition for quest logs.
func (c *AreaEnteredCondition) Describe() string {
	return "enter " + c.areaID
}

// FlagEqualsCondition mirrors a world flag. It is met while the last known
// value equals the expected one, so it can become unmet again. A flag that
// has never been observed is unmet.
type FlagEqualsCondition struct {
	flagID   string
	expected bool
	value    bool
	known    bool
	binding  binding
}

// NewFlagEquals returns an unbound condition met while flagID equals expected.
func NewFlagEquals(flagID string, expected bool) *FlagEqualsCondition {
	return &FlagEqualsCondition{flagID: flagID, expected: expected}
}

// IsMet reports whether the last known flag value equals the expected one.
func (c *FlagEqualsCondition) IsMet() bool {
	return c.known && c.value == c.expected
}

// Bind subscribes to flag changes and seeds the value from the flag service.
func (c *FlagEqualsCondition) Bind(src Source, qctx *Context, onChanged func()) {
	if !c.binding.attach(src, EventFlagChanged, onChanged, c.handle) {
		return
	}
	if v, ok := qctx.flag(c.flagID); ok {
		c.value, c.known = v, true
	}
	if c.IsMet() {
		c.binding.notify()
	}
}

// Unbind drops the flag subscription.
func (c *FlagEqualsCondition) Unbind(src Source) {
	c.binding.detach(src)
}

func (c *FlagEqualsCondition) handle(ev eventbus.Event) {
	e, ok := ev.(FlagChanged)
	if !ok || e.FlagID != c.flagID {
		return
	}
	c.value, c.known = e.Value, true
	c.binding.notify()
}

// Describe renders the condition for quest logs.
func (c *FlagEqualsCondition) Describe() string {
	return fmt.Sprintf("%s == %t", c.flagID, c.expected)
}

// EnemyKilledCondition counts kills of one enemy type, or of any enemy when
// enemyID is empty.
type EnemyKilledCondition struct {
	enemyID  string
	required int
	kills    int
	binding  binding
}

// NewEnemyKilled returns an unbound condition waiting for required kills of
// enemyID, or of any enemy when enemyID is empty.
func NewEnemyKilled(enemyID string, required int) *EnemyKilledCondition {
	return &EnemyKilledCondition{enemyID: enemyID, required: required}
}

// IsMet reports whether enough kills have been seen.
func (c *EnemyKilledCondition) IsMet() bool {
	return c.kills >= c.required
}

// Bind subscribes to kill events. A required count of 0 or less is met
// immediately.
func (c *EnemyKilledCondition) Bind(src Source, _ *Context, onChanged func()) {
	if !c.binding.attach(src, EventEnemyKilled, onChanged, c.handle) {
		return
	}
	if c.IsMet() {
		c.binding.notify()
	}
}

// Unbind drops the kill subscription.
func (c *EnemyKilledCondition) Unbind(src Source) {
	c.binding.detach(src)
}

func (c *EnemyKilledCondition) handle(ev eventbus.Event) {
	e, ok := ev.(EnemyKilled)
	if !ok || (c.enemyID != "" && e.EnemyID != c.enemyID) {
		return
	}
	c.kills += max(e.Count, 1)
	c.binding.notify()
}

// Progress returns kills so far, capped at the required amount.
func (c *EnemyKilledCondition) Progress() (float64, float64) {
	return float64(min(c.kills, max(c.required, 0))), float64(max(c.required, 0))
}

// Describe renders the condition for quest logs.
func (c *EnemyKilledCondition) Describe() string {
	target := c.enemyID
	if target == "" {
		target = "enemies"
	}
	return fmt.Sprintf("defeat %d %s", c.required, target)
}

// TimeElapsedCondition accumulates polled time while bound. It never reads
// a wall clock and reports exactly once, on the poll that crosses the
// threshold.
type TimeElapsedCondition struct {
	required time.Duration
	elapsed  time.Duration
	met      bool
	binding  binding
}

// NewTimeElapsed returns an unbound condition met after required of polled time.
func NewTimeElapsed(required time.Duration) *TimeElapsedCondition {
	return &TimeElapsedCondition{required: required}
}

// IsMet reports whether the polled time has reached the requirement.
func (c *TimeElapsedCondition) IsMet() bool {
	return c.met
}

// Bind starts accumulating on the next poll. A requirement of 0 or less is
// met immediately.
func (c *TimeElapsedCondition) Bind(src Source, _ *Context, onChanged func()) {
	if !c.binding.attach(src, "", onChanged, nil) {
		return
	}
	if c.required <= 0 {
		c.met = true
	}
	if c.met {
		c.binding.notify()
	}
}

// Unbind stops polling. Accumulated time is kept.
func (c *TimeElapsedCondition) Unbind(src Source) {
	c.binding.detach(src)
}

// NeedsPolling is true while bound and unmet.
func (c *TimeElapsedCondition) NeedsPolling() bool {
	return c.binding.bound && !c.met
}

// Poll adds delta while bound and unmet.
func (c *TimeElapsedCondition) Poll(_ *Context, delta time.Duration) {
	if !c.NeedsPolling() || delta <= 0 {
		return
	}
	c.elapsed += delta
	if c.elapsed >= c.required {
		c.met = true
		c.binding.notify()
	}
}

// Progress returns seconds elapsed, capped at the requirement, and the
// requirement.
func (c *TimeElapsedCondition) Progress() (float64, float64) {
	return min(c.elapsed, max(c.required, 0)).Seconds(), max(c.required, 0).Seconds()
}

// Describe renders the condition for quest logs.
func (c *TimeElapsedCondition) Describe() string {
	return fmt.Sprintf("wait %s", c.required)
}
