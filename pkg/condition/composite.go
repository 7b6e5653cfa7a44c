package condition

import (
	"fmt"
	"strings"
	"time"
)

// Composite combines an ordered, fixed set of children under AND or OR.
// It holds no subscriptions of its own: binding delegates to every child
// with the same callback, and IsMet is recomputed from the children on
// every call.
type Composite struct {
	op       Operator
	children []Instance
}

// NewComposite builds a group. Nil children are skipped; a group left with
// no children is a configuration error rather than vacuously true or false.
func NewComposite(op Operator, children ...Instance) (*Composite, error) {
	if op != OpAnd && op != OpOr {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOperator, op)
	}
	kept := make([]Instance, 0, len(children))
	for _, child := range children {
		if child != nil {
			kept = append(kept, child)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyComposite, op)
	}
	return &Composite{op: op, children: kept}, nil
}

// Operator returns the group operator.
func (c *Composite) Operator() Operator {
	return c.op
}

// Children returns the group's children in authored order.
func (c *Composite) Children() []Instance {
	return c.children
}

func (c *Composite) IsMet() bool {
	if c.op == OpAnd {
		for _, child := range c.children {
			if !child.IsMet() {
				return false
			}
		}
		return true
	}
	for _, child := range c.children {
		if child.IsMet() {
			return true
		}
	}
	return false
}

func (c *Composite) Bind(src Source, qctx *Context, onChanged func()) {
	for _, child := range c.children {
		child.Bind(src, qctx, onChanged)
	}
}

func (c *Composite) Unbind(src Source) {
	for _, child := range c.children {
		child.Unbind(src)
	}
}

func (c *Composite) NeedsPolling() bool {
	for _, child := range c.children {
		if p, ok := child.(Poller); ok && p.NeedsPolling() {
			return true
		}
	}
	return false
}

func (c *Composite) Poll(qctx *Context, delta time.Duration) {
	for _, child := range c.children {
		if p, ok := child.(Poller); ok && p.NeedsPolling() {
			p.Poll(qctx, delta)
		}
	}
}

// Progress counts met children against the number needed.
func (c *Composite) Progress() (float64, float64) {
	met := 0
	for _, child := range c.children {
		if child.IsMet() {
			met++
		}
	}
	if c.op == OpOr {
		return float64(min(met, 1)), 1
	}
	return float64(met), float64(len(c.children))
}

func (c *Composite) Describe() string {
	parts := make([]string, len(c.children))
	for i, child := range c.children {
		parts[i] = child.Describe()
	}
	word := "all of"
	if c.op == OpOr {
		word = "any of"
	}
	return fmt.Sprintf("%s (%s)", word, strings.Join(parts, ", "))
}
