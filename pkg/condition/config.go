package condition

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind tags a condition config with the variant it describes.
type Kind string

const (
	KindItemCollected Kind = "item_collected"
	KindAreaEntered   Kind = "area_entered"
	KindFlagEquals    Kind = "flag_equals"
	KindEnemyKilled   Kind = "enemy_killed"
	KindTimeElapsed   Kind = "time_elapsed"
	KindAll           Kind = "all" // AND group
	KindAny           Kind = "any" // OR group
)

// Operator combines the children of a composite condition.
type Operator string

const (
	OpAnd Operator = "and"
	OpOr  Operator = "or"
)

var (
	ErrNilConfig        = errors.New("condition config is nil")
	ErrUnknownKind      = errors.New("unknown condition kind")
	ErrEmptyComposite   = errors.New("composite condition has no children")
	ErrInvalidOperator  = errors.New("invalid composite operator")
	ErrMissingParameter = errors.New("missing condition parameter")
)

// Config is the authored, read-only description of a condition tree. Only
// the fields relevant to Kind are read. Configs may be shared between
// quests; instances are never shared.
type Config struct {
	Kind Kind `json:"kind"`

	// item_collected
	ItemID        string `json:"item_id,omitempty"`
	FromInventory bool   `json:"from_inventory,omitempty"` // seed the count from the inventory service

	// item_collected, enemy_killed; 1 when omitted, met at bind when <= 0
	Count *int `json:"count,omitempty"`

	// area_entered
	AreaID string `json:"area_id,omitempty"`

	// flag_equals; Expected defaults to true when omitted
	FlagID   string `json:"flag_id,omitempty"`
	Expected *bool  `json:"expected,omitempty"`

	// enemy_killed; empty matches any enemy
	EnemyID string `json:"enemy_id,omitempty"`

	// time_elapsed
	Seconds float64 `json:"seconds,omitempty"`

	// all, any
	Children []*Config `json:"children,omitempty"`
}

// UnmarshalJSON accepts the regular tagged form as well as the group
// shorthand {"all": [...]} and {"any": [...]}. Unknown fields are rejected.
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config
	aux := &struct {
		All []*Config `json:"all,omitempty"`
		Any []*Config `json:"any,omitempty"`
		*Alias
	}{Alias: (*Alias)(c)}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(aux); err != nil {
		return err
	}

	if aux.All != nil && aux.Any != nil {
		return fmt.Errorf("condition cannot use both \"all\" and \"any\"")
	}
	if aux.All != nil || aux.Any != nil {
		if c.Kind != "" || len(c.Children) > 0 {
			return fmt.Errorf("group shorthand cannot be combined with \"kind\" or \"children\"")
		}
		if aux.All != nil {
			c.Kind = KindAll
			c.Children = aux.All
		} else {
			c.Kind = KindAny
			c.Children = aux.Any
		}
	}
	return nil
}

// All builds an AND group config.
func All(children ...*Config) *Config {
	return &Config{Kind: KindAll, Children: children}
}

// Any builds an OR group config.
func Any(children ...*Config) *Config {
	return &Config{Kind: KindAny, Children: children}
}

// IsComposite reports whether the config describes an AND/OR group.
func (c *Config) IsComposite() bool {
	return c.Kind == KindAll || c.Kind == KindAny
}

// Operator returns the group operator for composite kinds.
func (c *Config) Operator() (Operator, bool) {
	switch c.Kind {
	case KindAll:
		return OpAnd, true
	case KindAny:
		return OpOr, true
	}
	return "", false
}

// ExpectedValue returns the flag value a flag_equals condition waits for.
func (c *Config) ExpectedValue() bool {
	if c.Expected == nil {
		return true
	}
	return *c.Expected
}

// RequiredCount returns the count an item_collected or enemy_killed
// condition waits for.
func (c *Config) RequiredCount() int {
	if c.Count == nil {
		return 1
	}
	return *c.Count
}

// CountOf returns n as a Config.Count value.
func CountOf(n int) *int {
	return &n
}

// Validate checks the whole tree without building it. Nil children of a
// group are skipped, matching CreateInstance.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}

	switch c.Kind {
	case KindItemCollected:
		if c.ItemID == "" {
			return fmt.Errorf("%w: %s requires item_id", ErrMissingParameter, c.Kind)
		}
	case KindAreaEntered:
		if c.AreaID == "" {
			return fmt.Errorf("%w: %s requires area_id", ErrMissingParameter, c.Kind)
		}
	case KindFlagEquals:
		if c.FlagID == "" {
			return fmt.Errorf("%w: %s requires flag_id", ErrMissingParameter, c.Kind)
		}
	case KindEnemyKilled, KindTimeElapsed:
	case KindAll, KindAny:
		n := 0
		for i, child := range c.Children {
			if child == nil {
				continue
			}
			if err := child.Validate(); err != nil {
				return fmt.Errorf("%s[%d]: %w", c.Kind, i, err)
			}
			n++
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrEmptyComposite, c.Kind)
		}
	default:
		if _, ok := lookupFactory(c.Kind); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
		}
	}
	return nil
}
