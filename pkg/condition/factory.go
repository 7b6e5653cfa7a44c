package condition

import (
	"fmt"
	"sync"
	"time"
)

// Factory builds a fresh instance from a config of the kind it is
// registered for.
type Factory func(cfg *Config) (Instance, error)

var (
	registryMu sync.RWMutex
	registry   = map[Kind]Factory{}
)

func init() {
	registry[KindItemCollected] = func(cfg *Config) (Instance, error) {
		c := NewItemCollected(cfg.ItemID, cfg.RequiredCount())
		c.fromInventory = cfg.FromInventory
		return c, nil
	}
	registry[KindAreaEntered] = func(cfg *Config) (Instance, error) {
		return NewAreaEntered(cfg.AreaID), nil
	}
	registry[KindFlagEquals] = func(cfg *Config) (Instance, error) {
		return NewFlagEquals(cfg.FlagID, cfg.ExpectedValue()), nil
	}
	registry[KindEnemyKilled] = func(cfg *Config) (Instance, error) {
		return NewEnemyKilled(cfg.EnemyID, cfg.RequiredCount()), nil
	}
	registry[KindTimeElapsed] = func(cfg *Config) (Instance, error) {
		return NewTimeElapsed(time.Duration(cfg.Seconds * float64(time.Second))), nil
	}
	registry[KindAll] = compositeFactory
	registry[KindAny] = compositeFactory
}

// Register installs or replaces the factory for kind, letting hosts add
// their own leaf variants.
func Register(kind Kind, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = f
}

func lookupFactory(kind Kind) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[kind]
	return f, ok
}

// CreateInstance validates the config tree and builds a fresh instance
// tree from it.
func (c *Config) CreateInstance() (Instance, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c.build()
}

func (c *Config) build() (Instance, error) {
	f, ok := lookupFactory(c.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
	}
	return f(c)
}

func compositeFactory(cfg *Config) (Instance, error) {
	op, _ := cfg.Operator()
	children := make([]Instance, 0, len(cfg.Children))
	for i, child := range cfg.Children {
		if child == nil {
			continue
		}
		inst, err := child.build()
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", cfg.Kind, i, err)
		}
		children = append(children, inst)
	}
	return NewComposite(op, children...)
}
