package condition

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jwebster45206/quest-engine/pkg/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus() *eventbus.Bus {
	return eventbus.New(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))
}

// counter records onChanged calls.
type counter struct{ n int }

func (c *counter) fn() func() { return func() { c.n++ } }

type stubAreas struct{ area string }

func (s *stubAreas) CurrentArea() string { return s.area }

type stubInventory map[string]int

func (s stubInventory) Count(itemID string) int { return s[itemID] }

type stubFlags map[string]bool

func (s stubFlags) Flag(id string) (bool, bool) {
	v, ok := s[id]
	return v, ok
}

func TestItemCollected_CrossesThresholdOnExactSum(t *testing.T) {
	bus := newTestBus()
	c := NewItemCollected("key", 3)
	calls := &counter{}
	c.Bind(bus, nil, calls.fn())

	bus.Publish(ItemCollected{ItemID: "key", Amount: 1})
	assert.False(t, c.IsMet())
	bus.Publish(ItemCollected{ItemID: "key", Amount: 1})
	assert.False(t, c.IsMet())
	bus.Publish(ItemCollected{ItemID: "key", Amount: 1})
	assert.True(t, c.IsMet())

	bus.Publish(ItemCollected{ItemID: "key", Amount: 2})
	assert.True(t, c.IsMet(), "further matching events keep it met")

	bus.Publish(ItemCollected{ItemID: "coin", Amount: 10})
	assert.Equal(t, 4, calls.n, "every matching event reports progress")

	cur, req := c.Progress()
	assert.Equal(t, 3.0, cur)
	assert.Equal(t, 3.0, req)
}

func TestItemCollected_NegativeAmountUnmeets(t *testing.T) {
	bus := newTestBus()
	c := NewItemCollected("key", 2)
	c.Bind(bus, nil, func() {})

	bus.Publish(ItemCollected{ItemID: "key", Amount: 2})
	require.True(t, c.IsMet())

	bus.Publish(ItemCollected{ItemID: "key", Amount: -1})
	assert.False(t, c.IsMet())

	bus.Publish(ItemCollected{ItemID: "key", Amount: -10})
	cur, _ := c.Progress()
	assert.Equal(t, 0.0, cur, "count never drops below zero")
}

func TestItemCollected_ZeroRequiredEmitsOnBind(t *testing.T) {
	bus := newTestBus()
	c := NewItemCollected("key", 0)
	calls := &counter{}

	c.Bind(bus, nil, calls.fn())

	assert.True(t, c.IsMet())
	assert.Equal(t, 1, calls.n)
}

func TestItemCollected_SeedsFromInventory(t *testing.T) {
	bus := newTestBus()
	cfg := &Config{Kind: KindItemCollected, ItemID: "herb", Count: CountOf(5), FromInventory: true}
	inst, err := cfg.CreateInstance()
	require.NoError(t, err)

	calls := &counter{}
	inst.Bind(bus, &Context{Inventory: stubInventory{"herb": 4}}, calls.fn())
	assert.False(t, inst.IsMet())
	assert.Equal(t, 0, calls.n)

	bus.Publish(ItemCollected{ItemID: "herb", Amount: 1})
	assert.True(t, inst.IsMet())
}

func TestFlagEquals_IsSymmetric(t *testing.T) {
	bus := newTestBus()
	c := NewFlagEquals("door_open", true)
	c.Bind(bus, nil, func() {})

	assert.False(t, c.IsMet(), "unknown flags are unmet")

	bus.Publish(FlagChanged{FlagID: "door_open", Value: true})
	assert.True(t, c.IsMet())

	bus.Publish(FlagChanged{FlagID: "door_open", Value: false})
	assert.False(t, c.IsMet())

	bus.Publish(FlagChanged{FlagID: "other", Value: true})
	assert.False(t, c.IsMet())
}

func TestFlagEquals_SeedsFromFlagService(t *testing.T) {
	bus := newTestBus()
	c := NewFlagEquals("lever", false)
	calls := &counter{}

	c.Bind(bus, &Context{Flags: stubFlags{"lever": false}}, calls.fn())

	assert.True(t, c.IsMet())
	assert.Equal(t, 1, calls.n)
}

func TestAreaEntered_EventIsSticky(t *testing.T) {
	bus := newTestBus()
	c := NewAreaEntered("cave")
	calls := &counter{}
	c.Bind(bus, nil, calls.fn())

	bus.Publish(AreaEntered{AreaID: "forest"})
	assert.False(t, c.IsMet())

	bus.Publish(AreaEntered{AreaID: "cave"})
	bus.Publish(AreaEntered{AreaID: "cave"})
	assert.True(t, c.IsMet())
	assert.Equal(t, 1, calls.n)
	assert.False(t, c.NeedsPolling())
}

func TestAreaEntered_PollsAreaService(t *testing.T) {
	bus := newTestBus()
	areas := &stubAreas{area: "village"}
	qctx := &Context{Areas: areas}
	c := NewAreaEntered("cave")
	calls := &counter{}
	c.Bind(bus, qctx, calls.fn())

	require.True(t, c.NeedsPolling())
	c.Poll(qctx, time.Second)
	assert.False(t, c.IsMet())

	areas.area = "cave"
	c.Poll(qctx, time.Second)
	assert.True(t, c.IsMet())
	assert.Equal(t, 1, calls.n)

	// A missing service is simply no data.
	c2 := NewAreaEntered("cave")
	c2.Bind(bus, &Context{}, func() {})
	c2.Poll(&Context{}, time.Second)
	assert.False(t, c2.IsMet())
}

func TestEnemyKilled_AnyEnemyAndCounts(t *testing.T) {
	bus := newTestBus()
	anyEnemy := NewEnemyKilled("", 3)
	wolves := NewEnemyKilled("wolf", 2)
	anyEnemy.Bind(bus, nil, func() {})
	wolves.Bind(bus, nil, func() {})

	bus.Publish(EnemyKilled{EnemyID: "rat"})
	bus.Publish(EnemyKilled{EnemyID: "wolf", Count: 2})

	assert.True(t, anyEnemy.IsMet())
	assert.True(t, wolves.IsMet())
}

func TestTimeElapsed_FiresOnceAtCrossing(t *testing.T) {
	bus := newTestBus()
	c := NewTimeElapsed(5 * time.Second)
	calls := &counter{}

	// Polling before bind accumulates nothing.
	c.Poll(nil, 10*time.Second)
	c.Bind(bus, nil, calls.fn())
	assert.False(t, c.IsMet())

	for i := 0; i < 4; i++ {
		c.Poll(nil, time.Second)
	}
	assert.False(t, c.IsMet())
	assert.Equal(t, 0, calls.n)

	c.Poll(nil, time.Second)
	assert.True(t, c.IsMet())
	assert.Equal(t, 1, calls.n)

	c.Poll(nil, time.Second)
	assert.Equal(t, 1, calls.n)
	assert.False(t, c.NeedsPolling())
}

func TestTimeElapsed_ZeroSecondsMetAtBind(t *testing.T) {
	c := NewTimeElapsed(0)
	calls := &counter{}
	c.Bind(newTestBus(), nil, calls.fn())

	assert.True(t, c.IsMet())
	assert.Equal(t, 1, calls.n)
}

func TestLeaf_BindUnbindThenPublishHasNoEffect(t *testing.T) {
	bus := newTestBus()
	c := NewItemCollected("key", 1)
	calls := &counter{}

	c.Bind(bus, nil, calls.fn())
	c.Unbind(bus)
	before := c.IsMet()

	bus.Publish(ItemCollected{ItemID: "key", Amount: 5})

	assert.Equal(t, before, c.IsMet())
	assert.Equal(t, 0, calls.n)
	assert.Equal(t, 0, bus.HandlerCount(EventItemCollected))
}

func TestLeaf_DoubleBindSubscribesOnce(t *testing.T) {
	bus := newTestBus()
	c := NewFlagEquals("f", true)

	c.Bind(bus, nil, func() {})
	c.Bind(bus, nil, func() {})
	assert.Equal(t, 1, bus.HandlerCount(EventFlagChanged))

	c.Unbind(bus)
	c.Unbind(bus)
	assert.Equal(t, 0, bus.HandlerCount(EventFlagChanged))

	never := NewAreaEntered("x")
	assert.NotPanics(t, func() { never.Unbind(bus) })
}

func TestLeaf_UnbindDuringDispatchStopsCallbacks(t *testing.T) {
	bus := newTestBus()
	first := NewItemCollected("key", 1)
	second := NewItemCollected("key", 1)
	secondCalls := &counter{}

	first.Bind(bus, nil, func() { second.Unbind(bus) })
	second.Bind(bus, nil, secondCalls.fn())

	bus.Publish(ItemCollected{ItemID: "key", Amount: 1})

	assert.Equal(t, 0, secondCalls.n)
	assert.False(t, second.IsMet())
}

func TestConfig_RequiredCount(t *testing.T) {
	tests := []struct {
		name      string
		cfg       *Config
		metAtBind bool
	}{
		{"enemy count omitted waits for one kill", &Config{Kind: KindEnemyKilled, EnemyID: "rat"}, false},
		{"enemy count zero is met at bind", &Config{Kind: KindEnemyKilled, EnemyID: "rat", Count: CountOf(0)}, true},
		{"item count omitted waits for one pickup", &Config{Kind: KindItemCollected, ItemID: "key"}, false},
		{"item count zero is met at bind", &Config{Kind: KindItemCollected, ItemID: "key", Count: CountOf(0)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := newTestBus()
			inst, err := tt.cfg.CreateInstance()
			require.NoError(t, err)
			calls := &counter{}

			inst.Bind(bus, nil, calls.fn())
			assert.Equal(t, tt.metAtBind, inst.IsMet())
			if tt.metAtBind {
				assert.Equal(t, 1, calls.n)
			}

			bus.Publish(EnemyKilled{EnemyID: "rat"})
			bus.Publish(ItemCollected{ItemID: "key", Amount: 1})
			assert.True(t, inst.IsMet())
		})
	}

	var cfg Config
	require.NoError(t, cfg.UnmarshalJSON([]byte(`{"kind":"enemy_killed","enemy_id":"rat","count":0}`)))
	require.NotNil(t, cfg.Count)
	assert.Equal(t, 0, cfg.RequiredCount())
}
