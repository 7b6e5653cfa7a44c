package condition

import (
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixed is a leaf whose state is set directly by the test.
type fixed struct{ met bool }

func (f *fixed) IsMet() bool                   { return f.met }
func (f *fixed) Bind(Source, *Context, func()) {}
func (f *fixed) Unbind(Source)                 {}
func (f *fixed) Describe() string              { return "fixed" }

// randomTree builds a composite of random depth and returns it with the
// leaves it contains.
func randomTree(r *rand.Rand, depth int) (Instance, []*fixed) {
	if depth == 0 || r.Intn(3) == 0 {
		leaf := &fixed{met: r.Intn(2) == 0}
		return leaf, []*fixed{leaf}
	}
	op := OpAnd
	if r.Intn(2) == 0 {
		op = OpOr
	}
	n := 1 + r.Intn(4)
	var children []Instance
	var leaves []*fixed
	for i := 0; i < n; i++ {
		child, childLeaves := randomTree(r, depth-1)
		children = append(children, child)
		leaves = append(leaves, childLeaves...)
	}
	c, err := NewComposite(op, children...)
	if err != nil {
		panic(err)
	}
	return c, leaves
}

// reference evaluates a tree independently of Composite.IsMet.
func reference(inst Instance) bool {
	c, ok := inst.(*Composite)
	if !ok {
		return inst.IsMet()
	}
	if c.Operator() == OpAnd {
		result := true
		for _, child := range c.Children() {
			result = result && reference(child)
		}
		return result
	}
	result := false
	for _, child := range c.Children() {
		result = result || reference(child)
	}
	return result
}

func TestComposite_MatchesOperatorSemanticsAtAnyDepth(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		tree, leaves := randomTree(r, 4)
		// Flip leaves and re-check; IsMet must never go stale.
		for j := 0; j < 5; j++ {
			require.Equal(t, reference(tree), tree.IsMet(), "tree %d flip %d", i, j)
			leaves[r.Intn(len(leaves))].met = r.Intn(2) == 0
		}
	}
}

func TestComposite_EmptyIsConfigurationError(t *testing.T) {
	_, err := NewComposite(OpAnd)
	assert.ErrorIs(t, err, ErrEmptyComposite)

	_, err = NewComposite(OpOr, nil, nil)
	assert.ErrorIs(t, err, ErrEmptyComposite)

	_, err = NewComposite("xor", &fixed{})
	assert.ErrorIs(t, err, ErrInvalidOperator)
}

func TestComposite_OrOfFlags(t *testing.T) {
	bus := newTestBus()
	cfg := Any(
		&Config{Kind: KindFlagEquals, FlagID: "door_open"},
		&Config{Kind: KindFlagEquals, FlagID: "alt_key_used"},
	)
	inst, err := cfg.CreateInstance()
	require.NoError(t, err)
	inst.Bind(bus, nil, func() {})

	assert.False(t, inst.IsMet())

	bus.Publish(FlagChanged{FlagID: "alt_key_used", Value: true})
	assert.True(t, inst.IsMet())

	bus.Publish(FlagChanged{FlagID: "door_open", Value: true})
	bus.Publish(FlagChanged{FlagID: "alt_key_used", Value: false})
	assert.True(t, inst.IsMet())

	bus.Publish(FlagChanged{FlagID: "door_open", Value: false})
	assert.False(t, inst.IsMet(), "leaves are not sticky")
}

func TestComposite_BindsEveryLeafExactlyOnce(t *testing.T) {
	bus := newTestBus()
	cfg := All(
		&Config{Kind: KindItemCollected, ItemID: "key", Count: CountOf(1)},
		Any(
			&Config{Kind: KindItemCollected, ItemID: "gem", Count: CountOf(1)},
			&Config{Kind: KindAreaEntered, AreaID: "vault"},
		),
		&Config{Kind: KindTimeElapsed, Seconds: 2},
	)
	inst, err := cfg.CreateInstance()
	require.NoError(t, err)

	calls := &counter{}
	inst.Bind(bus, nil, calls.fn())
	assert.Equal(t, 2, bus.HandlerCount(EventItemCollected))
	assert.Equal(t, 1, bus.HandlerCount(EventAreaEntered))

	bus.Publish(ItemCollected{ItemID: "key", Amount: 1})
	bus.Publish(AreaEntered{AreaID: "vault"})
	assert.False(t, inst.IsMet())

	poller, ok := inst.(Poller)
	require.True(t, ok)
	require.True(t, poller.NeedsPolling())
	poller.Poll(nil, 2*time.Second)
	assert.True(t, inst.IsMet())
	assert.Equal(t, 3, calls.n)

	inst.Unbind(bus)
	inst.Unbind(bus)
	assert.Equal(t, 0, bus.HandlerCount(EventItemCollected))
	assert.Equal(t, 0, bus.HandlerCount(EventAreaEntered))
}

func TestComposite_ProgressAndDescribe(t *testing.T) {
	c, err := NewComposite(OpAnd, &fixed{met: true}, &fixed{}, &fixed{met: true})
	require.NoError(t, err)
	cur, req := c.Progress()
	assert.Equal(t, 2.0, cur)
	assert.Equal(t, 3.0, req)
	assert.Equal(t, "all of (fixed, fixed, fixed)", c.Describe())
}

func TestConfig_CreateInstanceErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
		want error
	}{
		{"nil config", nil, ErrNilConfig},
		{"unknown kind", &Config{Kind: "teleport"}, ErrUnknownKind},
		{"empty all", All(), ErrEmptyComposite},
		{"any of nils", Any(nil, nil), ErrEmptyComposite},
		{"nested empty", All(&Config{Kind: KindTimeElapsed}, Any()), ErrEmptyComposite},
		{"item without id", &Config{Kind: KindItemCollected, Count: CountOf(1)}, ErrMissingParameter},
		{"area without id", &Config{Kind: KindAreaEntered}, ErrMissingParameter},
		{"flag without id", &Config{Kind: KindFlagEquals}, ErrMissingParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cfg.CreateInstance()
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConfig_NilChildrenSkipped(t *testing.T) {
	inst, err := All(nil, &Config{Kind: KindTimeElapsed}, nil).CreateInstance()
	require.NoError(t, err)
	c, ok := inst.(*Composite)
	require.True(t, ok)
	assert.Len(t, c.Children(), 1)
}

func TestConfig_UnmarshalShorthand(t *testing.T) {
	raw := `{
		"any": [
			{"kind": "flag_equals", "flag_id": "door_open"},
			{"all": [
				{"kind": "item_collected", "item_id": "key", "count": 2},
				{"kind": "flag_equals", "flag_id": "guard_asleep", "expected": false}
			]}
		]
	}`

	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(raw), &cfg))

	assert.Equal(t, KindAny, cfg.Kind)
	require.Len(t, cfg.Children, 2)
	assert.True(t, cfg.Children[0].ExpectedValue())
	assert.Equal(t, KindAll, cfg.Children[1].Kind)
	assert.False(t, cfg.Children[1].Children[1].ExpectedValue())
	assert.NoError(t, cfg.Validate())

	var bad Config
	assert.Error(t, json.Unmarshal([]byte(`{"all": [], "any": []}`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`{"kind": "all", "any": []}`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`{"kind": "flag_equals", "flag": "door_open"}`), &bad))
}

func TestRegister_CustomKind(t *testing.T) {
	const kindAlways Kind = "always"
	Register(kindAlways, func(*Config) (Instance, error) { return &fixed{met: true}, nil })

	inst, err := All(&Config{Kind: kindAlways}).CreateInstance()
	require.NoError(t, err)
	assert.True(t, inst.IsMet())
}

func TestEventCodec(t *testing.T) {
	data, err := EncodeEvent(ItemCollected{ItemID: "key", Amount: 2})
	require.NoError(t, err)

	ev, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, ItemCollected{ItemID: "key", Amount: 2}, ev)

	_, err = DecodeEvent([]byte(`{"kind": "weather.changed", "data": {}}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = EncodeEvent(nil)
	assert.Error(t, err)
}
