package state

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jwebster45206/quest-engine/pkg/condition"
	"github.com/jwebster45206/quest-engine/pkg/eventbus"
)

// GameState is the world state of one session as observed through gameplay
// events. It answers the optional queries conditions make when they bind or
// poll. It is not safe for concurrent use; it belongs to the goroutine that
// owns the session's bus.
type GameState struct {
	SessionID uuid.UUID       `json:"session_id"`
	Location  string          `json:"location,omitempty"`
	Flags     map[string]bool `json:"flags,omitempty"`
	Inventory map[string]int  `json:"inventory,omitempty"`
	Kills     map[string]int  `json:"kills,omitempty"`
}

func NewGameState(sessionID uuid.UUID) *GameState {
	return &GameState{
		SessionID: sessionID,
		Flags:     make(map[string]bool),
		Inventory: make(map[string]int),
		Kills:     make(map[string]int),
	}
}

// CurrentArea implements condition.AreaService.
func (gs *GameState) CurrentArea() string {
	return gs.Location
}

// Count implements condition.InventoryService.
func (gs *GameState) Count(itemID string) int {
	return gs.Inventory[itemID]
}

// Flag implements condition.FlagService.
func (gs *GameState) Flag(flagID string) (bool, bool) {
	v, ok := gs.Flags[flagID]
	return v, ok
}

// Context exposes the state as the capability bag conditions query.
func (gs *GameState) Context() *condition.Context {
	return &condition.Context{Areas: gs, Inventory: gs, Flags: gs}
}

// Apply folds a gameplay event into the state. It reports whether the
// event was one the state tracks.
func (gs *GameState) Apply(ev eventbus.Event) bool {
	gs.ensureMaps()
	switch e := ev.(type) {
	case condition.ItemCollected:
		n := gs.Inventory[e.ItemID] + e.Amount
		if n <= 0 {
			delete(gs.Inventory, e.ItemID)
		} else {
			gs.Inventory[e.ItemID] = n
		}
	case condition.AreaEntered:
		gs.Location = e.AreaID
	case condition.FlagChanged:
		gs.Flags[e.FlagID] = e.Value
	case condition.EnemyKilled:
		count := e.Count
		if count <= 0 {
			count = 1
		}
		gs.Kills[e.EnemyID] += count
	default:
		return false
	}
	return true
}

// Track subscribes the state to every gameplay kind on bus. Subscribe it
// before any quest starts so conditions that query the state see the event
// already applied.
func (gs *GameState) Track(bus *eventbus.Bus) []eventbus.Subscription {
	handler := func(ev eventbus.Event) { gs.Apply(ev) }
	return []eventbus.Subscription{
		bus.Subscribe(condition.EventItemCollected, handler),
		bus.Subscribe(condition.EventAreaEntered, handler),
		bus.Subscribe(condition.EventFlagChanged, handler),
		bus.Subscribe(condition.EventEnemyKilled, handler),
	}
}

func (gs *GameState) ensureMaps() {
	if gs.Flags == nil {
		gs.Flags = make(map[string]bool)
	}
	if gs.Inventory == nil {
		gs.Inventory = make(map[string]int)
	}
	if gs.Kills == nil {
		gs.Kills = make(map[string]int)
	}
}

func (gs *GameState) DescribeLocation() string {
	if gs.Location == "" {
		return "You are in an unknown location."
	}
	return "You are in " + gs.Location + "."
}

func (gs *GameState) DescribeInventory() string {
	if len(gs.Inventory) == 0 {
		return "Your inventory is empty."
	}
	items := make([]string, 0, len(gs.Inventory))
	for id, n := range gs.Inventory {
		items = append(items, fmt.Sprintf("%s x%d", id, n))
	}
	slices.Sort(items)
	return "You have:\n- " + strings.Join(items, "\n- ")
}

func (gs *GameState) ToJSON() ([]byte, error) {
	return json.Marshal(gs)
}

func FromJSON(data []byte) (*GameState, error) {
	var gs GameState
	if err := json.Unmarshal(data, &gs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game state: %w", err)
	}
	gs.ensureMaps()
	return &gs, nil
}
