package runner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/jwebster45206/quest-engine/internal/handlers"
	"github.com/jwebster45206/quest-engine/pkg/condition"
	"github.com/jwebster45206/quest-engine/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestCheckExpectations(t *testing.T) {
	world := state.NewGameState(uuid.New())
	world.Apply(condition.AreaEntered{AreaID: "hall"})
	world.Apply(condition.ItemCollected{ItemID: "key", Amount: 2})
	world.Apply(condition.FlagChanged{FlagID: "door_open", Value: true})

	session := &handlers.SessionResponse{
		World: world,
		Quests: []handlers.QuestView{{
			QuestID:    "escape",
			Status:     "in_progress",
			Objectives: []handlers.ObjectiveView{{ID: "keys", Status: "completed"}},
		}},
	}

	tests := []struct {
		name    string
		exp     Expectations
		wantErr string
	}{
		{name: "empty", exp: Expectations{}},
		{name: "all match", exp: Expectations{
			Location:   ptr("hall"),
			Inventory:  map[string]int{"key": 2, "rope": 0},
			Flags:      map[string]bool{"door_open": true, "alarm": false},
			Quests:     map[string]string{"escape": "in_progress", "other": "absent"},
			Objectives: map[string]string{"escape/keys": "completed"},
		}},
		{name: "location", exp: Expectations{Location: ptr("yard")}, wantErr: `expected location "yard"`},
		{name: "inventory", exp: Expectations{Inventory: map[string]int{"key": 3}}, wantErr: "expected 3 key"},
		{name: "flag", exp: Expectations{Flags: map[string]bool{"door_open": false}}, wantErr: "flag door_open"},
		{name: "quest status", exp: Expectations{Quests: map[string]string{"escape": "completed"}}, wantErr: "got in_progress"},
		{name: "quest missing", exp: Expectations{Quests: map[string]string{"other": "completed"}}, wantErr: "no snapshot"},
		{name: "quest not absent", exp: Expectations{Quests: map[string]string{"escape": "absent"}}, wantErr: "to be absent"},
		{name: "objective", exp: Expectations{Objectives: map[string]string{"escape/door": "completed"}}, wantErr: `got ""`},
		{name: "objective key", exp: Expectations{Objectives: map[string]string{"keys": "completed"}}, wantErr: "quest_id/objective_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckExpectations(tt.exp, session)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("no world yet", func(t *testing.T) {
		err := CheckExpectations(Expectations{Inventory: map[string]int{"key": 0}, Location: ptr("")}, &handlers.SessionResponse{})
		assert.NoError(t, err)
	})
}

func TestLoadTestSuiteWithExpansion(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	write("a.json", `{"name":"A","steps":[{"name":"start","start":"escape","expect":{"quests":{"escape":"in_progress"}}}]}`)
	write("b.json", `{"name":"B","steps":[{"event":{"kind":"area.entered","data":{"area_id":"hall"}},"expect":{"location":"hall"}}]}`)
	seq := write("all.json", `{"name":"All","cases":["a.json","b.json"]}`)

	jobs, err := LoadTestSuiteWithExpansion(seq, dir)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "A", jobs[0].Name)
	assert.Equal(t, "escape", jobs[0].Suite.Steps[0].Start)
	assert.Equal(t, "B", jobs[1].Name)
	assert.JSONEq(t, `{"kind":"area.entered","data":{"area_id":"hall"}}`, string(jobs[1].Suite.Steps[0].Event))

	loop := write("loop.json", `{"name":"Loop","cases":["loop.json"]}`)
	_, err = LoadTestSuiteWithExpansion(loop, dir)
	assert.ErrorContains(t, err, "references itself")

	_, err = LoadTestSuiteWithExpansion(filepath.Join(dir, "missing.json"), dir)
	assert.Error(t, err)
}

func TestBundledCasesLoad(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("..", "cases", "*.json"))
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for _, f := range files {
		jobs, err := LoadTestSuiteWithExpansion(f, filepath.Join("..", "cases"))
		require.NoError(t, err, f)
		for _, job := range jobs {
			assert.NotEmpty(t, job.Suite.Steps, f)
		}
	}
}
