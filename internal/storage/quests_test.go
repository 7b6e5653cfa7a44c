package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jwebster45206/quest-engine/pkg/condition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const yamlQuest = `
id: escape
title: Escape
objectives:
  - id: keys
    completion:
      kind: item_collected
      item_id: key
      count: 3
  - id: door
    prerequisites: [keys]
    completion:
      any:
        - kind: flag_equals
          flag_id: door_open
        - kind: flag_equals
          flag_id: alt_key_used
          expected: true
    failure:
      kind: time_elapsed
      seconds: 30
`

func TestDecodeQuest_YAMLMatchesJSON(t *testing.T) {
	fromYAML, err := DecodeQuest([]byte(yamlQuest), ".yaml")
	require.NoError(t, err)

	fromJSON, err := DecodeQuest([]byte(`{
		"id": "escape",
		"title": "Escape",
		"objectives": [
			{"id": "keys", "completion": {"kind": "item_collected", "item_id": "key", "count": 3}},
			{"id": "door", "prerequisites": ["keys"],
			 "completion": {"any": [
				{"kind": "flag_equals", "flag_id": "door_open"},
				{"kind": "flag_equals", "flag_id": "alt_key_used", "expected": true}
			 ]},
			 "failure": {"kind": "time_elapsed", "seconds": 30}}
		]
	}`), ".json")
	require.NoError(t, err)

	assert.Equal(t, fromJSON, fromYAML)
	door := fromYAML.Objectives[1]
	assert.Equal(t, condition.KindAny, door.Completion.Kind)
	assert.Len(t, door.Completion.Children, 2)
	assert.Equal(t, 30.0, door.Failure.Seconds)
	assert.NoError(t, fromYAML.Validate())
}

func TestDecodeQuest_Strict(t *testing.T) {
	tests := []struct {
		name string
		data string
		ext  string
	}{
		{"unknown quest field", `{"id":"q","reward":5,"objectives":[]}`, ".json"},
		{"unknown objective field", `{"id":"q","objectives":[{"id":"a","hint":"x"}]}`, ".json"},
		{"unknown condition field", "id: q\nobjectives:\n  - id: a\n    completion:\n      kind: flag_equals\n      flag: x\n", ".yml"},
		{"bad yaml", "id: [unclosed", ".yaml"},
		{"unsupported extension", `id = "q"`, ".toml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeQuest([]byte(tt.data), tt.ext)
			assert.Error(t, err)
		})
	}
}

func TestLoadQuestDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.json"), `{"id":"beta","objectives":[{"id":"a","completion":{"kind":"flag_equals","flag_id":"x"}}]}`)
	writeFile(t, filepath.Join(dir, "a.yaml"), yamlQuest)
	writeFile(t, filepath.Join(dir, "dup.json"), `{"id":"escape","objectives":[{"id":"a","completion":{"kind":"flag_equals","flag_id":"x"}}]}`)
	writeFile(t, filepath.Join(dir, "broken.json"), `{"id":`)

	files, err := LoadQuestDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.json")
	assert.Contains(t, err.Error(), `quest id "escape" defined in both`)

	require.Len(t, files, 2)
	assert.Equal(t, "escape", files[0].Config.ID)
	assert.Equal(t, "beta", files[1].Config.ID)
}

func TestLoadQuestDir_Missing(t *testing.T) {
	files, err := LoadQuestDir(filepath.Join(t.TempDir(), "nope"))
	assert.NoError(t, err)
	assert.Empty(t, files)
}

func TestBundledQuestsAreValid(t *testing.T) {
	files, err := LoadQuestDir(filepath.Join("..", "..", "data", "quests"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		assert.NoError(t, f.Config.Validate(), f.Path)
		assert.Empty(t, f.Config.ValidateObjectives(), f.Path)
	}
}
