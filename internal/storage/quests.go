package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jwebster45206/quest-engine/pkg/quest"
	"gopkg.in/yaml.v3"
)

// QuestFile is a quest definition together with the file it came from.
type QuestFile struct {
	Path   string
	Config *quest.Config
}

// IsQuestFile reports whether path has a supported quest extension.
func IsQuestFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// LoadQuestFile reads a JSON or YAML quest definition. Unknown fields are
// rejected so authoring typos surface at load time.
func LoadQuestFile(path string) (*quest.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read quest file %s: %w", path, err)
	}
	cfg, err := DecodeQuest(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("quest file %s: %w", path, err)
	}
	return cfg, nil
}

// DecodeQuest decodes a quest definition. ext selects the format (".json",
// ".yaml" or ".yml").
func DecodeQuest(data []byte, ext string) (*quest.Config, error) {
	switch strings.ToLower(ext) {
	case ".json":
	case ".yaml", ".yml":
		// YAML goes through the JSON decoder so both formats share one
		// schema, including the condition shorthand.
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to convert YAML: %w", err)
		}
		data = converted
	default:
		return nil, fmt.Errorf("unsupported quest file extension %q", ext)
	}

	var cfg quest.Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed strict unmarshaling: %w", err)
	}
	return &cfg, nil
}

// LoadQuestDir loads every quest file below dir, sorted by path. Files that
// fail to load are skipped and reported in the joined error, as are
// duplicate quest ids. A missing directory yields no quests and no error.
func LoadQuestDir(dir string) ([]QuestFile, error) {
	var files []QuestFile
	var errs []error
	seen := make(map[string]string)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !IsQuestFile(path) {
			return nil
		}

		cfg, err := LoadQuestFile(path)
		if err != nil {
			errs = append(errs, err)
			return nil
		}
		if prev, dup := seen[cfg.ID]; dup {
			errs = append(errs, fmt.Errorf("quest id %q defined in both %s and %s", cfg.ID, prev, path))
			return nil
		}
		seen[cfg.ID] = path
		files = append(files, QuestFile{Path: path, Config: cfg})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk quest directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, errors.Join(errs...)
}
