package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jwebster45206/quest-engine/internal/storage"
	"github.com/jwebster45206/quest-engine/pkg/condition"
	"github.com/jwebster45206/quest-engine/pkg/quest"
	"github.com/spf13/cobra"
)

var quiet bool

var rootCmd = &cobra.Command{
	Use:   "validate <quest.json|quest.yaml|dir>...",
	Short: "Validate quest definition files",
	Long: `Loads each quest file (or every quest file below a directory) strictly,
then checks objective prerequisites, condition trees and id formatting.`,
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd.OutOrStdout(), cmd.ErrOrStderr(), args)
	},
}

func init() {
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only print failures")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var errInvalid = errors.New("one or more quest files are invalid")

func runValidate(stdout, stderr io.Writer, args []string) error {
	validator := &QuestValidator{out: stdout}
	if quiet {
		validator.out = io.Discard
	}
	failed := false
	for _, arg := range args {
		files, err := questFiles(arg)
		if err != nil {
			fmt.Fprintf(stderr, "Validation failed: %v\n", err)
			failed = true
			continue
		}
		for _, filename := range files {
			if err := validator.validateFile(filename); err != nil {
				fmt.Fprintf(stderr, "Validation failed: %v\n", err)
				failed = true
			}
		}
	}
	if failed {
		return errInvalid
	}

	fmt.Fprintln(validator.output(), "Quest files are valid!")
	return nil
}

// questFiles expands a directory argument into the quest files below it.
func questFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && storage.IsQuestFile(p) {
			files = append(files, p)
		}
		return nil
	})
	return files, err
}

type QuestValidator struct {
	out    io.Writer
	errors []string
	seen   map[string]string // quest id -> file
}

func (v *QuestValidator) output() io.Writer {
	if v.out == nil {
		return os.Stdout
	}
	return v.out
}

func (v *QuestValidator) validateFile(filename string) error {
	fmt.Fprintf(v.output(), "Validating %s...\n", filename)

	// Validate filename format
	baseName := filepath.Base(filename)
	if !storage.IsQuestFile(baseName) {
		return fmt.Errorf("quest file must have .json, .yaml or .yml extension: %s", baseName)
	}

	nameWithoutExt := strings.TrimSuffix(baseName, filepath.Ext(baseName))
	if !isValidQuestFilename(nameWithoutExt) {
		return fmt.Errorf("quest filename '%s' must be lowercase snake_case (e.g., my_quest.yaml, not my-quest.yaml or MyQuest.yaml)", baseName)
	}

	cfg, err := storage.LoadQuestFile(filename)
	if err != nil {
		return err
	}

	v.errors = nil
	v.validateQuest(cfg, filename)

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors in %s:\n%s", filename, strings.Join(v.errors, "\n"))
	}

	return nil
}

func (v *QuestValidator) validateQuest(cfg *quest.Config, filename string) {
	if err := cfg.Validate(); err != nil {
		v.addError(err.Error())
		return
	}
	for _, err := range cfg.ValidateObjectives() {
		v.addError(err.Error())
	}

	if v.seen == nil {
		v.seen = make(map[string]string)
	}
	if prev, dup := v.seen[cfg.ID]; dup {
		v.addError(fmt.Sprintf("quest id '%s' is also defined in %s", cfg.ID, prev))
	} else {
		v.seen[cfg.ID] = filename
	}

	v.validateIDFormat("quest ID", cfg.ID)
	for _, o := range cfg.Objectives {
		v.validateIDFormat("objective ID", o.ID)
		context := fmt.Sprintf("objective %s", o.ID)
		v.validateCondition(o.Completion, context+" completion")
		v.validateCondition(o.Failure, context+" failure")
	}
}

func (v *QuestValidator) validateCondition(c *condition.Config, context string) {
	if c == nil {
		return
	}
	switch c.Kind {
	case condition.KindAll, condition.KindAny:
		for _, child := range c.Children {
			v.validateCondition(child, context)
		}
	case condition.KindItemCollected:
		v.validateIDFormat(context+" item ID", c.ItemID)
	case condition.KindAreaEntered:
		v.validateIDFormat(context+" area ID", c.AreaID)
	case condition.KindFlagEquals:
		v.validateIDFormat(context+" flag ID", c.FlagID)
	case condition.KindEnemyKilled:
		v.validateIDFormat(context+" enemy ID", c.EnemyID)
	}
}

func (v *QuestValidator) validateIDFormat(fieldName, id string) {
	if id == "" {
		return
	}

	if !isValidID(id) {
		v.addError(fmt.Sprintf("%s '%s' should be lowercase snake_case", fieldName, id))
	}
}

func (v *QuestValidator) addError(msg string) {
	v.errors = append(v.errors, "  - "+msg)
}

var validIDRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$|^[a-z]$`)

func isValidID(id string) bool {
	return validIDRegex.MatchString(id)
}

func isValidQuestFilename(name string) bool {
	// Allow 'x.' prefix for experimental quests
	name = strings.TrimPrefix(name, "x.")
	return validIDRegex.MatchString(name)
}
