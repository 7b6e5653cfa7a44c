package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/quest-engine/internal/storage"
	"github.com/jwebster45206/quest-engine/pkg/condition"
	"github.com/jwebster45206/quest-engine/pkg/eventbus"
	"github.com/jwebster45206/quest-engine/pkg/quest"
	"github.com/jwebster45206/quest-engine/pkg/state"
)

var errQuit = errors.New("quit")

const helpText = `Commands:
• /quests - List quest definitions
• /start <quest> - Start a quest
• /abandon <quest> - Abandon a quest
• /collect <item> [amount] - Collect (or with a negative amount, lose) items
• /enter <area> - Enter an area
• /flag <flag> [true|false] - Set a world flag
• /kill <enemy> [count] - Kill enemies
• /tick <seconds> - Advance timers
• /look, /inventory - Describe the world
• /copy [quest] - Copy a quest snapshot to the clipboard
• /help - Show this help
• /quit - Quit`

// session is an in-process quest host: one bus, one world, one manager.
// All methods run on the UI goroutine.
type session struct {
	bus     *eventbus.Bus
	world   *state.GameState
	manager *quest.Manager
	quests  []storage.QuestFile
	logger  *slog.Logger

	// lifecycle lines produced while handling the current command
	events []string

	copy func(string) error
}

func newSession(quests []storage.QuestFile, logger *slog.Logger, copyFn func(string) error) *session {
	bus := eventbus.New(logger)
	world := state.NewGameState(uuid.New())
	world.Track(bus)

	s := &session{
		bus:     bus,
		world:   world,
		manager: quest.NewManager(bus, world.Context(), logger),
		quests:  quests,
		logger:  logger,
		copy:    copyFn,
	}
	bus.Subscribe(quest.EventObjectiveStatusChanged, s.record)
	bus.Subscribe(quest.EventQuestCompleted, s.record)
	bus.Subscribe(quest.EventQuestFailed, s.record)
	return s
}

func (s *session) record(ev eventbus.Event) {
	switch e := ev.(type) {
	case quest.ObjectiveStatusChanged:
		s.events = append(s.events, fmt.Sprintf("%s › %s: %s → %s",
			e.QuestID, e.Objective.ID, humanize(e.Previous.String()), humanize(e.Objective.Status.String())))
	case quest.QuestCompleted:
		s.events = append(s.events, fmt.Sprintf("Quest %s completed!", e.Quest.QuestID))
	case quest.QuestFailed:
		s.events = append(s.events, fmt.Sprintf("Quest %s failed (objective %s).", e.Quest.QuestID, e.ObjectiveID))
	}
}

// drain returns and clears the lifecycle lines recorded so far.
func (s *session) drain() []string {
	out := s.events
	s.events = nil
	return out
}

// Tick advances every timer by delta and returns the lifecycle lines it
// produced.
func (s *session) Tick(delta time.Duration) []string {
	s.manager.Tick(delta)
	return s.drain()
}

// result is the output of one command: its own lines, then the lifecycle
// lines it caused.
type result struct {
	Lines  []string
	Events []string
}

// Execute runs one console command. It returns errQuit for /quit.
func (s *session) Execute(input string) (result, error) {
	out, err := s.execute(input)
	// Events raised before a failure still happened.
	return result{Lines: out, Events: s.drain()}, err
}

func (s *session) execute(input string) ([]string, error) {
	fields := strings.Fields(strings.TrimSpace(input))
	if len(fields) == 0 {
		return nil, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	var out []string
	switch cmd {
	case "/help", "/h":
		out = []string{helpText}

	case "/quit", "/q":
		return nil, errQuit

	case "/quests":
		out = s.listQuests()

	case "/start":
		id, err := arg(args, 0, "quest id")
		if err != nil {
			return nil, err
		}
		cfg := s.findQuest(id)
		if cfg == nil {
			return nil, fmt.Errorf("%w: %s", quest.ErrQuestNotFound, id)
		}
		if _, err := s.manager.StartQuest(cfg); err != nil {
			return nil, err
		}
		out = []string{"Started " + id + "."}

	case "/abandon":
		id, err := arg(args, 0, "quest id")
		if err != nil {
			return nil, err
		}
		if err := s.manager.AbandonQuest(id); err != nil {
			return nil, err
		}
		out = []string{"Abandoned " + id + "."}

	case "/collect":
		item, err := arg(args, 0, "item id")
		if err != nil {
			return nil, err
		}
		n, err := intArg(args, 1, 1)
		if err != nil {
			return nil, err
		}
		s.bus.Publish(condition.ItemCollected{ItemID: item, Amount: n})

	case "/enter":
		area, err := arg(args, 0, "area id")
		if err != nil {
			return nil, err
		}
		s.bus.Publish(condition.AreaEntered{AreaID: area})
		out = []string{s.world.DescribeLocation()}

	case "/flag":
		id, err := arg(args, 0, "flag id")
		if err != nil {
			return nil, err
		}
		value := true
		if len(args) > 1 {
			if value, err = strconv.ParseBool(args[1]); err != nil {
				return nil, fmt.Errorf("invalid flag value %q", args[1])
			}
		}
		s.bus.Publish(condition.FlagChanged{FlagID: id, Value: value})

	case "/kill":
		enemy, err := arg(args, 0, "enemy id")
		if err != nil {
			return nil, err
		}
		n, err := intArg(args, 1, 1)
		if err != nil {
			return nil, err
		}
		s.bus.Publish(condition.EnemyKilled{EnemyID: enemy, Count: n})

	case "/tick":
		secs, err := arg(args, 0, "seconds")
		if err != nil {
			return nil, err
		}
		f, err := strconv.ParseFloat(secs, 64)
		if err != nil || f < 0 {
			return nil, fmt.Errorf("invalid seconds %q", secs)
		}
		s.manager.Tick(time.Duration(f * float64(time.Second)))

	case "/look", "/l":
		out = []string{s.world.DescribeLocation()}

	case "/inventory", "/i":
		out = []string{s.world.DescribeInventory()}

	case "/copy":
		text, err := s.snapshotJSON(args)
		if err != nil {
			return nil, err
		}
		if err := s.copy(text); err != nil {
			return nil, fmt.Errorf("failed to copy: %w", err)
		}
		out = []string{"Snapshot copied to clipboard."}

	default:
		return nil, fmt.Errorf("unknown command %q, try /help", cmd)
	}

	return out, nil
}

func (s *session) findQuest(id string) *quest.Config {
	for _, f := range s.quests {
		if f.Config.ID == id {
			return f.Config
		}
	}
	return nil
}

func (s *session) listQuests() []string {
	if len(s.quests) == 0 {
		return []string{"No quests loaded."}
	}
	lines := make([]string, 0, len(s.quests))
	for _, f := range s.quests {
		status := "available"
		if q, ok := s.manager.Quest(f.Config.ID); ok {
			status = humanize(q.Status().String())
		}
		title := f.Config.Title
		if title == "" {
			title = humanize(f.Config.ID)
		}
		lines = append(lines, fmt.Sprintf("• %s (%s) - %s", f.Config.ID, title, status))
	}
	return lines
}

// snapshotJSON renders one quest's snapshot, or every snapshot when no
// quest is named.
func (s *session) snapshotJSON(args []string) (string, error) {
	var v any
	if len(args) > 0 {
		snap, err := s.manager.Snapshot(args[0])
		if err != nil {
			return "", err
		}
		v = snap
	} else {
		snaps := s.manager.Snapshots()
		if len(snaps) == 0 {
			return "", errors.New("no active quests")
		}
		v = snaps
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// questLines renders the quest panel: each started quest with its
// objectives in authored order.
func (s *session) questLines() []string {
	var lines []string
	for _, q := range s.manager.Quests() {
		title := q.Title
		if title == "" {
			title = humanize(q.ID)
		}
		lines = append(lines, fmt.Sprintf("%s [%s]", title, humanize(q.Status().String())))
		for _, o := range q.Objectives() {
			line := fmt.Sprintf("  %s %s", statusMark(o.Status()), o.ID)
			if o.Optional {
				line += " (optional)"
			}
			if cur, req, ok := o.Progress(); ok && o.Status() == quest.StatusInProgress {
				line += fmt.Sprintf(" %g/%g", cur, req)
			}
			if o.Err() != nil {
				line += " ⚠"
			}
			lines = append(lines, line)
		}
		lines = append(lines, "")
	}
	return lines
}

func statusMark(st quest.Status) string {
	switch st {
	case quest.StatusCompleted:
		return "✔"
	case quest.StatusFailed:
		return "✘"
	case quest.StatusInProgress:
		return "▶"
	default:
		return "·"
	}
}

func arg(args []string, i int, name string) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("missing %s", name)
	}
	return args[i], nil
}

func intArg(args []string, i, def int) (int, error) {
	if i >= len(args) {
		return def, nil
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", args[i])
	}
	return n, nil
}
