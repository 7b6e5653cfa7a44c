package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/jwebster45206/quest-engine/internal/config"
	"github.com/jwebster45206/quest-engine/internal/logger"
	"github.com/jwebster45206/quest-engine/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Logs go to a file so they don't draw over the UI.
	logPath := filepath.Join(os.TempDir(), "quest-console.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logFile.Close() // Ignore error in defer
	}()
	log := logger.SetupWriter(cfg, logFile)

	quests, err := storage.LoadQuestDir(cfg.QuestDir)
	if err != nil {
		// Broken files are reported; the rest are still playable.
		fmt.Fprintf(os.Stderr, "Some quests could not be loaded:\n%v\n", err)
	}
	if len(quests) == 0 {
		fmt.Fprintf(os.Stderr, "No quests found in %s\n", cfg.QuestDir)
		os.Exit(1)
	}

	s := newSession(quests, log, clipboard.WriteAll)

	p := tea.NewProgram(NewConsoleUI(s, cfg.TickInterval),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}
