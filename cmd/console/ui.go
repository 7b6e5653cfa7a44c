package main

import (
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const PlaceHolderText = "Type a command, e.g. /start escape_cellar"

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	session      *session
	tickInterval time.Duration
	lastTick     time.Time

	logViewport   viewport.Model
	questViewport viewport.Model
	textarea      textarea.Model
	lines         []string
	ready         bool
	width         int
	height        int

	// Quit confirmation state
	showQuitModal bool
}

type tickMsg time.Time

var (
	logPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	questPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	eventStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey
)

var titleCaser = cases.Title(language.English)

// humanize turns a snake_case id or status into a title, e.g.
// "in_progress" -> "In Progress".
func humanize(id string) string {
	return titleCaser.String(strings.ReplaceAll(id, "_", " "))
}

func NewConsoleUI(s *session, tickInterval time.Duration) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 200
	ta.SetWidth(50)
	ta.SetHeight(1)
	ta.ShowLineNumbers = false

	logVp := viewport.New(50, 20)
	logVp.MouseWheelEnabled = true

	questVp := viewport.New(20, 20)

	return ConsoleUI{
		session:       s,
		tickInterval:  tickInterval,
		textarea:      ta,
		logViewport:   logVp,
		questViewport: questVp,
		lines:         []string{"Type /help for commands, /quests to list quests."},
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.tick())
}

func (m ConsoleUI) tick() tea.Cmd {
	return tea.Tick(m.tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		logWidth := int(float64(m.width)*0.65) - 4
		questWidth := m.width - logWidth - 6

		m.logViewport.Width = logWidth - 2
		m.logViewport.Height = m.height - 7
		m.questViewport.Width = questWidth - 2
		m.questViewport.Height = m.height - 4
		m.textarea.SetWidth(logWidth - 4)

		m.ready = true
		m.refresh()

	case tickMsg:
		now := time.Time(msg)
		if !m.lastTick.IsZero() {
			if lines := m.session.Tick(now.Sub(m.lastTick)); len(lines) > 0 {
				m.appendEvents(lines)
			}
		}
		m.lastTick = now
		m.refresh()
		return m, m.tick()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEnter:
			input := strings.TrimSpace(m.textarea.Value())
			m.textarea.Reset()
			if input == "" {
				return m, nil
			}
			return m.handleCommand(input)
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.logViewport, vpCmd = m.logViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd)
}

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	m.lines = append(m.lines, userStyle.Render("> ")+input)

	res, err := m.session.Execute(input)
	if errors.Is(err, errQuit) {
		return m, tea.Quit
	}
	if err != nil {
		m.lines = append(m.lines, errorStyle.Render("Error: "+err.Error()))
	}
	m.lines = append(m.lines, res.Lines...)
	m.appendEvents(res.Events)
	m.refresh()
	return m, nil
}

func (m *ConsoleUI) appendEvents(lines []string) {
	for _, line := range lines {
		m.lines = append(m.lines, eventStyle.Render(line))
	}
}

// refresh rewraps the log for the current width and redraws the quest panel.
func (m *ConsoleUI) refresh() {
	if !m.ready {
		return
	}
	width := max(m.logViewport.Width-6, 10)

	var content strings.Builder
	content.WriteString(titleStyle.Render("QUEST ENGINE") + "\n\n")
	for _, line := range m.lines {
		content.WriteString(wordwrap.String(line, width) + "\n")
	}
	m.logViewport.SetContent(content.String())
	m.logViewport.GotoBottom()

	m.questViewport.SetContent(m.writeQuestPanel())
}

func (m *ConsoleUI) writeQuestPanel() string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("QUESTS") + "\n\n")
	lines := m.session.questLines()
	if len(lines) == 0 {
		content.WriteString("None started\n")
	}
	for _, line := range lines {
		content.WriteString(wordwrap.String(line, max(m.questViewport.Width, 10)) + "\n")
	}

	content.WriteString("\n" + titleStyle.Render("WORLD") + "\n\n")
	content.WriteString(m.session.world.DescribeLocation() + "\n")
	content.WriteString(m.session.world.DescribeInventory() + "\n")
	return content.String()
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		// keep the timer chain alive while the modal is open
		m.lastTick = time.Time(msg)
		return m, m.tick()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit?"))
	content.WriteString("\n\n")
	content.WriteString("Quest progress in the console is not saved.")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	logWidth := int(float64(m.width)*0.65) - 4
	questWidth := m.width - logWidth - 6

	logPanel := logPanelStyle.Width(logWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.logViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", max(logWidth-4, 0))),
			m.textarea.View(),
		),
	)

	questPanel := questPanelStyle.Width(questWidth).Height(m.height - 2).Render(
		m.questViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, logPanel, questPanel)
}
