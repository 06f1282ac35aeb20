package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/reinhart/zostelAgent/internal/assistant"
)

// --- Mocha Palette & Styles ---

var (
	mochaText    = lipgloss.Color("#cdd6f4") // Main text
	colorSubtext = lipgloss.Color("#9399b2")

	colorCream  = lipgloss.Color("#f5e0dc")
	colorLatte  = lipgloss.Color("#ef9f76") // User
	colorMatcha = lipgloss.Color("#a6e3a1") // Agent
	colorCoffee = lipgloss.Color("#fab387")
	colorMauve  = lipgloss.Color("#cba6f7")

	colorBorder = lipgloss.Color("#45475a")
	colorActive = lipgloss.Color("#f9e2af")

	styleBase = lipgloss.NewStyle().Foreground(mochaText)

	styleBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	styleFocusBorder = styleBorder.
				BorderForeground(colorActive)

	styleUserHeader = lipgloss.NewStyle().
			Foreground(colorLatte).
			Bold(true).
			MarginTop(1)

	styleAgentHeader = lipgloss.NewStyle().
				Foreground(colorMatcha).
				Bold(true).
				MarginTop(1)

	styleError = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#f38ba8")).
			Bold(true)

	styleStatus = lipgloss.NewStyle().
			Foreground(colorSubtext).
			Italic(true)
)

// turnTimeout bounds one console turn, matching the webhook default.
const turnTimeout = 3 * time.Minute

// resetCommand clears the console conversation.
const resetCommand = "/reset"

// TurnRunner runs one user message through the orchestrator.
type TurnRunner interface {
	HandleTurn(ctx context.Context, req assistant.TurnRequest) (*assistant.TurnResult, error)
}

// Resetter forgets a conversation.
type Resetter interface {
	Reset(key string)
}

type State int

const (
	StateReady State = iota
	StateThinking
)

type Model struct {
	runner   TurnRunner
	resetter Resetter
	outbox   <-chan Delivery
	key      string
	sender   string

	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	state    State
	status   string
	content  string

	// Layout
	width  int
	height int
}

// Config wires a Model to the orchestrator.
type Config struct {
	Runner          TurnRunner
	Resetter        Resetter
	Notifier        *ChannelNotifier
	ConversationKey string
	Sender          string
}

func NewModel(cfg Config) Model {
	vp := viewport.New(80, 20)
	welcomeMsg := styleAgentHeader.Render("Zostel") + "\n" +
		styleBase.Render("Hi! Ask me about Zostel stays. Type /reset to start over.")
	vp.SetContent(welcomeMsg)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorMauve)

	return Model{
		runner:   cfg.Runner,
		resetter: cfg.Resetter,
		outbox:   cfg.Notifier.Deliveries(),
		key:      cfg.ConversationKey,
		sender:   cfg.Sender,
		textarea: newInput(80),
		viewport: vp,
		spinner:  s,
		state:    StateReady,
		content:  welcomeMsg,
	}
}

func newInput(width int) textarea.Model {
	ta := textarea.New()
	ta.Placeholder = "Where do you want to go?"
	ta.Focus()
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.Prompt = ""
	ta.CharLimit = 1000
	ta.SetWidth(width)

	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(colorSubtext)
	ta.FocusedStyle.Prompt = lipgloss.NewStyle().Foreground(colorCoffee)
	ta.FocusedStyle.Text = lipgloss.NewStyle().Foreground(colorCream)
	return ta
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick, listenForDeliveries(m.outbox))
}

type turnDoneMsg struct {
	result *assistant.TurnResult
	err    error
}

type deliveryMsg Delivery

func listenForDeliveries(outbox <-chan Delivery) tea.Cmd {
	return func() tea.Msg {
		d, ok := <-outbox
		if !ok {
			return nil
		}
		return deliveryMsg(d)
	}
}

func (m Model) processInput(input string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
		defer cancel()

		result, err := m.runner.HandleTurn(ctx, assistant.TurnRequest{
			ConversationKey: m.key,
			Sender:          m.sender,
			Text:            input,
		})
		return turnDoneMsg{result: result, err: err}
	}
}

func (m *Model) appendView(block string) {
	m.content += block
	m.viewport.SetContent(m.content)
	m.viewport.GotoBottom()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		// Borders + status + input
		viewportHeight := msg.Height - 7
		if viewportHeight < 5 {
			viewportHeight = 5
		}
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = viewportHeight
		m.textarea.SetWidth(msg.Width - 4)

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if msg.Alt || m.state != StateReady {
				break
			}
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				break
			}
			// Replace the textarea so it drops its scroll state.
			m.textarea = newInput(m.width - 4)

			if input == resetCommand {
				m.resetter.Reset(m.key)
				m.status = "Conversation reset."
				m.appendView("\n" + styleStatus.Render("-- conversation reset --") + "\n")
				return m, nil
			}

			m.appendView("\n" + styleUserHeader.Render("You") + "\n" + styleBase.Render(input) + "\n")
			m.state = StateThinking
			m.status = "Thinking..."
			return m, m.processInput(input)
		}

	case deliveryMsg:
		m.appendView(styleAgentHeader.Render("Zostel") + "\n" + styleBase.Render(msg.Text) + "\n")
		cmds = append(cmds, listenForDeliveries(m.outbox))

	case turnDoneMsg:
		m.state = StateReady
		switch {
		case msg.err != nil:
			m.appendView(styleError.Render(fmt.Sprintf("Error: %v", msg.err)) + "\n")
			m.status = "Turn failed."
		case !msg.result.Delivered():
			m.appendView(styleError.Render(fmt.Sprintf("Reply not delivered: %v", msg.result.Delivery)) + "\n")
			m.status = "Delivery failed."
		default:
			m.status = fmt.Sprintf("Done (%d tool rounds).", msg.result.ToolRounds)
		}
		separator := lipgloss.NewStyle().Foreground(colorBorder).Render(strings.Repeat("─", max(m.width/2, 1)))
		m.appendView(separator + "\n")
		m.textarea.Focus()
		return m, tea.Batch(cmds...)

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	if m.state == StateReady {
		m.textarea, cmd = m.textarea.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	chatView := styleBorder.Width(m.width - 2).Height(m.viewport.Height + 2).Render(m.viewport.View())

	var statusStr string
	switch {
	case m.state == StateThinking:
		statusStr = fmt.Sprintf(" %s %s", m.spinner.View(), styleStatus.Render(m.status))
	case m.status != "":
		statusStr = styleStatus.Render(" " + m.status)
	default:
		statusStr = styleStatus.Render(" Ready.")
	}
	statusView := lipgloss.NewStyle().Width(m.width).PaddingLeft(1).Render(statusStr)

	prompt := lipgloss.NewStyle().Foreground(colorCoffee).Render("› ")
	inputContent := lipgloss.JoinHorizontal(lipgloss.Top, prompt, m.textarea.View())
	inputView := styleFocusBorder.Width(m.width - 2).Render(inputContent)

	return lipgloss.JoinVertical(lipgloss.Left,
		chatView,
		statusView,
		inputView,
	)
}
