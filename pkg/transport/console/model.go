package console

import (
	"context"
	"fmt"
	"strings"

	"jeev/pkg/message"
	"jeev/pkg/transport"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type lineKind int

const (
	lineUser lineKind = iota
	lineBot
	lineSystem
)

type chatLine struct {
	kind    lineKind
	channel string
	user    string
	text    string
}

// botLineMsg carries an outbound message into the program.
type botLineMsg struct {
	channel string
	text    string
}

type model struct {
	ctx     context.Context
	handler transport.Handler
	botName string

	theme     theme
	input     textinput.Model
	viewport  viewport.Model
	lines     []chatLine
	channel   string
	user      string
	width     int
	height    int
	isReady   bool
	followLog bool
}

func newModel(ctx context.Context, handler transport.Handler, botName string, channel string, user string) *model {
	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "Say something..."
	in.Focus()
	in.CharLimit = 0

	return &model{
		ctx:       ctx,
		handler:   handler,
		botName:   botName,
		theme:     defaultTheme(),
		input:     in,
		viewport:  viewport.New(80, 12),
		channel:   channel,
		user:      user,
		width:     100,
		height:    28,
		followLog: true,
	}
}

func (m *model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport()
		m.isReady = true
		return m, nil
	case botLineMsg:
		m.lines = append(m.lines, chatLine{kind: lineBot, channel: typed.channel, text: typed.text})
		m.refreshViewport()
		return m, nil
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "pgup":
			m.viewport.PageUp()
			m.followLog = false
			return m, nil
		case "pgdown":
			m.viewport.PageDown()
			m.followLog = m.viewport.AtBottom()
			return m, nil
		case "enter":
			return m, m.submit()
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit handles one input line: \c and \u switch channel and user,
// anything else is sent to the host.
func (m *model) submit() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")
	if text == "" {
		return nil
	}

	if command, arg, ok := parseSwitch(text); ok {
		switch command {
		case `\c`:
			m.channel = strings.TrimPrefix(arg, "#")
			m.system(fmt.Sprintf("switched to channel #%s", m.channel))
		case `\u`:
			m.user = arg
			m.system(fmt.Sprintf("you are now %s", m.user))
		}
		return nil
	}

	m.lines = append(m.lines, chatLine{kind: lineUser, channel: m.channel, user: m.user, text: text})
	m.followLog = true
	m.refreshViewport()

	msg := message.New(m.channel, m.user, text, map[string]string{"transport": adapterName})
	ctx, handler := m.ctx, m.handler
	return func() tea.Msg {
		if handler != nil {
			handler(ctx, msg)
		}
		return nil
	}
}

func (m *model) system(text string) {
	m.lines = append(m.lines, chatLine{kind: lineSystem, text: text})
	m.refreshViewport()
}

func parseSwitch(text string) (command string, arg string, ok bool) {
	for _, prefix := range []string{`\c`, `\u`} {
		rest, found := strings.CutPrefix(text, prefix+" ")
		if found && strings.TrimSpace(rest) != "" {
			return prefix, strings.TrimSpace(rest), true
		}
	}
	return "", "", false
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport()
	}

	header := m.theme.header.Width(m.width - 2).Render(m.botName + " console")
	meta := m.theme.headerMeta.Render(fmt.Sprintf("channel:#%s · user:%s", m.channel, m.user))
	status := m.theme.status.Render(`Enter send · \c <channel> switch channel · \u <user> switch user · Ctrl+C quit`)

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		meta,
		m.theme.viewport.Width(m.width-2).Render(m.viewport.View()),
		status,
		m.theme.input.Width(m.width-2).Render(m.input.View()),
	)
}

func (m *model) resizeComponents() {
	w := max(40, m.width-6)
	h := max(6, m.height-9)

	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 2
}

func (m *model) refreshViewport() {
	rendered := make([]string, 0, len(m.lines))
	for _, line := range m.lines {
		rendered = append(rendered, m.renderLine(line))
	}

	m.viewport.SetContent(strings.Join(rendered, "\n"))
	if m.followLog {
		m.viewport.GotoBottom()
	}
}

func (m *model) renderLine(line chatLine) string {
	switch line.kind {
	case lineBot:
		return m.theme.bot.Render(formatBotLine(line.channel, line.text))
	case lineSystem:
		return m.theme.system.Render("* " + line.text)
	default:
		return m.theme.user.Render(fmt.Sprintf("> [#%s] %s: %s", line.channel, line.user, line.text))
	}
}

func formatBotLine(channel string, text string) string {
	return fmt.Sprintf("< [#%s] %s", channel, text)
}
