package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/go-go-golems/supportchat/pkg/widget"
	"github.com/go-go-golems/supportchat/pkg/widget/animate"
	"github.com/go-go-golems/supportchat/pkg/widget/config"
)

// MaxBodyRows is the body height of a fully opened box.
const MaxBodyRows = 14

var (
	spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

	labelStyle   = lipgloss.NewStyle().Bold(true)
	flaggedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mineStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)
	theirsStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("118")).Bold(true)
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
)

type formInput struct {
	field widget.FormField
	input textinput.Model
}

// Model renders the widget state pushed by Presenter and forwards key presses
// to Actions.
type Model struct {
	cfg     config.Config
	actions Actions
	width   int

	header lipgloss.Style
	box    lipgloss.Style

	icon      widget.Icon
	height    int
	busy      bool
	degrees   int
	form      []formInput
	formOpen  bool
	focus     int
	flagged   map[string]bool
	sessionID string
	lines     []widget.ChatLine
	composer  textinput.Model
	err       error
}

func NewModel(cfg config.Config, actions Actions) Model {
	composer := textinput.New()
	composer.Placeholder = "Type a message"
	composer.Prompt = "> "
	composer.CharLimit = 2000

	return Model{
		cfg:      cfg,
		actions:  actions,
		width:    48,
		header:   lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color(cfg.TitleColor)).Background(lipgloss.Color(cfg.Background)),
		box:      lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color(cfg.Background)).Padding(0, 1),
		icon:     widget.IconEnlarge,
		flagged:  map[string]bool{},
		composer: composer,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = max(24, min(msg.Width-2, 72))
		m.composer.Width = m.width - 6
		for i := range m.form {
			m.form[i].input.Width = m.width - 12
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case iconMsg:
		m.icon = msg.icon
	case heightMsg:
		m.height = msg.progress
	case indicatorMsg:
		m.busy = msg.visible
	case spinMsg:
		m.degrees = msg.degrees
	case formMsg:
		m.openForm(msg.fields)
		cmd := m.focusCmd()
		return m, cmd
	case flagMsg:
		m.flagged[msg.name] = true
	case hideFormMsg:
		m.formOpen = false
		m.form = nil
		m.flagged = map[string]bool{}
	case sessionMsg:
		m.sessionID = msg.id
		m.err = nil
		m.composer.Reset()
		cmd := m.composer.Focus()
		return m, cmd
	case lineMsg:
		m.lines = append(m.lines, msg.line)
	case clearMsg:
		m.sessionID = ""
		m.lines = nil
		m.composer.Blur()
		m.composer.Reset()
	case errorMsg:
		m.err = msg.err
	}
	return m, nil
}

func (m Model) handleKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "ctrl+o":
		m.actions.Toggle()
		return m, nil
	case "tab", "shift+tab":
		if !m.formOpen || len(m.form) == 0 {
			return m, nil
		}
		step := 1
		if k.String() == "shift+tab" {
			step = len(m.form) - 1
		}
		m.focus = (m.focus + step) % len(m.form)
		cmd := m.focusCmd()
		return m, cmd
	case "enter":
		switch {
		case m.formOpen:
			m.flagged = map[string]bool{}
			m.actions.SubmitIdentity(m.value(widget.FieldName), m.value(widget.FieldEmail))
		case m.sessionID != "":
			if text := m.composer.Value(); strings.TrimSpace(text) != "" {
				m.actions.Send(text)
			}
			m.composer.Reset()
		}
		return m, nil
	}

	var cmd tea.Cmd
	switch {
	case m.formOpen && len(m.form) > 0:
		m.form[m.focus].input, cmd = m.form[m.focus].input.Update(k)
	case m.sessionID != "":
		m.composer, cmd = m.composer.Update(k)
	}
	return m, cmd
}

func (m *Model) openForm(fields []widget.FormField) {
	m.form = make([]formInput, 0, len(fields))
	for _, f := range fields {
		in := textinput.New()
		in.Prompt = ""
		in.Placeholder = strings.ToLower(f.Label)
		in.CharLimit = 200
		in.Width = m.width - 12
		in.SetValue(f.Value)
		m.form = append(m.form, formInput{field: f, input: in})
	}
	m.formOpen = true
	m.focus = 0
	m.flagged = map[string]bool{}
}

// focusCmd focuses the current form field and blurs the others.
func (m *Model) focusCmd() tea.Cmd {
	var cmd tea.Cmd
	for i := range m.form {
		if i == m.focus {
			cmd = m.form[i].input.Focus()
			continue
		}
		m.form[i].input.Blur()
	}
	return cmd
}

func (m Model) value(name string) string {
	for _, f := range m.form {
		if f.field.Name == name {
			return f.input.Value()
		}
	}
	return ""
}

// Rows is the number of body rows revealed at the current box height.
func (m Model) Rows() int {
	h := min(max(m.height, animate.ClosedBound), animate.OpenedBound)
	return h * MaxBodyRows / animate.OpenedBound
}

func (m Model) View() string {
	glyph := "▲"
	if m.icon == widget.IconMinimize {
		glyph = "▼"
	}
	title := fmt.Sprintf("%s %s", m.cfg.Title, glyph)
	header := m.header.Width(m.width).Render(title)

	rows := m.Rows()
	if rows == 0 {
		return header + "\n" + hintStyle.Render("ctrl+o open · ctrl+c quit") + "\n"
	}

	body := m.body(rows)
	return header + "\n" + m.box.Width(m.width).Render(strings.Join(body, "\n")) + "\n" +
		hintStyle.Render("ctrl+o close · tab next field · enter submit · ctrl+c quit") + "\n"
}

func (m Model) body(rows int) []string {
	var out []string
	if m.busy {
		frame := spinnerFrames[(m.degrees/animate.Step)%len(spinnerFrames)]
		out = append(out, frame+" working…", "")
	}
	if m.err != nil {
		out = append(out, errorStyle.Render("error: "+m.err.Error()), "")
	}

	switch {
	case m.formOpen:
		out = append(out, "Tell us who you are:", "")
		for i, f := range m.form {
			label := labelStyle.Render(fmt.Sprintf("%-6s", f.field.Label))
			if m.flagged[f.field.Name] {
				label = flaggedStyle.Render(fmt.Sprintf("%-6s", f.field.Label+"!"))
			}
			cursor := "  "
			if i == m.focus {
				cursor = "› "
			}
			out = append(out, cursor+label+" "+f.input.View())
		}
	case m.sessionID != "":
		out = append(out, hintStyle.Render("session "+m.sessionID))
		keep := max(rows-len(out)-2, 0)
		lines := m.lines
		if len(lines) > keep {
			lines = lines[len(lines)-keep:]
		}
		for _, l := range lines {
			out = append(out, renderLine(l))
		}
		out = append(out, "", m.composer.View())
	}

	for len(out) < rows {
		out = append(out, "")
	}
	return out[:rows]
}

func renderLine(l widget.ChatLine) string {
	who := l.From
	style := theirsStyle
	if l.Outbound {
		style = mineStyle
		if who == "" {
			who = "you"
		}
	}
	if who == "" {
		who = "agent"
	}
	stamp := ""
	if !l.At.IsZero() {
		stamp = hintStyle.Render(l.At.Format("15:04")) + " "
	}
	return stamp + style.Render(who+":") + " " + l.Text
}
