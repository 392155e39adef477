// Package tui hosts the chat widget in a terminal with bubbletea.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/go-go-golems/supportchat/pkg/widget"
)

type (
	iconMsg      struct{ icon widget.Icon }
	heightMsg    struct{ progress int }
	indicatorMsg struct{ visible bool }
	spinMsg      struct{ degrees int }
	formMsg      struct{ fields []widget.FormField }
	flagMsg      struct{ name string }
	hideFormMsg  struct{}
	sessionMsg   struct{ id string }
	lineMsg      struct{ line widget.ChatLine }
	clearMsg     struct{}
	errorMsg     struct{ err error }
)

// Presenter turns widget presentation commands into bubbletea messages.
// Send must not block the widget loop; use a Forwarder in front of the program.
type Presenter struct {
	Send func(tea.Msg)
}

var _ widget.Presenter = Presenter{}

func (p Presenter) send(msg tea.Msg) {
	if p.Send != nil {
		p.Send(msg)
	}
}

func (p Presenter) SetToggleIcon(icon widget.Icon) { p.send(iconMsg{icon: icon}) }
func (p Presenter) SetHeight(progress int)        { p.send(heightMsg{progress: progress}) }
func (p Presenter) ShowIndicator()                { p.send(indicatorMsg{visible: true}) }
func (p Presenter) SpinIndicator(degrees int)     { p.send(spinMsg{degrees: degrees}) }
func (p Presenter) HideIndicator()                { p.send(indicatorMsg{visible: false}) }
func (p Presenter) FlagField(name string)         { p.send(flagMsg{name: name}) }
func (p Presenter) HideIdentityForm()             { p.send(hideFormMsg{}) }
func (p Presenter) ShowSessionContent(id string)  { p.send(sessionMsg{id: id}) }
func (p Presenter) AppendMessage(l widget.ChatLine) {
	p.send(lineMsg{line: l})
}
func (p Presenter) ClearSessionContent() { p.send(clearMsg{}) }
func (p Presenter) ShowError(err error)  { p.send(errorMsg{err: err}) }

func (p Presenter) ShowIdentityForm(fields []widget.FormField) {
	p.send(formMsg{fields: append([]widget.FormField(nil), fields...)})
}
