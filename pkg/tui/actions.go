package tui

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/go-go-golems/supportchat/pkg/widget"
	"github.com/go-go-golems/supportchat/pkg/widget/loop"
)

// Actions are the user intents the terminal model forwards to the widget.
// Implementations must not block the bubbletea update loop.
type Actions interface {
	Toggle()
	SubmitIdentity(name, email string)
	Send(text string)
}

// LoopActions runs each intent on the widget's loop.
type LoopActions struct {
	Runner loop.Runner
	Widget *widget.Widget
	Logger zerolog.Logger
}

var _ Actions = LoopActions{}

func (a LoopActions) Toggle() {
	a.Runner.Post(func() {
		if err := a.Widget.Toggle(); err != nil {
			a.ignore(err, "toggle")
		}
	})
}

func (a LoopActions) SubmitIdentity(name, email string) {
	a.Runner.Post(func() {
		res, err := a.Widget.SubmitIdentity(name, email)
		if err != nil {
			a.ignore(err, "submit identity")
			return
		}
		if res.Fails {
			a.Logger.Debug().Strs("failed", res.Failed).Msg("identity form has invalid fields")
		}
	})
}

func (a LoopActions) Send(text string) {
	a.Runner.Post(func() {
		if err := a.Widget.Send(text); err != nil {
			a.ignore(err, "send")
		}
	})
}

// ignore logs requests the widget refused in its current state. Those are
// expected when keys are pressed mid-animation.
func (a LoopActions) ignore(err error, op string) {
	switch {
	case errors.Is(err, widget.ErrTransitionInFlight),
		errors.Is(err, widget.ErrAlreadyOpen),
		errors.Is(err, widget.ErrAlreadyClosed),
		errors.Is(err, widget.ErrNotAwaitingIdentity),
		errors.Is(err, widget.ErrNotActive):
		a.Logger.Debug().Err(err).Str("op", op).Msg("request ignored")
	default:
		a.Logger.Warn().Err(err).Str("op", op).Msg("widget request failed")
	}
}
