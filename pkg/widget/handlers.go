package widget

import (
	"github.com/go-go-golems/supportchat/pkg/widget/animate"
	"github.com/go-go-golems/supportchat/pkg/widget/chaterr"
	"github.com/go-go-golems/supportchat/pkg/widget/eventbus"
	"github.com/go-go-golems/supportchat/pkg/widget/handshake"
)

func (w *Widget) registerHandlers() error {
	regs := []error{
		handle(w, w.onOpeningChatbox),
		handle(w, w.onChatboxIsOpened),
		handle(w, w.onClosingChatbox),
		handle(w, w.onChatboxIsClosed),
		handle(w, w.onHandshakeCreated),
		handle(w, w.onHandshakeFailed),
		handle(w, w.onFormValidationFailed),
		handle(w, w.onHackingAttempted),
		handle(w, w.onMessageSent),
		handle(w, w.onMessageReceived),
	}
	for _, err := range regs {
		if err != nil {
			return err
		}
	}
	for _, name := range eventbus.Names() {
		if !w.bus.Registered(name) {
			return chaterr.Configuration("widget", "no handler for %q", name)
		}
	}
	return nil
}

// handle registers fn and forwards the payload to the observer once fn
// returned without error.
func handle[T eventbus.Payload](w *Widget, fn func(T) error) error {
	return eventbus.Handle(w.bus, func(p T) error {
		if err := fn(p); err != nil {
			return err
		}
		if w.observer != nil {
			w.observer(p)
		}
		return nil
	})
}

func (w *Widget) onOpeningChatbox(eventbus.OpeningChatboxEvent) error {
	w.indicator.Start()
	return nil
}

func (w *Widget) onChatboxIsOpened(eventbus.ChatboxIsOpenedEvent) error {
	w.indicator.Stop()
	w.box.SetProgress(animate.OpenedBound)
	w.setState(Opened, AwaitingIdentity)
	w.presenter.SetToggleIcon(IconMinimize)
	w.presenter.ShowIdentityForm(IdentityForm())
	return nil
}

func (w *Widget) onClosingChatbox(eventbus.ClosingChatboxEvent) error {
	w.indicator.Start()
	return nil
}

func (w *Widget) onChatboxIsClosed(eventbus.ChatboxIsClosedEvent) error {
	w.indicator.Stop()
	w.presenter.ClearSessionContent()
	w.presenter.HideIdentityForm()
	// Normally already detached when closing started.
	w.leaveOpened()
	w.identity = nil
	w.box.SetProgress(animate.ClosedBound)
	w.setState(Closed, PhaseNone)
	w.presenter.SetToggleIcon(IconEnlarge)
	return nil
}

func (w *Widget) onHandshakeCreated(e eventbus.HandshakeCreatedEvent) error {
	s, ok := e.Session.(*handshake.Session)
	if !ok || s == nil {
		return chaterr.Handshake("handshakeCreated", nil)
	}
	if w.state != Opened || w.phase != Connecting || s.Identity() != w.identity {
		w.logger.Info().Str("session_id", s.ID()).Msg("discarding session of an abandoned handshake")
		w.disconnect(s)
		return nil
	}
	w.cancel = nil
	w.session = s
	w.setState(Opened, Active)
	s.OnMessage(func(m handshake.Message) {
		w.runner.Post(func() { w.receive(s, m) })
	})
	go w.watch(s)
	w.indicator.Stop()
	w.presenter.HideIdentityForm()
	w.presenter.ShowSessionContent(s.ID())
	return nil
}

func (w *Widget) onHandshakeFailed(e eventbus.HandshakeFailedEvent) error {
	w.logger.Warn().Err(e.Err).Msg("handshake failed, closing")
	w.cancel = nil
	w.lastErr = e.Err
	w.indicator.Stop()
	w.presenter.ShowError(e.Err)
	return w.Close()
}

func (w *Widget) onFormValidationFailed(e eventbus.FormValidationFailedEvent) error {
	w.presenter.FlagField(e.Field)
	return nil
}

func (w *Widget) onHackingAttempted(e eventbus.HackingAttemptedEvent) error {
	w.logger.Warn().Str("field", e.Field).Msg("hacking attempt")
	return nil
}

func (w *Widget) onMessageSent(e eventbus.MessageSentEvent) error {
	from := ""
	if w.identity != nil {
		from = w.identity.Name
	}
	w.presenter.AppendMessage(ChatLine{From: from, Text: e.Text, At: e.At, Outbound: true})
	return nil
}

func (w *Widget) onMessageReceived(e eventbus.MessageReceivedEvent) error {
	w.presenter.AppendMessage(ChatLine{From: e.From, Text: e.Text, At: e.At})
	return nil
}
