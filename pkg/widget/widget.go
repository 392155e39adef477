// Package widget is the chat widget's lifecycle state machine.
//
// A Widget moves Closed -> Opening -> Opened -> Closing -> Closed. Opening and
// closing are animated; once opened the visitor identifies themselves, the
// identity is validated and exchanged for a realtime session. Every transition
// is announced on the widget's event bus and the handlers registered by New
// drive the presenter, the busy indicator and the session.
//
// A Widget is not safe for concurrent use. All methods must be called from the
// loop.Runner it was built with; transport callbacks re-enter through Post.
package widget

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/go-go-golems/supportchat/pkg/widget/animate"
	"github.com/go-go-golems/supportchat/pkg/widget/chaterr"
	"github.com/go-go-golems/supportchat/pkg/widget/config"
	"github.com/go-go-golems/supportchat/pkg/widget/eventbus"
	"github.com/go-go-golems/supportchat/pkg/widget/handshake"
	"github.com/go-go-golems/supportchat/pkg/widget/loop"
	"github.com/go-go-golems/supportchat/pkg/widget/transport/wsclient"
	"github.com/go-go-golems/supportchat/pkg/widget/validate"
	"github.com/go-go-golems/supportchat/pkg/wire"
)

var (
	ErrTransitionInFlight  = errors.New("a transition in that direction is already running")
	ErrAlreadyOpen         = errors.New("widget is already open")
	ErrAlreadyClosed       = errors.New("widget is already closed")
	ErrNotAwaitingIdentity = errors.New("widget is not waiting for an identity")
	ErrNotActive           = errors.New("widget has no active session")
)

type Widget struct {
	cfg    config.Config
	runner loop.Runner
	sched  animate.Scheduler
	logger zerolog.Logger

	bus        *eventbus.Bus
	validator  *validate.Validator
	transport  handshake.Transport
	handshaker *handshake.Handshaker
	box        *animate.Animator
	indicator  *Indicator
	presenter  Presenter
	observer   func(eventbus.Payload)
	after      func(*Widget)
	baseCtx    context.Context
	extraMeta  handshake.Metadata

	state    State
	phase    Phase
	identity *handshake.Identity
	session  *handshake.Session
	cancel   context.CancelFunc
	lastErr  error
}

type Option func(*Widget)

func WithLogger(logger zerolog.Logger) Option {
	return func(w *Widget) {
		w.logger = logger
	}
}

func WithPresenter(p Presenter) Option {
	return func(w *Widget) {
		w.presenter = p
	}
}

func WithTransport(t handshake.Transport) Option {
	return func(w *Widget) {
		w.transport = t
	}
}

// WithScheduler replaces the fixed-rate frame scheduler derived from the runner.
func WithScheduler(s animate.Scheduler) Option {
	return func(w *Widget) {
		w.sched = s
	}
}

// WithObserver receives every event after the widget has handled it.
func WithObserver(fn func(eventbus.Payload)) Option {
	return func(w *Widget) {
		w.observer = fn
	}
}

// WithAfter runs fn once construction has finished.
func WithAfter(fn func(*Widget)) Option {
	return func(w *Widget) {
		w.after = fn
	}
}

// WithContext is the parent of every handshake attempt.
func WithContext(ctx context.Context) Option {
	return func(w *Widget) {
		w.baseCtx = ctx
	}
}

// WithMetadata adds a connection metadata key to every handshake.
func WithMetadata(key, value string) Option {
	return func(w *Widget) {
		if w.extraMeta == nil {
			w.extraMeta = handshake.Metadata{}
		}
		w.extraMeta[key] = value
	}
}

// New builds a closed widget. Handler registration problems are returned as
// ConfigurationErrors.
func New(cfg config.Config, runner loop.Runner, opts ...Option) (*Widget, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if runner == nil {
		return nil, chaterr.Configuration("widget", "no loop runner")
	}
	w := &Widget{
		cfg:       cfg,
		runner:    runner,
		logger:    zerolog.Nop(),
		presenter: NopPresenter{},
		baseCtx:   context.Background(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.sched == nil {
		w.sched = loop.NewFrames(runner)
	}
	if w.transport == nil {
		w.transport = wsclient.New(wsclient.WithLogger(w.logger))
	}
	w.logger = w.logger.With().Str("component", "widget").Logger()

	w.bus = eventbus.New(eventbus.WithLogger(w.logger))
	w.validator = validate.New(w.bus, validate.WithLogger(w.logger))
	hsOpts := []handshake.Option{
		handshake.WithLogger(w.logger),
		handshake.WithEmitter(postingEmitter{runner: runner, bus: w.bus, logger: w.logger}),
		handshake.WithMetadata(wire.ParamRole, wire.RoleVisitor),
	}
	for k, v := range w.extraMeta {
		hsOpts = append(hsOpts, handshake.WithMetadata(k, v))
	}
	w.handshaker = handshake.New(w.transport, cfg, hsOpts...)
	w.box = animate.New(w.sched, animate.WithLogger(w.logger), animate.WithProgress(animate.ClosedBound))
	w.indicator = NewIndicator(w.sched, w.presenter)

	if err := w.registerHandlers(); err != nil {
		return nil, err
	}
	w.presenter.SetToggleIcon(IconEnlarge)
	w.presenter.SetHeight(w.box.Progress())

	if w.after != nil {
		w.after(w)
	}
	return w, nil
}

func (w *Widget) Config() config.Config { return w.cfg }

func (w *Widget) State() State { return w.state }

func (w *Widget) Phase() Phase { return w.phase }

// Progress is the box height counter.
func (w *Widget) Progress() int { return w.box.Progress() }

// Session returns the live session, nil unless the widget is active.
func (w *Widget) Session() *handshake.Session { return w.session }

// LastError is the most recent fatal error surfaced to the presenter.
func (w *Widget) LastError() error { return w.lastErr }

func (w *Widget) Indicator() *Indicator { return w.indicator }

func (w *Widget) Snapshot() Snapshot {
	return Snapshot{
		State:            w.state,
		Phase:            w.phase,
		Progress:         w.box.Progress(),
		SessionID:        w.session.ID(),
		IndicatorVisible: w.indicator.Visible(),
		LastError:        w.lastErr,
	}
}

// Toggle opens a closed or closing widget and closes an open or opening one.
func (w *Widget) Toggle() error {
	switch w.state {
	case Closed, Closing:
		return w.Open()
	default:
		return w.Close()
	}
}

// Open starts the opening animation. An in-flight closing animation is
// canceled and the box reopens from its current height.
func (w *Widget) Open() error {
	switch w.state {
	case Opening:
		return ErrTransitionInFlight
	case Opened:
		return ErrAlreadyOpen
	case Closing:
		w.logger.Debug().Int("progress", w.box.Progress()).Msg("reversing close")
	}
	w.lastErr = nil
	w.setState(Opening, PhaseNone)
	if err := w.trigger(eventbus.OpeningChatboxEvent{}); err != nil {
		return err
	}
	w.box.Run(animate.Opening, w.presenter.SetHeight, func() {
		_ = w.trigger(eventbus.ChatboxIsOpenedEvent{})
	})
	return nil
}

// Close starts the closing animation. An in-flight opening animation is
// canceled and the box closes from its current height.
func (w *Widget) Close() error {
	switch w.state {
	case Closing:
		return ErrTransitionInFlight
	case Closed:
		return ErrAlreadyClosed
	case Opening:
		w.logger.Debug().Int("progress", w.box.Progress()).Msg("reversing open")
	}
	w.leaveOpened()
	w.setState(Closing, PhaseNone)
	if err := w.trigger(eventbus.ClosingChatboxEvent{}); err != nil {
		return err
	}
	w.box.Run(animate.Closing, w.presenter.SetHeight, func() {
		_ = w.trigger(eventbus.ChatboxIsClosedEvent{})
	})
	return nil
}

// SubmitIdentity validates the form values and, when they pass, starts the
// handshake. Validation failures are reported through formValidationFailed and
// the returned Result; they are not errors.
func (w *Widget) SubmitIdentity(name, email string) (validate.Result, error) {
	if w.state != Opened || w.phase != AwaitingIdentity {
		return validate.Result{}, ErrNotAwaitingIdentity
	}
	fields := []*validate.Field{
		{Name: FieldName, Kind: validate.KindText, Value: name},
		{Name: FieldEmail, Kind: validate.KindEmail, Value: email},
	}
	res := w.validator.Validate(fields)
	if res.Fails {
		w.logger.Debug().Strs("failed", res.Failed).Msg("identity rejected")
		return res, nil
	}

	id := &handshake.Identity{Name: fields[0].Value, Email: fields[1].Value}
	w.identity = id
	w.setState(Opened, Connecting)
	w.indicator.Start()

	ctx, cancel := context.WithCancel(w.baseCtx)
	w.cancel = cancel
	go func() {
		// handshakeCreated is posted to the loop by the handshaker's emitter.
		if _, err := w.handshaker.Connect(ctx, id); err != nil {
			w.runner.Post(func() { w.connectFailed(id, err) })
		}
	}()
	return res, nil
}

// Send sanitizes text and emits it on the live session.
func (w *Widget) Send(text string) error {
	if w.state != Opened || w.phase != Active || w.session == nil {
		return ErrNotActive
	}
	clean, hostile := validate.Sanitize(text)
	if hostile {
		w.logger.Warn().Str("field", FieldMessage).Msg("executable markup stripped from message")
		_ = w.trigger(eventbus.HackingAttemptedEvent{Field: FieldMessage})
	}
	if clean == "" {
		return nil
	}
	if err := w.session.Send(clean); err != nil {
		w.logger.Warn().Err(err).Str("session_id", w.session.ID()).Msg("send failed")
		w.presenter.ShowError(err)
		return err
	}
	return w.trigger(eventbus.MessageSentEvent{Text: clean, At: time.Now()})
}

// connectFailed runs on the loop when Connect returned an error.
func (w *Widget) connectFailed(id *handshake.Identity, err error) {
	if w.identity != id || w.phase != Connecting {
		w.logger.Debug().Err(err).Msg("ignoring failure of an abandoned handshake")
		return
	}
	_ = w.trigger(eventbus.HandshakeFailedEvent{Err: err})
}

// watch reports the end of s to the loop. A local disconnect ends s as well;
// dropped ignores sessions that are no longer current.
func (w *Widget) watch(s *handshake.Session) {
	select {
	case <-s.Done():
		w.runner.Post(func() { w.dropped(s) })
	case <-w.baseCtx.Done():
	}
}

// dropped runs on the loop when the remote end closed an active session.
func (w *Widget) dropped(s *handshake.Session) {
	if w.session != s || w.state != Opened || w.phase != Active {
		return
	}
	err := chaterr.Handshake("session", errors.New("connection closed by remote"))
	w.logger.Warn().Str("session_id", s.ID()).Msg("session dropped by remote, closing")
	w.lastErr = err
	w.presenter.ShowError(err)
	if cerr := w.Close(); cerr != nil {
		w.logger.Debug().Err(cerr).Msg("close after drop")
	}
}

// receive runs on the loop for every inbound frame of session s.
func (w *Widget) receive(s *handshake.Session, m handshake.Message) {
	if w.session != s || w.phase != Active {
		return
	}
	if m.Event == wire.EventError {
		if m.Text != "" {
			w.logger.Warn().Str("session_id", s.ID()).Str("message", m.Text).Msg("relay rejected a frame")
			w.presenter.ShowError(errors.Errorf("relay: %s", m.Text))
		}
		return
	}
	if m.Event != wire.EventMessage || m.Text == "" {
		return
	}
	text, hostile := validate.Sanitize(m.Text)
	if hostile {
		w.logger.Warn().Str("from", m.From).Msg("executable markup stripped from inbound message")
	}
	if text == "" {
		return
	}
	_ = w.trigger(eventbus.MessageReceivedEvent{From: m.From, Text: text, At: m.At})
}

// leaveOpened abandons any handshake in flight and detaches the session so it
// only exists while Opened.
func (w *Widget) leaveOpened() {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	if w.session != nil {
		w.disconnect(w.session)
		w.session = nil
	}
}

func (w *Widget) disconnect(s *handshake.Session) {
	if err := w.handshaker.Disconnect(s); err != nil {
		w.logger.Debug().Err(err).Msg("disconnect")
	}
}

func (w *Widget) setState(s State, p Phase) {
	if s == w.state && p == w.phase {
		return
	}
	w.logger.Debug().
		Str("from", w.state.String()).
		Str("to", s.String()).
		Str("phase", p.String()).
		Msg("state transition")
	w.state = s
	w.phase = p
}

func (w *Widget) trigger(p eventbus.Payload) error {
	if err := w.bus.Trigger(p); err != nil {
		w.logger.Error().Err(err).Str("event", string(p.EventName())).Msg("event dispatch failed")
		return err
	}
	return nil
}

// postingEmitter re-enters the loop before dispatching, for emitters called
// from the handshake goroutine.
type postingEmitter struct {
	runner loop.Runner
	bus    *eventbus.Bus
	logger zerolog.Logger
}

func (e postingEmitter) Trigger(p eventbus.Payload) error {
	e.runner.Post(func() {
		if err := e.bus.Trigger(p); err != nil {
			e.logger.Error().Err(err).Str("event", string(p.EventName())).Msg("deferred dispatch failed")
		}
	})
	return nil
}
