// Package eventbus is the widget's named-event registry.
//
// Each event name maps to exactly one handler; registering again replaces the
// previous handler. Dispatch is synchronous and reentrant: a handler may trigger
// further events and those complete before the outer Trigger returns.
//
// A Bus is owned by a single widget and is only used from the widget's loop
// goroutine, so it carries no lock.
package eventbus

import (
	"github.com/rs/zerolog"

	"github.com/go-go-golems/supportchat/pkg/widget/chaterr"
)

// Handler receives a dispatched payload.
type Handler func(Payload) error

// Emitter is the trigger side of the bus.
type Emitter interface {
	Trigger(p Payload) error
}

type Bus struct {
	handlers map[Name]Handler
	depth    int
	logger   zerolog.Logger
}

var _ Emitter = (*Bus)(nil)

type Option func(*Bus)

func WithLogger(logger zerolog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

func New(opts ...Option) *Bus {
	b := &Bus{
		handlers: map[Name]Handler{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Listen registers h for name, replacing any earlier registration.
func (b *Bus) Listen(name Name, h Handler) error {
	if !Known(name) {
		return chaterr.Configuration("listen", "unknown event %q", name)
	}
	if h == nil {
		return chaterr.Configuration("listen", "handler for %q is nil", name)
	}
	b.handlers[name] = h
	return nil
}

// Registered reports whether a handler exists for name.
func (b *Bus) Registered(name Name) bool {
	_, ok := b.handlers[name]
	return ok
}

// Trigger dispatches p to the handler registered for its name.
func (b *Bus) Trigger(p Payload) error {
	if p == nil {
		return chaterr.Configuration("trigger", "nil payload")
	}
	name := p.EventName()
	h, ok := b.handlers[name]
	if !ok {
		return chaterr.Configuration("trigger", "no handler registered for %q", name)
	}
	b.depth++
	defer func() { b.depth-- }()
	b.logger.Trace().Str("event", string(name)).Int("depth", b.depth).Msg("dispatch")
	return h(p)
}

// Depth is the current nesting level of Trigger calls. Zero outside dispatch.
func (b *Bus) Depth() int {
	return b.depth
}

// Handle registers a handler typed on the payload T. The event name is taken
// from T's zero value.
func Handle[T Payload](b *Bus, fn func(T) error) error {
	var zero T
	if fn == nil {
		return chaterr.Configuration("listen", "handler for %q is nil", zero.EventName())
	}
	return b.Listen(zero.EventName(), func(p Payload) error {
		typed, ok := p.(T)
		if !ok {
			return chaterr.Configuration("trigger", "payload %T does not match %q", p, zero.EventName())
		}
		return fn(typed)
	})
}
