// Package handshake turns a validated identity into a live realtime session.
package handshake

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/go-go-golems/supportchat/pkg/widget/chaterr"
	"github.com/go-go-golems/supportchat/pkg/widget/config"
	"github.com/go-go-golems/supportchat/pkg/widget/eventbus"
	"github.com/go-go-golems/supportchat/pkg/wire"
)

type Handshaker struct {
	transport Transport
	cfg       config.Config
	emitter   eventbus.Emitter
	extra     Metadata
	logger    zerolog.Logger
}

type Option func(*Handshaker)

func WithLogger(logger zerolog.Logger) Option {
	return func(h *Handshaker) {
		h.logger = logger
	}
}

// WithEmitter sets where handshakeCreated is announced.
func WithEmitter(e eventbus.Emitter) Option {
	return func(h *Handshaker) {
		h.emitter = e
	}
}

// WithMetadata adds a key sent with every connection request.
func WithMetadata(key, value string) Option {
	return func(h *Handshaker) {
		if h.extra == nil {
			h.extra = Metadata{}
		}
		h.extra[key] = value
	}
}

func New(t Transport, cfg config.Config, opts ...Option) *Handshaker {
	h := &Handshaker{
		transport: t,
		cfg:       cfg,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Connect dials the configured endpoint with the identity as connection
// metadata. Every failure to obtain a handle is a HandshakeError. On success
// handshakeCreated is triggered with the new session.
func (h *Handshaker) Connect(ctx context.Context, id *Identity) (*Session, error) {
	if id == nil {
		return nil, chaterr.Handshake("connect", errors.New("missing identity"))
	}
	if h.transport == nil {
		return nil, chaterr.Handshake("connect", errors.New("no transport configured"))
	}
	if err := h.cfg.Validate(); err != nil {
		return nil, err
	}

	md := Metadata{}
	for k, v := range h.extra {
		md[k] = v
	}
	md[wire.ParamName] = id.Name
	md[wire.ParamEmail] = id.Email

	timeout := h.cfg.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	address := h.cfg.Address()
	logger := h.logger.With().Str("address", address).Str("name", id.Name).Logger()
	logger.Debug().Msg("dialing realtime endpoint")

	conn, err := h.transport.Dial(dialCtx, address, md)
	if err != nil {
		logger.Warn().Err(err).Msg("handshake failed")
		return nil, chaterr.Handshake("connect", err)
	}
	if conn == nil {
		logger.Warn().Msg("transport returned no connection")
		return nil, chaterr.Handshake("connect", nil)
	}
	if strings.TrimSpace(conn.ID()) == "" {
		_ = conn.Close()
		logger.Warn().Msg("remote did not assign a session id")
		return nil, chaterr.Handshake("connect", errors.New("remote did not assign a session id"))
	}

	s := &Session{
		id:       conn.ID(),
		identity: id,
		conn:     conn,
		event:    h.cfg.Event,
	}
	logger.Info().Str("session_id", s.id).Msg("handshake created")

	if h.emitter != nil {
		if err := h.emitter.Trigger(eventbus.HandshakeCreatedEvent{Session: s}); err != nil {
			_ = s.close()
			return nil, err
		}
	}
	return s, nil
}

// Disconnect closes the session. It is safe on nil and on sessions that are
// already closed.
func (h *Handshaker) Disconnect(s *Session) error {
	if s == nil {
		return nil
	}
	if err := s.close(); err != nil {
		h.logger.Debug().Err(err).Str("session_id", s.id).Msg("transport close reported an error")
		return errors.Wrap(err, "disconnect")
	}
	return nil
}
