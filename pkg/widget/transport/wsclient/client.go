// Package wsclient implements the widget's realtime transport on gorilla/websocket.
//
// Dial upgrades to the relay's socket endpoint with the handshake metadata as
// query parameters, then waits for the relay's handshake envelope before
// handing out a connection.
package wsclient

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/go-go-golems/supportchat/pkg/widget/handshake"
	"github.com/go-go-golems/supportchat/pkg/wire"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeTimeout            = 5 * time.Second
)

var ErrRejected = errors.New("handshake rejected by relay")

type Transport struct {
	dialer *websocket.Dialer
	path   string
	logger zerolog.Logger
}

var _ handshake.Transport = (*Transport)(nil)

type Option func(*Transport)

func WithLogger(logger zerolog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithPath overrides the socket path appended to the dial address.
func WithPath(path string) Option {
	return func(t *Transport) {
		t.path = path
	}
}

func WithDialer(d *websocket.Dialer) Option {
	return func(t *Transport) {
		t.dialer = d
	}
}

func New(opts ...Option) *Transport {
	t := &Transport{
		dialer: &websocket.Dialer{HandshakeTimeout: defaultHandshakeTimeout},
		path:   wire.SocketPath,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// DialURL builds the websocket URL for address and metadata.
func (t *Transport) DialURL(address string, md handshake.Metadata) (string, error) {
	u, err := url.Parse(address)
	if err != nil {
		return "", errors.Wrapf(err, "parse address %q", address)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", errors.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.Errorf("address %q has no host", address)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = t.path
	}
	q := u.Query()
	for k, v := range md {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (t *Transport) Dial(ctx context.Context, address string, md handshake.Metadata) (handshake.Conn, error) {
	target, err := t.DialURL(address, md)
	if err != nil {
		return nil, err
	}
	ws, resp, err := t.dialer.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrap(err, "websocket dial")
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultHandshakeTimeout)
	}
	_ = ws.SetReadDeadline(deadline)
	hs, err := readHandshake(ws)
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	_ = ws.SetReadDeadline(time.Time{})

	c := &Conn{
		ws:     ws,
		id:     hs.SessionID,
		done:   make(chan struct{}),
		logger: t.logger.With().Str("session_id", hs.SessionID).Logger(),
	}
	go c.readLoop()
	t.logger.Debug().Str("session_id", hs.SessionID).Str("role", hs.Role).Msg("websocket session established")
	return c, nil
}

func readHandshake(ws *websocket.Conn) (wire.Handshake, error) {
	_, data, err := ws.ReadMessage()
	if err != nil {
		return wire.Handshake{}, errors.Wrap(err, "read handshake")
	}
	env, err := wire.Decode(data)
	if err != nil {
		return wire.Handshake{}, err
	}
	switch env.Event {
	case wire.EventHandshake:
		var hs wire.Handshake
		if err := env.Into(&hs); err != nil {
			return wire.Handshake{}, err
		}
		return hs, nil
	case wire.EventError:
		var werr wire.Error
		if err := env.Into(&werr); err != nil {
			return wire.Handshake{}, ErrRejected
		}
		return wire.Handshake{}, errors.Wrap(ErrRejected, werr.Error())
	default:
		return wire.Handshake{}, errors.Errorf("expected handshake, got %q", env.Event)
	}
}

// Conn is one established websocket session.
type Conn struct {
	ws     *websocket.Conn
	id     string
	logger zerolog.Logger

	writeMu sync.Mutex
	// deliverMu keeps buffered and live messages in arrival order.
	deliverMu sync.Mutex

	mu      sync.Mutex
	onMsg   func(handshake.Message)
	pending []handshake.Message

	closeOnce sync.Once
	done      chan struct{}
}

var _ handshake.Conn = (*Conn)(nil)

func (c *Conn) ID() string { return c.id }

// Done is closed once the read loop has ended.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) Emit(event string, payload any) error {
	b, err := wire.Encode(event, payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return errors.Wrap(c.ws.WriteMessage(websocket.TextMessage, b), "websocket write")
}

// OnMessage sets the inbound callback and flushes messages that arrived
// before it was set.
func (c *Conn) OnMessage(fn func(handshake.Message)) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	c.mu.Lock()
	c.onMsg = fn
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	if fn == nil {
		return
	}
	for _, m := range pending {
		fn(m)
	}
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.logger.Debug().Err(err).Msg("websocket read loop end")
			return
		}
		env, err := wire.Decode(data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("dropping undecodable frame")
			continue
		}
		m := handshake.Message{Event: env.Event, At: time.Now()}
		switch env.Event {
		case wire.EventMessage:
			var wm wire.Message
			if err := env.Into(&wm); err != nil {
				c.logger.Warn().Err(err).Msg("dropping malformed message")
				continue
			}
			m.SessionID, m.From, m.To, m.Text = wm.SessionID, wm.From, wm.To, wm.Text
			if wm.SentAtMs > 0 {
				m.At = time.UnixMilli(wm.SentAtMs)
			}
		case wire.EventError:
			var werr wire.Error
			if err := env.Into(&werr); err == nil {
				c.logger.Warn().Str("code", werr.Code).Str("message", werr.Message).Msg("relay reported an error")
				m.Text = werr.Message
			}
		}
		c.deliver(m)
	}
}

func (c *Conn) deliver(m handshake.Message) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	c.mu.Lock()
	fn := c.onMsg
	if fn == nil {
		c.pending = append(c.pending, m)
	}
	c.mu.Unlock()
	if fn != nil {
		fn(m)
	}
}
