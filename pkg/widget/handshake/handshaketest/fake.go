// Package handshaketest provides an in-memory Transport for tests.
package handshaketest

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-go-golems/supportchat/pkg/widget/handshake"
)

// Emitted records one Emit call.
type Emitted struct {
	Event   string
	Payload any
}

type Conn struct {
	id       string
	done     chan struct{}
	doneOnce sync.Once

	mu       sync.Mutex
	onMsg    func(handshake.Message)
	emitted  []Emitted
	closes   int
	closeErr error
	emitErr  error
}

var _ handshake.Conn = (*Conn)(nil)

func NewConn(id string) *Conn {
	return &Conn{id: id, done: make(chan struct{})}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.emitErr != nil {
		return c.emitErr
	}
	c.emitted = append(c.emitted, Emitted{Event: event, Payload: payload})
	return nil
}

func (c *Conn) OnMessage(fn func(handshake.Message)) {
	c.mu.Lock()
	c.onMsg = fn
	c.mu.Unlock()
}

func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) Close() error {
	c.mu.Lock()
	c.closes++
	err := c.closeErr
	c.mu.Unlock()
	c.end()
	return err
}

// Drop simulates the remote end closing the connection.
func (c *Conn) Drop() {
	c.end()
}

func (c *Conn) end() {
	c.doneOnce.Do(func() { close(c.done) })
}

// Deliver simulates an inbound message from the remote end.
func (c *Conn) Deliver(m handshake.Message) {
	c.mu.Lock()
	fn := c.onMsg
	c.mu.Unlock()
	if fn != nil {
		fn(m)
	}
}

func (c *Conn) Emitted() []Emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Emitted(nil), c.emitted...)
}

func (c *Conn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *Conn) SetCloseError(err error) {
	c.mu.Lock()
	c.closeErr = err
	c.mu.Unlock()
}

func (c *Conn) SetEmitError(err error) {
	c.mu.Lock()
	c.emitErr = err
	c.mu.Unlock()
}

// Dial records one Dial call.
type Dial struct {
	Address  string
	Metadata handshake.Metadata
}

// Transport hands out Conns, or fails when Err is set. Gate, when non-nil,
// blocks Dial until a value is sent or the channel is closed.
type Transport struct {
	mu    sync.Mutex
	Err   error
	Gate  chan struct{}
	dials []Dial
	conns []*Conn
	nilOK bool
}

var _ handshake.Transport = (*Transport)(nil)

func NewTransport() *Transport {
	return &Transport{}
}

// Failing returns a transport whose every Dial fails with err.
func Failing(err error) *Transport {
	return &Transport{Err: err}
}

// ReturnNil makes Dial succeed without producing a connection.
func (t *Transport) ReturnNil() *Transport {
	t.nilOK = true
	return t
}

func (t *Transport) Dial(ctx context.Context, address string, md handshake.Metadata) (handshake.Conn, error) {
	t.mu.Lock()
	gate := t.Gate
	t.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	copied := handshake.Metadata{}
	for k, v := range md {
		copied[k] = v
	}
	t.dials = append(t.dials, Dial{Address: address, Metadata: copied})
	if t.Err != nil {
		return nil, t.Err
	}
	if t.nilOK {
		return nil, nil
	}
	c := NewConn(fmt.Sprintf("session-%d", len(t.conns)+1))
	t.conns = append(t.conns, c)
	return c, nil
}

func (t *Transport) Dials() []Dial {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Dial(nil), t.dials...)
}

// Conns returns every connection handed out so far.
func (t *Transport) Conns() []*Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Conn(nil), t.conns...)
}

// Last returns the most recent connection, or nil.
func (t *Transport) Last() *Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}
