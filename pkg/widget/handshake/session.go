package handshake

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/go-go-golems/supportchat/pkg/wire"
)

var ErrSessionClosed = errors.New("session is closed")

// Identity is what the visitor typed into the form.
type Identity struct {
	Name  string
	Email string
}

// Session is the handle to one realtime connection. It is created by
// Handshaker.Connect and torn down by Handshaker.Disconnect.
type Session struct {
	id       string
	identity *Identity
	conn     Conn
	event    string

	closeOnce sync.Once
	closed    atomic.Bool
	closeErr  error
}

func (s *Session) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// Identity returns the identity the session was opened with.
func (s *Session) Identity() *Identity {
	if s == nil {
		return nil
	}
	return s.identity
}

func (s *Session) Closed() bool {
	return s == nil || s.closed.Load()
}

// Send emits text under the configured outbound event name.
func (s *Session) Send(text string) error {
	if s.Closed() {
		return ErrSessionClosed
	}
	return errors.Wrap(s.conn.Emit(s.event, wire.Message{Text: text}), "emit message")
}

// OnMessage registers the inbound message callback.
func (s *Session) OnMessage(fn func(Message)) {
	if s == nil || s.conn == nil {
		return
	}
	s.conn.OnMessage(fn)
}

// Done is closed when the underlying connection ends, including when the
// remote end drops it.
func (s *Session) Done() <-chan struct{} {
	if s == nil || s.conn == nil {
		return closedChan
	}
	return s.conn.Done()
}

var closedChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// close tears the connection down once. Only the first call can report an
// error from the transport.
func (s *Session) close() error {
	if s == nil {
		return nil
	}
	first := false
	s.closeOnce.Do(func() {
		first = true
		s.closed.Store(true)
		if s.conn != nil {
			s.closeErr = s.conn.Close()
		}
	})
	if !first {
		return nil
	}
	return s.closeErr
}
