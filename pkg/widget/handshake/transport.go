package handshake

import (
	"context"
	"time"
)

// Metadata is sent with the connection request.
type Metadata map[string]string

// Message is an inbound frame delivered by a Conn.
type Message struct {
	Event     string
	// SessionID is the sender's session on the relay.
	SessionID string
	From      string
	To        string
	Text      string
	At        time.Time
}

// Conn is a live realtime connection.
type Conn interface {
	// ID is the identifier the remote end assigned to this connection.
	ID() string
	Emit(event string, payload any) error
	// OnMessage sets the inbound callback. It may be called from any goroutine.
	OnMessage(fn func(Message))
	// Done is closed once the connection is gone, whichever end closed it.
	Done() <-chan struct{}
	Close() error
}

// Transport opens realtime connections.
type Transport interface {
	Dial(ctx context.Context, address string, md Metadata) (Conn, error)
}

// TransportFunc adapts a function into a Transport.
type TransportFunc func(ctx context.Context, address string, md Metadata) (Conn, error)

func (f TransportFunc) Dial(ctx context.Context, address string, md Metadata) (Conn, error) {
	return f(ctx, address, md)
}
