// Package wire is the JSON framing shared by the widget transport and the relay.
//
// Every websocket text frame carries one Envelope. The handshake identity is
// passed as query parameters on the upgrade request.
package wire

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

const (
	// EventHandshake is sent by the relay once a session is accepted.
	EventHandshake = "handshake"
	// EventMessage carries chat text relayed from the other party.
	EventMessage = "message"
	// EventError reports a rejected handshake or a dropped frame.
	EventError = "error"
	// DefaultInboundEvent is the event name clients send chat text under.
	DefaultInboundEvent = "send-message"
)

const (
	ParamName  = "name"
	ParamEmail = "email"
	ParamRole  = "role"
)

const (
	RoleVisitor = "visitor"
	RoleAgent   = "agent"
)

// SocketPath is where the relay accepts websocket upgrades.
const SocketPath = "/socket"

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Handshake struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
}

type Message struct {
	SessionID string `json:"session_id,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Text      string `json:"text"`
	SentAtMs  int64  `json:"sent_at_ms,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e Error) Error() string {
	return e.Code + ": " + e.Message
}

// Encode frames data under event.
func Encode(event string, data any) ([]byte, error) {
	event = strings.TrimSpace(event)
	if event == "" {
		return nil, errors.New("wire: empty event name")
	}
	env := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, errors.Wrapf(err, "wire: marshal %s payload", event)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

func Decode(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, errors.Wrap(err, "wire: decode envelope")
	}
	if env.Event == "" {
		return Envelope{}, errors.New("wire: envelope without event")
	}
	return env, nil
}

// Into decodes the envelope payload into v.
func (e Envelope) Into(v any) error {
	if len(e.Data) == 0 {
		return errors.Errorf("wire: %s envelope has no data", e.Event)
	}
	return errors.Wrapf(json.Unmarshal(e.Data, v), "wire: decode %s payload", e.Event)
}
