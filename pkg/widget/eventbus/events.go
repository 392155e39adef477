package eventbus

import "time"

// Name identifies a widget event.
type Name string

const (
	OpeningChatbox       Name = "openingChatbox"
	ChatboxIsOpened      Name = "chatboxIsOpened"
	ClosingChatbox       Name = "closingChatbox"
	ChatboxIsClosed      Name = "chatboxIsClosed"
	HandshakeCreated     Name = "handshakeCreated"
	HandshakeFailed      Name = "handshakeFailed"
	FormValidationFailed Name = "formValidationFailed"
	HackingAttempted     Name = "hackingAttempted"
	MessageSent          Name = "messageSent"
	MessageReceived      Name = "messageReceived"
)

var knownNames = map[Name]struct{}{
	OpeningChatbox:       {},
	ChatboxIsOpened:      {},
	ClosingChatbox:       {},
	ChatboxIsClosed:      {},
	HandshakeCreated:     {},
	HandshakeFailed:      {},
	FormValidationFailed: {},
	HackingAttempted:     {},
	MessageSent:          {},
	MessageReceived:      {},
}

// Known reports whether n is one of the widget's event names.
func Known(n Name) bool {
	_, ok := knownNames[n]
	return ok
}

// Names returns every widget event name.
func Names() []Name {
	return []Name{
		OpeningChatbox, ChatboxIsOpened, ClosingChatbox, ChatboxIsClosed,
		HandshakeCreated, HandshakeFailed, FormValidationFailed, HackingAttempted,
		MessageSent, MessageReceived,
	}
}

// Payload is implemented by every event. The bus routes a payload by its EventName.
type Payload interface {
	EventName() Name
}

// SessionHandle is the part of a live session visible to event consumers.
type SessionHandle interface {
	ID() string
}

type OpeningChatboxEvent struct{}

type ChatboxIsOpenedEvent struct{}

type ClosingChatboxEvent struct{}

type ChatboxIsClosedEvent struct{}

type HandshakeCreatedEvent struct {
	Session SessionHandle
}

type HandshakeFailedEvent struct {
	Err error
}

// FormValidationFailedEvent names a field whose sanitized value was rejected.
type FormValidationFailedEvent struct {
	Field string
}

// HackingAttemptedEvent names a field that contained executable markup.
type HackingAttemptedEvent struct {
	Field string
}

type MessageSentEvent struct {
	Text string
	At   time.Time
}

type MessageReceivedEvent struct {
	From string
	Text string
	At   time.Time
}

func (OpeningChatboxEvent) EventName() Name       { return OpeningChatbox }
func (ChatboxIsOpenedEvent) EventName() Name      { return ChatboxIsOpened }
func (ClosingChatboxEvent) EventName() Name       { return ClosingChatbox }
func (ChatboxIsClosedEvent) EventName() Name      { return ChatboxIsClosed }
func (HandshakeCreatedEvent) EventName() Name     { return HandshakeCreated }
func (HandshakeFailedEvent) EventName() Name      { return HandshakeFailed }
func (FormValidationFailedEvent) EventName() Name { return FormValidationFailed }
func (HackingAttemptedEvent) EventName() Name     { return HackingAttempted }
func (MessageSentEvent) EventName() Name          { return MessageSent }
func (MessageReceivedEvent) EventName() Name      { return MessageReceived }
