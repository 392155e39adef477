package widget

// State is the widget's lifecycle phase. Exactly one is current at any time.
type State int

const (
	Closed State = iota
	Opening
	Opened
	Closing
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Opening:
		return "opening"
	case Opened:
		return "opened"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// Phase refines Opened.
type Phase int

const (
	PhaseNone Phase = iota
	// AwaitingIdentity: the identification form is shown.
	AwaitingIdentity
	// Connecting: the identity passed validation and the handshake is in flight.
	Connecting
	// Active: a session is live and messages can be exchanged.
	Active
)

func (p Phase) String() string {
	switch p {
	case PhaseNone:
		return "none"
	case AwaitingIdentity:
		return "awaiting-identity"
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// Snapshot is a copy of the externally visible widget state.
type Snapshot struct {
	State            State
	Phase            Phase
	Progress         int
	SessionID        string
	IndicatorVisible bool
	LastError        error
}
