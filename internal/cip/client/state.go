package client

// State is the lifecycle state of a Session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSessionEstablished
	StateConnectionEstablishing
	StateConnectionEstablished
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSessionEstablished:
		return "session established"
	case StateConnectionEstablishing:
		return "connection establishing"
	case StateConnectionEstablished:
		return "connection established"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// SessionReady reports whether CIP traffic may be sent in state s.
func (s State) SessionReady() bool {
	return s == StateSessionEstablished || s == StateConnectionEstablishing || s == StateConnectionEstablished
}
