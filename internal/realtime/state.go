package realtime

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateErrored
	StateReconnecting
	// StateOffline is entered once reconnection attempts are exhausted.
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	case StateReconnecting:
		return "reconnecting"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// StateChange is published on every connection lifecycle transition.
type StateChange struct {
	From    State
	To      State
	Attempt int
}

// Offline is published once when the client gives up reconnecting.
type Offline struct {
	Attempts int
}
