package vpn

// SessionState is the controller-level connection state.
type SessionState int

const (
	// StateDisconnected indicates no session and no pending retry.
	StateDisconnected SessionState = iota
	// StateConnecting indicates a first attempt is in progress.
	StateConnecting
	// StateConnected indicates an established session.
	StateConnected
	// StateReconnecting indicates a retry is in progress or scheduled.
	StateReconnecting
	// StateDisconnecting indicates the session is being torn down.
	StateDisconnecting
	// StateError indicates a fatal failure; only Connect leaves it.
	StateError
)

// String returns a human-readable representation of the session state.
func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting..."
	case StateConnected:
		return "Connected"
	case StateReconnecting:
		return "Reconnecting..."
	case StateDisconnecting:
		return "Disconnecting..."
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Active reports whether a session is up or being brought up.
func (s SessionState) Active() bool {
	return s == StateConnecting || s == StateConnected || s == StateReconnecting
}
