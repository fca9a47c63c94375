package engine

import (
	"context"
	"fmt"
)

// SessionState is the engine-side connection state.
type SessionState int

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
	StateWaitingRecovery
	StateRecovering
	StateWaitingForNetwork
)

// String returns a human-readable representation of the engine state.
func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateWaitingRecovery:
		return "WaitingRecovery"
	case StateRecovering:
		return "Recovering"
	case StateWaitingForNetwork:
		return "WaitingForNetwork"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// ConnectMode selects how much of the OS setup the engine performs itself.
type ConnectMode int

const (
	// AutoSetup lets the engine install routes and the listener.
	AutoSetup ConnectMode = iota
	// ManualSetup leaves OS configuration to the caller.
	ManualSetup
)

// FlowAction is the routing decision taken for a single flow.
type FlowAction int

const (
	ActionBypass FlowAction = iota
	ActionTunnel
	ActionReject
)

// String returns the action name used in logs and the helper protocol.
func (a FlowAction) String() string {
	switch a {
	case ActionBypass:
		return "bypass"
	case ActionTunnel:
		return "tunnel"
	case ActionReject:
		return "reject"
	default:
		return "unknown"
	}
}

// ParseFlowAction converts a helper protocol action name.
func ParseFlowAction(s string) (FlowAction, bool) {
	switch s {
	case "bypass":
		return ActionBypass, true
	case "tunnel":
		return ActionTunnel, true
	case "reject":
		return ActionReject, true
	}
	return ActionBypass, false
}

// ErrorCode classifies engine failures.
type ErrorCode int

const (
	CodeUnknown ErrorCode = iota
	// CodeListenerBind means the local listener could not be created.
	CodeListenerBind
	// CodeSystemDNS means the system resolver could not be redirected.
	CodeSystemDNS
	// CodeConnect means the endpoint could not be reached or refused the session.
	CodeConnect
	// CodeProcess means the engine itself could not be started.
	CodeProcess
)

// Error is a typed engine failure.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// StateChangedEvent reports an engine session state transition.
type StateChangedEvent struct {
	State SessionState
	// Err is set when the transition was caused by a failure.
	Err *Error
}

// OutputEvent reports data-plane bytes written to the local side.
type OutputEvent struct {
	Bytes int64
}

// ConnectionInfoEvent reports the routing decision for a new flow.
type ConnectionInfoEvent struct {
	Action      FlowAction
	Domain      string
	Destination string
	Protocol    string
}

// String formats the event for user-facing notifications.
func (e ConnectionInfoEvent) String() string {
	target := e.Domain
	if target == "" {
		target = e.Destination
	}
	if e.Protocol != "" {
		return fmt.Sprintf("%s %s (%s)", e.Action, target, e.Protocol)
	}
	return fmt.Sprintf("%s %s", e.Action, target)
}

// SocketProtectEvent asks whether an outbound socket may bypass the tunnel.
// Result 0 allows it.
type SocketProtectEvent struct {
	FD     int
	Result int
}

// VerifyCertificateEvent asks whether the endpoint certificate is trusted.
// Result 0 trusts it.
type VerifyCertificateEvent struct {
	Hostname string
	Result   int
}

// Callbacks are invoked by a Client from its own goroutines.
// Implementations must return quickly.
type Callbacks struct {
	OnStateChanged      func(StateChangedEvent)
	OnOutput            func(OutputEvent)
	OnConnectionInfo    func(ConnectionInfoEvent)
	OnSocketProtect     func(*SocketProtectEvent)
	OnVerifyCertificate func(*VerifyCertificateEvent)
}

// Client is a handle on one engine instance.
type Client interface {
	// Connect establishes the tunnel. It blocks until the session is up,
	// fails, or ctx is done.
	Connect(ctx context.Context, mode ConnectMode) error
	// Disconnect tears the session down. It is safe to call more than once.
	Disconnect()
	// SetSystemDNS redirects the system resolver through the tunnel.
	SetSystemDNS() error
}

// Factory creates a Client for cfg. The client owns cfg afterwards.
type Factory func(cfg *Config, cb Callbacks) (Client, error)
