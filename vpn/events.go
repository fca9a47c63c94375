package vpn

import (
	"errors"
	"slices"
	"time"

	"github.com/yllada/trusttunnel-desktop/common"
	"github.com/yllada/trusttunnel-desktop/engine"
)

// EventKind identifies the notification carried by an Event.
type EventKind int

const (
	// EventStateChanged carries the new State.
	EventStateChanged EventKind = iota
	// EventConnected is emitted once per transition into StateConnected.
	EventConnected
	// EventDisconnected is emitted when a session is torn down on request.
	EventDisconnected
	// EventError carries Err (always a *Failure) and Message.
	EventError
	// EventConnectionInfo carries the routing decision for one flow.
	EventConnectionInfo
	// EventOutput carries an opaque byte count in Bytes.
	EventOutput
)

// String returns the event kind name used in logs.
func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state-changed"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventError:
		return "error"
	case EventConnectionInfo:
		return "connection-info"
	case EventOutput:
		return "output"
	default:
		return "unknown"
	}
}

// Event is a notification from the Controller to its subscribers.
type Event struct {
	Kind      EventKind
	State     SessionState
	Message   string
	Bytes     int64
	Err       error
	Flow      engine.ConnectionInfoEvent
	SessionID string
	// RetryIn is set on advisory error events to the scheduled retry delay.
	RetryIn time.Duration
}

// Fatal reports whether an error event disabled automatic retries.
func (e Event) Fatal() bool {
	var f *Failure
	return errors.As(e.Err, &f) && f.Fatal
}

// FailureKind classifies controller failures.
type FailureKind int

const (
	FailureConfigInvalid FailureKind = iota
	FailureConfigMissing
	FailurePrivilegeRequired
	FailureDNSSetup
	FailureConnect
	FailureListenerBind
	FailureEngineStart
	// FailureEngineState is a retry requested by the engine itself.
	FailureEngineState
)

var failureSentinels = map[FailureKind]error{
	FailureConfigInvalid:     common.ErrConfigInvalid,
	FailureConfigMissing:     common.ErrConfigMissing,
	FailurePrivilegeRequired: common.ErrPrivilegeRequired,
	FailureDNSSetup:          common.ErrDNSSetupFailed,
	FailureConnect:           common.ErrConnectFailed,
	FailureListenerBind:      common.ErrListenerBindFailed,
	FailureEngineStart:       common.ErrEngineStartFailed,
	FailureEngineState:       common.ErrConnectFailed,
}

// String returns the failure kind name used in logs and metric labels.
func (k FailureKind) String() string {
	switch k {
	case FailureConfigInvalid:
		return "config_invalid"
	case FailureConfigMissing:
		return "config_missing"
	case FailurePrivilegeRequired:
		return "privilege_required"
	case FailureDNSSetup:
		return "dns_setup_failed"
	case FailureConnect:
		return "connect_failed"
	case FailureListenerBind:
		return "listener_bind_failed"
	case FailureEngineStart:
		return "engine_start_failed"
	case FailureEngineState:
		return "engine_state"
	default:
		return "unknown"
	}
}

// Failure is the error carried by EventError.
// errors.Is matches it against the common sentinel for its Kind.
type Failure struct {
	Kind  FailureKind
	Fatal bool
	Err   error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return failureSentinels[f.Kind].Error()
	}
	return f.Err.Error()
}

func (f *Failure) Unwrap() []error {
	errs := []error{failureSentinels[f.Kind]}
	if f.Err != nil {
		errs = append(errs, f.Err)
	}
	return errs
}

// subscribers is the handler registry. It is only touched on the control
// goroutine.
type subscribers struct {
	handlers map[int64]func(Event)
}

func (s *subscribers) add(id int64, fn func(Event)) {
	if s.handlers == nil {
		s.handlers = make(map[int64]func(Event))
	}
	s.handlers[id] = fn
}

func (s *subscribers) remove(id int64) {
	delete(s.handlers, id)
}

// publish calls handlers in subscription order.
func (s *subscribers) publish(ev Event) {
	ids := make([]int64, 0, len(s.handlers))
	for id := range s.handlers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		s.handlers[id](ev)
	}
}
