package vpn

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yllada/trusttunnel-desktop/engine"
)

func TestIsListenerBindFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"text", errors.New("Failed to create listener"), true},
		{"address in use", errors.New("listen tcp 127.0.0.1:1080: bind: Address already in use"), true},
		{"other", errors.New("handshake timeout"), false},
		{"typed bind", &engine.Error{Code: engine.CodeListenerBind, Message: "x"}, true},
		{"typed code wins over text", &engine.Error{Code: engine.CodeConnect, Message: "address already in use"}, false},
		{"untyped code falls back to text", &engine.Error{Code: engine.CodeUnknown, Message: "failed to create listener"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isListenerBindFailure(tt.err))
		})
	}
}

func TestIsPermissionFailure(t *testing.T) {
	assert.True(t, isPermissionFailure(errors.New("open /etc/resolv.conf: permission denied")))
	assert.True(t, isPermissionFailure(errors.New("Access is denied.")))
	assert.False(t, isPermissionFailure(errors.New("resolver busy")))
}

func TestFailure_ErrorsIs(t *testing.T) {
	cause := errors.New("cause")
	f := &Failure{Kind: FailureDNSSetup, Err: cause}

	assert.ErrorIs(t, f, cause)
	assert.Equal(t, "cause", f.Error())
	assert.Equal(t, "dns_setup_failed", f.Kind.String())

	bare := &Failure{Kind: FailureConfigMissing}
	assert.Equal(t, "tunnel configuration is not set", bare.Error())
}

func TestEvent_Fatal(t *testing.T) {
	assert.True(t, Event{Kind: EventError, Err: &Failure{Kind: FailureListenerBind, Fatal: true}}.Fatal())
	assert.False(t, Event{Kind: EventError, Err: &Failure{Kind: FailureConnect}}.Fatal())
	assert.False(t, Event{Kind: EventConnected}.Fatal())
}

func TestSessionState_String(t *testing.T) {
	tests := []struct {
		state    SessionState
		expected string
	}{
		{StateDisconnected, "Disconnected"},
		{StateConnecting, "Connecting..."},
		{StateConnected, "Connected"},
		{StateReconnecting, "Reconnecting..."},
		{StateDisconnecting, "Disconnecting..."},
		{StateError, "Error"},
		{SessionState(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
		})
	}
}
