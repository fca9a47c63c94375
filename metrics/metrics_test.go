package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/trusttunnel-desktop/engine"
	"github.com/yllada/trusttunnel-desktop/vpn"
)

func TestObserve_StateGauge(t *testing.T) {
	m := New()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionState.WithLabelValues("disconnected")))

	m.Observe(vpn.Event{Kind: vpn.EventStateChanged, State: vpn.StateConnecting})
	m.Observe(vpn.Event{Kind: vpn.EventStateChanged, State: vpn.StateConnected})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionState.WithLabelValues("connected")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SessionState.WithLabelValues("connecting")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SessionState.WithLabelValues("disconnected")))
}

func TestObserve_Counters(t *testing.T) {
	m := New()

	m.Observe(vpn.Event{Kind: vpn.EventConnected})
	m.Observe(vpn.Event{
		Kind:    vpn.EventError,
		Err:     &vpn.Failure{Kind: vpn.FailureConnect, Err: errors.New("timeout")},
		RetryIn: time.Second,
	})
	m.Observe(vpn.Event{
		Kind: vpn.EventError,
		Err:  &vpn.Failure{Kind: vpn.FailureListenerBind, Fatal: true},
	})
	m.Observe(vpn.Event{Kind: vpn.EventOutput, Bytes: 1500})
	m.Observe(vpn.Event{Kind: vpn.EventOutput, Bytes: 500})
	m.Observe(vpn.Event{Kind: vpn.EventConnectionInfo, Flow: engine.ConnectionInfoEvent{Action: engine.ActionTunnel}})
	m.Observe(vpn.Event{Kind: vpn.EventConnectionInfo, Flow: engine.ConnectionInfoEvent{Action: engine.ActionBypass}})
	m.Observe(vpn.Event{Kind: vpn.EventConnectionInfo, Flow: engine.ConnectionInfoEvent{Action: engine.ActionTunnel}})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconnectsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("connect_failed", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("listener_bind_failed", "true")))
	assert.Equal(t, 2000.0, testutil.ToFloat64(m.OutputBytesTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FlowDecisionsTotal.WithLabelValues(engine.ActionTunnel.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FlowDecisionsTotal.WithLabelValues(engine.ActionBypass.String())))
}

func TestHandler(t *testing.T) {
	m := New()
	m.Observe(vpn.Event{Kind: vpn.EventConnected})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "trusttunnel_connects_total 1")
	assert.Contains(t, body, `trusttunnel_session_state{state="disconnected"} 1`)
}

func TestServe(t *testing.T) {
	m := New()
	s, err := Serve(m, "127.0.0.1:0")
	require.NoError(t, err)
	defer s.Shutdown(context.Background())

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "trusttunnel_session_state"))
}
