package vpn

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yllada/trusttunnel-desktop/common"
	"github.com/yllada/trusttunnel-desktop/engine"
)

// callLog records the order of engine and monitor calls across fakes.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeClient struct {
	log *callLog
	cfg *engine.Config
	cb  engine.Callbacks

	mu          sync.Mutex
	connectErrs []error
	dnsErrs     []error
	connectHook func()
	connects    int
	dnsCalls    int
	disconnects int
}

func (f *fakeClient) Connect(ctx context.Context, mode engine.ConnectMode) error {
	f.log.add("client.connect")
	f.mu.Lock()
	f.connects++
	hook := f.connectHook
	var err error
	if len(f.connectErrs) > 0 {
		err, f.connectErrs = f.connectErrs[0], f.connectErrs[1:]
	}
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (f *fakeClient) Disconnect() {
	f.log.add("client.disconnect")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
}

func (f *fakeClient) SetSystemDNS() error {
	f.log.add("client.dns")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dnsCalls++
	if len(f.dnsErrs) > 0 {
		var err error
		err, f.dnsErrs = f.dnsErrs[0], f.dnsErrs[1:]
		return err
	}
	return nil
}

func (f *fakeClient) failConnect(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErrs = append(f.connectErrs, errs...)
}

func (f *fakeClient) failDNS(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dnsErrs = append(f.dnsErrs, errs...)
}

func (f *fakeClient) counts() (connects, dns, disconnects int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, f.dnsCalls, f.disconnects
}

type fakeMonitor struct {
	log     *callLog
	startOK bool

	mu      sync.Mutex
	started bool
	stopped bool
}

func (m *fakeMonitor) Start() bool {
	m.log.add("monitor.start")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = m.startOK
	return m.startOK
}

func (m *fakeMonitor) Stop() {
	m.log.add("monitor.stop")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	wasPending := !t.stopped
	t.stopped = true
	return wasPending
}

// fakeScheduler records timers instead of arming them; tests fire them
// explicitly.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, 0, len(s.timers))
	for _, t := range s.timers {
		out = append(out, t.delay)
	}
	return out
}

func (s *fakeScheduler) last() *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) == 0 {
		return nil
	}
	return s.timers[len(s.timers)-1]
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) ofKind(kind EventKind) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, ev := range l.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (l *eventLog) states() []SessionState {
	var out []SessionState
	for _, ev := range l.ofKind(EventStateChanged) {
		out = append(out, ev.State)
	}
	return out
}

func (l *eventLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

// harness wires a Controller to fakes.
type harness struct {
	t          *testing.T
	c          *Controller
	log        *callLog
	scheduler  *fakeScheduler
	events     *eventLog
	privileged bool
	monitorOK  bool

	mu       sync.Mutex
	clients  []*fakeClient
	monitors []*fakeMonitor
	// prepare runs on each new client before it is returned.
	prepare func(*fakeClient)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:          t,
		log:        &callLog{},
		scheduler:  &fakeScheduler{},
		events:     &eventLog{},
		privileged: true,
		monitorOK:  true,
	}

	c, err := NewController(Options{
		Factory: func(cfg *engine.Config, cb engine.Callbacks) (engine.Client, error) {
			client := &fakeClient{log: h.log, cfg: cfg, cb: cb}
			h.mu.Lock()
			prepare := h.prepare
			h.clients = append(h.clients, client)
			h.mu.Unlock()
			if prepare != nil {
				prepare(client)
			}
			return client, nil
		},
		Monitor: func(engine.Client) Monitor {
			h.mu.Lock()
			defer h.mu.Unlock()
			m := &fakeMonitor{log: h.log, startOK: h.monitorOK}
			h.monitors = append(h.monitors, m)
			return m
		},
		Privileged: func() bool {
			h.mu.Lock()
			defer h.mu.Unlock()
			return h.privileged
		},
		Scheduler:    h.scheduler,
		Logger:       common.NewLogger(testWriter{t}, common.LevelDebug),
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
	})
	require.NoError(t, err)
	h.c = c
	c.Subscribe(h.events.record)
	t.Cleanup(c.Close)
	return h
}

// flush waits until every task queued so far has run.
func (h *harness) flush() {
	h.t.Helper()
	done := make(chan struct{})
	require.True(h.t, h.c.post(func() { close(done) }), "controller is closed")
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		h.t.Fatal("control goroutine did not drain its queue")
	}
}

// fireLast runs the most recently armed timer as if it expired.
func (h *harness) fireLast() {
	h.t.Helper()
	timer := h.scheduler.last()
	require.NotNil(h.t, timer, "no timer armed")
	timer.fn()
	h.flush()
}

func (h *harness) client(i int) *fakeClient {
	h.t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	require.Greater(h.t, len(h.clients), i, "client %d was never created", i)
	return h.clients[i]
}

func (h *harness) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// onControl runs fn on the control goroutine and waits for it.
func (h *harness) onControl(fn func()) {
	h.t.Helper()
	h.c.post(fn)
	h.flush()
}

func (h *harness) stopRequested() bool {
	var v bool
	h.onControl(func() { v = h.c.stopRequested })
	return v
}

func (h *harness) currentDelay() time.Duration {
	var d time.Duration
	h.onControl(func() { d = h.c.policy.Current() })
	return d
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
