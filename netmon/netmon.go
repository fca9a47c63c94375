// Package netmon watches the host network and asks the engine to
// reconnect when connectivity comes back.
//
// On Linux desktops the monitor listens for NetworkManager state changes on
// the system bus. Where no system bus is reachable it falls back to polling
// the local interface set.
package netmon

import (
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/yllada/trusttunnel-desktop/common"
)

// Reconnector is implemented by engine clients that can restart their
// session after a network change.
type Reconnector interface {
	RequestReconnect()
}

// Options configures a Monitor. Zero values select the defaults.
type Options struct {
	// PollInterval is the fallback polling period.
	PollInterval time.Duration
	// Logger receives monitor diagnostics.
	Logger common.Logger
	// ConnectBus opens the system bus. Tests replace it.
	ConnectBus func() (*dbus.Conn, error)
	// Interfaces lists the usable host interfaces. Tests replace it.
	Interfaces func() ([]Interface, error)
	// IgnoreInterfaces names extra interfaces left out of change detection,
	// such as a tunnel device with a custom name.
	IgnoreInterfaces []string
}

// Monitor delivers reconnect requests to one engine client.
type Monitor struct {
	target Reconnector
	opts   Options
	logger common.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
	conn     *dbus.Conn

	// lastState is the last NetworkManager state seen; 0 means unknown.
	lastState uint32
}

// New creates a monitor for target. The monitor is idle until Start.
func New(target Reconnector, opts Options) *Monitor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = common.NetworkPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = common.GetLogger().Named("netmon")
	}
	if opts.ConnectBus == nil {
		opts.ConnectBus = func() (*dbus.Conn, error) { return dbus.ConnectSystemBus() }
	}
	if opts.Interfaces == nil {
		opts.Interfaces = systemInterfaces
	}
	return &Monitor{target: target, opts: opts, logger: opts.Logger}
}

// Start begins watching. It reports false only when neither the system bus
// nor interface polling is usable.
func (m *Monitor) Start() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return true
	}

	m.stopChan = make(chan struct{})
	m.done = make(chan struct{})

	if signals, ok := m.startBus(); ok {
		m.running = true
		go m.busLoop(signals, m.stopChan, m.done)
		m.logger.Info("Watching NetworkManager state on the system bus")
		return true
	}

	initial, err := m.snapshot()
	if err != nil {
		m.logger.Error("Network monitoring unavailable: %v", err)
		return false
	}
	m.running = true
	go m.pollLoop(initial, m.stopChan, m.done)
	m.logger.Info("Polling network interfaces every %v", m.opts.PollInterval)
	return true
}

// Stop ends watching and waits for the watcher goroutine to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	done := m.done
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	<-done
	if conn != nil {
		_ = conn.Close()
	}
	m.logger.Debug("Network monitor stopped")
}

// IsRunning reports whether the monitor is watching.
func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) requestReconnect(reason string) {
	m.logger.Info("Network change detected (%s), requesting reconnect", reason)
	m.target.RequestReconnect()
}

// ReconnectorFunc adapts a function to Reconnector.
type ReconnectorFunc func()

// RequestReconnect calls f.
func (f ReconnectorFunc) RequestReconnect() { f() }
