package netmon

import (
	"github.com/godbus/dbus/v5"
)

const (
	nmService   = "org.freedesktop.NetworkManager"
	nmPath      = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	nmInterface = "org.freedesktop.NetworkManager"
	nmMember    = "StateChanged"

	// nmStateConnectedGlobal is NM_STATE_CONNECTED_GLOBAL.
	nmStateConnectedGlobal uint32 = 70
)

// startBus subscribes to NetworkManager state changes. Callers hold mu.
func (m *Monitor) startBus() (chan *dbus.Signal, bool) {
	conn, err := m.opts.ConnectBus()
	if err != nil {
		m.logger.Debug("System bus unavailable: %v", err)
		return nil, false
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(nmPath),
		dbus.WithMatchInterface(nmInterface),
		dbus.WithMatchMember(nmMember),
	); err != nil {
		m.logger.Debug("Cannot subscribe to NetworkManager signals: %v", err)
		_ = conn.Close()
		return nil, false
	}

	m.lastState = 0
	if v, err := conn.Object(nmService, nmPath).GetProperty(nmInterface + ".State"); err == nil {
		if state, ok := v.Value().(uint32); ok {
			m.lastState = state
		}
	} else {
		m.logger.Debug("NetworkManager state unknown: %v", err)
	}

	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)
	m.conn = conn
	return signals, true
}

func (m *Monitor) busLoop(signals chan *dbus.Signal, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case sig, ok := <-signals:
			if !ok {
				m.logger.Warn("System bus connection closed")
				return
			}
			m.handleSignal(sig)
		}
	}
}

// handleSignal requests a reconnect when NetworkManager reaches global
// connectivity from a lower state.
func (m *Monitor) handleSignal(sig *dbus.Signal) {
	if sig == nil || sig.Name != nmInterface+"."+nmMember || len(sig.Body) == 0 {
		return
	}
	state, ok := sig.Body[0].(uint32)
	if !ok {
		return
	}

	previous := m.lastState
	m.lastState = state
	m.logger.Debug("NetworkManager state %d -> %d", previous, state)

	if state == nmStateConnectedGlobal && previous != 0 && previous < nmStateConnectedGlobal {
		m.requestReconnect("connectivity restored")
	}
}
