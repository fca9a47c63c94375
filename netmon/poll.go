package netmon

import (
	"net"
	"slices"
	"strings"
	"time"
)

// Interface is a host interface that is up and has addresses.
type Interface struct {
	Name  string
	Addrs []string
}

// tunnelPrefixes match virtual devices created by tunnels, including the
// session's own tun device. Their appearance is not a network change.
var tunnelPrefixes = []string{"tun", "utun", "tap", "wintun", "wg", "trusttunnel"}

func (m *Monitor) pollLoop(last string, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			current, err := m.snapshot()
			if err != nil {
				m.logger.Debug("Interface poll failed: %v", err)
				continue
			}
			if current == last {
				continue
			}
			last = current
			if current != "" {
				m.requestReconnect("interfaces changed")
			}
		}
	}
}

// snapshot returns a canonical description of the physical interface set.
func (m *Monitor) snapshot() (string, error) {
	ifaces, err := m.opts.Interfaces()
	if err != nil {
		return "", err
	}

	var parts []string
	for _, iface := range ifaces {
		if m.ignored(iface.Name) {
			continue
		}
		for _, addr := range iface.Addrs {
			parts = append(parts, iface.Name+"="+addr)
		}
	}
	slices.Sort(parts)
	return strings.Join(parts, ","), nil
}

func (m *Monitor) ignored(name string) bool {
	if slices.Contains(m.opts.IgnoreInterfaces, name) {
		return true
	}
	lower := strings.ToLower(name)
	for _, prefix := range tunnelPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// systemInterfaces lists interfaces that are up, excluding loopback.
func systemInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var out []Interface
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}
		entry := Interface{Name: iface.Name}
		for _, addr := range addrs {
			entry.Addrs = append(entry.Addrs, addr.String())
		}
		out = append(out, entry)
	}
	return out, nil
}
