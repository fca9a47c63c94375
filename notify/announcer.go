package notify

import (
	"fmt"

	"github.com/yllada/trusttunnel-desktop/common"
	"github.com/yllada/trusttunnel-desktop/vpn"
)

// Preferences select which events are announced.
type Preferences struct {
	// OnStateChange announces connect, disconnect and reconnect progress.
	OnStateChange bool
	// OnlyErrors restricts announcements to fatal errors.
	OnlyErrors bool
}

// Announcer turns controller events into desktop notifications.
type Announcer struct {
	notifier common.Notifier
	prefs    Preferences
	// label names the session in messages, usually the endpoint hostname.
	label string
}

// NewAnnouncer creates an announcer for the session named label.
func NewAnnouncer(n common.Notifier, prefs Preferences, label string) *Announcer {
	return &Announcer{notifier: n, prefs: prefs, label: label}
}

// Handle is a controller subscriber.
func (a *Announcer) Handle(ev vpn.Event) {
	title, message, icon, ok := a.render(ev)
	if !ok {
		return
	}
	if err := a.notifier.NotifyWithIcon(title, message, icon); err != nil {
		common.LogDebug("Notification not shown: %v", err)
	}
}

func (a *Announcer) render(ev vpn.Event) (title, message, icon string, ok bool) {
	if !a.prefs.OnStateChange && !a.prefs.OnlyErrors {
		return "", "", "", false
	}

	if ev.Kind == vpn.EventError {
		if ev.Fatal() {
			return "Connection Error", a.label + ": " + ev.Message, iconError, true
		}
		if ev.RetryIn == 0 {
			// Rejected configuration while a session stays up.
			return "Configuration Rejected", ev.Message, iconError, true
		}
		if a.prefs.OnlyErrors {
			return "", "", "", false
		}
		return "Reconnecting VPN",
			fmt.Sprintf("%s: %s, retrying in %v", a.label, ev.Message, ev.RetryIn),
			iconAcquiring, true
	}

	if a.prefs.OnlyErrors {
		return "", "", "", false
	}

	switch ev.Kind {
	case vpn.EventConnected:
		return "VPN Connected", "Connected to " + a.label, iconDefault, true
	case vpn.EventDisconnected:
		return "VPN Disconnected", "Disconnected from " + a.label, iconDisconnected, true
	}
	return "", "", "", false
}
