// Package notify shows desktop notifications for session events.
package notify

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/yllada/trusttunnel-desktop/common"
)

const (
	appName = "TrustTunnel"

	notifyService = "org.freedesktop.Notifications"
	notifyPath    = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyMethod  = notifyService + ".Notify"

	iconDefault      = "network-vpn"
	iconDisconnected = "network-vpn-disconnected"
	iconError        = "network-vpn-error"
	iconAcquiring    = "network-vpn-acquiring"
)

// Urgency hint values of org.freedesktop.Notifications.
const (
	urgencyLow      byte = 0
	urgencyNormal   byte = 1
	urgencyCritical byte = 2
)

// Desktop sends notifications over the session bus. When the bus or the
// notification daemon is unavailable it logs the notification instead.
type Desktop struct {
	mu     sync.Mutex
	conn   *dbus.Conn
	dialed bool
	dial   func() (*dbus.Conn, error)
	logger common.Logger
}

// NewDesktop returns a notifier for the user's session bus.
func NewDesktop(logger common.Logger) *Desktop {
	if logger == nil {
		logger = common.GetLogger().Named("notify")
	}
	dial := func() (*dbus.Conn, error) { return dbus.ConnectSessionBus() }
	return &Desktop{dial: dial, logger: logger}
}

// Notify sends a notification with the default icon.
func (d *Desktop) Notify(title, message string) error {
	return d.NotifyWithIcon(title, message, iconDefault)
}

// NotifyWithIcon sends a notification with a custom icon.
func (d *Desktop) NotifyWithIcon(title, message, icon string) error {
	urgency := urgencyLow
	switch icon {
	case iconError:
		urgency = urgencyCritical
	case iconDisconnected:
		urgency = urgencyNormal
	}
	return d.send(title, message, icon, urgency)
}

func (d *Desktop) send(title, message, icon string, urgency byte) error {
	conn := d.session()
	if conn == nil {
		d.logger.Info("%s: %s", title, message)
		return nil
	}

	hints := map[string]dbus.Variant{"urgency": dbus.MakeVariant(urgency)}
	call := conn.Object(notifyService, notifyPath).Call(notifyMethod, 0,
		appName, uint32(0), icon, title, message, []string{}, hints, int32(-1))
	if call.Err != nil {
		d.logger.Info("%s: %s", title, message)
		return fmt.Errorf("desktop notification failed: %w", call.Err)
	}
	return nil
}

// session dials the bus once; later calls reuse the result.
func (d *Desktop) session() *dbus.Conn {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.dialed {
		d.dialed = true
		conn, err := d.dial()
		if err != nil {
			d.logger.Debug("Session bus unavailable, notifications go to the log: %v", err)
		} else {
			d.conn = conn
		}
	}
	return d.conn
}

// Close releases the session bus connection.
func (d *Desktop) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

var _ common.Notifier = (*Desktop)(nil)
