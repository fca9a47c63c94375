//go:build windows

package privilege

import "golang.org/x/sys/windows"

const hint = "TrustTunnel needs administrator privileges to create the tunnel adapter. " +
	"Restart it with \"Run as administrator\"."

func isElevated() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}
