//go:build !windows

package privilege

import "os"

const hint = "TrustTunnel needs root privileges to create the tun interface. " +
	"Run it with sudo or pkexec."

func isElevated() bool {
	return os.Geteuid() == 0
}
