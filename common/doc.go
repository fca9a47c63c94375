// Package common provides shared constants, types, utilities, and interfaces
// used throughout the TrustTunnel desktop application.
//
// This package serves as the foundation for cross-cutting concerns:
//
//   - Constants: file names, reconnect bounds, timeouts and routing modes
//   - Errors: sentinel errors forming the session failure taxonomy
//   - Interfaces: abstractions for logging and desktop notifications
//   - Logger: leveled logging to stdout and a rotated log file
//   - Utils: config/data directory helpers and small slice helpers
//
// # Usage
//
//	import "github.com/yllada/trusttunnel-desktop/common"
//
//	log := common.GetLogger().Named("vpn")
//	log.Info("Connecting with %d extra routes", n)
//
//	if errors.Is(err, common.ErrPrivilegeRequired) {
//	    // offer an elevation path instead of retrying
//	}
package common
