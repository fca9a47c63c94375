package vpn

import (
	"errors"
	"strings"

	"github.com/yllada/trusttunnel-desktop/engine"
)

// dnsFailureThreshold is the number of consecutive DNS setup failures after
// which the failure is treated as fatal.
const dnsFailureThreshold = 2

var listenerBindMarkers = []string{
	"failed to create listener",
	"address already in use",
}

var permissionMarkers = []string{
	"permission denied",
	"operation not permitted",
	"access is denied",
	"requires elevation",
}

// isListenerBindFailure reports whether a connect failure means the local
// listener could not be created. Typed engine errors are trusted; anything
// else falls back to the failure text.
func isListenerBindFailure(err error) bool {
	var engineErr *engine.Error
	if errors.As(err, &engineErr) && engineErr.Code != engine.CodeUnknown {
		return engineErr.Code == engine.CodeListenerBind
	}
	return containsAny(err.Error(), listenerBindMarkers)
}

// isPermissionFailure reports whether a DNS setup failure is caused by
// missing privileges, which a retry cannot fix.
func isPermissionFailure(err error) bool {
	return containsAny(err.Error(), permissionMarkers)
}

func containsAny(text string, markers []string) bool {
	lower := strings.ToLower(text)
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
