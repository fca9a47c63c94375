package vpn

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/yllada/trusttunnel-desktop/common"
)

// ProbeResult is the outcome of probing the endpoint addresses.
type ProbeResult struct {
	// Address is the first host:port that accepted a TCP connection.
	Address string
	Latency time.Duration
	// Attempts counts the addresses that were well-formed and dialed.
	Attempts int
}

// OK reports whether any address was reachable.
func (r ProbeResult) OK() bool {
	return r.Address != ""
}

// String formats the result for display.
func (r ProbeResult) String() string {
	switch {
	case r.OK():
		return fmt.Sprintf("OK: %s in %d ms", r.Address, r.Latency.Milliseconds())
	case r.Attempts == 0:
		return "No valid host:port to ping"
	default:
		return "Fail: all endpoints timed out/unreachable"
	}
}

// Probe dials each endpoint address in order and stops at the first one that
// answers. A timeout of zero uses common.ProbeTimeout per address.
func Probe(ctx context.Context, addresses []string, timeout time.Duration) ProbeResult {
	if timeout <= 0 {
		timeout = common.ProbeTimeout
	}
	dialer := net.Dialer{Timeout: timeout}

	var result ProbeResult
	for _, addr := range addresses {
		host, port, ok := splitEndpointAddress(addr)
		if !ok {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		result.Attempts++
		target := net.JoinHostPort(host, strconv.Itoa(port))
		start := time.Now()
		conn, err := dialer.DialContext(ctx, "tcp", target)
		if err != nil {
			common.LogDebug("Probe %s failed: %v", target, err)
			continue
		}
		conn.Close()
		result.Address = target
		result.Latency = time.Since(start)
		return result
	}
	return result
}

// splitEndpointAddress parses "host:port", "[v6]:port" and the "|"-prefixed
// form used by endpoint.addresses.
func splitEndpointAddress(s string) (host string, port int, ok bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "|")

	var portStr string
	if strings.HasPrefix(s, "[") {
		end := strings.Index(s, "]:")
		if end <= 0 {
			return "", 0, false
		}
		host, portStr = s[1:end], s[end+2:]
	} else {
		colon := strings.LastIndex(s, ":")
		if colon <= 0 || colon == len(s)-1 {
			return "", 0, false
		}
		host, portStr = s[:colon], s[colon+1:]
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, false
	}
	return host, port, true
}
