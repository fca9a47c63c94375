package vpn

import (
	"time"

	"github.com/yllada/trusttunnel-desktop/common"
)

// ReconnectPolicy is the exponential backoff used between automatic
// connection attempts. Current always stays within [Initial, Max].
//
// A ReconnectPolicy is not safe for concurrent use; the controller only
// touches it from its control goroutine.
type ReconnectPolicy struct {
	current time.Duration
	initial time.Duration
	max     time.Duration
}

// NewReconnectPolicy returns a policy with the given bounds, clamped as in
// SetBounds.
func NewReconnectPolicy(initial, ceiling time.Duration) *ReconnectPolicy {
	p := &ReconnectPolicy{}
	p.SetBounds(initial, ceiling)
	return p
}

// SetBounds replaces the bounds. Initial is raised to common.MinReconnectDelay
// and ceiling to initial when smaller. Current is clamped into the new range.
func (p *ReconnectPolicy) SetBounds(initial, ceiling time.Duration) {
	if initial < common.MinReconnectDelay {
		initial = common.MinReconnectDelay
	}
	if ceiling < initial {
		ceiling = initial
	}
	p.initial = initial
	p.max = ceiling
	p.current = min(max(p.current, initial), ceiling)
}

// Next returns the delay for the upcoming retry and doubles the delay used
// after it, capped at Max.
func (p *ReconnectPolicy) Next() time.Duration {
	delay := p.current
	p.current = min(p.current*2, p.max)
	return delay
}

// Reset returns the delay to its floor.
func (p *ReconnectPolicy) Reset() {
	p.current = p.initial
}

// Current returns the delay the next retry will use.
func (p *ReconnectPolicy) Current() time.Duration { return p.current }

// Initial returns the delay floor.
func (p *ReconnectPolicy) Initial() time.Duration { return p.initial }

// Max returns the delay ceiling.
func (p *ReconnectPolicy) Max() time.Duration { return p.max }
