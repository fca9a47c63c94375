package vpn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/yllada/trusttunnel-desktop/common"
)

func TestReconnectPolicy_DoublesUpToMax(t *testing.T) {
	initial, ceiling := time.Second, 30*time.Second

	for n := 0; n <= 8; n++ {
		p := NewReconnectPolicy(initial, ceiling)
		for i := 0; i < n; i++ {
			p.Next()
		}
		want := min(initial*time.Duration(1<<n), ceiling)
		assert.Equal(t, want, p.Current(), "after %d failures", n)
	}
}

func TestReconnectPolicy_NextReturnsScheduledDelay(t *testing.T) {
	p := NewReconnectPolicy(time.Second, 30*time.Second)

	assert.Equal(t, time.Second, p.Next())
	assert.Equal(t, 2*time.Second, p.Next())
	assert.Equal(t, 4*time.Second, p.Next())
}

func TestReconnectPolicy_Reset(t *testing.T) {
	p := NewReconnectPolicy(time.Second, 30*time.Second)
	for i := 0; i < 10; i++ {
		p.Next()
	}
	p.Reset()
	assert.Equal(t, time.Second, p.Current())
}

func TestReconnectPolicy_SetBounds(t *testing.T) {
	tests := []struct {
		name                 string
		initial, ceiling     time.Duration
		wantInitial, wantMax time.Duration
	}{
		{"valid", 2 * time.Second, time.Minute, 2 * time.Second, time.Minute},
		{"initial below floor", time.Millisecond, time.Second, common.MinReconnectDelay, time.Second},
		{"max below initial", 5 * time.Second, time.Second, 5 * time.Second, 5 * time.Second},
		{"zero", 0, 0, common.MinReconnectDelay, common.MinReconnectDelay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewReconnectPolicy(tt.initial, tt.ceiling)
			assert.Equal(t, tt.wantInitial, p.Initial())
			assert.Equal(t, tt.wantMax, p.Max())
			assert.Equal(t, tt.wantInitial, p.Current())
		})
	}
}

func TestReconnectPolicy_SetBoundsClampsCurrent(t *testing.T) {
	p := NewReconnectPolicy(time.Second, time.Minute)
	for i := 0; i < 5; i++ {
		p.Next()
	}
	assert.Equal(t, 32*time.Second, p.Current())

	p.SetBounds(time.Second, 10*time.Second)
	assert.Equal(t, 10*time.Second, p.Current())

	p.SetBounds(20*time.Second, time.Minute)
	assert.Equal(t, 20*time.Second, p.Current())
}
