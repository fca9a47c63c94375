package engine

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/trusttunnel-desktop/common"
)

const tunConfig = `
loglevel = "debug"
vpn_mode = "general"
killswitch_enabled = true
dns_upstreams = ["tls://1.1.1.1"]

[endpoint]
hostname = "vpn.example.com"
addresses = ["203.0.113.10:443", "[2001:db8::1]:443"]
username = "alice"
password = "secret"
upstream_protocol = "http2"
skip_verification = false

[listener.tun]
bound_if = "eth0"
mtu_size = 1280
change_system_dns = true
included_routes = ["10.0.0.0/8"]
excluded_routes = ["192.168.0.0/16"]
`

const socksConfig = `
[endpoint]
hostname = "vpn.example.com"
addresses = ["203.0.113.10:443"]

[listener.socks]
address = "127.0.0.1:1080"
`

func TestParse_Tun(t *testing.T) {
	cfg, err := Parse([]byte(tunConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "general", cfg.VPNMode)
	assert.True(t, cfg.KillswitchEnabled)
	assert.Equal(t, []string{"tls://1.1.1.1"}, cfg.DNSUpstreams)
	assert.Equal(t, "vpn.example.com", cfg.Endpoint.Hostname)
	assert.Len(t, cfg.Endpoint.Addresses, 2)
	assert.Equal(t, "http2", cfg.Endpoint.UpstreamProtocol)

	tun, ok := cfg.Listener.(*TunListener)
	require.True(t, ok, "expected tun listener, got %T", cfg.Listener)
	assert.Equal(t, "eth0", tun.BoundIf)
	assert.Equal(t, 1280, tun.MTU)
	assert.True(t, tun.ChangeSystemDNS)
	assert.Equal(t, []string{"10.0.0.0/8"}, tun.IncludedRoutes)
	assert.Equal(t, []string{"192.168.0.0/16"}, tun.ExcludedRoutes)
}

func TestParse_Socks(t *testing.T) {
	cfg, err := Parse([]byte(socksConfig))
	require.NoError(t, err)

	socks, ok := cfg.Listener.(*SocksListener)
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1:1080", socks.Address)
	assert.Equal(t, "socks", cfg.Listener.Kind())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unparsable", "[endpoint\nhostname ="},
		{"missing endpoint", "[listener.socks]\naddress = \"127.0.0.1:1080\"\n"},
		{"missing addresses", "[endpoint]\nhostname = \"h\"\n[listener.socks]\n"},
		{"missing listener", "[endpoint]\nhostname = \"h\"\naddresses = [\"h:443\"]\n"},
		{"both listeners", "[endpoint]\nhostname = \"h\"\naddresses = [\"h:443\"]\n[listener.tun]\n[listener.socks]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrConfigInvalid)
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	assert.ErrorIs(t, err, common.ErrConfigInvalid)
}

func TestConfig_CloneIsIndependent(t *testing.T) {
	cfg, err := Parse([]byte(tunConfig))
	require.NoError(t, err)

	clone := cfg.Clone()
	clone.Endpoint.Addresses[0] = "changed:1"
	clone.Listener.(*TunListener).IncludedRoutes = append(clone.Listener.(*TunListener).IncludedRoutes, "1.2.3.0/24")
	clone.Listener.(*TunListener).ExcludedRoutes[0] = "changed"

	assert.Equal(t, "203.0.113.10:443", cfg.Endpoint.Addresses[0])
	assert.Equal(t, []string{"10.0.0.0/8"}, cfg.Listener.(*TunListener).IncludedRoutes)
	assert.Equal(t, []string{"192.168.0.0/16"}, cfg.Listener.(*TunListener).ExcludedRoutes)
	assert.Nil(t, (*Config)(nil).Clone())
}

func TestConfig_EncodeRoundTrip(t *testing.T) {
	cfg, err := Parse([]byte(tunConfig))
	require.NoError(t, err)
	tun := cfg.Listener.(*TunListener)
	tun.IncludedRoutes = append(tun.IncludedRoutes, "172.16.0.0/12")

	var buf bytes.Buffer
	require.NoError(t, cfg.Encode(&buf))

	again, err := Parse(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, cfg.Endpoint, again.Endpoint)
	assert.Equal(t, cfg.Listener, again.Listener)
	assert.Equal(t, cfg.DNSUpstreams, again.DNSUpstreams)

	// Keys without a field in Config are carried through.
	assert.Contains(t, buf.String(), "skip_verification = false")
}

func TestConfig_EncodeSwitchesListener(t *testing.T) {
	cfg, err := Parse([]byte(tunConfig))
	require.NoError(t, err)
	cfg.Listener = &SocksListener{Address: "127.0.0.1:1080"}

	var buf bytes.Buffer
	require.NoError(t, cfg.Encode(&buf))

	again, err := Parse(buf.Bytes())
	require.NoError(t, err, buf.String())
	assert.Equal(t, "socks", again.Listener.Kind())
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.toml")
	require.NoError(t, os.WriteFile(good, []byte(tunConfig), 0600))
	report := Inspect(good)
	assert.True(t, report.OK())
	assert.Empty(t, report.Warnings)

	partial := filepath.Join(dir, "partial.toml")
	require.NoError(t, os.WriteFile(partial, []byte("[endpoint]\nhostname = \"h\"\n"), 0600))
	report = Inspect(partial)
	assert.False(t, report.OK())
	assert.Contains(t, report.Errors, "endpoint.addresses must contain at least one host:port")
	assert.Contains(t, report.Errors, "Missing [listener] section")
	assert.Contains(t, report.Warnings, "endpoint.username is empty or missing")
	assert.Contains(t, report.Warnings, "loglevel is not set (default level may be used)")

	broken := filepath.Join(dir, "broken.toml")
	require.NoError(t, os.WriteFile(broken, []byte("= nope"), 0600))
	report = Inspect(broken)
	assert.NotEmpty(t, report.ParseError)
	assert.False(t, report.OK())
}

func TestSummarize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.toml")
	require.NoError(t, os.WriteFile(path, []byte(tunConfig), 0600))

	s, err := Summarize(path)
	require.NoError(t, err)
	assert.Equal(t, "vpn.example.com", s.Hostname)
	assert.Equal(t, "tun", s.ListenerType)
	assert.Equal(t, "1280", s.MTU)
	assert.Equal(t, "true", s.Killswitch)
	assert.Equal(t, "-", s.FallbackProtocol)
	assert.Equal(t, 1, s.DNSUpstreams)
	assert.Equal(t, 1, s.IncludedRoutes)
	assert.Equal(t, 1, s.ExcludedRoutes)
}
