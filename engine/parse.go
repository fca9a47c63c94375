package engine

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/yllada/trusttunnel-desktop/common"
)

// Parse decodes and validates a TOML engine configuration.
// Any failure wraps common.ErrConfigInvalid.
func Parse(data []byte) (*Config, error) {
	raw, err := decodeDocument(data)
	if err != nil {
		return nil, err
	}

	cfg, err := fromDocument(raw)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads and parses the engine configuration at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfigInvalid, err)
	}
	return Parse(data)
}

func decodeDocument(data []byte) (map[string]any, error) {
	raw := make(map[string]any)
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfigInvalid, err)
	}
	return raw, nil
}

func fromDocument(raw map[string]any) (*Config, error) {
	cfg := &Config{raw: raw}

	cfg.LogLevel, _ = stringAt(raw, "loglevel")
	cfg.VPNMode, _ = stringAt(raw, "vpn_mode")
	cfg.KillswitchEnabled, _ = raw["killswitch_enabled"].(bool)
	cfg.DNSUpstreams = stringsAt(raw, "dns_upstreams")

	if endpoint, ok := raw["endpoint"].(map[string]any); ok {
		cfg.Endpoint.Hostname, _ = stringAt(endpoint, "hostname")
		cfg.Endpoint.Addresses = stringsAt(endpoint, "addresses")
		cfg.Endpoint.Username, _ = stringAt(endpoint, "username")
		cfg.Endpoint.Password, _ = stringAt(endpoint, "password")
		cfg.Endpoint.UpstreamProtocol, _ = stringAt(endpoint, "upstream_protocol")
		cfg.Endpoint.UpstreamFallbackProtocol, _ = stringAt(endpoint, "upstream_fallback_protocol")
	}

	listener, _ := raw["listener"].(map[string]any)
	tun, hasTun := listener["tun"].(map[string]any)
	socks, hasSocks := listener["socks"].(map[string]any)
	switch {
	case hasTun && hasSocks:
		return nil, fmt.Errorf("%w: listener.tun and listener.socks are mutually exclusive", common.ErrConfigInvalid)
	case hasTun:
		l := &TunListener{
			IncludedRoutes: stringsAt(tun, "included_routes"),
			ExcludedRoutes: stringsAt(tun, "excluded_routes"),
		}
		l.BoundIf, _ = stringAt(tun, "bound_if")
		l.ChangeSystemDNS, _ = tun["change_system_dns"].(bool)
		if mtu, ok := tun["mtu_size"].(int64); ok {
			l.MTU = int(mtu)
		}
		cfg.Listener = l
	case hasSocks:
		l := &SocksListener{}
		l.Address, _ = stringAt(socks, "address")
		l.Username, _ = stringAt(socks, "username")
		l.Password, _ = stringAt(socks, "password")
		cfg.Listener = l
	}

	return cfg, nil
}

func stringAt(table map[string]any, key string) (string, bool) {
	s, ok := table[key].(string)
	return s, ok
}

// stringsAt returns the string (or integer) items of an array value.
func stringsAt(table map[string]any, key string) []string {
	arr, ok := table[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case int64:
			out = append(out, strconv.FormatInt(v, 10))
		}
	}
	return out
}
