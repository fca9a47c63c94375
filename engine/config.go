package engine

import (
	"fmt"
	"io"
	"maps"

	"github.com/BurntSushi/toml"

	"github.com/yllada/trusttunnel-desktop/common"
)

// Config is a parsed engine configuration.
// Once handed to a Client it must not be modified; use Clone to derive variants.
type Config struct {
	LogLevel          string
	VPNMode           string
	KillswitchEnabled bool
	DNSUpstreams      []string
	Endpoint          Endpoint
	// Listener is either *TunListener or *SocksListener.
	Listener Listener

	// raw keeps every key of the source document so that settings this
	// package does not model survive Encode.
	raw map[string]any
}

// Endpoint identifies the remote TrustTunnel server.
type Endpoint struct {
	Hostname                 string
	Addresses                []string
	Username                 string
	Password                 string
	UpstreamProtocol         string
	UpstreamFallbackProtocol string
}

// Listener is the local traffic capture mode.
type Listener interface {
	// Kind returns "tun" or "socks".
	Kind() string
	clone() Listener
}

// TunListener captures traffic through a virtual network interface.
type TunListener struct {
	BoundIf         string
	MTU             int
	ChangeSystemDNS bool
	IncludedRoutes  []string
	ExcludedRoutes  []string
}

// Kind implements Listener.
func (*TunListener) Kind() string { return "tun" }

func (t *TunListener) clone() Listener {
	c := *t
	c.IncludedRoutes = common.CloneStrings(t.IncludedRoutes)
	c.ExcludedRoutes = common.CloneStrings(t.ExcludedRoutes)
	return &c
}

// SocksListener exposes the tunnel as a local SOCKS proxy.
type SocksListener struct {
	Address  string
	Username string
	Password string
}

// Kind implements Listener.
func (*SocksListener) Kind() string { return "socks" }

func (s *SocksListener) clone() Listener {
	c := *s
	return &c
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.DNSUpstreams = common.CloneStrings(c.DNSUpstreams)
	out.Endpoint.Addresses = common.CloneStrings(c.Endpoint.Addresses)
	if c.Listener != nil {
		out.Listener = c.Listener.clone()
	}
	out.raw = cloneTable(c.raw)
	return &out
}

// Validate reports structural problems that make the config unusable.
// The returned error wraps common.ErrConfigInvalid.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", common.ErrConfigInvalid)
	}
	if c.Endpoint.Hostname == "" {
		return fmt.Errorf("%w: endpoint.hostname is required", common.ErrConfigInvalid)
	}
	if len(c.Endpoint.Addresses) == 0 {
		return fmt.Errorf("%w: endpoint.addresses must contain at least one host:port", common.ErrConfigInvalid)
	}
	if c.Listener == nil {
		return fmt.Errorf("%w: listener.tun or listener.socks must be defined", common.ErrConfigInvalid)
	}
	return nil
}

// Encode writes c as a TOML document.
func (c *Config) Encode(w io.Writer) error {
	doc := cloneTable(c.raw)
	if doc == nil {
		doc = make(map[string]any)
	}

	setString(doc, "loglevel", c.LogLevel)
	setString(doc, "vpn_mode", c.VPNMode)
	doc["killswitch_enabled"] = c.KillswitchEnabled
	if c.DNSUpstreams != nil {
		doc["dns_upstreams"] = c.DNSUpstreams
	}

	endpoint := subTable(doc, "endpoint")
	endpoint["hostname"] = c.Endpoint.Hostname
	endpoint["addresses"] = c.Endpoint.Addresses
	setString(endpoint, "username", c.Endpoint.Username)
	setString(endpoint, "password", c.Endpoint.Password)
	setString(endpoint, "upstream_protocol", c.Endpoint.UpstreamProtocol)
	setString(endpoint, "upstream_fallback_protocol", c.Endpoint.UpstreamFallbackProtocol)

	listener := subTable(doc, "listener")
	switch l := c.Listener.(type) {
	case *TunListener:
		delete(listener, "socks")
		tun := subTable(listener, "tun")
		setString(tun, "bound_if", l.BoundIf)
		if l.MTU > 0 {
			tun["mtu_size"] = l.MTU
		}
		tun["change_system_dns"] = l.ChangeSystemDNS
		tun["included_routes"] = emptyIfNil(l.IncludedRoutes)
		tun["excluded_routes"] = emptyIfNil(l.ExcludedRoutes)
	case *SocksListener:
		delete(listener, "tun")
		socks := subTable(listener, "socks")
		setString(socks, "address", l.Address)
		setString(socks, "username", l.Username)
		setString(socks, "password", l.Password)
	}

	enc := toml.NewEncoder(w)
	enc.Indent = ""
	return enc.Encode(doc)
}

func setString(table map[string]any, key, value string) {
	if value == "" {
		delete(table, key)
		return
	}
	table[key] = value
}

func subTable(parent map[string]any, key string) map[string]any {
	if t, ok := parent[key].(map[string]any); ok {
		return t
	}
	t := make(map[string]any)
	parent[key] = t
	return t
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func cloneTable(t map[string]any) map[string]any {
	if t == nil {
		return nil
	}
	out := maps.Clone(t)
	for k, v := range out {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneTable(val)
	case []map[string]any:
		out := make([]map[string]any, len(val))
		for i, t := range val {
			out[i] = cloneTable(t)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
