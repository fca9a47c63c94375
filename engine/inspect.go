package engine

import (
	"os"
	"strconv"
)

// Report is the result of a structural check of an engine config file.
type Report struct {
	// ParseError is set when the file could not be read or decoded.
	ParseError string
	Errors     []string
	Warnings   []string
}

// OK reports whether the config has no parse error and no errors.
func (r Report) OK() bool {
	return r.ParseError == "" && len(r.Errors) == 0
}

// Inspect checks the engine config at path without rejecting it outright,
// collecting every problem it finds.
func Inspect(path string) Report {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{ParseError: err.Error()}
	}
	raw, err := decodeDocument(data)
	if err != nil {
		return Report{ParseError: err.Error()}
	}

	var r Report
	if endpoint, ok := raw["endpoint"].(map[string]any); !ok {
		r.Errors = append(r.Errors, "Missing [endpoint] section")
	} else {
		if _, ok := stringAt(endpoint, "hostname"); !ok {
			r.Errors = append(r.Errors, "endpoint.hostname is required")
		}
		if u, _ := stringAt(endpoint, "username"); u == "" {
			r.Warnings = append(r.Warnings, "endpoint.username is empty or missing")
		}
		if p, _ := stringAt(endpoint, "password"); p == "" {
			r.Warnings = append(r.Warnings, "endpoint.password is empty or missing")
		}
		if len(stringsAt(endpoint, "addresses")) == 0 {
			r.Errors = append(r.Errors, "endpoint.addresses must contain at least one host:port")
		}
	}

	if listener, ok := raw["listener"].(map[string]any); !ok {
		r.Errors = append(r.Errors, "Missing [listener] section")
	} else {
		_, hasTun := listener["tun"].(map[string]any)
		_, hasSocks := listener["socks"].(map[string]any)
		switch {
		case !hasTun && !hasSocks:
			r.Errors = append(r.Errors, "listener.tun or listener.socks must be defined")
		case hasTun && hasSocks:
			r.Errors = append(r.Errors, "listener.tun and listener.socks are mutually exclusive")
		}
	}

	if _, ok := stringAt(raw, "vpn_mode"); !ok {
		r.Warnings = append(r.Warnings, "vpn_mode is not set (default behavior may be used)")
	}
	if _, ok := stringAt(raw, "loglevel"); !ok {
		r.Warnings = append(r.Warnings, "loglevel is not set (default level may be used)")
	}
	return r
}

// Summary is a flat overview of an engine config for display.
// Missing values are reported as "-".
type Summary struct {
	Hostname         string
	Addresses        []string
	Username         string
	Protocol         string
	FallbackProtocol string
	LogLevel         string
	VPNMode          string
	Killswitch       string
	ListenerType     string
	BoundIf          string
	MTU              string
	ChangeSystemDNS  string
	DNSUpstreams     int
	IncludedRoutes   int
	ExcludedRoutes   int
}

// Summarize decodes the engine config at path into a Summary.
// Unlike Parse it does not require the config to be complete.
func Summarize(path string) (Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, err
	}
	raw, err := decodeDocument(data)
	if err != nil {
		return Summary{}, err
	}

	endpoint, _ := raw["endpoint"].(map[string]any)
	listener, _ := raw["listener"].(map[string]any)
	tun, hasTun := listener["tun"].(map[string]any)
	_, hasSocks := listener["socks"].(map[string]any)

	s := Summary{
		Hostname:         display(endpoint["hostname"]),
		Addresses:        stringsAt(endpoint, "addresses"),
		Username:         display(endpoint["username"]),
		Protocol:         display(endpoint["upstream_protocol"]),
		FallbackProtocol: display(endpoint["upstream_fallback_protocol"]),
		LogLevel:         display(raw["loglevel"]),
		VPNMode:          display(raw["vpn_mode"]),
		Killswitch:       display(raw["killswitch_enabled"]),
		ListenerType:     "-",
		BoundIf:          display(tun["bound_if"]),
		MTU:              display(tun["mtu_size"]),
		ChangeSystemDNS:  display(tun["change_system_dns"]),
		DNSUpstreams:     len(stringsAt(raw, "dns_upstreams")),
		IncludedRoutes:   len(stringsAt(tun, "included_routes")),
		ExcludedRoutes:   len(stringsAt(tun, "excluded_routes")),
	}
	switch {
	case hasTun:
		s.ListenerType = "tun"
	case hasSocks:
		s.ListenerType = "socks"
	}
	return s, nil
}

func display(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return "-"
	}
}
