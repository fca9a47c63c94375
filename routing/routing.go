// Package routing prepares the subnet list applied to tun listeners.
//
// The list is downloaded once into a local cache and read from there on
// every connect. Depending on the mode, entries become included routes
// (only they use the tunnel) or excluded routes (they bypass it).
package routing

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/yllada/trusttunnel-desktop/common"
	"github.com/yllada/trusttunnel-desktop/config"
)

// ErrDownload is returned when the subnet list cannot be fetched.
var ErrDownload = errors.New("routing list download failed")

// Policy is the routing configuration in effect.
type Policy struct {
	Enabled   bool
	Mode      string
	CachePath string
	SourceURL string

	// Client performs downloads. Nil uses a client with the default timeout.
	Client *http.Client
	Logger common.Logger
}

// FromSettings builds a policy from application settings.
func FromSettings(cfg *config.Config) (*Policy, error) {
	cache, err := cfg.RoutingCachePath()
	if err != nil {
		return nil, fmt.Errorf("cannot locate routing cache: %w", err)
	}
	return &Policy{
		Enabled:   cfg.Routing.Enabled,
		Mode:      cfg.Routing.Mode,
		CachePath: cache,
		SourceURL: cfg.Routing.SourceURL,
	}, nil
}

func (p *Policy) logger() common.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return common.GetLogger().Named("routing")
}

// Prepare returns the include and exclude routes for the controller.
// A disabled policy yields no routes. A missing or empty cache is
// downloaded first.
func (p *Policy) Prepare(ctx context.Context) (include, exclude []string, err error) {
	if !p.Enabled {
		return nil, nil, nil
	}

	if info, statErr := os.Stat(p.CachePath); statErr != nil || info.Size() == 0 {
		p.logger().Info("Routing cache missing, downloading...")
		if err := p.Update(ctx); err != nil {
			return nil, nil, err
		}
	}

	routes, err := p.readCache()
	if err != nil {
		return nil, nil, err
	}
	p.logger().Info("Routing rules loaded: %d entries", len(routes))

	if p.Mode == common.RoutingModeBypass {
		return nil, routes, nil
	}
	return routes, nil, nil
}

// Update downloads the subnet list into the cache, replacing it.
func (p *Policy) Update(ctx context.Context) error {
	if p.SourceURL == "" {
		return fmt.Errorf("%w: no source URL", ErrDownload)
	}

	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: common.RoutingDownloadTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.SourceURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownload, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s", ErrDownload, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(p.CachePath), 0755); err != nil {
		return fmt.Errorf("cannot create routing cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p.CachePath), ".routing-*")
	if err != nil {
		return fmt.Errorf("cannot write routing cache: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrDownload, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cannot write routing cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.CachePath); err != nil {
		return fmt.Errorf("cannot write routing cache: %w", err)
	}

	p.logger().Info("Routing list cached to %s", p.CachePath)
	return nil
}

func (p *Policy) readCache() ([]string, error) {
	f, err := os.Open(p.CachePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open routing cache: %w", err)
	}
	defer f.Close()

	var routes []string
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		route := normalizeRoute(line)
		if route == "" {
			p.logger().Warn("Invalid route, ignoring: %s", line)
			continue
		}
		if _, dup := seen[route]; dup {
			continue
		}
		seen[route] = struct{}{}
		routes = append(routes, route)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read routing cache: %w", err)
	}
	return routes, nil
}

// normalizeRoute returns route in canonical CIDR form, or "" if invalid.
// A bare address becomes a host route.
func normalizeRoute(route string) string {
	route = strings.TrimSpace(route)
	if route == "" {
		return ""
	}

	if strings.Contains(route, "/") {
		_, ipNet, err := net.ParseCIDR(route)
		if err != nil {
			return ""
		}
		// "192.168.1.1/24" -> "192.168.1.0/24"
		ones, _ := ipNet.Mask.Size()
		return fmt.Sprintf("%s/%d", ipNet.IP.String(), ones)
	}

	ip := net.ParseIP(route)
	if ip == nil {
		return ""
	}
	if ip.To4() != nil {
		return ip.String() + "/32"
	}
	return ip.String() + "/128"
}
