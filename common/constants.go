// Package common provides shared constants, types, and utilities
// used across the TrustTunnel desktop application.
package common

import "time"

// Application metadata.
const (
	// AppID is the unique identifier for the application.
	AppID = "net.firetunnel.trusttunnel-desktop"
	// AppName is the display name of the application.
	AppName = "TrustTunnel"
	// ConfigDirName is the name of the configuration directory.
	ConfigDirName = "trusttunnel-desktop"
)

// File names used by the application.
const (
	SettingsFileName    = "config.yaml"
	ConfigsDBFileName   = "configs.db"
	CredentialsFileName = ".credentials"
	LogFileName         = "trusttunnel-desktop.log"
	RoutingCacheName    = "routing-subnets.lst"
)

// HelperBinaryName is the tunnel helper executable looked up in PATH when
// no explicit path is configured.
const HelperBinaryName = "trusttunnel_client"

// Reconnect bounds.
const (
	// DefaultReconnectDelay is the initial backoff delay.
	DefaultReconnectDelay = 1 * time.Second
	// DefaultMaxReconnectDelay caps the backoff delay.
	DefaultMaxReconnectDelay = 30 * time.Second
	// MinReconnectDelay is the smallest accepted initial delay.
	MinReconnectDelay = 250 * time.Millisecond
)

// Default timeouts and intervals.
const (
	// ConnectionTimeout is the maximum time the helper gets to report a connection.
	ConnectionTimeout = 30 * time.Second
	// ProbeTimeout bounds a single endpoint reachability dial.
	ProbeTimeout = 1800 * time.Millisecond
	// RoutingDownloadTimeout bounds the routing list download.
	RoutingDownloadTimeout = 8 * time.Second
	// NetworkPollInterval is used by the network monitor when D-Bus is unavailable.
	NetworkPollInterval = 5 * time.Second
)

// Routing modes.
const (
	// RoutingModeTunnel sends only the listed subnets through the tunnel.
	RoutingModeTunnel = "tunnel"
	// RoutingModeBypass sends the listed subnets around the tunnel.
	RoutingModeBypass = "bypass"
)

// DefaultRoutingSourceURL is the subnet list fetched when routing is enabled.
const DefaultRoutingSourceURL = "https://antifilter.download/list/subnet.lst"
