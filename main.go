// Package main provides the entry point for TrustTunnel.
// TrustTunnel supervises the TrustTunnel tunnel engine: it connects with an
// engine config file, reconnects after transient failures and tears the
// session down cleanly on exit.
//
// Features:
//   - Single supervised session with exponential reconnect backoff
//   - Saved engine configs with most-recently-used ordering
//   - Secure password storage using the system keyring
//   - Optional subnet routing list for tun listeners
//   - Desktop notifications and Prometheus metrics
//
// Usage:
//
//	trusttunnel [command] [options]
//
// Environment:
//
//	The tunnel helper (trusttunnel_client) must be installed, and connecting
//	requires administrator privileges.
package main

import (
	"os"

	"github.com/yllada/trusttunnel-desktop/cli"
	"github.com/yllada/trusttunnel-desktop/common"
)

// Build-time variables injected via ldflags (-X main.appVersion=x.y.z)
// Default values are used for local development builds
var (
	appVersion = "dev"
	buildTime  = "unknown"
	commitSHA  = "unknown"
)

func main() {
	root := cli.NewRootCommand(cli.BuildInfo{
		Version:   appVersion,
		BuildTime: buildTime,
		Commit:    commitSHA,
	})

	err := root.Execute()
	common.CloseLogger()
	if err != nil {
		os.Exit(1)
	}
}
