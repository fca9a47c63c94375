// Package engine describes the external TrustTunnel tunneling engine.
//
// It holds the engine configuration model and its TOML codec, the client
// contract the session controller drives (Connect, Disconnect, SetSystemDNS
// plus asynchronous callbacks), and a Client implementation that runs the
// tunnel helper as a child process.
//
// Engine configs are TOML documents:
//
//	loglevel = "info"
//	vpn_mode = "general"
//
//	[endpoint]
//	hostname  = "vpn.example.com"
//	addresses = ["203.0.113.10:443"]
//	username  = "alice"
//	password  = "secret"
//
//	[listener.tun]
//	mtu_size        = 1280
//	included_routes = ["0.0.0.0/0"]
//
// Exactly one of [listener.tun] or [listener.socks] must be present.
package engine
