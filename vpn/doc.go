// Package vpn implements the TrustTunnel session controller.
//
// The Controller owns the lifecycle of one logical VPN connection on top of
// the external tunnel engine:
//
//   - Config ingestion: engine configs are validated, the log level override
//     is applied and extra routes are appended to tun listeners
//   - Connection attempts: privilege check, engine start, system DNS takeover
//     and connect, with failures classified as fatal or transient
//   - Reconnection: transient failures are retried with exponential backoff
//   - Event translation: engine callbacks become controller state and events
//
// # Concurrency
//
// All controller state lives on a single control goroutine that drains a
// FIFO task queue. Commands (Connect, Disconnect, SetConfig, ...) enqueue a
// task and return immediately. Engine callbacks enqueue a task and never
// block. State and IsConnected read a snapshot and may be called from any
// goroutine.
//
// # Events
//
// Subscribers registered with Subscribe receive every Event on the control
// goroutine, in order. Handlers must not block.
package vpn
