// Package common provides shared constants, types, and utilities
// used across the TrustTunnel desktop application.
package common

// Notifier defines the interface for sending desktop notifications.
type Notifier interface {
	// Notify sends a notification with the given title and message.
	Notify(title, message string) error
	// NotifyWithIcon sends a notification with a custom icon.
	NotifyWithIcon(title, message, icon string) error
}

// Logger defines the interface for leveled logging.
type Logger interface {
	// Debug logs a debug message.
	Debug(msg string, args ...interface{})
	// Info logs an informational message.
	Info(msg string, args ...interface{})
	// Warn logs a warning message.
	Warn(msg string, args ...interface{})
	// Error logs an error message.
	Error(msg string, args ...interface{})
}

// CredentialStore defines the interface for endpoint credential storage.
type CredentialStore interface {
	// Store saves the password for an account key.
	Store(account, password string) error
	// Get retrieves the password for an account key.
	Get(account string) (string, error)
	// Delete removes the password for an account key.
	Delete(account string) error
}
