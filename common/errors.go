// Package common provides shared constants, types, and utilities
// used across the TrustTunnel desktop application.
package common

import "errors"

// Sentinel errors for VPN session operations.
// These can be checked with errors.Is() for proper error handling.
var (
	// Config errors.
	ErrConfigInvalid = errors.New("invalid tunnel configuration")
	ErrConfigMissing = errors.New("tunnel configuration is not set")

	// Environment errors.
	ErrPrivilegeRequired = errors.New("elevated privileges required")
	ErrEngineStartFailed = errors.New("failed to start tunnel engine")

	// Connection errors.
	ErrDNSSetupFailed     = errors.New("system DNS setup failed")
	ErrConnectFailed      = errors.New("connection failed")
	ErrListenerBindFailed = errors.New("failed to create listener")

	// Storage errors.
	ErrConfigNotFound      = errors.New("saved config not found")
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrConfigLoad          = errors.New("failed to load settings")
	ErrConfigSave          = errors.New("failed to save settings")
)

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{
		msg: message,
		err: err,
	}
}

type wrappedError struct {
	msg string
	err error
}

func (e *wrappedError) Error() string {
	return e.msg + ": " + e.err.Error()
}

func (e *wrappedError) Unwrap() error {
	return e.err
}
