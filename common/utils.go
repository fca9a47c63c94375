// Package common provides shared constants, types, and utilities
// used across the TrustTunnel desktop application.
package common

import (
	"os"
	"path/filepath"
)

// GetConfigDir returns the path to the application configuration directory.
// It creates the directory if it doesn't exist.
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", WrapError(err, "failed to get home directory")
	}

	configDir := filepath.Join(homeDir, ".config", ConfigDirName)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", WrapError(err, "failed to create config directory")
	}

	return configDir, nil
}

// GetCacheDir returns the path to the application cache directory.
func GetCacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", WrapError(err, "failed to get cache directory")
	}

	cacheDir := filepath.Join(base, ConfigDirName)
	if err := os.MkdirAll(cacheDir, 0700); err != nil {
		return "", WrapError(err, "failed to create cache directory")
	}

	return cacheDir, nil
}

// FileExists checks if a file exists at the given path.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// CloneStrings returns a copy of s that shares no backing array with it.
// A nil slice stays nil.
func CloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
