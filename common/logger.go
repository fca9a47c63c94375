// Package common provides shared constants, types, and utilities
// used across the TrustTunnel desktop application.
package common

import (
	"compress/gzip"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity level of a log message.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel converts a settings value into a LogLevel.
// "trace" is accepted for parity with the engine levels and maps to debug.
func ParseLogLevel(level string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace", "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", level)
	}
}

// sink is the output shared by a logger and all of its named children.
type sink struct {
	mu          sync.Mutex
	level       LogLevel
	logger      *log.Logger
	logFile     *os.File
	filePath    string
	maxFileSize int64
	maxBackups  int
}

// AppLogger is a leveled logger for the application.
// Supports file logging with automatic rotation based on size.
type AppLogger struct {
	sink   *sink
	prefix string
}

// LogConfig holds configuration options for the logger.
type LogConfig struct {
	Level       LogLevel
	EnableFile  bool
	FilePath    string // empty means GetLogDir()/LogFileName
	MaxFileSize int64  // in bytes, default 5MB
	MaxBackups  int    // number of rotated files to keep, default 5
}

var (
	defaultLogger *AppLogger
	loggerOnce    sync.Once
)

const (
	defaultMaxFileSize = 5 * 1024 * 1024 // 5MB
	defaultMaxBackups  = 5
)

// NewLogger creates a logger writing to w. Used by tests and by components
// that need an isolated log stream.
func NewLogger(w io.Writer, level LogLevel) *AppLogger {
	return &AppLogger{sink: &sink{
		level:       level,
		logger:      log.New(w, "", 0),
		maxFileSize: defaultMaxFileSize,
		maxBackups:  defaultMaxBackups,
	}}
}

// GetLogger returns the process-wide logger instance.
func GetLogger() *AppLogger {
	loggerOnce.Do(func() {
		defaultLogger = NewLogger(os.Stdout, LevelInfo)
	})
	return defaultLogger
}

// InitLogger initializes the logger with custom configuration.
// Should be called early in application startup.
func InitLogger(config LogConfig) error {
	logger := GetLogger()
	logger.SetLevel(config.Level)

	logger.sink.mu.Lock()
	if config.MaxFileSize > 0 {
		logger.sink.maxFileSize = config.MaxFileSize
	}
	if config.MaxBackups > 0 {
		logger.sink.maxBackups = config.MaxBackups
	}
	logger.sink.mu.Unlock()

	if !config.EnableFile {
		return nil
	}
	path := config.FilePath
	if path == "" {
		path = filepath.Join(GetLogDir(), LogFileName)
	}
	return logger.EnableFileLogging(path)
}

// Named returns a child logger that prefixes every message with the component
// name. The child shares level and output with its parent.
func (l *AppLogger) Named(component string) *AppLogger {
	prefix := "[" + component + "] "
	return &AppLogger{sink: l.sink, prefix: l.prefix + prefix}
}

// SetLevel sets the minimum log level.
func (l *AppLogger) SetLevel(level LogLevel) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.level = level
}

// Level returns the current minimum log level.
func (l *AppLogger) Level() LogLevel {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return l.sink.level
}

// isSymlink checks if a path is a symbolic link.
// Returns false if path doesn't exist (safe to create).
func isSymlink(path string) bool {
	info, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeSymlink != 0
}

// EnableFileLogging enables logging to path in addition to stdout.
// The log file will be rotated when it exceeds the configured size.
func (l *AppLogger) EnableFileLogging(path string) error {
	dir := filepath.Dir(path)

	// Security: refuse symlinked log locations
	if isSymlink(dir) {
		return fmt.Errorf("security error: log directory is a symlink")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	if isSymlink(path) {
		return fmt.Errorf("security error: log file is a symlink")
	}

	l.rotateIfNeeded(path)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return err
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if l.sink.logFile != nil {
		l.sink.logFile.Close()
	}
	l.sink.logFile = file
	l.sink.filePath = path
	l.sink.logger = log.New(io.MultiWriter(os.Stdout, file), "", 0)
	return nil
}

// rotateIfNeeded compresses the log file once it grows past maxFileSize.
func (l *AppLogger) rotateIfNeeded(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}

	l.sink.mu.Lock()
	limit := l.sink.maxFileSize
	backups := l.sink.maxBackups
	if info.Size() < limit {
		l.sink.mu.Unlock()
		return
	}
	if l.sink.logFile != nil {
		l.sink.logFile.Close()
		l.sink.logFile = nil
	}
	l.sink.mu.Unlock()

	rotated := fmt.Sprintf("%s.%s.gz", path, time.Now().Format("20060102-150405"))
	if err := compressFile(path, rotated); err != nil {
		os.Rename(path, strings.TrimSuffix(rotated, ".gz"))
	} else {
		os.Remove(path)
	}

	pruneBackups(path, backups)
}

// compressFile compresses a file using gzip.
func compressFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	gzWriter := gzip.NewWriter(dstFile)
	defer gzWriter.Close()

	_, err = io.Copy(gzWriter, srcFile)
	return err
}

// pruneBackups keeps the newest keep rotated files next to path.
func pruneBackups(path string, keep int) {
	matches, err := filepath.Glob(path + ".*")
	if err != nil || len(matches) <= keep {
		return
	}

	sort.Slice(matches, func(i, j int) bool {
		infoI, _ := os.Stat(matches[i])
		infoJ, _ := os.Stat(matches[j])
		if infoI == nil || infoJ == nil {
			return false
		}
		return infoI.ModTime().Before(infoJ.ModTime())
	})

	for _, old := range matches[:len(matches)-keep] {
		os.Remove(old)
	}
}

// GetLogDir returns the default log directory path.
func GetLogDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir()
	}
	return filepath.Join(homeDir, ".config", ConfigDirName, "logs")
}

// log writes a formatted log message.
func (l *AppLogger) log(level LogLevel, msg string, args ...interface{}) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if level < l.sink.level {
		return
	}

	caller := "???"
	if _, file, line, ok := runtime.Caller(2); ok {
		caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}

	formatted := msg
	if len(args) > 0 {
		formatted = fmt.Sprintf(msg, args...)
	}

	l.sink.logger.Printf("%s [%s] %s: %s%s",
		time.Now().Format("2006/01/02 15:04:05"), level.String(), caller, l.prefix, formatted)
}

// Debug logs a debug message.
func (l *AppLogger) Debug(msg string, args ...interface{}) {
	l.log(LevelDebug, msg, args...)
}

// Info logs an informational message.
func (l *AppLogger) Info(msg string, args ...interface{}) {
	l.log(LevelInfo, msg, args...)
}

// Warn logs a warning message.
func (l *AppLogger) Warn(msg string, args ...interface{}) {
	l.log(LevelWarn, msg, args...)
}

// Error logs an error message.
func (l *AppLogger) Error(msg string, args ...interface{}) {
	l.log(LevelError, msg, args...)
}

// Shorthand functions for default logger.

// LogDebug logs a debug message to the default logger.
func LogDebug(msg string, args ...interface{}) {
	GetLogger().Debug(msg, args...)
}

// LogInfo logs an info message to the default logger.
func LogInfo(msg string, args ...interface{}) {
	GetLogger().Info(msg, args...)
}

// LogWarn logs a warning message to the default logger.
func LogWarn(msg string, args ...interface{}) {
	GetLogger().Warn(msg, args...)
}

// LogError logs an error message to the default logger.
func LogError(msg string, args ...interface{}) {
	GetLogger().Error(msg, args...)
}

// Close closes the log file. Should be called on application shutdown.
func (l *AppLogger) Close() error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if l.sink.logFile == nil {
		return nil
	}
	err := l.sink.logFile.Close()
	l.sink.logFile = nil
	l.sink.logger = log.New(os.Stdout, "", 0)
	return err
}

// CloseLogger closes the default logger.
func CloseLogger() error {
	return GetLogger().Close()
}
