// Package logging provides a minimal logging interface and slog based
// adapters for the group chat runtime.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) with slog style key/value arguments. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.New(logging.Config{Level: logging.LogLevelInfo, Format: "json"})
//	chat, err := groupchat.New(pattern, eng, func(o *groupchat.Options) { o.Logger = logger })
package logging
