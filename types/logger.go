// Package types defines the core interfaces shared across netplay's packages.
package types

// Logger is the logging interface every netplay component depends on.
// Host applications supply their own implementation or use logx.DefaultLogger.
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
