// Package logger defines the logging interface used throughout the engine.
// Console output is for the CLI serve/analyze modes; silent is for the TUI
// and MCP stdio modes where stray output corrupts the protocol or display.
package logger

import (
	"fmt"
	"os"
)

// Logger is implemented by all logging backends.
type Logger interface {
	Info(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Debug(msg string, args ...interface{})
}

// ConsoleLogger writes human-readable logs to stdout/stderr.
type ConsoleLogger struct {
	// Debug messages are dropped unless Verbose is set.
	Verbose bool
}

// NewConsoleLogger returns a console logger with debug output disabled.
func NewConsoleLogger() *ConsoleLogger {
	return &ConsoleLogger{}
}

func (c *ConsoleLogger) Info(msg string, args ...interface{}) {
	fmt.Printf("[INFO] "+msg+"\n", args...)
}

func (c *ConsoleLogger) Error(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "[ERROR] "+msg+"\n", args...)
}

func (c *ConsoleLogger) Debug(msg string, args ...interface{}) {
	if c.Verbose {
		fmt.Printf("[DEBUG] "+msg+"\n", args...)
	}
}

// SilentLogger discards all log messages.
type SilentLogger struct{}

func NewSilentLogger() *SilentLogger {
	return &SilentLogger{}
}

func (s *SilentLogger) Info(msg string, args ...interface{})  {}
func (s *SilentLogger) Error(msg string, args ...interface{}) {}
func (s *SilentLogger) Debug(msg string, args ...interface{}) {}
