package gateway

import (
	"avaneesh/zgw-go/pkg/internal/logger"
)

// LogLevel represents logging level
type LogLevel int

const (
	// LevelDebug shows all log messages (most verbose)
	LevelDebug LogLevel = iota
	// LevelInfo shows info, warn, and error messages (default)
	LevelInfo
	// LevelWarn shows warn and error messages
	LevelWarn
	// LevelError shows only error messages
	LevelError
)

// SetLogLevel sets the global logging level
// Use this to enable/disable different levels of logging output
func SetLogLevel(level LogLevel) {
	logger.SetDefault(logger.NewDefaultLogger(logger.Level(level)))
}

// EnableFrameDebug enables or disables detailed frame debugging
// When enabled, shows hex dumps of all radio frames sent and received
func EnableFrameDebug(enable bool) {
	logger.SetFrameDebug(enable)
}

// applyLogConfig installs the default logger described by the configuration
func applyLogConfig(cfg Config) {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logger.LevelInfo
	}
	SetLogLevel(LogLevel(level))
	EnableFrameDebug(cfg.FrameDebug)
}
