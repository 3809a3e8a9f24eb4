package logging

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pion/logging"
)

var (
	mu      sync.Mutex
	factory = logging.NewDefaultLoggerFactory()
)

// NewLogger returns a leveled logger for the given scope
func NewLogger(scope string) logging.LeveledLogger {
	mu.Lock()
	defer mu.Unlock()
	return factory.NewLogger(scope)
}

// Configure sets the default level and per-scope overrides for loggers
// created afterwards. Empty level keeps the factory default.
func Configure(level string, scopes map[string]string) error {
	mu.Lock()
	defer mu.Unlock()

	if level != "" {
		l, err := ParseLevel(level)
		if err != nil {
			return err
		}
		factory.DefaultLogLevel = l
	}

	for scope, name := range scopes {
		l, err := ParseLevel(name)
		if err != nil {
			return fmt.Errorf("scope %s: %w", scope, err)
		}
		if factory.ScopeLevels == nil {
			factory.ScopeLevels = make(map[string]logging.LogLevel)
		}
		factory.ScopeLevels[scope] = l
	}

	return nil
}

// ParseLevel converts a config level name to a log level
func ParseLevel(name string) (logging.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "disabled", "off":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "info":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	default:
		return logging.LogLevelDisabled, fmt.Errorf("unknown log level: %q", name)
	}
}
