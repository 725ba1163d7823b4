// Package logging provides component loggers built on charmbracelet/log.
//
// Before Init is called every logger writes to io.Discard, so library code
// can log unconditionally and tests stay quiet.
//
//	if err := logging.Init(logging.Config{Level: "info", Console: true}); err != nil {
//	    return err
//	}
//	defer logging.Close()
//
//	logger := logging.Get("tune")
//	logger.Info("session started", "tasks", 12)
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
)

// Config configures the logging system.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string

	// File is an optional log file. "default" selects DefaultLogPath().
	File string

	// Console enables output on stderr.
	Console bool
}

type state struct {
	mu      sync.Mutex
	out     io.Writer
	level   log.Level
	file    *os.File
	loggers map[string]*log.Logger
}

var global = &state{
	out:     io.Discard,
	level:   log.InfoLevel,
	loggers: make(map[string]*log.Logger),
}

// DefaultLogPath returns the log file under the XDG state directory.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "autotune", "autotune.log")
}

// Init configures the output and level of every component logger,
// including loggers handed out before the call.
func Init(cfg Config) error {
	level := log.InfoLevel
	if cfg.Level != "" {
		parsed, err := log.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	global.mu.Lock()
	defer global.mu.Unlock()

	if global.file != nil {
		global.file.Close()
		global.file = nil
	}

	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, os.Stderr)
	}
	if cfg.File != "" {
		path := cfg.File
		if path == "default" {
			path = DefaultLogPath()
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating log dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		global.file = f
		writers = append(writers, f)
	}

	switch len(writers) {
	case 0:
		global.out = io.Discard
	case 1:
		global.out = writers[0]
	default:
		global.out = io.MultiWriter(writers...)
	}
	global.level = level

	for _, l := range global.loggers {
		l.SetOutput(global.out)
		l.SetLevel(level)
	}
	return nil
}

// Get returns the logger for a component, creating it on first use.
func Get(component string) *log.Logger {
	global.mu.Lock()
	defer global.mu.Unlock()
	if l, ok := global.loggers[component]; ok {
		return l
	}
	l := newLogger(component)
	global.loggers[component] = l
	return l
}

// Close releases the log file, if any. Loggers fall back to io.Discard.
func Close() error {
	global.mu.Lock()
	defer global.mu.Unlock()
	var err error
	if global.file != nil {
		err = global.file.Close()
		global.file = nil
	}
	global.out = io.Discard
	for _, l := range global.loggers {
		l.SetOutput(io.Discard)
	}
	return err
}

// must be called with global.mu held
func newLogger(component string) *log.Logger {
	return log.NewWithOptions(global.out, log.Options{
		Level:           global.level,
		Prefix:          component,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	})
}
