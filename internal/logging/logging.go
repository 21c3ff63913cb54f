// Package logging builds the diagnostic logger. Output goes to a rotating
// file so it never mixes with the interactive list.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Makepad-fr/tada/internal/config"
)

// Logger owns the rotating file behind the *log.Logger values it hands out.
type Logger struct {
	out io.Writer
	rot *lumberjack.Logger
}

// New opens the log file described by cfg.
func New(cfg config.Log) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o700); err != nil {
		return nil, err
	}
	rot := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	}
	var out io.Writer = rot
	if cfg.Verbose {
		out = io.MultiWriter(rot, os.Stderr)
	}
	return &Logger{out: out, rot: rot}, nil
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return &Logger{out: io.Discard}
}

// For returns a logger tagged with component, e.g. "[cache] ".
func (l *Logger) For(component string) *log.Logger {
	return log.New(l.out, "["+component+"] ", log.LstdFlags)
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	if l.rot == nil {
		return nil
	}
	return l.rot.Close()
}
