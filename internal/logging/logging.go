// Package logging builds the application loggers. Log lines go to a
// size-rotated file under the data directory and, for interactive
// commands, to stderr as well.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls log destinations and rotation.
type Options struct {
	// File is the rotated log file path. Empty disables file logging.
	File string

	// MaxSizeMB rotates the file when it exceeds this size (default: 10).
	MaxSizeMB int

	// MaxBackups caps retained rotated files (default: 3).
	MaxBackups int

	// MaxAgeDays drops rotated files older than this (default: 30).
	MaxAgeDays int

	// Stderr mirrors log lines to stderr.
	Stderr bool
}

// New returns a logger factory writing to the configured destinations.
// Call the returned function once per component with its prefix, e.g.
// "[engine] ".
func New(opts Options) func(prefix string) *log.Logger {
	var writers []io.Writer

	if opts.File != "" {
		if opts.MaxSizeMB <= 0 {
			opts.MaxSizeMB = 10
		}
		if opts.MaxBackups <= 0 {
			opts.MaxBackups = 3
		}
		if opts.MaxAgeDays <= 0 {
			opts.MaxAgeDays = 30
		}
		_ = os.MkdirAll(filepath.Dir(opts.File), 0755)
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		})
	}
	if opts.Stderr {
		writers = append(writers, os.Stderr)
	}

	var out io.Writer
	switch len(writers) {
	case 0:
		out = io.Discard
	case 1:
		out = writers[0]
	default:
		out = io.MultiWriter(writers...)
	}

	return func(prefix string) *log.Logger {
		return log.New(out, prefix, log.LstdFlags)
	}
}
