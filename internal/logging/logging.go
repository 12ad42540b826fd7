// Package logging builds the process log writer and per-component loggers.
//
// Components take a *log.Logger and prefix their lines with "[component] ".
// When a log file is configured, output goes through a size-rotated
// lumberjack writer instead of stderr.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where logs go.
type Config struct {
	// File is the log file path. Empty logs to stderr.
	File string

	// MaxSizeMB is the size at which the file is rotated (default: 100).
	MaxSizeMB int

	// MaxBackups is the number of rotated files kept (default: 3).
	MaxBackups int

	// MaxAgeDays removes rotated files older than this many days (0 keeps all).
	MaxAgeDays int

	// Compress gzips rotated files.
	Compress bool
}

// Output is the root log writer.
type Output struct {
	w      io.Writer
	closer io.Closer
}

// Open returns the writer described by cfg.
func Open(cfg Config) *Output {
	if cfg.File == "" {
		return &Output{w: os.Stderr}
	}

	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 100
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 3
	}

	lj := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return &Output{w: lj, closer: lj}
}

// Writer returns the underlying writer.
func (o *Output) Writer() io.Writer {
	return o.w
}

// Logger returns a logger whose lines start with "[component] ".
func (o *Output) Logger(component string) *log.Logger {
	return log.New(o.w, "["+component+"] ", log.LstdFlags)
}

// Rotate forces a rotation of the log file. It is a no-op for stderr.
func (o *Output) Rotate() error {
	if lj, ok := o.closer.(*lumberjack.Logger); ok {
		return lj.Rotate()
	}
	return nil
}

// Close flushes and closes the log file, if any.
func (o *Output) Close() error {
	if o.closer == nil {
		return nil
	}
	return o.closer.Close()
}
