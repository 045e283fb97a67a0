package sysutil

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions describes where process logs go.
type LogOptions struct {
	Level      string
	Pretty     bool   // human-readable console output instead of JSON
	File       string // optional rotating file; empty disables it
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewLogger builds the process logger and applies the global level. Logs
// always go to stdout; when opts.File is set they are also written as JSON
// to a lumberjack-rotated file. The returned closer flushes and closes the
// file sink and is safe to call when no file is configured.
func NewLogger(opts LogOptions) (zerolog.Logger, io.Closer) {
	zerolog.SetGlobalLevel(ParseLevel(opts.Level))

	var console io.Writer = os.Stdout
	if opts.Pretty {
		console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	var closer io.Closer = nopCloser{}
	out := console
	if opts.File != "" {
		rot := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(console, rot)
		closer = rot
	}

	return zerolog.New(out).With().Timestamp().Logger(), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
