package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

var Logger = logrus.New()

type Options struct {
	Level  string
	Format string // json or text
	File   string
	// Output replaces stdout as the primary destination when set.
	Output io.Writer
}

// Setup configures the package logger. Output goes to stdout (or
// opts.Output) and, when File is set, to that file as well.
func Setup(opts Options) error {
	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	Logger.SetLevel(level)

	switch opts.Format {
	case "", "json":
		Logger.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format: %s", opts.Format)
	}

	out := io.Writer(os.Stdout)
	if opts.Output != nil {
		out = opts.Output
	}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return fmt.Errorf("ensure log dir: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(out, f)
	}
	Logger.SetOutput(out)
	return nil
}

// LogEvent logs structured events
func LogEvent(level logrus.Level, message string, fields logrus.Fields) {
	Logger.WithFields(fields).Log(level, message)
}
