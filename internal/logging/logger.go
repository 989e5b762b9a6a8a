package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// New creates a JSON slog logger configured at the provided level. If the
// level string is invalid it defaults to info.
func New(level string) *slog.Logger {
	return newLogger(os.Stdout, level)
}

// NewWithFile behaves like New but also writes to a rotating log file. An empty
// path disables the file sink.
func NewWithFile(level, path string) *slog.Logger {
	if path == "" {
		return New(level)
	}
	return newLogger(io.MultiWriter(os.Stdout, RotatingFile(path)), level)
}

// NewWriter creates a JSON logger writing to w.
func NewWriter(w io.Writer, level string) *slog.Logger {
	return newLogger(w, level)
}

// RotatingFile returns a size-rotated writer for the given log file.
func RotatingFile(path string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   filepath.Clean(path),
		MaxSize:    100,
		MaxBackups: 14,
		MaxAge:     14,
		Compress:   true,
		LocalTime:  true,
	}
}

// Discard returns a logger that drops all output. Useful for tests.
func Discard() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

func newLogger(w io.Writer, level string) *slog.Logger {
	lvl := new(slog.LevelVar)
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.Set(slog.LevelInfo)
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
