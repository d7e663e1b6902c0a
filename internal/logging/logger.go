package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var (
	Logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	level  = new(slog.LevelVar)
)

// Init rebuilds the process logger from LOG_FORMAT and LOG_LEVEL and makes
// it the slog default.
func Init() {
	Logger = New(os.Stdout, os.Getenv("LOG_FORMAT"))
	level.Set(ParseLevel(os.Getenv("LOG_LEVEL")))
	slog.SetDefault(Logger)
}

// New returns a logger writing to w. format "text" selects the text
// handler, anything else JSON. All loggers share the process level.
func New(w io.Writer, format string) *slog.Logger {
	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func Info(msg string, args ...any)  { Logger.Info(msg, args...) }
func Warn(msg string, args ...any)  { Logger.Warn(msg, args...) }
func Error(msg string, args ...any) { Logger.Error(msg, args...) }
func Debug(msg string, args ...any) { Logger.Debug(msg, args...) }

func Fatal(msg string, args ...any) {
	Logger.Error(msg, args...)
	os.Exit(1)
}
