package logger

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var (
	mu      sync.Mutex
	std     *slog.Logger
	logFile *os.File
	level   = new(slog.LevelVar)
)

// DailyFileName returns the log file for the calendar day of t, e.g.
// logs/MYSQL_to_BQ_2025-03-07.log.
func DailyFileName(dir, prefix string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.log", prefix, t.Format("2006-01-02")))
}

// ParseLevel maps a LOG_LEVEL string to an slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// InitLogger appends to filename and mirrors every line to stdout.
func InitLogger(filename string, lvl slog.Level) error {
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if logFile != nil {
		logFile.Close()
	}
	logFile = f

	level.Set(lvl)
	std = slog.New(slog.NewTextHandler(io.MultiWriter(os.Stdout, logFile), &slog.HandlerOptions{Level: level}))
	return nil
}

// SetOutput routes all logging to w. Used by tests and the scheduler.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	std = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	std = nil
}

// L returns the current logger, falling back to stdout.
func L() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if std == nil {
		std = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return std
}

type lineWriter struct{}

func (lineWriter) Write(p []byte) (int, error) {
	L().Info(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// StdLogger adapts the package logger for libraries that want a *log.Logger.
// It follows InitLogger, so it survives the daily file being reopened.
func StdLogger() *log.Logger {
	return log.New(lineWriter{}, "", 0)
}

func Info(format string, v ...interface{}) {
	L().Info(fmt.Sprintf(format, v...))
}

func Infof(format string, v ...interface{}) {
	Info(format, v...)
}

func Error(format string, v ...interface{}) {
	L().Error(fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...interface{}) {
	Error(format, v...)
}

func Warn(format string, v ...interface{}) {
	L().Warn(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...interface{}) {
	Warn(format, v...)
}

func Debugf(format string, v ...interface{}) {
	L().Debug(fmt.Sprintf(format, v...))
}
