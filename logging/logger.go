// Package logging holds the process-wide structured logger used by every heapdb component.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"mit.edu/dsg/heapdb/common"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Config selects the verbosity, format ("text" or "json") and destination of the logger.
// A nil Output writes to stderr.
type Config struct {
	Level  Level
	Format string
	Output io.Writer
}

var (
	mu     sync.RWMutex
	logger = newLogger(Config{})
)

func (l Level) slogLevel() slog.Level {
	switch Level(strings.ToUpper(string(l))) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

func newLogger(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level.slogLevel()}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

// Init replaces the global logger. It may be called again to reconfigure.
func Init(cfg Config) {
	l := newLogger(cfg)
	mu.Lock()
	logger = l
	mu.Unlock()
}

// Get returns the current global logger.
func Get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func WithTxn(tid common.TransactionID) *slog.Logger {
	return Get().With(slog.Uint64("txn", uint64(tid)))
}

func WithTable(id common.TableID) *slog.Logger {
	return Get().With(slog.Uint64("table", uint64(id)))
}

func WithPage(pid common.PageID) *slog.Logger {
	return Get().With(slog.Uint64("table", uint64(pid.Table)), slog.Int("page", int(pid.PageNum)))
}
