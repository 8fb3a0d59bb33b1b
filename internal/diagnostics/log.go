// Package diagnostics provides a size-bounded append-only log file. Writes
// are queued to a single background goroutine so callers never block on disk
// and writes land in the order issued; when the file grows past the byte
// limit it is rewritten keeping only the trailing lines.
package diagnostics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMaxBytes is the rewrite threshold.
	DefaultMaxBytes = 1 << 20
	// DefaultMaxLines is how many trailing lines survive a rewrite.
	DefaultMaxLines = 500

	writeQueueSize = 256
)

// Log is a bounded diagnostic log. Append is non-blocking; Close drains the
// pending writes.
type Log struct {
	path     string
	maxBytes int64
	maxLines int
	logger   *zap.Logger

	writes chan string
	done   chan struct{}

	nowFn func() time.Time
}

// NewLog opens a diagnostic log at path and starts its writer goroutine.
func NewLog(path string, maxBytes int64, maxLines int, logger *zap.Logger) *Log {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	if logger == nil {
		logger = zap.L()
	}
	l := &Log{
		path:     path,
		maxBytes: maxBytes,
		maxLines: maxLines,
		logger:   logger,
		writes:   make(chan string, writeQueueSize),
		done:     make(chan struct{}),
		nowFn:    time.Now,
	}
	go l.run()
	return l
}

// Append queues one line for writing. A full queue drops the line rather than
// blocking the caller; diagnostics are best-effort.
func (l *Log) Append(message string) {
	line := fmt.Sprintf("[%s] %s\n", l.nowFn().UTC().Format(time.RFC3339), message)
	select {
	case l.writes <- line:
	default:
		l.logger.Warn("diagnostic log queue full, dropping line")
	}
}

// ReadAll returns the current log contents. It reads the file directly, so a
// line still sitting in the write queue may not yet appear.
func (l *Log) ReadAll(_ context.Context) (string, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read diagnostic log: %w", err)
	}
	return string(data), nil
}

// Close stops the writer after draining queued lines.
func (l *Log) Close() {
	close(l.writes)
	<-l.done
}

func (l *Log) run() {
	defer close(l.done)
	for line := range l.writes {
		if err := l.write(line); err != nil {
			l.logger.Error("diagnostic log write", zap.Error(err))
		}
	}
}

func (l *Log) write(line string) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if info.Size() > l.maxBytes {
		return l.trim()
	}
	return nil
}

// trim rewrites the file keeping only the trailing maxLines lines.
func (l *Log) trim() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > l.maxLines {
		lines = lines[len(lines)-l.maxLines:]
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), "diagnostic-*")
	if err != nil {
		return err
	}
	if _, err := tmp.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), l.path)
}
