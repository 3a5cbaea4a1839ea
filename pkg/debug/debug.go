// Package debug writes wire-level traces to a file, separate from the
// console log.
package debug

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

type Logger struct {
	mu sync.Mutex
	fh *os.File
}

// New opens the trace file for appending. An empty path disables
// tracing; every method on a nil or disabled Logger is a no-op.
func New(path string) (*Logger, error) {
	if path == "" {
		return &Logger{}, nil
	}
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return &Logger{fh: fh}, nil
}

func (l *Logger) Log(msg string) {
	if l == nil || l.fh == nil {
		return
	}
	timeStr := time.Now().Format("2006-01-02 15:04:05.000")
	_, fullPath, line, ok := runtime.Caller(1)
	if ok {
		l.Raw(fmt.Sprintf("%s %s:%d %s", timeStr, filepath.Base(fullPath), line, msg))
		return
	}
	l.Raw(timeStr + " " + msg)
}

func (l *Logger) Logf(format string, args ...any) {
	if l == nil || l.fh == nil {
		return
	}
	l.Log(fmt.Sprintf(format, args...))
}

func (l *Logger) Raw(msg string) {
	if l == nil || l.fh == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fh.WriteString(msg + "\n")
}

func (l *Logger) Close() {
	if l == nil || l.fh == nil {
		return
	}
	l.fh.Sync()
	l.fh.Close()
}
