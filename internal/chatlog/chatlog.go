// Package chatlog appends received chat messages to a flat text file, one
// message per line.
package chatlog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type Log struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

// Open opens path for appending, creating it and its directory if needed.
func Open(path string) (*Log, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("chat log path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create chat log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open chat log: %w", err)
	}
	return &Log{f: f, w: bufio.NewWriter(f)}, nil
}

// Append writes msg as one line and flushes it. Line breaks inside msg are
// replaced by spaces. A nil Log discards.
func (l *Log) Append(msg string) error {
	if l == nil {
		return nil
	}
	line := strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(msg)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return os.ErrClosed
	}
	if _, err := l.w.WriteString(line + "\n"); err != nil {
		return err
	}
	return l.w.Flush()
}

func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	ferr := l.w.Flush()
	cerr := l.f.Close()
	l.f = nil
	if ferr != nil {
		return ferr
	}
	return cerr
}
