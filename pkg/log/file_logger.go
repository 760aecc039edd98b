package log

import (
	"os"
	"sync"
)

// FileLogger appends CBOR-encoded session events to a file, one encoded
// event after another with no extra framing. Read the stream back with
// ReadFile.
type FileLogger struct {
	mu     sync.Mutex
	f      *os.File
	closed bool
}

// NewFileLogger opens (or creates, mode 0644) the event file at path for
// appending.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{f: f}, nil
}

// Log appends one event. Encoding and write errors are dropped; the event
// log must never disrupt session handling.
func (l *FileLogger) Log(event Event) {
	data, err := EncodeEvent(event)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	_, _ = l.f.Write(data)
}

// Close closes the event file. Safe to call more than once; Log calls after
// Close are dropped.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.f.Close()
}

var _ Logger = (*FileLogger)(nil)
