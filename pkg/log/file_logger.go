package log

import (
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// FileLogger writes events to a file in CBOR format.
// It is safe for concurrent use from multiple goroutines.
type FileLogger struct {
	w       io.Writer
	closer  io.Closer
	encoder *cbor.Encoder
	mu      sync.Mutex
	closed  bool
	count   int
}

// NewFileLogger creates a FileLogger that appends to the file at path.
// The file is created with permissions 0644 if it doesn't exist.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return NewStreamLogger(f), nil
}

// NewStreamLogger creates a FileLogger on an arbitrary writer.
// If w is also an io.Closer it is closed by Close.
func NewStreamLogger(w io.Writer) *FileLogger {
	l := &FileLogger{
		w:       w,
		encoder: NewEncoder(w),
	}
	if c, ok := w.(io.Closer); ok {
		l.closer = c
	}
	return l
}

// Log writes an event.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	// Encoding errors are dropped: the event log must not stop the device.
	if err := l.encoder.Encode(event); err == nil {
		l.count++
	}
}

// Count returns the number of events written so far.
func (l *FileLogger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Close closes the underlying file. It is safe to call more than once.
// Log calls after Close are ignored.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

var _ Logger = (*FileLogger)(nil)
