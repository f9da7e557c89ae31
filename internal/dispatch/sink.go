package dispatch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileSink is the default MessageSink: two append-only files under a log
// directory, matching the original's `dispatch.message.log` and
// `dispatch.failure.log` — plain byte streams, not structured log lines.
type FileSink struct {
	mu      sync.Mutex
	message *os.File
	failure *os.File
}

// NewFileSink opens (creating if necessary) dispatch.message.log and
// dispatch.failure.log under dir.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("dispatch: create log dir: %w", err)
	}

	message, err := os.OpenFile(filepath.Join(dir, "dispatch.message.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("dispatch: open message log: %w", err)
	}
	failure, err := os.OpenFile(filepath.Join(dir, "dispatch.failure.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		message.Close()
		return nil, fmt.Errorf("dispatch: open failure log: %w", err)
	}

	return &FileSink{message: message, failure: failure}, nil
}

// LogMessage implements MessageSink.
func (s *FileSink) LogMessage(format string, args ...any) {
	s.writeLine(s.message, format, args...)
}

// LogFailure implements MessageSink.
func (s *FileSink) LogFailure(format string, args ...any) {
	s.writeLine(s.failure, format, args...)
}

func (s *FileSink) writeLine(f *os.File, format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(f, "%s %s\n", time.Now().Format(time.RFC3339), fmt.Sprintf(format, args...))
}

// Close closes both underlying files.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err1 := s.message.Close()
	err2 := s.failure.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
