package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultRotateMaxBytes is the rotation threshold for the JSONL sink.
const DefaultRotateMaxBytes = 100 * 1024 * 1024

// JSONLSink appends entries as one JSON object per line. Files are rotated in
// place once they exceed the size threshold; the application never deletes
// rotated files.
type JSONLSink struct {
	path           string
	rotateMaxBytes int64

	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	size int64
}

// NewJSONLSink opens (or creates) the audit log at path.
func NewJSONLSink(path string, rotateMaxBytes int64) (*JSONLSink, error) {
	if path == "" {
		return nil, fmt.Errorf("audit log path is required")
	}
	if rotateMaxBytes <= 0 {
		rotateMaxBytes = DefaultRotateMaxBytes
	}

	s := &JSONLSink{path: path, rotateMaxBytes: rotateMaxBytes}
	if err := s.openLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// Append writes one entry and flushes. Each line is self-contained, so
// interleaved writers never corrupt meaning.
func (s *JSONLSink) Append(e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding audit entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.rotateIfNeededLocked(int64(len(b)) + 1); err != nil {
		return err
	}
	if s.w == nil {
		return fmt.Errorf("audit sink is closed")
	}

	n, err := s.w.Write(append(b, '\n'))
	if err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}
	s.size += int64(n)
	return s.w.Flush()
}

// Close flushes and closes the underlying file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w != nil {
		_ = s.w.Flush()
		s.w = nil
	}
	if s.f != nil {
		err := s.f.Close()
		s.f = nil
		s.size = 0
		return err
	}
	return nil
}

func (s *JSONLSink) openLocked() error {
	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating audit dir: %w", err)
		}
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}

	if st, err := f.Stat(); err == nil {
		s.size = st.Size()
	}
	s.f = f
	s.w = bufio.NewWriterSize(f, 64*1024)
	return nil
}

func (s *JSONLSink) rotateIfNeededLocked(addBytes int64) error {
	if s.size+addBytes <= s.rotateMaxBytes {
		return nil
	}
	if s.w != nil {
		_ = s.w.Flush()
	}
	if s.f != nil {
		_ = s.f.Close()
		s.f = nil
		s.w = nil
	}

	rotated := fmt.Sprintf("%s.%s", s.path, time.Now().UTC().Format("20060102-150405"))
	if err := os.Rename(s.path, rotated); err != nil {
		return fmt.Errorf("rotating audit log: %w", err)
	}

	s.size = 0
	return s.openLocked()
}
