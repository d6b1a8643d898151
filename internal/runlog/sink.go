// Package runlog provides the append-only run log buffer and the styled
// logger handed to pipeline bodies.
package runlog

import (
	"bytes"
	"os"
	"sync"
)

// Sink is an append-only, mutex-guarded text buffer with an optional push
// callback. The active run worker is the only writer; poll handlers read
// concurrently via ReadFrom.
type Sink struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	onWrite func(string)
	mirror  bool
}

// NewSink creates an empty sink
func NewSink() *Sink {
	return &Sink{}
}

// SetOnWrite registers the push callback invoked with each raw write.
// Without a callback, writes are mirrored to standard output when mirroring
// is enabled.
func (s *Sink) SetOnWrite(fn func(string)) {
	s.mu.Lock()
	s.onWrite = fn
	s.mu.Unlock()
}

// SetMirror enables mirroring writes to stdout when no callback is set
func (s *Sink) SetMirror(on bool) {
	s.mu.Lock()
	s.mirror = on
	s.mu.Unlock()
}

// Append adds text to the buffer and fires the push callback
func (s *Sink) Append(text string) {
	s.mu.Lock()
	s.buf.WriteString(text)
	fn := s.onWrite
	mirror := s.mirror && fn == nil
	s.mu.Unlock()

	if fn != nil {
		fn(text)
	} else if mirror {
		os.Stdout.WriteString(text)
	}
}

// Write implements io.Writer
func (s *Sink) Write(p []byte) (int, error) {
	s.Append(string(p))
	return len(p), nil
}

// ReadFrom returns the buffer suffix starting at offset along with the new
// total length. Offsets at or past the end return an empty string; no offset
// in [0, Len] is an error.
func (s *Sink) ReadFrom(offset int) (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.buf.Bytes()
	if offset < 0 {
		offset = 0
	}
	if offset >= len(b) {
		return "", len(b)
	}
	return string(b[offset:]), len(b)
}

// Len returns the current buffer length
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

// String returns the full buffer contents
func (s *Sink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// Clear resets the buffer. Only legal between runs; the run lifecycle clears
// before spawning a worker, never while one may still be writing.
func (s *Sink) Clear() {
	s.mu.Lock()
	s.buf.Reset()
	s.mu.Unlock()
}
