package runlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkAppendAndRead(t *testing.T) {
	s := NewSink()
	assert.Equal(t, 0, s.Len())

	s.Append("hello ")
	s.Append("world")
	assert.Equal(t, "hello world", s.String())
	assert.Equal(t, 11, s.Len())
}

func TestSinkReadFrom(t *testing.T) {
	s := NewSink()
	s.Append("0123456789")

	tests := []struct {
		name       string
		offset     int
		want       string
		wantOffset int
	}{
		{"from start", 0, "0123456789", 10},
		{"mid buffer", 4, "456789", 10},
		{"at end", 10, "", 10},
		{"past end", 99, "", 10},
		{"negative clamps to start", -5, "0123456789", 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, newOffset := s.ReadFrom(tt.offset)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOffset, newOffset)
		})
	}
}

func TestSinkOffsetsCompose(t *testing.T) {
	s := NewSink()
	offset := 0
	var collected string

	for _, chunk := range []string{"alpha\n", "beta\n", "gamma\n"} {
		s.Append(chunk)
		part, newOffset := s.ReadFrom(offset)
		collected += part
		offset = newOffset
	}
	assert.Equal(t, s.String(), collected)

	// a stale offset re-reads only the tail
	tail, _ := s.ReadFrom(6)
	assert.Equal(t, "beta\ngamma\n", tail)
}

func TestSinkOnWrite(t *testing.T) {
	s := NewSink()
	var pushed []string
	s.SetOnWrite(func(text string) {
		pushed = append(pushed, text)
	})

	s.Append("one")
	s.Append("two")
	require.Equal(t, []string{"one", "two"}, pushed)
	// pushes do not consume the buffer
	assert.Equal(t, "onetwo", s.String())
}

func TestSinkWriter(t *testing.T) {
	s := NewSink()
	n, err := s.Write([]byte("raw bytes"))
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.Equal(t, "raw bytes", s.String())
}

func TestSinkClear(t *testing.T) {
	s := NewSink()
	s.Append("stale run output")
	s.Clear()
	assert.Equal(t, 0, s.Len())
	got, offset := s.ReadFrom(0)
	assert.Empty(t, got)
	assert.Equal(t, 0, offset)
}
