package results

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lei/pipehost/internal/runlog"
)

func TestEncodeDownloadable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run_results.zip")
	payload := []byte("PK\x03\x04fake zip contents")
	require.NoError(t, os.WriteFile(path, payload, 0o644))

	log := runlog.NewLogger(runlog.NewSink())
	d, err := EncodeDownloadable(path, log, 0)
	require.NoError(t, err)
	require.NotNil(t, d)

	assert.Equal(t, "run_results.zip", d.Filename)
	assert.True(t, strings.HasPrefix(d.DataURI, "data:application/zip;base64,"))

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(d.DataURI, "data:application/zip;base64,"))
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestEncodeDownloadableCeiling(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.zip")
	require.NoError(t, os.WriteFile(path, make([]byte, 100), 0o644))

	t.Run("exactly at ceiling passes", func(t *testing.T) {
		log := runlog.NewLogger(runlog.NewSink())
		d, err := EncodeDownloadable(path, log, 100)
		require.NoError(t, err)
		assert.NotNil(t, d)
	})

	t.Run("one byte over is rejected", func(t *testing.T) {
		sink := runlog.NewSink()
		d, err := EncodeDownloadable(path, runlog.NewLogger(sink), 99)
		require.NoError(t, err)
		assert.Nil(t, d)
		assert.Contains(t, sink.String(), "too large")
		assert.Contains(t, sink.String(), "big.zip")
	})
}

func TestEncodeDownloadableMissingFile(t *testing.T) {
	log := runlog.NewLogger(runlog.NewSink())
	d, err := EncodeDownloadable(filepath.Join(t.TempDir(), "absent.zip"), log, 0)
	assert.Error(t, err)
	assert.Nil(t, d)
}

func TestEncodeDownloadableUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob.bin")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644))

	log := runlog.NewLogger(runlog.NewSink())
	d, err := EncodeDownloadable(path, log, 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(d.DataURI, "data:application/octet-stream;base64,"))
}
