package results

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lei/pipehost/internal/runlog"
)

// DefaultMaxDownloadBytes caps inline (data URI) downloads at 50 MiB.
// Larger archives stay on disk and must be fetched out of band.
const DefaultMaxDownloadBytes = 50 << 20

var mimeByExt = map[string]string{
	".zip":  "application/zip",
	".gz":   "application/gzip",
	".tar":  "application/x-tar",
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".json": "application/json",
}

// Downloadable is a size-bounded, base64-encoded result payload ready to be
// pushed through the session channel.
type Downloadable struct {
	Filename string `json:"name"`
	DataURI  string `json:"data"`
}

// EncodeDownloadable reads the archive and returns it as a media-typed data
// URI. Archives over maxBytes yield (nil, nil) with a warning in the run
// log: large artifacts are never pushed through the interactive channel.
// A maxBytes of zero applies the default ceiling.
func EncodeDownloadable(path string, log *runlog.Logger, maxBytes int64) (*Downloadable, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDownloadBytes
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	if info.Size() > maxBytes {
		log.Warningf("Result archive is too large (%s) for inline download. Retrieve %s from the working directory instead.",
			humanSize(info.Size()), filepath.Base(path))
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}

	mime, ok := mimeByExt[strings.ToLower(filepath.Ext(path))]
	if !ok {
		mime = "application/octet-stream"
	}

	return &Downloadable{
		Filename: filepath.Base(path),
		DataURI:  "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data),
	}, nil
}
