// Package results collects declared output files and packages them into a
// single downloadable archive.
package results

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
	"go.uber.org/multierr"
)

// Artifact is one declared result file.
type Artifact struct {
	Path        string `json:"path"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// Exists reports whether the source file is present.
func (a Artifact) Exists() bool {
	info, err := os.Stat(a.Path)
	return err == nil && !info.IsDir()
}

// SizeBytes returns the file size, or 0 when the file is missing.
func (a Artifact) SizeBytes() int64 {
	info, err := os.Stat(a.Path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// SizeHuman returns the file size formatted for display.
func (a Artifact) SizeHuman() string {
	return humanSize(a.SizeBytes())
}

func humanSize(size int64) string {
	s := float64(size)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if s < 1024 {
			return fmt.Sprintf("%.1f %s", s, unit)
		}
		s /= 1024
	}
	return fmt.Sprintf("%.1f TB", s)
}

// ArtifactInfo is the wire representation of an artifact.
type ArtifactInfo struct {
	Path        string `json:"path"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Size        string `json:"size"`
}

// Summary describes the existing subset of a bundle.
type Summary struct {
	Name       string         `json:"name"`
	FileCount  int            `json:"file_count"`
	TotalSize  string         `json:"total_size"`
	Categories map[string]int `json:"categories"`
	Files      []ArtifactInfo `json:"files"`
}

// Bundle is a named, ordered set of artifacts rooted at a base directory.
type Bundle struct {
	Name    string
	BaseDir string
	files   []Artifact
}

// NewBundle creates a bundle. An empty baseDir means the current directory.
func NewBundle(name, baseDir string) *Bundle {
	if baseDir == "" {
		baseDir, _ = os.Getwd()
	}
	return &Bundle{Name: name, BaseDir: baseDir}
}

// AddFile registers a file, resolved against the base directory unless
// absolute. An empty category defaults to "output". Chainable.
func (b *Bundle) AddFile(path, description, category string) *Bundle {
	if category == "" {
		category = "output"
	}
	b.files = append(b.files, Artifact{
		Path:        b.resolve(path),
		Description: description,
		Category:    category,
	})
	return b
}

// AddDirectory registers every file in a directory matching the glob
// pattern. The expansion is non-recursive unless the pattern itself
// descends. Missing directories are ignored. Chainable.
func (b *Bundle) AddDirectory(path, pattern, description string) *Bundle {
	dir := b.resolve(path)
	if pattern == "" {
		pattern = "*"
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return b
	}
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || info.IsDir() {
			continue
		}
		b.files = append(b.files, Artifact{
			Path:        match,
			Description: description,
			Category:    "output",
		})
	}
	return b
}

// Artifacts returns the declared artifacts in order.
func (b *Bundle) Artifacts() []Artifact {
	return b.files
}

// Materialize writes the archive containing every existing artifact and
// returns its path. An empty outputPath defaults to {name}_results.zip under
// the base directory. A bundle with no existing sources produces no archive
// and no error.
func (b *Bundle) Materialize(outputPath string) (path string, err error) {
	if outputPath == "" {
		outputPath = filepath.Join(b.BaseDir, b.Name+"_results.zip")
	}

	existing := make([]Artifact, 0, len(b.files))
	for _, a := range b.files {
		if a.Exists() {
			existing = append(existing, a)
		}
	}
	if len(existing) == 0 {
		return "", nil
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	defer func() { err = multierr.Append(err, f.Close()) }()

	zw := zip.NewWriter(f)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestSpeed)
	})
	defer func() { err = multierr.Append(err, zw.Close()) }()

	for _, a := range existing {
		if werr := b.writeEntry(zw, a); werr != nil {
			return "", fmt.Errorf("archive %s: %w", a.Path, werr)
		}
	}
	return outputPath, nil
}

func (b *Bundle) writeEntry(zw *zip.Writer, a Artifact) error {
	src, err := os.Open(a.Path)
	if err != nil {
		return err
	}
	defer src.Close()

	w, err := zw.Create(b.arcName(a.Path))
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

// arcName returns the in-archive path: relative to the base directory, or
// just the filename for sources outside it.
func (b *Bundle) arcName(path string) string {
	rel, err := filepath.Rel(b.BaseDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

// Summary reports counts and sizes over the existing-files subset.
func (b *Bundle) Summary() Summary {
	sum := Summary{Name: b.Name, Categories: map[string]int{}}
	var total int64
	for _, a := range b.files {
		if !a.Exists() {
			continue
		}
		sum.FileCount++
		sum.Categories[a.Category]++
		total += a.SizeBytes()
		sum.Files = append(sum.Files, ArtifactInfo{
			Path:        a.Path,
			Name:        filepath.Base(a.Path),
			Description: a.Description,
			Category:    a.Category,
			Size:        a.SizeHuman(),
		})
	}
	sum.TotalSize = humanSize(total)
	return sum
}

func (b *Bundle) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(b.BaseDir, path)
}
