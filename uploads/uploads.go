// Package uploads stores node images on disk and keeps the directory in
// sync with the picture references held in the database.
package uploads

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/oxhq/varix/fault"
	"github.com/oxhq/varix/models"
)

// allowedExtensions lists the image types accepted for upload.
var allowedExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}

// ValidateExtension returns the lower-cased extension of a filename, or a
// Validation fault naming the accepted types.
func ValidateExtension(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range allowedExtensions {
		if ext == allowed {
			return ext, nil
		}
	}
	return "", fault.New(fault.Validation,
		"Ungültiger Dateityp. Erlaubt: %s", strings.Join(allowedExtensions, ", "))
}

// FileName builds the stored name for a node image:
// node_{id}_{YYYYMMDD_HHMMSS}{ext}.
func FileName(nodeID uint, ext string, now time.Time) string {
	return fmt.Sprintf("node_%d_%s%s", nodeID, now.Format("20060102_150405"), ext)
}

// Storage persists uploaded node images and maps between file names and
// serving URLs.
type Storage interface {
	Save(name string, r io.Reader) (url string, err error)
	Remove(name string) error
	Exists(url string) bool
}

// Local stores uploads in one directory, served under /uploads/.
type Local struct {
	dir string
}

// NewLocal opens (and if needed creates) the uploads directory.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &Local{dir: dir}, nil
}

// Dir returns the backing directory, for serving it over HTTP.
func (l *Local) Dir() string { return l.dir }

// Save writes the file and returns its serving URL. Content goes to a
// temp file first and is renamed into place, so a failed write never
// leaves a partial file under the served name.
func (l *Local) Save(name string, r io.Reader) (string, error) {
	name = filepath.Base(name)
	target := filepath.Join(l.dir, name)
	temp := target + ".tmp"

	f, err := os.OpenFile(temp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(temp)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(temp)
		return "", fmt.Errorf("close upload file: %w", err)
	}
	if err := os.Rename(temp, target); err != nil {
		os.Remove(temp)
		return "", fmt.Errorf("move upload into place: %w", err)
	}
	return "/uploads/" + name, nil
}

// Remove deletes a stored file. A file already gone is not an error.
func (l *Local) Remove(name string) error {
	err := os.Remove(filepath.Join(l.dir, filepath.Base(name)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Exists reports whether the file behind a picture URL is still on disk.
// URLs under /uploads/ resolve relative to the directory, anything else
// by its last path segment.
func (l *Local) Exists(url string) bool {
	relative, ok := strings.CutPrefix(url, "/uploads/")
	if !ok {
		relative = path.Base(url)
	}
	_, err := os.Stat(filepath.Join(l.dir, filepath.FromSlash(relative)))
	return err == nil
}

// ExistingOnly builds a picture filter that drops entries whose backing
// file no longer exists. Entries without a URL are dropped too.
func ExistingOnly(st Storage) func([]models.Picture) []models.Picture {
	return func(pictures []models.Picture) []models.Picture {
		kept := make([]models.Picture, 0, len(pictures))
		for _, p := range pictures {
			if p.URL == "" {
				continue
			}
			if st.Exists(p.URL) {
				kept = append(kept, p)
			}
		}
		return kept
	}
}

// SweepResult reports an orphan sweep.
type SweepResult struct {
	Scanned int      `json:"scanned"`
	Removed []string `json:"removed"`
	DryRun  bool     `json:"dry_run"`
}

// Sweep removes files no picture entry references any more. The pattern
// narrows which files are considered; a dry run only reports what would
// go.
func (l *Local) Sweep(referencedURLs []string, pattern string, dryRun bool) (*SweepResult, error) {
	if pattern == "" {
		pattern = "*"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fault.New(fault.Validation, "invalid sweep pattern %q", pattern)
	}

	referenced := make(map[string]struct{}, len(referencedURLs))
	for _, url := range referencedURLs {
		relative, ok := strings.CutPrefix(url, "/uploads/")
		if !ok {
			relative = path.Base(url)
		}
		referenced[filepath.FromSlash(relative)] = struct{}{}
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read uploads dir: %w", err)
	}

	result := &SweepResult{Removed: []string{}, DryRun: dryRun}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match, err := doublestar.Match(pattern, entry.Name())
		if err != nil {
			return nil, err
		}
		if !match {
			continue
		}
		result.Scanned++

		if _, used := referenced[entry.Name()]; used {
			continue
		}
		if !dryRun {
			if err := os.Remove(filepath.Join(l.dir, entry.Name())); err != nil {
				return nil, fmt.Errorf("remove orphan %s: %w", entry.Name(), err)
			}
		}
		result.Removed = append(result.Removed, entry.Name())
	}
	sort.Strings(result.Removed)
	return result, nil
}
