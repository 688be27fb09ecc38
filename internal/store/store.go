// Package store manages generated artifacts on disk: per-job output files,
// temporary uploads, and safe resolution of download requests.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"forged/internal/common/fsutil"
)

// Store owns the output and temp directories.
type Store struct {
	outputDir string
	tempDir   string
	log       zerolog.Logger
}

// New creates both directories if needed and returns a store rooted at their
// absolute paths.
func New(outputDir, tempDir string, log zerolog.Logger) (*Store, error) {
	out, err := fsutil.EnsureDir(outputDir)
	if err != nil {
		return nil, fmt.Errorf("output dir: %w", err)
	}
	tmp, err := fsutil.EnsureDir(tempDir)
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	return &Store{outputDir: out, tempDir: tmp, log: log}, nil
}

// OutputDir returns the absolute output root.
func (s *Store) OutputDir() string { return s.outputDir }

// NewJobID returns a short unique job identifier.
func (s *Store) NewJobID() string {
	return uuid.NewString()[:8]
}

// OutputFile returns the path for a flat artifact like "<job>.png".
func (s *Store) OutputFile(name string) string {
	return filepath.Join(s.outputDir, name)
}

// JobDir creates and returns a per-job output directory.
func (s *Store) JobDir(jobID string) (string, error) {
	return fsutil.EnsureDir(filepath.Join(s.outputDir, jobID))
}

// TempFile returns a path for a temporary file owned by one job.
func (s *Store) TempFile(jobID, suffix string) string {
	return filepath.Join(s.tempDir, jobID+suffix)
}

// Resolve maps a download request to a file inside the output directory.
// It checks the nested per-job location first, then the flat layout used by
// single-stage jobs, and rejects anything that escapes the output root.
func (s *Store) Resolve(jobID, filename string) (string, error) {
	if !safeComponent(jobID) || !safeComponent(filename) {
		return "", fmt.Errorf("invalid path")
	}
	candidates := []string{
		filepath.Join(s.outputDir, jobID, filename),
		filepath.Join(s.outputDir, filename),
	}
	for _, p := range candidates {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		if !strings.HasPrefix(abs, s.outputDir+string(filepath.Separator)) {
			return "", fmt.Errorf("access denied")
		}
		if fsutil.PathExists(abs) {
			return abs, nil
		}
	}
	return "", os.ErrNotExist
}

// CleanTemp removes temp entries older than maxAge and reports how many were
// deleted. maxAge=0 removes everything.
func (s *Store) CleanTemp(maxAge time.Duration) int {
	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		return 0
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.tempDir, e.Name())); err == nil {
			removed++
		}
	}
	if removed > 0 {
		s.log.Info().Int("removed", removed).Msg("cleaned temp files")
	}
	return removed
}

// safeComponent rejects path separators and parent references in one
// user-supplied path segment.
func safeComponent(c string) bool {
	if c == "" || c == "." || c == ".." {
		return false
	}
	if strings.ContainsAny(c, `/\`) {
		return false
	}
	return !strings.Contains(c, "..")
}
