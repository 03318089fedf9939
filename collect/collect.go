package collect

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultPattern selects .eml files regardless of case.
const DefaultPattern = "*.eml"

var (
	ErrNotFound       = errors.New("input folder does not exist")
	ErrNotADirectory  = errors.New("input path is not a directory")
	ErrNoFiles        = errors.New("no matching input files found")
	ErrPatternInvalid = errors.New("invalid file name pattern")
)

// CheckRoot verifies that root exists and is a directory.
func CheckRoot(root string) error {
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, root)
	}
	if err != nil {
		return fmt.Errorf("stat input folder: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotADirectory, root)
	}
	return nil
}

// Matcher reports whether a file name is a conversion candidate.
type Matcher struct {
	globs []glob.Glob
}

// NewMatcher compiles the given patterns. Patterns and names are compared in
// lower case; an empty list falls back to DefaultPattern.
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, pattern := range patterns {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrPatternInvalid, pattern, err)
		}
		m.globs = append(m.globs, g)
	}
	if len(m.globs) == 0 {
		m.globs = append(m.globs, glob.MustCompile(DefaultPattern))
	}
	return m, nil
}

// Match reports whether name matches any pattern.
func (m *Matcher) Match(name string) bool {
	name = strings.ToLower(name)
	for _, g := range m.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Files returns the sorted paths of all regular files below root whose name
// matches one of patterns. Only direct children are considered unless
// recursive is set. Symlinks count when their target is a regular file.
// Unreadable subdirectories are logged and skipped; only an unreadable root
// is an error.
func Files(root string, recursive bool, patterns []string) ([]string, error) {
	matcher, err := NewMatcher(patterns)
	if err != nil {
		return nil, err
	}

	var paths []string
	if recursive {
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == root || d == nil {
					return err
				}
				slog.Warn("skipping unreadable entry", "path", path, "err", err)
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if matcher.Match(d.Name()) && isRegular(path, d) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	} else {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, fmt.Errorf("read dir %s: %w", root, err)
		}
		for _, entry := range entries {
			path := filepath.Join(root, entry.Name())
			if matcher.Match(entry.Name()) && isRegular(path, entry) {
				paths = append(paths, path)
			}
		}
	}

	sort.Strings(paths)
	return paths, nil
}

func isRegular(path string, d fs.DirEntry) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
