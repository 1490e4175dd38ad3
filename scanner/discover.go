package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

type (
	// ScanError reports a scan root that cannot be scanned
	ScanError struct {
		Root string
		Err  error
	}

	// WatchError reports a failure of the filesystem notification subsystem
	WatchError struct {
		Path string
		Err  error
	}
)

// Error implements the error interface
func (se *ScanError) Error() string {
	return fmt.Sprintf("cannot scan %s: %v", se.Root, se.Err)
}

func (se *ScanError) Unwrap() error {
	return se.Err
}

// Error implements the error interface
func (we *WatchError) Error() string {
	if we.Path == "" {
		return fmt.Sprintf("watch failed: %v", we.Err)
	}

	return fmt.Sprintf("watch %s failed: %v", we.Path, we.Err)
}

func (we *WatchError) Unwrap() error {
	return we.Err
}

// Discover walks root at any depth and returns the files whose name ends with suffix, sorted.
// Paths matching one of the ignore globs, relative to root, are skipped along with
// everything below them. Symlinked directories are followed once per real path.
func Discover(root, suffix string, ignore []string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, &ScanError{Root: root, Err: err}
	}

	if !info.IsDir() {
		return nil, &ScanError{Root: root, Err: fmt.Errorf("not a directory")}
	}

	for _, pattern := range ignore {
		if !doublestar.ValidatePattern(pattern) {
			return nil, &ScanError{Root: root, Err: fmt.Errorf("invalid ignore pattern %q", pattern)}
		}
	}

	w := walker{
		root:    root,
		suffix:  suffix,
		ignore:  ignore,
		visited: map[string]bool{},
	}

	if err := w.walk(root); err != nil {
		return nil, &ScanError{Root: root, Err: err}
	}

	sort.Strings(w.files)

	return w.files, nil
}

type walker struct {
	root    string
	suffix  string
	ignore  []string
	visited map[string]bool
	files   []string
}

func (w *walker) walk(dir string) error {
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return w.unreadable(dir, err)
	}

	if w.visited[resolved] {
		return nil
	}
	w.visited[resolved] = true

	entries, err := os.ReadDir(dir)
	if err != nil {
		return w.unreadable(dir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		if w.ignored(path) {
			continue
		}

		// follow symlinks to find out what they point at
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		switch {
		case info.IsDir():
			if err := w.walk(path); err != nil {
				return err
			}
		case info.Mode().IsRegular() && strings.HasSuffix(entry.Name(), w.suffix):
			w.files = append(w.files, path)
		}
	}

	return nil
}

// unreadable fails the scan for the root only, anything below it is best effort
func (w *walker) unreadable(dir string, err error) error {
	if dir == w.root {
		return err
	}

	return nil
}

func (w *walker) ignored(path string) bool {
	return Ignored(w.root, path, w.ignore)
}

// Ignored reports whether path, relative to root, matches one of the ignore globs
func Ignored(root, path string, ignore []string) bool {
	if len(ignore) == 0 {
		return false
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)

	for _, pattern := range ignore {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}

	return false
}
