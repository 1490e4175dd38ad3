package scanner

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileSet is the set of definition files currently believed to exist, with their last seen modification time
type FileSet struct {
	mu    sync.RWMutex
	files map[string]time.Time
}

// NewFileSet returns an empty set
func NewFileSet() *FileSet {
	return &FileSet{files: map[string]time.Time{}}
}

// Track records path with its modification time and reports whether it was already known
func (fs *FileSet) Track(path string, modTime time.Time) (known bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, known = fs.files[path]
	fs.files[path] = modTime

	return known
}

// Changed reports whether path is known and whether modTime differs from the recorded one
func (fs *FileSet) Changed(path string, modTime time.Time) (known, changed bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	seen, known := fs.files[path]

	return known, !known || !seen.Equal(modTime)
}

// Forget removes path and reports whether it was tracked
func (fs *FileSet) Forget(path string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	_, known := fs.files[path]
	delete(fs.files, path)

	return known
}

// ForgetUnder removes every tracked file below dir and returns them sorted
func (fs *FileSet) ForgetUnder(dir string) []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	prefix := strings.TrimSuffix(dir, string(filepath.Separator)) + string(filepath.Separator)

	var removed []string
	for path := range fs.files {
		if strings.HasPrefix(path, prefix) {
			removed = append(removed, path)
			delete(fs.files, path)
		}
	}
	sort.Strings(removed)

	return removed
}

// Paths returns the tracked paths sorted
func (fs *FileSet) Paths() []string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	paths := make([]string, 0, len(fs.files))
	for path := range fs.files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	return paths
}

// Len returns the number of tracked files
func (fs *FileSet) Len() int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	return len(fs.files)
}
