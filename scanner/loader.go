package scanner

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/zerbitx/lyre/definition"
)

type (
	// Store receives the definitions found on disk
	Store interface {
		Replace(source string, defs []*definition.Definition)
		RemoveSource(source string)
	}

	// Loader keeps a Store in sync with the definition files below a root directory
	Loader struct {
		root   string
		suffix string
		ignore []string
		store  Store
		files  *FileSet
		logger logrus.FieldLogger
	}

	config struct {
		ignore []string
		logger logrus.FieldLogger
	}

	// Option is a function that can modify a default config
	Option func(c *config)
)

// WithLogger overrides the default logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithIgnore skips files and directories matching any of the globs, relative to the root
func WithIgnore(patterns ...string) Option {
	return func(c *config) {
		c.ignore = append(c.ignore, patterns...)
	}
}

// NewLoader returns a loader for files ending in suffix below root
func NewLoader(root, suffix string, store Store, options ...Option) *Loader {
	c := &config{logger: logrus.StandardLogger()}

	for _, applyOption := range options {
		applyOption(c)
	}

	return &Loader{
		root:   filepath.Clean(root),
		suffix: suffix,
		ignore: c.ignore,
		store:  store,
		files:  NewFileSet(),
		logger: c.logger.WithField("root", root),
	}
}

// Root returns the scanned directory
func (l *Loader) Root() string {
	return l.root
}

// Files returns the source file set
func (l *Loader) Files() *FileSet {
	return l.files
}

// Wants reports whether path looks like a definition file this loader is responsible for
func (l *Loader) Wants(path string) bool {
	return strings.HasSuffix(filepath.Base(path), l.suffix) && !Ignored(l.root, path, l.ignore)
}

// Load scans the whole root. New and modified files are parsed, files that disappeared since
// the previous scan are removed from the store. A bad file is logged and skipped.
func (l *Loader) Load() error {
	l.logger.WithField("suffix", l.suffix).Info("scanning")

	paths, err := Discover(l.root, l.suffix, l.ignore)
	if err != nil {
		return err
	}

	found := make(map[string]bool, len(paths))
	for _, path := range paths {
		found[path] = true

		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		if _, changed := l.files.Changed(path, info.ModTime()); !changed {
			continue
		}

		// errors are logged by Reload, the rest of the scan goes on
		_ = l.Reload(path)
	}

	for _, path := range l.files.Paths() {
		if !found[path] {
			l.Forget(path)
		}
	}

	l.logger.WithField("files", l.files.Len()).Info("scanned")

	return nil
}

// Reload parses one file and replaces its definitions in the store.
// On failure whatever the file registered before stays in place.
func (l *Loader) Reload(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		l.logger.WithError(err).WithField("file", path).Warn("failed to stat")
		return err
	}

	known := l.files.Track(path, info.ModTime())

	defs, err := definition.ParseFile(path)
	if err != nil {
		l.logger.WithError(err).WithField("file", path).Error("skipping definition file")
		return err
	}

	l.store.Replace(path, defs)

	for _, def := range defs {
		l.logger.WithFields(logrus.Fields{
			"file":   path,
			"name":   def.Name,
			"path":   def.Path,
			"method": def.Method,
		}).Debug("wiring")
	}

	action := "loaded"
	if known {
		action = "reloaded"
	}

	l.logger.WithFields(logrus.Fields{"file": path, "endpoints": len(defs)}).Info(action)

	return nil
}

// Forget drops path, or every tracked file below it when it was a directory, and returns how many files went away
func (l *Loader) Forget(path string) int {
	removed := l.files.ForgetUnder(path)

	if l.files.Forget(path) {
		removed = append(removed, path)
	}

	for _, file := range removed {
		l.store.RemoveSource(file)
		l.logger.WithField("file", file).Info("removed")
	}

	return len(removed)
}
