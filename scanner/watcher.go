package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// RetryInterval is how often a watcher retries a root it could not watch yet
const RetryInterval = 2 * time.Second

// Watcher applies filesystem changes below a loader's root to its store until cancelled
type Watcher struct {
	loader *Loader
	logger logrus.FieldLogger
	ready  chan struct{}
	retry  time.Duration
}

// NewWatcher returns a watcher for loader
func NewWatcher(loader *Loader, logger logrus.FieldLogger) *Watcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Watcher{
		loader: loader,
		logger: logger.WithField("root", loader.Root()),
		ready:  make(chan struct{}),
		retry:  RetryInterval,
	}
}

// RetryEvery changes how often a missing root is retried
func (w *Watcher) RetryEvery(d time.Duration) *Watcher {
	w.retry = d
	return w
}

// Ready is closed once the initial watches are in place
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches until ctx is done. A root that does not exist yet is retried until it does.
// It only returns an error when no notification watcher could be created,
// failures afterwards are logged and the loop carries on.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return &WatchError{Err: err}
	}
	defer fw.Close()

	if !w.start(ctx, fw) {
		return nil
	}

	close(w.ready)
	w.logger.Info("watching")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stopped watching")
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(fw, event)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(&WatchError{Err: err}).Error("watch error")
		}
	}
}

// start watches the root, retrying until it can be watched. It reports false when ctx ended first.
func (w *Watcher) start(ctx context.Context, fw *fsnotify.Watcher) bool {
	err := w.addTree(fw, w.loader.Root())
	if err == nil {
		return true
	}

	w.logger.WithError(err).WithField("retry", w.retry.String()).Warn("cannot watch yet")

	ticker := time.NewTicker(w.retry)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if err := w.addTree(fw, w.loader.Root()); err != nil {
				continue
			}

			// the root showed up, pick up whatever is already in it
			if err := w.loader.Load(); err != nil {
				w.logger.WithError(err).Error("rescan failed")
			}
			return true
		}
	}
}

func (w *Watcher) handle(fw *fsnotify.Watcher, event fsnotify.Event) {
	path := event.Name

	w.logger.WithFields(logrus.Fields{"file": path, "op": event.Op.String()}).Debug("change")

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.unwatch(fw, path)
		w.loader.Forget(path)

	case event.Has(fsnotify.Create):
		info, err := os.Stat(path)
		if err != nil {
			return
		}

		if info.IsDir() {
			if Ignored(w.loader.Root(), path, w.loader.ignore) {
				return
			}

			if err := w.addTree(fw, path); err != nil {
				w.logger.WithError(err).Error("watch error")
			}

			// files may have landed before the watch was added
			if err := w.loader.Load(); err != nil {
				w.logger.WithError(err).Error("rescan failed")
			}
			return
		}

		if w.loader.Wants(path) {
			_ = w.loader.Reload(path)
		}

	case event.Has(fsnotify.Write):
		if w.loader.Wants(path) {
			_ = w.loader.Reload(path)
		}
	}
}

// unwatch drops the watches on path and below it. A renamed directory keeps its inode,
// so the watch must go before the new name is added or it would be shared and lost.
func (w *Watcher) unwatch(fw *fsnotify.Watcher, path string) {
	prefix := path + string(filepath.Separator)

	for _, watched := range fw.WatchList() {
		if watched != path && !strings.HasPrefix(watched, prefix) {
			continue
		}

		// the kernel may already have dropped it
		_ = fw.Remove(watched)
	}
}

// addTree watches dir and every directory below it
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return &WatchError{Path: path, Err: err}
			}
			return nil
		}

		if !d.IsDir() {
			return nil
		}

		if path != dir && Ignored(w.loader.Root(), path, w.loader.ignore) {
			return filepath.SkipDir
		}

		if err := fw.Add(path); err != nil {
			if path == dir {
				return &WatchError{Path: path, Err: err}
			}
			w.logger.WithError(&WatchError{Path: path, Err: err}).Warn("not watching")
		}

		return nil
	})
}
