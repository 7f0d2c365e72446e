package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/grantor/pkg/observability"
)

// PolicyWatcher reloads a policy file when it changes on disk
type PolicyWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	apply   func(*Policy)
	logger  *observability.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// WatchPolicy calls apply with every valid revision of the policy file at
// path until ctx is done or the watcher is closed. Invalid revisions are
// logged and skipped. The parent directory is watched so that editors
// replacing the file are noticed.
func WatchPolicy(ctx context.Context, path string, apply func(*Policy), logger *observability.Logger) (*PolicyWatcher, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve policy path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch policy directory: %w", err)
	}

	w := &PolicyWatcher{
		watcher: watcher,
		path:    abs,
		apply:   apply,
		logger:  logger.WithField("policy", abs),
		done:    make(chan struct{}),
	}
	go w.run(ctx)
	return w, nil
}

func (w *PolicyWatcher) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("policy watcher error")
		}
	}
}

func (w *PolicyWatcher) reload() {
	defer observability.RecoverPanic(w.logger, "policy reload")

	policy, err := LoadPolicy(w.path)
	if err != nil {
		w.logger.WithError(err).Warn("ignoring invalid policy revision")
		return
	}
	w.logger.Info("policy reloaded")
	w.apply(policy)
}

// Close stops watching and waits for the watch loop to exit
func (w *PolicyWatcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.watcher.Close()
	})
	<-w.done
	return err
}
