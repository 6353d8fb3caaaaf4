package config

// Watcher reloads the configuration when the config file is written, so
// Connected App edits (for example a rotated consumer secret) are picked up
// without restarting the extension.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
)

// defaultFlushDuration sets the time given to wait for multiple editor writes.
const defaultFlushDuration time.Duration = 25 * time.Millisecond

// Watcher watches a single configuration file for writes and delivers
// freshly loaded configurations on Updates. Reload failures are logged and
// skipped; the last good configuration stays in effect.
type Watcher struct {
	path          string
	base          string
	watcher       *fsnotify.Watcher
	updates       chan *Config
	flushDuration time.Duration
	log           *slog.Logger
}

// NewWatcher registers a Watcher for the config file at path. Watching is
// registered on the containing directory since editors commonly replace
// files on save.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	w := &Watcher{
		path:          filepath.Clean(path),
		base:          filepath.Base(path),
		updates:       make(chan *Config),
		flushDuration: defaultFlushDuration,
		log:           logger,
	}

	var err error
	w.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify new watcher error: %w", err)
	}
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return nil, fmt.Errorf("fsnotify add error for dir %q: %w", dir, err)
	}
	return w, nil
}

// Updates delivers each successfully reloaded configuration.
func (w *Watcher) Updates() <-chan *Config {
	return w.updates
}

// Watch blocks watching for write events, so needs to be run in a goroutine.
// It returns when the context is cancelled or the underlying watcher fails.
func (w *Watcher) Watch(ctx context.Context) error {

	// eventChan is an internal chan used for buffering editor writes.
	eventChan := make(chan bool)

	g, ctx := errgroup.WithContext(ctx)

	// This goroutine watches for *fsnotify.Watcher events.
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return errors.New("unexpected close from watcher.Errors")
				}
				return fmt.Errorf("unexpected notify error: %w", err)
			case e, ok := <-w.watcher.Events:
				if !ok {
					return errors.New("unexpected close from watcher.Events")
				}
				if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
					continue
				}
				if filepath.Base(e.Name) != w.base {
					continue
				}
				eventChan <- true
			}
		}
	})

	// Buffer double writes by editors like vim, reloading once per burst.
	g.Go(func() error {
		flush := false
		timer := time.NewTicker(w.flushDuration)
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case _, ok := <-eventChan:
				if !ok {
					return nil
				}
				flush = true
				timer.Reset(w.flushDuration)
			case <-timer.C:
				if !flush {
					continue
				}
				flush = false
				cfg, err := Load(w.path)
				if err != nil {
					w.log.Warn("config reload skipped", "path", w.path, "error", err)
					continue
				}
				w.log.Info("configuration reloaded", "path", w.path)
				select {
				case w.updates <- cfg:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	})

	err := g.Wait()
	_ = w.watcher.Close()
	return err
}
