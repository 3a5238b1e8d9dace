package session

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rebeliceyang/gridfilter/internal/table"
)

// DefaultDebounce is the quiet period after the last change event before a
// reload starts. Editors and exporters often write a file in several steps.
const DefaultDebounce = 250 * time.Millisecond

// ReloadFunc receives the filtered table after a reload, or the error that
// stopped it.
type ReloadFunc func(view *table.Table, err error)

// Watch reloads the dataset whenever its source file changes and calls fn
// with the result. It blocks until ctx is cancelled.
func (s *Session) Watch(ctx context.Context, debounce time.Duration, fn ReloadFunc) error {
	ds := s.Dataset()
	if ds == nil {
		return ErrNoDataset
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	target, err := filepath.Abs(ds.Source)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	// Watch the directory so atomic replace-by-rename is seen too.
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}
	log := s.log.With("path", target)
	log.Debugw("watching source")

	// fire stays nil until the first change arms the timer.
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warnw("watch error", "error", err)

		case <-fire:
			fire = nil
			log.Infow("source changed, reloading")
			view, err := s.Reload(ctx, nil)
			if fn != nil {
				fn(view, err)
			}
		}
	}
}
