package plates

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/winterbear26/kiwiplates-watcher/pkg/logx"
)

// Watch blocks until ctx is done, invoking onChange after the plate list
// file is written, created, renamed or removed. Events are debounced so
// editors that write in several steps trigger a single callback.
//
// The parent directory is watched, not the file itself, so atomic
// replace-by-rename (the common editor save strategy) is still seen.
func Watch(ctx context.Context, path string, log logx.Logger, onChange func()) error {
	dir := filepath.Dir(path)
	file := filepath.Base(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, onChange)
	}

	log.Debug("watching plate list", logx.String("path", path))
	for {
		select {
		case <-ctx.Done():
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timerMu.Unlock()
			return nil
		case ev := <-w.Events:
			if ev.Name == filepath.Join(dir, file) {
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
					debounce()
				}
			}
		case err := <-w.Errors:
			log.Debug("plate list watcher error", logx.Err(err))
		}
	}
}
