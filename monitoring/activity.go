package monitoring

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tejiriaustin/tiffwatch/logger"
)

// ActivityTracker records the last write or create event seen for each file
// in a directory. The scanner uses it to tell files still being written from
// settled ones.
type ActivityTracker struct {
	watcher *fsnotify.Watcher
	logger  *logger.Logger
	now     func() time.Time
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	mu   sync.RWMutex
	last map[string]time.Time
}

func NewActivityTracker(dir string, log *logger.Logger) (*ActivityTracker, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("error creating watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("error watching %s: %w", dir, err)
	}
	if log == nil {
		log = logger.NewNop()
	}

	t := &ActivityTracker{
		watcher: watcher,
		logger:  log,
		now:     time.Now,
		done:    make(chan struct{}),
		last:    make(map[string]time.Time),
	}

	t.wg.Add(1)
	go t.watch()
	return t, nil
}

// LastActivity returns when name (a base file name) was last written.
func (t *ActivityTracker) LastActivity(name string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ts, ok := t.last[name]
	return ts, ok
}

func (t *ActivityTracker) Close() error {
	var err error
	t.once.Do(func() {
		close(t.done)
		err = t.watcher.Close()
		t.wg.Wait()
	})
	return err
}

func (t *ActivityTracker) watch() {
	defer t.wg.Done()
	for {
		select {
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			t.handleEvent(event)
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			t.logger.Warnw("File watcher error", "error", err)
		case <-t.done:
			return
		}
	}
}

func (t *ActivityTracker) handleEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)

	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		t.last[name] = t.now()
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		delete(t.last, name)
	}
}
