package job

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/marquee-app/marquee/logger"
	"github.com/marquee-app/marquee/util/common"
	"github.com/marquee-app/marquee/web/service"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 2 * time.Second

// CsvWatcher re-seeds the catalog when the seed CSV is rewritten.
type CsvWatcher struct {
	path        string
	debounce    time.Duration
	seedService service.SeedService
	watcher     *fsnotify.Watcher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	timer *time.Timer
	// onSeed is called after each re-seed; used by tests.
	onSeed func(n int, err error)
}

func NewCsvWatcher(path string, debounce time.Duration) *CsvWatcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &CsvWatcher{path: path, debounce: debounce}
}

// Start watches the directory holding the CSV, since editors and copies often replace the
// file instead of writing it in place.
func (w *CsvWatcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.watcher = watcher
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.wg.Add(1)
	go w.eventLoop()
	logger.Infof("watching %s for catalog changes", w.path)
	return nil
}

func (w *CsvWatcher) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	w.watcher.Close()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	w.wg.Wait()
}

func (w *CsvWatcher) eventLoop() {
	defer w.wg.Done()
	target := filepath.Clean(w.path)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.schedule()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warning("csv watcher error:", err)
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *CsvWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reseed)
}

func (w *CsvWatcher) reseed() {
	defer common.Recover("catalog re-seed")
	if w.ctx.Err() != nil {
		return
	}
	n, err := w.seedService.SeedMoviesFromCSV(w.ctx, w.path)
	if err != nil {
		logger.Warning("re-seed after csv change failed:", err)
	}
	if w.onSeed != nil {
		w.onSeed(n, err)
	}
}
