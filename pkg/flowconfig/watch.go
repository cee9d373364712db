package flowconfig

import (
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Config from disk whenever the underlying file
// changes, debounced by ReloadInterval, and hands each successfully
// parsed Config to every registered listener.
type Watcher struct {
	path      string
	logger    *log.Logger
	watcher   *fsnotify.Watcher
	mu        sync.RWMutex
	current   Config
	listeners []func(Config)
	stop      chan struct{}
	done      chan struct{}
}

// NewWatcher loads path once and arms an fsnotify watch on its parent
// directory (watching the directory, not the file, survives editors
// that replace the file via rename-into-place).
func NewWatcher(path string, logger *log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "flowcore: ", log.LstdFlags)
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:    path,
		logger:  logger,
		watcher: fw,
		current: cfg,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Current returns the most recently loaded Config.
func (w *Watcher) Current() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers fn to be called (from the watcher goroutine)
// whenever a reload succeeds. fn is never called concurrently.
func (w *Watcher) OnChange(fn func(Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Close stops the watch goroutine and releases the fsnotify handle.
func (w *Watcher) Close() error {
	close(w.stop)
	<-w.done
	return w.watcher.Close()
}

func (w *Watcher) run() {
	defer close(w.done)
	var debounce *time.Timer
	var debounceC <-chan time.Time

	for {
		select {
		case <-w.stop:
			if debounce != nil {
				debounce.Stop()
			}
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(ReloadInterval)
			} else {
				if !debounce.Stop() {
					select {
					case <-debounce.C:
					default:
					}
				}
				debounce.Reset(ReloadInterval)
			}
			debounceC = debounce.C
		case <-debounceC:
			debounceC = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("config watch error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Printf("config reload failed, keeping previous config: %v", err)
		return
	}

	w.mu.Lock()
	w.current = cfg
	listeners := append([]func(Config){}, w.listeners...)
	w.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
}
