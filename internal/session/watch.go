package session

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports changes to the session file made by other processes, such
// as a logout from a second terminal. Only the file backend can be watched.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	events  chan struct{}
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	logger  *log.Logger
}

// NewWatcher watches the directory holding path. The directory is created if
// needed so the watch can be installed before the first login.
func NewWatcher(path string, logger *log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[session] ", log.LstdFlags)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w := &Watcher{
		watcher: fw,
		path:    filepath.Clean(path),
		events:  make(chan struct{}, 1),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
		logger:  logger,
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Changes emits once per burst of writes to the session file. Readers should
// re-read the store on each value.
func (w *Watcher) Changes() <-chan struct{} { return w.events }

// Errors emits watch errors.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Close stops the watcher and waits for the event goroutine to exit.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Printf("Session file changed: %s", ev.Op)
			// coalesce, a pending notification already covers this one
			select {
			case w.events <- struct{}{}:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
				w.logger.Printf("WARNING: dropped watcher error: %v", err)
			}
		}
	}
}
