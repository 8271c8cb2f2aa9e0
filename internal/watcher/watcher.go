// Package watcher feeds new transcripts in the data directory to a handler.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDelay gives a writer time to finish a file before it is read.
const DefaultDelay = 500 * time.Millisecond

// Handler processes one transcript file.
type Handler func(ctx context.Context, path string) error

// Match reports whether a file should be handed to the handler.
type Match func(path string) bool

// Watcher watches a directory tree. Every create or write of a matching file
// restarts that file's delay; the handler runs once the file has been quiet
// for the whole delay.
type Watcher struct {
	root    string
	handler Handler
	match   Match
	delay   time.Duration
	logger  *slog.Logger

	fsw       *fsnotify.Watcher
	semaphore chan struct{}
	wg        sync.WaitGroup

	mu      sync.Mutex
	pending map[string]*pendingFile
}

type pendingFile struct {
	timer *time.Timer
}

// New watches root and every directory below it.
func New(root string, handler Handler, match Match, logger *slog.Logger, maxConcurrent int, delay time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if delay <= 0 {
		delay = DefaultDelay
	}

	w := &Watcher{
		root:      root,
		handler:   handler,
		match:     match,
		delay:     delay,
		logger:    logger,
		fsw:       fsw,
		semaphore: make(chan struct{}, maxConcurrent),
		pending:   make(map[string]*pendingFile),
	}
	if err := w.addTree(root, nil); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("add watch path: %w", err)
	}
	return w, nil
}

// Start blocks until ctx is done, then waits for running handlers.
func (w *Watcher) Start(ctx context.Context) error {
	w.logger.Info("file watcher started", "dir", w.root, "max_concurrent", cap(w.semaphore))

	for {
		select {
		case <-ctx.Done():
			w.stopPending()
			w.logger.Info("waiting for ongoing processing to complete")
			w.wg.Wait()
			w.logger.Info("file watcher stopped")
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	if event.Has(fsnotify.Create) && isDir(event.Name) {
		// Files may land in a new directory before it is watched.
		err := w.addTree(event.Name, func(path string) { w.schedule(ctx, path) })
		if err != nil {
			w.logger.Warn("failed to watch new directory", "dir", event.Name, "error", err)
		}
		return
	}

	if !w.match(event.Name) {
		w.logger.Debug("ignoring file", "path", event.Name)
		return
	}
	w.schedule(ctx, event.Name)
}

// addTree watches dir and its subdirectories. found is called for every
// matching file already present.
func (w *Watcher) addTree(dir string, found func(path string)) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
			return nil
		}
		if found != nil && w.match(path) {
			found(path)
		}
		return nil
	})
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.pending[path]; ok && p.timer.Stop() {
		p.timer.Reset(w.delay)
		return
	}

	p := &pendingFile{}
	w.pending[path] = p
	w.wg.Add(1)
	p.timer = time.AfterFunc(w.delay, func() { w.fire(ctx, path, p) })
	w.logger.Info("new transcript detected", "path", path)
}

func (w *Watcher) fire(ctx context.Context, path string, p *pendingFile) {
	defer w.wg.Done()

	w.mu.Lock()
	if w.pending[path] == p {
		delete(w.pending, path)
	}
	w.mu.Unlock()

	select {
	case w.semaphore <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-w.semaphore }()

	if err := w.handler(ctx, path); err != nil {
		w.logger.Error("failed to process file", "path", path, "error", err)
	}
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, p := range w.pending {
		if p.timer.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
