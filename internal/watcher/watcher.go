// Package watcher is the file change detector used by `flo serve`. It watches
// a directory tree recursively and reports debounced changes to files that
// match a glob.
package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/koltyakov/flo/internal/log"
)

const (
	DefaultGlob     = "**/*.{js,css}"
	DefaultDebounce = 50 * time.Millisecond
)

var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
}

// Options controls matching and debouncing.
type Options struct {
	Glob     string
	Debounce time.Duration
	Logger   *slog.Logger
}

// Watcher reports absolute paths of changed files on Events. Ready closes
// once the initial tree has been registered.
type Watcher struct {
	root   string
	glob   string
	delay  time.Duration
	log    *slog.Logger
	fsw    *fsnotify.Watcher
	ready  chan struct{}
	events chan string
	errs   chan error
	done   chan struct{}
	wg     sync.WaitGroup

	mu        sync.Mutex
	debouncer map[string]func(func())
	closeOnce sync.Once
}

// New starts watching root.
func New(root string, opts Options) (*Watcher, error) {
	if opts.Glob == "" {
		opts.Glob = DefaultGlob
	}
	if !doublestar.ValidatePattern(opts.Glob) {
		return nil, fmt.Errorf("invalid glob %q", opts.Glob)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:      abs,
		glob:      opts.Glob,
		delay:     opts.Debounce,
		log:       opts.Logger,
		fsw:       fsw,
		ready:     make(chan struct{}),
		events:    make(chan string, 64),
		errs:      make(chan error, 1),
		done:      make(chan struct{}),
		debouncer: make(map[string]func(func())),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

func (w *Watcher) Ready() <-chan struct{} { return w.ready }
func (w *Watcher) Events() <-chan string  { return w.events }
func (w *Watcher) Errors() <-chan error   { return w.errs }

// Close stops watching. Pending debounced events are dropped.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()

	if err := w.addTree(w.root); err != nil {
		w.fail(err)
		return
	}
	w.log.Debug("watching", "root", w.root, "glob", w.glob)
	close(w.ready)

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", "err", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.log.Warn("watch new directory", "path", ev.Name, "err", err)
			}
			return
		}
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	if !w.matches(ev.Name) {
		return
	}
	w.schedule(ev.Name)
}

func (w *Watcher) matches(abs string) bool {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return false
	}
	ok, err := doublestar.Match(w.glob, filepath.ToSlash(rel))
	return err == nil && ok
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	d, ok := w.debouncer[path]
	if !ok {
		d = debounce.New(w.delay)
		w.debouncer[path] = d
	}
	w.mu.Unlock()

	d(func() {
		select {
		case w.events <- path:
		case <-w.done:
		}
	})
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path != dir && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && skipDirs[d.Name()] {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) fail(err error) {
	select {
	case w.errs <- err:
	default:
	}
}
