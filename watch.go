package tscalias

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/ThomasWhyne/tsc-alias/internal/config"
	"github.com/ThomasWhyne/tsc-alias/internal/diag"
)

// defaultDebounce is the delay before a rewrite cycle starts after the last
// filesystem event, so a compiler emitting many files triggers one cycle.
const defaultDebounce = 250 * time.Millisecond

// Watch rewrites the output tree once and then again whenever the compiler
// writes matching files, until ctx is cancelled. Each cycle clears the path
// cache and rewrites only the files that changed. A cycle that fires while
// the previous one is still running is postponed.
func (e *Engine) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tscalias: create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	roots := e.roots()
	for _, root := range roots {
		if err := os.MkdirAll(filepath.FromSlash(root), 0o755); err != nil {
			return fmt.Errorf("tscalias: create %s: %w", root, err)
		}
		if _, err := addDirectories(fsw, root); err != nil {
			return err
		}
	}

	rep, err := e.Run(ctx)
	e.reportCycle(rep, err)
	if ctx.Err() != nil {
		return nil
	}

	pattern := "**/*." + e.cfg.InputGlob
	cycles := newDebouncer(e.debounce, func(changed []string) {
		if ctx.Err() != nil {
			return
		}
		rep, err := e.RewriteChanged(ctx, changed)
		e.reportCycle(rep, err)
	})
	defer cycles.stop()

	e.sink.Report(diag.Diagnostic{Level: diag.LevelInfo, Code: diag.CodeWatch, Message: fmt.Sprintf("watching %v", roots)})

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-fsw.Events:
			if !ok {
				return fmt.Errorf("tscalias: fsnotify event channel closed unexpectedly")
			}
			name := config.Normalize(evt.Name)
			if evt.Has(fsnotify.Create) {
				for _, f := range maybeAddDir(fsw, name) {
					if e.watched(f, roots, pattern) {
						cycles.add(f)
					}
				}
			}
			if !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Write) {
				continue
			}
			if e.watched(name, roots, pattern) {
				cycles.add(name)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return fmt.Errorf("tscalias: fsnotify error channel closed unexpectedly")
			}
			e.sink.Report(diag.Diagnostic{Level: diag.LevelWarn, Code: diag.CodeWatch, Message: "fsnotify: " + err.Error()})
		}
	}
}

// RewriteChanged rewrites the listed output files after clearing the path
// cache. Files that no longer exist are ignored.
func (e *Engine) RewriteChanged(ctx context.Context, files []string) (Report, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.cache.Invalidate()
	existing := make([]string, 0, len(files))
	for _, f := range files {
		f = config.Normalize(f)
		if info, err := os.Stat(filepath.FromSlash(f)); err == nil && info.Mode().IsRegular() {
			existing = append(existing, f)
		}
	}
	return e.rewriteFiles(ctx, existing, false)
}

// watched reports whether name is an output file selected by pattern.
func (e *Engine) watched(name string, roots []string, pattern string) bool {
	for _, root := range roots {
		if !isUnderDir(name, root) {
			continue
		}
		rel := name[len(root)+1:]
		if ignoredRel(rel) {
			return false
		}
		ok, err := doublestar.Match(pattern, rel)
		return err == nil && ok
	}
	return false
}

func (e *Engine) reportCycle(rep Report, err error) {
	if err != nil {
		e.sink.Report(diag.Diagnostic{Level: diag.LevelError, Code: diag.CodeWatch, Message: err.Error()})
	}
	e.sink.Report(diag.Diagnostic{
		Level: diag.LevelInfo,
		Code:  diag.CodeWatch,
		Message: fmt.Sprintf("rewrote %d specifier(s) in %d of %d file(s) (%d skipped) in %s",
			rep.SpecifiersRewritten, rep.FilesChanged, rep.FilesScanned, rep.FilesSkipped, rep.Duration.Round(time.Millisecond)),
	})
}

// debouncer batches file names and hands them to run once no new name has
// arrived for delay. A batch that comes due while run is busy waits for the
// next tick.
type debouncer struct {
	delay time.Duration
	run   func(files []string)

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	running atomic.Bool

	// cycleMu is held for the duration of run.
	cycleMu sync.Mutex
	stopped bool
}

func newDebouncer(delay time.Duration, run func(files []string)) *debouncer {
	return &debouncer{delay: delay, run: run, pending: make(map[string]struct{})}
}

func (d *debouncer) add(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[name] = struct{}{}
	if d.timer == nil {
		d.timer = time.AfterFunc(d.delay, d.fire)
	} else {
		d.timer.Reset(d.delay)
	}
}

func (d *debouncer) fire() {
	if !d.running.CompareAndSwap(false, true) {
		d.mu.Lock()
		d.timer.Reset(d.delay)
		d.mu.Unlock()
		return
	}
	defer d.running.Store(false)

	d.cycleMu.Lock()
	defer d.cycleMu.Unlock()
	if d.stopped {
		return
	}

	d.mu.Lock()
	if len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	changed := make([]string, 0, len(d.pending))
	for name := range d.pending {
		changed = append(changed, name)
	}
	slices.Sort(changed)
	clear(d.pending)
	d.mu.Unlock()

	d.run(changed)
}

// stop cancels the pending batch and waits for a running one. run is not
// called after stop returns.
func (d *debouncer) stop() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()

	d.cycleMu.Lock()
	d.stopped = true
	d.cycleMu.Unlock()
}

// addDirectories registers root and every directory below it and returns
// the files found on the way.
func addDirectories(fsw *fsnotify.Watcher, root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(filepath.FromSlash(root), func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr // skip inaccessible paths
		}
		if !d.IsDir() {
			files = append(files, config.Normalize(p))
			return nil
		}
		if d.Name() == "node_modules" {
			return filepath.SkipDir
		}
		if err := fsw.Add(p); err != nil {
			return fmt.Errorf("tscalias: watch %s: %w", p, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("tscalias: walk %s: %w", root, err)
	}
	return files, nil
}

// maybeAddDir extends the watch to a directory created after startup. Files
// the compiler wrote into it before the watch was added are returned so
// they are not missed.
func maybeAddDir(fsw *fsnotify.Watcher, name string) []string {
	info, err := os.Stat(filepath.FromSlash(name))
	if err != nil || !info.IsDir() || path.Base(name) == "node_modules" {
		return nil
	}
	files, _ := addDirectories(fsw, name)
	return files
}

func isUnderDir(p, dir string) bool {
	return len(p) > len(dir) && p[len(dir)] == '/' && p[:len(dir)] == dir
}
