package tscalias

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ThomasWhyne/tsc-alias/internal/alias"
	"github.com/ThomasWhyne/tsc-alias/internal/config"
	"github.com/ThomasWhyne/tsc-alias/internal/diag"
	"github.com/ThomasWhyne/tsc-alias/internal/pathcache"
	"github.com/ThomasWhyne/tsc-alias/internal/replacer"
	"github.com/ThomasWhyne/tsc-alias/internal/resolve"
	"github.com/ThomasWhyne/tsc-alias/internal/scan"
	"github.com/ThomasWhyne/tsc-alias/internal/store"
)

// tempPrefix names the temporary files used for atomic writes. Watch mode
// ignores them.
const tempPrefix = ".tsc-alias-"

// Engine rewrites alias specifiers in a project's compiled output. The
// configuration, alias index and replacer pipeline are built once by New and
// are read-only afterwards; the path cache is cleared at the start of every
// run.
type Engine struct {
	cfg      *config.ProjectConfig
	index    *alias.Index
	cache    *pathcache.Cache
	resolver *resolve.Resolver
	pipeline *replacer.Pipeline
	sink     *countingSink
	store    *store.Store

	configOpts  []config.Option
	registered  []replacer.Replacer
	userSink    diag.Sink
	useParallel bool
	workers     int
	statePath   string
	configHash  string
	cacheSize   int
	debounce    time.Duration

	// runMu serialises Run and watch cycles.
	runMu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithSink routes diagnostics to s. The default discards them.
func WithSink(s diag.Sink) Option {
	return func(e *Engine) {
		e.userSink = s
	}
}

// WithConfigOptions applies invocation overrides on top of the resolved
// configuration.
func WithConfigOptions(opts ...config.Option) Option {
	return func(e *Engine) {
		e.configOpts = append(e.configOpts, opts...)
	}
}

// WithReplacers registers replacers. A replacer whose name appears in the
// configuration's replacer list runs at that position; the others run
// before the configured ones, in registration order.
func WithReplacers(rs ...replacer.Replacer) Option {
	return func(e *Engine) {
		e.registered = append(e.registered, rs...)
	}
}

// WithParallel controls parallel rewriting. When true (default), files are
// processed by a worker pool. Set to false for serial mode.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.useParallel = parallel
	}
}

// WithWorkers sets the worker pool size. Values below 1 mean
// runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithStatePath enables the rewrite-state database at dbPath. Files whose
// content matches the recorded hash are skipped without scanning.
func WithStatePath(dbPath string) Option {
	return func(e *Engine) {
		e.statePath = dbPath
	}
}

// WithCacheSize bounds the number of directory listings kept by the path
// cache.
func WithCacheSize(n int) Option {
	return func(e *Engine) {
		e.cacheSize = n
	}
}

// WithDebounce sets the quiet period Watch waits for after the last
// filesystem event before rewriting.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) {
		e.debounce = d
	}
}

// New resolves configFile and prepares an Engine. Configuration errors are
// returned before any file is touched.
func New(configFile string, opts ...Option) (*Engine, error) {
	e := &Engine{
		useParallel: true,
		cacheSize:   pathcache.DefaultSize,
		debounce:    defaultDebounce,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.userSink == nil {
		e.userSink = diag.Discard
	}
	e.sink = &countingSink{next: e.userSink}

	cfg, err := config.Resolve(configFile, e.configOpts...)
	if err != nil {
		return nil, fmt.Errorf("tscalias: %w", err)
	}
	e.cfg = cfg

	idx, err := alias.Build(cfg)
	if err != nil {
		return nil, fmt.Errorf("tscalias: %w", err)
	}
	e.index = idx
	e.sink.Report(diag.Diagnostic{
		Level:   diag.LevelDebug,
		Code:    diag.CodeConfig,
		Message: fmt.Sprintf("indexed %d alias pattern(s) from %s", idx.Len(), cfg.ConfigFile),
	})

	e.cache = pathcache.New(e.cacheSize)
	e.resolver = resolve.New(cfg, e.cache)
	if e.resolver.HasForeignTargets() {
		e.sink.Report(diag.Diagnostic{
			Level:   diag.LevelDebug,
			Code:    diag.CodeForeignTarget,
			Message: fmt.Sprintf("alias targets outside %s (nested output: %v)", cfg.SourceRoot(), e.resolver.Nested()),
		})
	}

	e.pipeline, err = replacer.FromConfig(cfg, e.resolver, e.cache, e.sink, e.registered...)
	if err != nil {
		return nil, fmt.Errorf("tscalias: %w", err)
	}

	if e.statePath != "" {
		s, err := store.NewStore(e.statePath)
		if err != nil {
			return nil, fmt.Errorf("tscalias: create store: %w", err)
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, fmt.Errorf("tscalias: migrate: %w", err)
		}
		e.store = s
		e.configHash = fingerprint(cfg, e.registered)
	}
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// Config returns the resolved project configuration.
func (e *Engine) Config() *ProjectConfig {
	return e.cfg
}

// Store returns the rewrite-state store, nil when WithStatePath was not set.
func (e *Engine) Store() *store.Store {
	return e.store
}

// ResetState forgets every recorded file so the next run rewrites all of
// them.
func (e *Engine) ResetState() error {
	if e.store == nil {
		return nil
	}
	return e.store.Reset()
}

// Invalidate clears the path cache. Run and Watch do this themselves;
// embedders calling RewriteFile after the output tree changed call it first.
func (e *Engine) Invalidate() {
	e.cache.Invalidate()
}

// Report summarises one run.
type Report struct {
	FilesScanned        int
	FilesChanged        int
	FilesSkipped        int
	SpecifiersRewritten int
	// Diagnostics counts the warnings and errors reported during the run.
	Diagnostics int
	Duration    time.Duration
}

// Files lists the output files selected by the input glob, sorted.
func (e *Engine) Files() ([]string, error) {
	pattern := "**/*." + e.cfg.InputGlob

	var files []string
	for _, root := range e.roots() {
		if info, err := os.Stat(filepath.FromSlash(root)); err != nil || !info.IsDir() {
			continue
		}
		matches, err := doublestar.Glob(os.DirFS(filepath.FromSlash(root)), pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("tscalias: glob %s: %w", root, err)
		}
		for _, m := range matches {
			if ignoredRel(m) {
				continue
			}
			files = append(files, path.Join(root, m))
		}
	}
	sort.Strings(files)
	return files, nil
}

// roots are the output directories to rewrite: OutDir, plus DeclarationDir
// when it lies outside OutDir.
func (e *Engine) roots() []string {
	roots := []string{e.cfg.OutDir}
	if d := e.cfg.DeclarationDir; d != "" && d != e.cfg.OutDir && !strings.HasPrefix(d, e.cfg.OutDir+"/") {
		roots = append(roots, d)
	}
	return roots
}

func ignoredRel(rel string) bool {
	if strings.HasPrefix(path.Base(rel), tempPrefix) {
		return true
	}
	return rel == "node_modules" || strings.HasPrefix(rel, "node_modules/") || strings.Contains(rel, "/node_modules/")
}

// Run rewrites every selected output file. Per-file failures are reported
// and collected; the returned error summarises them after all other files
// were processed. A cancelled ctx stops picking up new files.
func (e *Engine) Run(ctx context.Context) (Report, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.cache.Invalidate()
	files, err := e.Files()
	if err != nil {
		return Report{}, err
	}
	return e.rewriteFiles(ctx, files, true)
}

// rewriteFiles processes files and records the outcome. full marks a run
// over the whole output tree, which lets the store forget vanished files.
func (e *Engine) rewriteFiles(ctx context.Context, files []string, full bool) (Report, error) {
	start := time.Now()
	diagsBefore := e.sink.count()
	listingsBefore := e.cache.Listings()

	var known map[string]store.FileState
	var batch *store.BatchedStore
	var run *store.Run
	if e.store != nil {
		var err error
		known, err = e.store.States()
		if err != nil {
			return Report{}, fmt.Errorf("tscalias: load state: %w", err)
		}
		batch = store.NewBatchedStore(e.store)
		run = &store.Run{ConfigFile: e.cfg.ConfigFile, StartedAt: start}
		if _, err := e.store.InsertRun(run); err != nil {
			return Report{}, fmt.Errorf("tscalias: %w", err)
		}
		if full {
			present := make(map[string]bool, len(files))
			for _, f := range files {
				present[f] = true
			}
			for p := range known {
				if !present[p] {
					batch.Forget(p)
				}
			}
		}
	}

	var results []fileResult
	if e.useParallel {
		results = e.rewriteParallel(ctx, files, known)
	} else {
		results = e.rewriteSerial(ctx, files, known)
	}

	var rep Report
	var errs []error
	for _, res := range results {
		if res.err != nil {
			errs = append(errs, fmt.Errorf("rewrite %s: %w", res.path, res.err))
			continue
		}
		if res.skipped {
			rep.FilesSkipped++
			continue
		}
		rep.FilesScanned++
		rep.SpecifiersRewritten += res.specifiers
		if res.changed {
			rep.FilesChanged++
		}
		if batch == nil {
			continue
		}
		if res.unresolved > 0 {
			// Rescan next time: the missing targets may have been emitted.
			batch.Forget(res.path)
		} else {
			batch.Record(res.state)
		}
	}

	if e.store != nil {
		if err := e.store.CommitBatch(batch); err != nil {
			errs = append(errs, fmt.Errorf("commit state: %w", err))
		}
	}

	rep.Duration = time.Since(start)
	rep.Diagnostics = int(e.sink.count() - diagsBefore)
	e.sink.Report(diag.Diagnostic{
		Level:   diag.LevelDebug,
		Code:    diag.CodeCache,
		Message: fmt.Sprintf("path cache: %d directory listing(s), %d cached", e.cache.Listings()-listingsBefore, e.cache.Len()),
	})

	if run != nil {
		run.FinishedAt = time.Now()
		run.FilesScanned = rep.FilesScanned
		run.FilesChanged = rep.FilesChanged
		run.FilesSkipped = rep.FilesSkipped
		run.SpecifiersRewritten = rep.SpecifiersRewritten
		run.Diagnostics = rep.Diagnostics
		if err := e.store.FinishRun(run); err != nil {
			errs = append(errs, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return rep, fmt.Errorf("tscalias: run interrupted: %w", err)
	}
	if len(errs) > 0 {
		return rep, fmt.Errorf("tscalias: rewrite had %d error(s): %w", len(errs), errs[0])
	}
	return rep, nil
}

func (e *Engine) rewriteSerial(ctx context.Context, files []string, known map[string]store.FileState) []fileResult {
	results := make([]fileResult, 0, len(files))
	for _, f := range files {
		if ctx.Err() != nil {
			break
		}
		results = append(results, e.processFile(ctx, f, known))
	}
	return results
}

// fileResult is the outcome of processing one file.
type fileResult struct {
	path       string
	changed    bool
	skipped    bool
	specifiers int
	// unresolved counts matched aliases left as written.
	unresolved int
	state      store.FileState
	err        error
}

// processFile reads, rewrites and writes back one file. known holds the
// recorded file states, nil without a store.
func (e *Engine) processFile(ctx context.Context, file string, known map[string]store.FileState) fileResult {
	res := fileResult{path: file}

	src, err := os.ReadFile(filepath.FromSlash(file))
	if err != nil {
		res.err = e.fail(file, fmt.Errorf("read file: %w", err))
		return res
	}
	if known != nil {
		if st, ok := known[file]; ok && st.ConfigHash == e.configHash && st.Hash == store.ContentHash(src) {
			res.skipped = true
			e.sink.Report(diag.Diagnostic{Level: diag.LevelDebug, Code: diag.CodeSkipped, File: file, Message: "unchanged since last rewrite"})
			return res
		}
	}

	out, n, unresolved, err := e.rewriteContent(ctx, file, src)
	if err != nil {
		res.err = err
		return res
	}
	res.unresolved = unresolved
	if n > 0 {
		if err := writeAtomic(filepath.FromSlash(file), out); err != nil {
			res.err = e.fail(file, err)
			return res
		}
		res.changed = true
	}
	res.specifiers = n
	res.state = e.fileState(file, out, n)
	return res
}

func (e *Engine) fileState(file string, content []byte, n int) store.FileState {
	return store.FileState{
		Path:        file,
		Hash:        store.ContentHash(content),
		ConfigHash:  e.configHash,
		Specifiers:  n,
		RewrittenAt: time.Now(),
	}
}

func (e *Engine) fail(file string, err error) error {
	e.sink.Report(diag.Diagnostic{
		Level:   diag.LevelError,
		Code:    diag.CodeRewriteFailed,
		File:    file,
		Message: err.Error(),
	})
	return err
}

// RewriteFile rewrites one output file in place. It reports whether the
// file changed. The rewrite-state store is updated but not consulted.
func (e *Engine) RewriteFile(ctx context.Context, file string) (bool, error) {
	file = config.Normalize(file)
	src, err := os.ReadFile(filepath.FromSlash(file))
	if err != nil {
		return false, fmt.Errorf("tscalias: read %s: %w", file, err)
	}
	out, n, unresolved, err := e.rewriteContent(ctx, file, src)
	if err != nil {
		return false, err
	}
	if n > 0 {
		if err := writeAtomic(filepath.FromSlash(file), out); err != nil {
			return false, fmt.Errorf("tscalias: %w", err)
		}
	}
	if e.store != nil {
		if unresolved > 0 {
			err = e.store.DeleteFile(file)
		} else {
			st := e.fileState(file, out, n)
			err = e.store.UpsertFile(&st)
		}
		if err != nil {
			return n > 0, fmt.Errorf("tscalias: record state: %w", err)
		}
	}
	return n > 0, nil
}

// RewriteContent returns src with its specifiers rewritten as if it were
// the output file at file, and the number of specifiers that changed. src
// is returned unchanged when nothing was rewritten.
func (e *Engine) RewriteContent(ctx context.Context, file string, src []byte) ([]byte, int, error) {
	out, n, _, err := e.rewriteContent(ctx, file, src)
	return out, n, err
}

// rewriteContent is RewriteContent that also counts the matched aliases
// left unresolved.
func (e *Engine) rewriteContent(ctx context.Context, file string, src []byte) ([]byte, int, int, error) {
	file = config.Normalize(file)
	tokens, err := scan.Specifiers(ctx, file, src)
	if err != nil {
		e.sink.Report(diag.Diagnostic{Level: diag.LevelError, Code: diag.CodeScanFailed, File: file, Message: err.Error()})
		return src, 0, 0, fmt.Errorf("tscalias: %w", err)
	}

	var edits []scan.Edit
	unresolved := 0
	for _, tok := range tokens {
		next, matched := e.rewriteSpecifier(ctx, file, tok.Value)
		if next == tok.Value {
			if matched {
				unresolved++
			}
			continue
		}
		edits = append(edits, scan.Edit{Start: tok.Start, End: tok.End, Text: next})
	}
	if len(edits) == 0 {
		return src, 0, unresolved, nil
	}
	return scan.Apply(src, edits), len(edits), unresolved, nil
}

// rewriteSpecifier runs one specifier through the alias index, the resolver
// and the replacer pipeline. matched reports whether spec hit the alias
// index.
func (e *Engine) rewriteSpecifier(ctx context.Context, file, spec string) (out string, matched bool) {
	in := replacer.Input{
		File:      file,
		Specifier: spec,
		Candidate: spec,
		Config:    e.cfg,
	}

	m, matched := e.index.Lookup(spec)
	if matched {
		in.Match = &m
		res := e.resolver.Resolve(m, file, spec)
		switch {
		case res.Err != nil:
			e.sink.Report(diag.Diagnostic{
				Level:     diag.LevelWarn,
				Code:      diag.CodeTargetNotFound,
				File:      file,
				Specifier: spec,
				Message:   res.Err.Error(),
			})
		case res.Resolved:
			in.Candidate = res.Specifier
			if res.Foreign {
				e.sink.Report(diag.Diagnostic{
					Level:     diag.LevelDebug,
					Code:      diag.CodeForeignTarget,
					File:      file,
					Specifier: spec,
					Message:   "target " + res.Target + " is outside the source root",
				})
			}
		}
	}

	out = e.pipeline.Apply(ctx, in)
	if out != spec {
		e.sink.Report(diag.Diagnostic{
			Level:     diag.LevelDebug,
			Code:      diag.CodeRewritten,
			File:      file,
			Specifier: spec,
			Message:   spec + " -> " + out,
		})
	}
	return out, matched
}

// writeAtomic replaces path with data through a temporary file in the same
// directory. On failure path is left untouched.
func writeAtomic(path string, data []byte) (err error) {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err = os.Chmod(tmpPath, info.Mode().Perm()); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// fingerprint hashes the settings that decide how a file is rewritten.
// Recorded state is only trusted under the same fingerprint. Script
// replacers contribute their source.
func fingerprint(cfg *config.ProjectConfig, registered []replacer.Replacer) string {
	type scriptState struct {
		Name string
		Hash string
	}
	var scripts []scriptState
	for _, r := range cfg.EnabledReplacers() {
		if r.File == "" {
			continue
		}
		src, _ := os.ReadFile(filepath.FromSlash(r.File))
		scripts = append(scripts, scriptState{Name: r.Name, Hash: store.ContentHash(src)})
	}
	names := make([]string, 0, len(registered))
	for _, r := range registered {
		names = append(names, r.Name())
	}
	data, _ := json.Marshal(struct {
		Paths                map[string][]string
		PathsDir             string
		BaseURL              string
		RootDir              string
		OutDir               string
		DeclarationDir       string
		OutputCheck          []string
		ResolveFullPaths     bool
		ResolveFullExtension string
		Replacers            []config.ReplacerSetting
		Scripts              []scriptState
		Registered           []string
	}{
		Paths:                cfg.Paths,
		PathsDir:             cfg.PathsDir,
		BaseURL:              cfg.BaseURL,
		RootDir:              cfg.RootDir,
		OutDir:               cfg.OutDir,
		DeclarationDir:       cfg.DeclarationDir,
		OutputCheck:          cfg.OutputCheck,
		ResolveFullPaths:     cfg.ResolveFullPaths,
		ResolveFullExtension: cfg.ResolveFullExtension,
		Replacers:            cfg.Replacers,
		Scripts:              scripts,
		Registered:           names,
	})
	return store.ContentHash(data)
}

func defaultWorkers() int {
	return runtime.NumCPU()
}

// countingSink forwards diagnostics and counts warnings and errors.
type countingSink struct {
	next diag.Sink
	n    atomic.Int64
}

func (s *countingSink) Report(d diag.Diagnostic) {
	if d.Level >= diag.LevelWarn {
		s.n.Add(1)
	}
	s.next.Report(d)
}

func (s *countingSink) count() int64 {
	return s.n.Load()
}
