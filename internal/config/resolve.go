package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Option overrides a field after the extends chain is merged.
type Option func(*overrides)

type overrides struct {
	outDir               *string
	declarationDir       *string
	resolveFullPaths     *bool
	resolveFullExtension *string
	verbose              *bool
	inputGlob            *string
	paths                map[string][]string
	replacers            []ReplacerSetting
}

// WithOutDir overrides compilerOptions.outDir. Relative values resolve
// against the working directory.
func WithOutDir(dir string) Option {
	return func(o *overrides) { o.outDir = &dir }
}

// WithDeclarationDir overrides compilerOptions.declarationDir.
func WithDeclarationDir(dir string) Option {
	return func(o *overrides) { o.declarationDir = &dir }
}

// WithResolveFullPaths turns full-path mode on or off.
func WithResolveFullPaths(v bool) Option {
	return func(o *overrides) { o.resolveFullPaths = &v }
}

// WithResolveFullExtension sets the extension appended when full-path mode
// cannot find a real file.
func WithResolveFullExtension(ext string) Option {
	return func(o *overrides) { o.resolveFullExtension = &ext }
}

// WithVerbose enables debug diagnostics.
func WithVerbose(v bool) Option {
	return func(o *overrides) { o.verbose = &v }
}

// WithInputGlob overrides fileExtensions.inputGlob.
func WithInputGlob(glob string) Option {
	return func(o *overrides) { o.inputGlob = &glob }
}

// WithPaths replaces the alias map. Templates are taken relative to the
// root config's directory.
func WithPaths(paths map[string][]string) Option {
	return func(o *overrides) { o.paths = paths }
}

// WithReplacers replaces the configured replacer list.
func WithReplacers(settings ...ReplacerSetting) Option {
	return func(o *overrides) { o.replacers = settings }
}

// Resolve loads configFile, follows its extends chain and returns the merged
// configuration. Fields set in a child override the same field inherited
// from its parent.
func Resolve(configFile string, opts ...Option) (*ProjectConfig, error) {
	var ov overrides
	for _, opt := range opts {
		opt(&ov)
	}

	root := Normalize(configFile)
	layers, err := collect(root, nil)
	if err != nil {
		return nil, err
	}

	cfg := &ProjectConfig{
		ConfigFile:  root,
		ConfigDir:   filepath.ToSlash(filepath.Dir(filepath.FromSlash(root))),
		InputGlob:   DefaultInputGlob,
		OutputCheck: slices.Clone(DefaultOutputCheck),
		Replacers: []ReplacerSetting{
			{Name: ReplacerDefault, Enabled: true},
			{Name: ReplacerBaseURL, Enabled: true},
		},
	}
	cfg.PathsDir = cfg.ConfigDir

	// layers is ordered farthest ancestor first, so later layers win.
	for _, l := range layers {
		cfg.Chain = append(cfg.Chain, l.file)
		apply(cfg, l)
	}
	slices.Reverse(cfg.Chain)

	applyOverrides(cfg, &ov)

	if cfg.OutDir == "" {
		return nil, fmt.Errorf("config: %s: %w", root, ErrMissingOutDir)
	}
	if cfg.Paths == nil {
		cfg.Paths = map[string][]string{}
	}
	return cfg, nil
}

// collect returns file and all of its ancestors, farthest ancestor first.
// stack holds the files currently being resolved and detects cycles.
func collect(file string, stack []string) ([]*layer, error) {
	if slices.Contains(stack, file) {
		chain := append(slices.Clone(stack), file)
		return nil, fmt.Errorf("config: %s: %w", strings.Join(chain, " -> "), ErrExtendsCycle)
	}
	l, err := loadLayer(file)
	if err != nil {
		return nil, err
	}
	stack = append(stack, file)

	var out []*layer
	for _, ref := range l.extends {
		parent, err := resolveExtends(l.dir, ref)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", file, err)
		}
		parents, err := collect(parent, stack)
		if err != nil {
			return nil, err
		}
		out = append(out, parents...)
	}
	return append(out, l), nil
}

// resolveExtends locates the parent config named by ref, relative to the
// directory of the config that referenced it.
func resolveExtends(dir, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty extends reference: %w", ErrExtendsUnresolvable)
	}
	if isPathReference(ref) {
		p := resolveDir(dir, ref)
		if strings.HasSuffix(p, ".json") {
			return p, nil
		}
		if isFile(p + ".json") {
			return p + ".json", nil
		}
		if isFile(p) {
			return p, nil
		}
		// Report the conventional name so the not-found error is readable.
		return p + ".json", nil
	}
	return findPackageConfig(dir, ref)
}

// findPackageConfig searches node_modules in dir and each of its ancestors.
// The first ancestor that holds a match wins.
func findPackageConfig(dir, ref string) (string, error) {
	cur := filepath.FromSlash(dir)
	for {
		base := filepath.Join(cur, "node_modules", filepath.FromSlash(ref))
		for _, candidate := range packageCandidates(base) {
			if isFile(candidate) {
				return Normalize(candidate), nil
			}
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}
	return "", fmt.Errorf("%q: %w", ref, ErrExtendsUnresolvable)
}

func packageCandidates(base string) []string {
	if strings.HasSuffix(base, ".json") {
		return []string{base}
	}
	return []string{
		base + ".json",
		filepath.Join(base, "tsconfig.json"),
	}
}

func isFile(p string) bool {
	info, err := os.Stat(filepath.FromSlash(p))
	return err == nil && !info.IsDir()
}

func apply(cfg *ProjectConfig, l *layer) {
	if l.baseURL != nil {
		cfg.BaseURL = *l.baseURL
	}
	if l.rootDir != nil {
		cfg.RootDir = *l.rootDir
	}
	if l.outDir != nil {
		cfg.OutDir = *l.outDir
	}
	if l.declarationDir != nil {
		cfg.DeclarationDir = *l.declarationDir
	}
	if l.paths != nil {
		cfg.Paths = l.paths
		cfg.PathsDir = l.dir
	}
	if l.replacersSet {
		cfg.Replacers = mergeReplacers(cfg.Replacers, l.replacers)
	}
	if l.resolveFullPaths != nil {
		cfg.ResolveFullPaths = *l.resolveFullPaths
	}
	if l.resolveFullExtension != nil {
		cfg.ResolveFullExtension = *l.resolveFullExtension
	}
	if l.verbose != nil {
		cfg.Verbose = *l.verbose
	}
	if l.inputGlob != nil {
		cfg.InputGlob = *l.inputGlob
	}
	if l.outputCheck != nil {
		cfg.OutputCheck = l.outputCheck
	}
}

// mergeReplacers overlays child settings on inherited ones by name. New
// names are appended in the child's order.
func mergeReplacers(parent, child []ReplacerSetting) []ReplacerSetting {
	out := slices.Clone(parent)
	for _, c := range child {
		idx := slices.IndexFunc(out, func(r ReplacerSetting) bool { return r.Name == c.Name })
		if idx >= 0 {
			if c.File == "" {
				c.File = out[idx].File
			}
			out[idx] = c
			continue
		}
		out = append(out, c)
	}
	return out
}

func applyOverrides(cfg *ProjectConfig, ov *overrides) {
	if ov.outDir != nil {
		cfg.OutDir = Normalize(*ov.outDir)
	}
	if ov.declarationDir != nil {
		cfg.DeclarationDir = Normalize(*ov.declarationDir)
	}
	if ov.resolveFullPaths != nil {
		cfg.ResolveFullPaths = *ov.resolveFullPaths
	}
	if ov.resolveFullExtension != nil {
		cfg.ResolveFullExtension = *ov.resolveFullExtension
	}
	if ov.verbose != nil {
		cfg.Verbose = *ov.verbose
	}
	if ov.inputGlob != nil {
		cfg.InputGlob = *ov.inputGlob
	}
	if ov.paths != nil {
		cfg.Paths = ov.paths
		cfg.PathsDir = cfg.ConfigDir
	}
	if ov.replacers != nil {
		cfg.Replacers = ov.replacers
	}
}
