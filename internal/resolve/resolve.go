// Package resolve turns an alias match into a specifier relative to the
// importing file's location in the output tree.
package resolve

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/ThomasWhyne/tsc-alias/internal/alias"
	"github.com/ThomasWhyne/tsc-alias/internal/config"
	"github.com/ThomasWhyne/tsc-alias/internal/pathcache"
)

// ErrTargetNotFound is reported in full-path mode when no output file exists
// for a matched alias.
var ErrTargetNotFound = errors.New("target not found")

// Result is the outcome of resolving one specifier.
type Result struct {
	// Specifier is the rewritten specifier, or the original when Resolved
	// is false.
	Specifier string
	Resolved  bool
	Pattern   string
	// TemplateIndex is the index of the template that produced Target,
	// -1 when no template was used.
	TemplateIndex int
	// Target is the absolute output location the specifier points at.
	Target string
	// Foreign is set when Target is outside the mirrored source root.
	Foreign bool
	Err     error
}

// Resolver maps physical source paths to output paths. It is read-only
// after New and safe for concurrent use; the PathCache it consults is the
// only shared mutable state.
type Resolver struct {
	cfg   *config.ProjectConfig
	cache *pathcache.Cache

	srcRoot string
	// commonRoot is the ancestor the compiler mirrored into the output
	// root when it nested the project under extra directories because of
	// foreign inputs. Empty when output is a direct mirror of srcRoot.
	commonRoot string
	foreign    bool
}

// New prepares a Resolver. When an alias template points outside the source
// root it marks cfg.HasForeignTargets and probes whether the compiler nested
// its output. New must run before files are processed in parallel.
func New(cfg *config.ProjectConfig, cache *pathcache.Cache) *Resolver {
	r := &Resolver{
		cfg:     cfg,
		cache:   cache,
		srcRoot: cfg.SourceRoot(),
	}

	common := r.srcRoot
	for _, templates := range cfg.Paths {
		for _, t := range templates {
			dir := staticDir(cfg.PathsDir, t)
			if isUnder(dir, r.srcRoot) {
				continue
			}
			r.foreign = true
			common = commonAncestor(common, dir)
		}
	}
	if !r.foreign {
		return r
	}
	cfg.HasForeignTargets = true

	if common != r.srcRoot {
		rel := relSlash(common, r.srcRoot)
		if cache.IsDir(path.Join(cfg.OutDir, rel)) {
			r.commonRoot = common
		}
	}
	return r
}

// HasForeignTargets reports whether any template points outside the source
// root.
func (r *Resolver) HasForeignTargets() bool {
	return r.foreign
}

// Nested reports whether the output tree was detected as nested under the
// common ancestor of the source root and foreign targets.
func (r *Resolver) Nested() bool {
	return r.commonRoot != ""
}

// Resolve computes the specifier for m as seen from importer, an absolute
// output file path. original is the specifier as written in importer.
func (r *Resolver) Resolve(m alias.Match, importer, original string) Result {
	if len(m.Candidates) == 0 {
		return Result{Specifier: original, Pattern: m.Pattern, TemplateIndex: -1}
	}

	chosen := 0
	var target string
	var foreign bool
	if len(m.Candidates) > 1 || r.cfg.ResolveFullPaths {
		chosen = -1
		for i, c := range m.Candidates {
			t, f := r.OutputPath(c, importer)
			if r.exists(t, importer) {
				chosen, target, foreign = i, t, f
				break
			}
		}
		if chosen < 0 {
			chosen = 0
			target, foreign = r.OutputPath(m.Candidates[0], importer)
		}
	} else {
		target, foreign = r.OutputPath(m.Candidates[0], importer)
	}

	res := r.finish(target, importer, original)
	res.Pattern = m.Pattern
	res.TemplateIndex = chosen
	res.Foreign = foreign
	return res
}

// ResolvePath computes the specifier for a physical source path that did not
// come from the alias index, such as a bare specifier under baseUrl.
func (r *Resolver) ResolvePath(source, importer, original string) Result {
	target, foreign := r.OutputPath(source, importer)
	res := r.finish(target, importer, original)
	res.TemplateIndex = -1
	res.Foreign = foreign
	return res
}

func (r *Resolver) finish(target, importer, original string) Result {
	res := Result{Target: target}

	if r.cfg.ResolveFullPaths {
		full, ok := r.findOutput(target, importer)
		switch {
		case ok:
			target = full
		case r.cfg.ResolveFullExtension != "":
			target += normalizeExt(r.cfg.ResolveFullExtension)
		default:
			res.Specifier = original
			res.Err = fmt.Errorf("resolve: %s: %w", target, ErrTargetNotFound)
			return res
		}
		res.Target = target
	}

	res.Specifier = Relative(path.Dir(slash(importer)), target)
	res.Resolved = true
	return res
}

// OutputPath translates a physical source path into its compiled location
// for importer. The second result is true for targets outside the source
// root.
func (r *Resolver) OutputPath(source, importer string) (string, bool) {
	source = slash(source)
	outRoot := r.outputRoot(importer)

	if isUnder(source, r.srcRoot) {
		base := r.srcRoot
		if r.commonRoot != "" {
			base = r.commonRoot
		}
		return path.Join(outRoot, relSlash(base, source)), false
	}

	if r.commonRoot != "" && isUnder(source, r.commonRoot) {
		return path.Join(outRoot, relSlash(r.commonRoot, source)), true
	}
	// Compiled elsewhere: point at the physical location.
	return source, true
}

// outputRoot is DeclarationDir for files emitted there, OutDir otherwise.
func (r *Resolver) outputRoot(importer string) string {
	if d := r.cfg.DeclarationDir; d != "" && d != r.cfg.OutDir && isUnder(slash(importer), d) {
		return d
	}
	return r.cfg.OutDir
}

// exists reports whether target names anything the runtime could load.
func (r *Resolver) exists(target, importer string) bool {
	if r.cache.Exists(target) {
		return true
	}
	_, ok := r.findOutput(target, importer)
	return ok
}

// findOutput locates the real output file for an extensionless target:
// the target itself, target.<ext>, or target/index.<ext>.
func (r *Resolver) findOutput(target, importer string) (string, bool) {
	decl := IsDeclaration(importer)
	exts := r.extensions(decl)

	if r.cache.IsFile(target) && hasOutputExt(target, exts) {
		return target, true
	}
	for _, ext := range exts {
		if p := target + "." + ext; r.cache.IsFile(p) {
			return runtimePath(p, decl), true
		}
	}
	if r.cache.IsDir(target) {
		for _, ext := range exts {
			if p := path.Join(target, "index."+ext); r.cache.IsFile(p) {
				return runtimePath(p, decl), true
			}
		}
	}
	return "", false
}

// extensions orders the configured output extensions for an importer.
// Script importers never resolve to declaration files; declaration importers
// try script outputs first and then their declaration siblings.
func (r *Resolver) extensions(decl bool) []string {
	var scripts, decls []string
	for _, e := range r.cfg.OutputCheck {
		e = strings.TrimPrefix(e, ".")
		if strings.HasPrefix(e, "d.") {
			decls = append(decls, e)
		} else {
			scripts = append(scripts, e)
		}
	}
	if !decl {
		return scripts
	}
	return append(scripts, decls...)
}

// runtimePath maps a declaration file back to the script path a declaration
// importer must name: x.d.ts -> x.js, x.d.mts -> x.mjs, x.d.cts -> x.cjs.
func runtimePath(p string, decl bool) string {
	if !decl {
		return p
	}
	for declExt, jsExt := range declToScript {
		if strings.HasSuffix(p, declExt) {
			return strings.TrimSuffix(p, declExt) + jsExt
		}
	}
	return p
}

var declToScript = map[string]string{
	".d.ts":  ".js",
	".d.tsx": ".js",
	".d.mts": ".mjs",
	".d.cts": ".cjs",
}

// IsDeclaration reports whether file is a declaration output.
func IsDeclaration(file string) bool {
	for ext := range declToScript {
		if strings.HasSuffix(file, ext) {
			return true
		}
	}
	return false
}

func hasOutputExt(p string, exts []string) bool {
	for _, e := range exts {
		if strings.HasSuffix(p, "."+e) {
			return true
		}
	}
	return false
}

func normalizeExt(ext string) string {
	if strings.HasPrefix(ext, ".") {
		return ext
	}
	return "." + ext
}

// Relative returns the specifier for target as seen from fromDir. The result
// always starts with "./" or "../" so it cannot be mistaken for a package.
func Relative(fromDir, target string) string {
	rel := relSlash(fromDir, target)
	switch {
	case rel == ".":
		return "./"
	case rel == ".." || strings.HasPrefix(rel, "../"):
		return rel
	default:
		return "./" + rel
	}
}

func relSlash(from, to string) string {
	rel, err := filepath.Rel(filepath.FromSlash(from), filepath.FromSlash(to))
	if err != nil {
		return slash(to)
	}
	return filepath.ToSlash(rel)
}

func slash(p string) string {
	return path.Clean(filepath.ToSlash(p))
}

func isUnder(p, root string) bool {
	if root == "" {
		return false
	}
	return p == root || strings.HasPrefix(p, strings.TrimSuffix(root, "/")+"/")
}

// staticDir is the absolute directory part of a template before its wildcard.
func staticDir(base, template string) string {
	t := filepath.ToSlash(template)
	if i := strings.Index(t, "*"); i >= 0 {
		t = t[:i]
		if j := strings.LastIndex(t, "/"); j >= 0 {
			t = t[:j]
		} else {
			t = ""
		}
	} else {
		t = path.Dir(t)
	}
	if !path.IsAbs(t) && !filepath.IsAbs(filepath.FromSlash(t)) {
		t = path.Join(base, t)
	}
	return path.Clean(t)
}

func commonAncestor(a, b string) string {
	for !isUnder(b, a) {
		parent := path.Dir(a)
		if parent == a {
			return a
		}
		a = parent
	}
	return a
}
