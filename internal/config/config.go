// Package config resolves a project configuration file and its extends chain
// into one effective ProjectConfig.
//
// Configuration files are JSON with comments and trailing commas. Every
// directory-valued field is resolved against the directory of the file that
// declared it, so a parent's outDir stays anchored at the parent even when a
// child in another directory inherits it.
package config

import (
	"errors"
	"path/filepath"
	"strings"
)

var (
	// ErrConfigNotFound is returned when the root configuration file, or
	// any file referenced through extends, does not exist.
	ErrConfigNotFound = errors.New("config file not found")
	// ErrMissingOutDir is returned when no output directory is set after
	// the whole chain is merged and overrides are applied.
	ErrMissingOutDir = errors.New("compilerOptions.outDir is not set")
	// ErrExtendsCycle is returned when an extends chain revisits a file that
	// is already one of its own ancestors.
	ErrExtendsCycle = errors.New("extends cycle")
	// ErrExtendsUnresolvable is returned when a package-style extends
	// reference is not found under any ancestor module root.
	ErrExtendsUnresolvable = errors.New("extends reference cannot be resolved")
)

// DefaultInputGlob selects the compiled files that are rewritten.
const DefaultInputGlob = "{mjs,cjs,js,jsx,d.mts,d.cts,d.ts,d.tsx}"

// DefaultOutputCheck lists the extensions treated as real output files in
// full-path mode, in probe order.
var DefaultOutputCheck = []string{"js", "json", "jsx", "cjs", "mjs", "d.ts", "d.tsx", "d.cts", "d.mts"}

// Built-in replacer names.
const (
	ReplacerDefault = "default"
	ReplacerBaseURL = "base-url"
)

// ReplacerSetting is one entry of the tool block's replacers object.
type ReplacerSetting struct {
	Name    string
	Enabled bool
	// File is an absolute path, or empty for built-in replacers.
	File string
}

// ProjectConfig is the merged, absolute view of a configuration chain.
// It is read-only once Resolve returns.
type ProjectConfig struct {
	ConfigFile     string
	ConfigDir      string
	BaseURL        string
	RootDir        string
	OutDir         string
	DeclarationDir string

	// Paths maps alias patterns to ordered physical templates.
	Paths map[string][]string
	// PathsDir is the directory templates in Paths are relative to: the
	// directory of the config file that declared paths.
	PathsDir string

	InputGlob            string
	OutputCheck          []string
	ResolveFullPaths     bool
	ResolveFullExtension string
	Verbose              bool
	Replacers            []ReplacerSetting

	// HasForeignTargets is set while the resolver is constructed when an
	// alias template points outside SourceRoot.
	HasForeignTargets bool

	// Chain lists the files that contributed, root config first.
	Chain []string
}

// SourceRoot is the directory whose layout the compiler mirrors into OutDir.
func (c *ProjectConfig) SourceRoot() string {
	switch {
	case c.RootDir != "":
		return c.RootDir
	case c.BaseURL != "":
		return c.BaseURL
	default:
		return c.ConfigDir
	}
}

// EnabledReplacers returns the enabled replacer settings in declaration order.
func (c *ProjectConfig) EnabledReplacers() []ReplacerSetting {
	var out []ReplacerSetting
	for _, r := range c.Replacers {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}

// Normalize returns p as an absolute, cleaned, forward-slash path.
func Normalize(p string) string {
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return filepath.ToSlash(filepath.Clean(p))
}

// resolveDir joins ref onto dir unless ref is already absolute.
func resolveDir(dir, ref string) string {
	ref = filepath.FromSlash(ref)
	if !filepath.IsAbs(ref) {
		ref = filepath.Join(filepath.FromSlash(dir), ref)
	}
	return Normalize(ref)
}

func isPathReference(ref string) bool {
	return strings.HasPrefix(ref, "./") || strings.HasPrefix(ref, "../") ||
		ref == "." || ref == ".." || filepath.IsAbs(filepath.FromSlash(ref)) ||
		strings.HasPrefix(ref, "/")
}
