package replacer

import (
	"context"
	"path"

	"github.com/ThomasWhyne/tsc-alias/internal/config"
	"github.com/ThomasWhyne/tsc-alias/internal/pathcache"
	"github.com/ThomasWhyne/tsc-alias/internal/resolve"
)

// sourceExts are the source files a bare baseUrl specifier may name.
var sourceExts = []string{"ts", "tsx", "mts", "cts", "d.ts", "js", "jsx", "mjs", "cjs", "json"}

// BaseURL rewrites bare specifiers that resolve to a source file or
// directory under compilerOptions.baseUrl. Anything else, including
// packages from node_modules, is declined.
type BaseURL struct {
	cfg   *config.ProjectConfig
	res   *resolve.Resolver
	cache *pathcache.Cache
}

// NewBaseURL returns the base-url replacer.
func NewBaseURL(cfg *config.ProjectConfig, res *resolve.Resolver, cache *pathcache.Cache) *BaseURL {
	return &BaseURL{cfg: cfg, res: res, cache: cache}
}

func (b *BaseURL) Name() string { return config.ReplacerBaseURL }

func (b *BaseURL) Replace(_ context.Context, in Input) (string, bool, error) {
	if in.Match != nil || b.cfg.BaseURL == "" || !isBare(in.Specifier) {
		return "", false, nil
	}
	source := path.Join(b.cfg.BaseURL, in.Specifier)
	if !b.sourceExists(source) {
		return "", false, nil
	}
	r := b.res.ResolvePath(source, in.File, in.Specifier)
	if !r.Resolved {
		return "", false, nil
	}
	return r.Specifier, true, nil
}

func (b *BaseURL) sourceExists(source string) bool {
	if b.cache.IsFile(source) {
		return true
	}
	for _, ext := range sourceExts {
		if b.cache.IsFile(source + "." + ext) {
			return true
		}
	}
	if b.cache.IsDir(source) {
		for _, ext := range sourceExts {
			if b.cache.IsFile(path.Join(source, "index."+ext)) {
				return true
			}
		}
	}
	return false
}
