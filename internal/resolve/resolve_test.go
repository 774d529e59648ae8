package resolve

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ThomasWhyne/tsc-alias/internal/alias"
	"github.com/ThomasWhyne/tsc-alias/internal/config"
	"github.com/ThomasWhyne/tsc-alias/internal/pathcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	root string
	cfg  *config.ProjectConfig
	idx  *alias.Index
	r    *Resolver
}

func (f *fixture) abs(rel string) string {
	return filepath.ToSlash(filepath.Join(f.root, filepath.FromSlash(rel)))
}

func (f *fixture) touch(t *testing.T, rel string) {
	t.Helper()
	p := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, nil, 0o644))
}

func (f *fixture) resolve(t *testing.T, importer, spec string) Result {
	t.Helper()
	m, ok := f.idx.Lookup(spec)
	require.True(t, ok, "alias %s should match", spec)
	return f.r.Resolve(m, f.abs(importer), spec)
}

// newFixture builds a project rooted in a temp dir. setup runs before the
// resolver is constructed so files it creates are visible to layout probes.
func newFixture(t *testing.T, mutate func(f *fixture), setup func(f *fixture)) *fixture {
	t.Helper()
	root := filepath.ToSlash(t.TempDir())
	f := &fixture{root: root}
	f.cfg = &config.ProjectConfig{
		ConfigDir:   root,
		PathsDir:    root,
		BaseURL:     root + "/src",
		OutDir:      root + "/dist",
		Paths:       map[string][]string{"@app/*": {"src/app/*"}},
		OutputCheck: config.DefaultOutputCheck,
	}
	if mutate != nil {
		mutate(f)
	}
	if setup != nil {
		setup(f)
	}
	idx, err := alias.Build(f.cfg)
	require.NoError(t, err)
	f.idx = idx
	f.r = New(f.cfg, pathcache.New(64))
	return f
}

func TestResolve_RebasesUnderOutDir(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, nil)

	res := f.resolve(t, "dist/pages/home.js", "@app/utils/math")
	require.NoError(t, res.Err)
	assert.True(t, res.Resolved)
	assert.Equal(t, "../app/utils/math", res.Specifier)
	assert.Equal(t, "@app/*", res.Pattern)
	assert.Equal(t, 0, res.TemplateIndex)
	assert.Equal(t, f.abs("dist/app/utils/math"), res.Target)
	assert.False(t, res.Foreign)
	assert.False(t, f.cfg.HasForeignTargets)
}

func TestResolve_SameDirectoryGetsDotSlash(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, nil)

	res := f.resolve(t, "dist/app/index.js", "@app/math")
	assert.Equal(t, "./math", res.Specifier)
}

func TestResolve_FullPathAppendsExtension(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(f *fixture) { f.cfg.ResolveFullPaths = true }, func(f *fixture) {
		f.touch(t, "dist/app/utils/math.js")
	})

	res := f.resolve(t, "dist/pages/home.js", "@app/utils/math")
	require.NoError(t, res.Err)
	assert.Equal(t, "../app/utils/math.js", res.Specifier)
}

func TestResolve_FullPathMissingTargetKeepsOriginal(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(f *fixture) { f.cfg.ResolveFullPaths = true }, nil)

	res := f.resolve(t, "dist/pages/home.js", "@app/utils/math")
	require.ErrorIs(t, res.Err, ErrTargetNotFound)
	assert.False(t, res.Resolved)
	assert.Equal(t, "@app/utils/math", res.Specifier)
}

func TestResolve_FullPathFallbackExtension(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(f *fixture) {
		f.cfg.ResolveFullPaths = true
		f.cfg.ResolveFullExtension = "mjs"
	}, nil)

	res := f.resolve(t, "dist/pages/home.js", "@app/utils/math")
	require.NoError(t, res.Err)
	assert.Equal(t, "../app/utils/math.mjs", res.Specifier)
}

func TestResolve_FullPathDirectoryIndex(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(f *fixture) { f.cfg.ResolveFullPaths = true }, func(f *fixture) {
		f.touch(t, "dist/app/components/index.js")
	})

	res := f.resolve(t, "dist/main.js", "@app/components")
	require.NoError(t, res.Err)
	assert.Equal(t, "./app/components/index.js", res.Specifier)
}

func TestResolve_FullPathKeepsExistingExtension(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(f *fixture) { f.cfg.ResolveFullPaths = true }, func(f *fixture) {
		f.touch(t, "dist/app/data.json")
	})

	res := f.resolve(t, "dist/main.js", "@app/data.json")
	require.NoError(t, res.Err)
	assert.Equal(t, "./app/data.json", res.Specifier)
}

func TestResolve_ScriptImporterIgnoresDeclarations(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(f *fixture) { f.cfg.ResolveFullPaths = true }, func(f *fixture) {
		f.touch(t, "dist/app/types.d.ts")
	})

	res := f.resolve(t, "dist/main.js", "@app/types")
	require.ErrorIs(t, res.Err, ErrTargetNotFound)
}

func TestResolve_DeclarationImporterMapsToScriptName(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(f *fixture) {
		f.cfg.ResolveFullPaths = true
		f.cfg.DeclarationDir = f.root + "/types"
	}, func(f *fixture) {
		f.touch(t, "types/app/model.d.mts")
	})

	res := f.resolve(t, "types/pages/home.d.ts", "@app/model")
	require.NoError(t, res.Err)
	assert.Equal(t, "../app/model.mjs", res.Specifier)
	assert.Equal(t, f.abs("types/app/model.mjs"), res.Target)
}

func TestResolve_DeclarationDirRoot(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(f *fixture) { f.cfg.DeclarationDir = f.root + "/types" }, nil)

	res := f.resolve(t, "types/pages/home.d.ts", "@app/utils/math")
	assert.Equal(t, "../app/utils/math", res.Specifier)
	assert.Equal(t, f.abs("types/app/utils/math"), res.Target)

	// Script output still resolves under outDir.
	res = f.resolve(t, "dist/pages/home.js", "@app/utils/math")
	assert.Equal(t, f.abs("dist/app/utils/math"), res.Target)
}

func TestResolve_FirstExistingTemplateWins(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(f *fixture) {
		f.cfg.Paths = map[string][]string{"@lib/*": {"src/first/*", "src/second/*"}}
	}, func(f *fixture) {
		f.touch(t, "dist/second/log.js")
	})

	res := f.resolve(t, "dist/main.js", "@lib/log")
	assert.Equal(t, 1, res.TemplateIndex)
	assert.Equal(t, "./second/log", res.Specifier)
}

func TestResolve_NoTemplateExistsUsesFirst(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(f *fixture) {
		f.cfg.Paths = map[string][]string{"@lib/*": {"src/first/*", "src/second/*"}}
	}, nil)

	res := f.resolve(t, "dist/main.js", "@lib/log")
	assert.Equal(t, 0, res.TemplateIndex)
	assert.Equal(t, "./first/log", res.Specifier)
}

func TestResolve_RootDirTakesPrecedenceOverBaseURL(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(f *fixture) {
		f.cfg.RootDir = f.root
		f.cfg.BaseURL = f.root + "/src"
	}, nil)

	res := f.resolve(t, "dist/src/pages/home.js", "@app/x")
	assert.Equal(t, "../app/x", res.Specifier)
	assert.Equal(t, f.abs("dist/src/app/x"), res.Target)
}

func TestResolve_ForeignTargetNestedOutput(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(f *fixture) {
		f.cfg.ConfigDir = f.root + "/packages/app"
		f.cfg.PathsDir = f.root + "/packages/app"
		f.cfg.BaseURL = f.root + "/packages/app/src"
		f.cfg.OutDir = f.root + "/packages/app/dist"
		f.cfg.Paths = map[string][]string{
			"@app/*":    {"src/*"},
			"@shared/*": {"../shared/src/*"},
		}
	}, func(f *fixture) {
		// The compiler nested output under the common ancestor.
		f.touch(t, "packages/app/dist/app/src/main.js")
		f.touch(t, "packages/app/dist/shared/src/log.js")
	})
	require.True(t, f.r.HasForeignTargets())
	require.True(t, f.r.Nested())
	assert.True(t, f.cfg.HasForeignTargets)

	res := f.resolve(t, "packages/app/dist/app/src/main.js", "@shared/log")
	assert.True(t, res.Foreign)
	assert.Equal(t, "../../shared/src/log", res.Specifier)

	res = f.resolve(t, "packages/app/dist/app/src/main.js", "@app/util")
	assert.False(t, res.Foreign)
	assert.Equal(t, "./util", res.Specifier)
}

func TestResolve_ForeignTargetWithoutNesting(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(f *fixture) {
		f.cfg.Paths = map[string][]string{"@vendor/*": {"vendor/*"}}
	}, nil)
	require.True(t, f.r.HasForeignTargets())
	require.False(t, f.r.Nested())

	res := f.resolve(t, "dist/main.js", "@vendor/lib")
	assert.True(t, res.Foreign)
	assert.Equal(t, f.abs("vendor/lib"), res.Target)
	assert.Equal(t, "../vendor/lib", res.Specifier)
}

func TestResolvePath(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil, nil)

	res := f.r.ResolvePath(f.abs("src/utils/math"), f.abs("dist/pages/home.js"), "utils/math")
	assert.True(t, res.Resolved)
	assert.Equal(t, -1, res.TemplateIndex)
	assert.Equal(t, "../utils/math", res.Specifier)
}

func TestRelative(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "./a/b", Relative("/x", "/x/a/b"))
	assert.Equal(t, "../a", Relative("/x/y", "/x/a"))
	assert.Equal(t, "..", Relative("/x/y", "/x"))
	assert.Equal(t, "./", Relative("/x", "/x"))
}

func TestIsDeclaration(t *testing.T) {
	t.Parallel()
	assert.True(t, IsDeclaration("a.d.ts"))
	assert.True(t, IsDeclaration("/x/a.d.mts"))
	assert.False(t, IsDeclaration("a.ts"))
	assert.False(t, IsDeclaration("a.js"))
}
