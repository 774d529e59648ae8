package alias

import (
	"testing"

	"github.com/ThomasWhyne/tsc-alias/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNew(t *testing.T, paths map[string][]string) *Index {
	t.Helper()
	idx, err := New(paths, "/proj")
	require.NoError(t, err)
	return idx
}

func TestLookup_WildcardCapture(t *testing.T) {
	t.Parallel()
	idx := mustNew(t, map[string][]string{"@app/*": {"src/app/*"}})

	m, ok := idx.Lookup("@app/utils/math")
	require.True(t, ok)
	assert.Equal(t, "@app/*", m.Pattern)
	assert.Equal(t, "utils/math", m.Capture)
	assert.True(t, m.Wildcard)
	assert.Equal(t, []string{"/proj/src/app/utils/math"}, m.Candidates)
}

func TestLookup_LongestStaticPrefixWins(t *testing.T) {
	t.Parallel()
	idx := mustNew(t, map[string][]string{
		"@app/*":       {"src/app/*"},
		"@app/utils/*": {"src/shared/utils/*"},
	})

	m, ok := idx.Lookup("@app/utils/math")
	require.True(t, ok)
	assert.Equal(t, "@app/utils/*", m.Pattern)
	assert.Equal(t, "math", m.Capture)
	assert.Equal(t, []string{"/proj/src/shared/utils/math"}, m.Candidates)

	m, ok = idx.Lookup("@app/pages/home")
	require.True(t, ok)
	assert.Equal(t, "@app/*", m.Pattern)
	assert.Equal(t, "pages/home", m.Capture)
}

func TestLookup_ExactBeatsWildcardAtSameDepth(t *testing.T) {
	t.Parallel()
	idx := mustNew(t, map[string][]string{
		"@app/*":     {"src/*"},
		"@app/utils": {"src/lib/utils/index"},
		"@app":       {"src/main"},
	})

	m, ok := idx.Lookup("@app/utils")
	require.True(t, ok)
	assert.Equal(t, "@app/utils", m.Pattern)
	assert.False(t, m.Wildcard)
	assert.Equal(t, []string{"/proj/src/lib/utils/index"}, m.Candidates)

	m, ok = idx.Lookup("@app")
	require.True(t, ok)
	assert.Equal(t, "@app", m.Pattern)

	m, ok = idx.Lookup("@app/utils/deep")
	require.True(t, ok)
	assert.Equal(t, "@app/*", m.Pattern)
	assert.Equal(t, "utils/deep", m.Capture)
}

func TestLookup_BacktracksPastDeadStaticBranch(t *testing.T) {
	t.Parallel()
	idx := mustNew(t, map[string][]string{
		"@app/*":            {"src/*"},
		"@app/utils/only":   {"src/special"},
		"@app/utils/only/x": {"src/special-x"},
	})

	m, ok := idx.Lookup("@app/utils/other")
	require.True(t, ok)
	assert.Equal(t, "@app/*", m.Pattern)
	assert.Equal(t, "utils/other", m.Capture)
}

func TestLookup_SegmentPrefixAndSuffix(t *testing.T) {
	t.Parallel()
	idx := mustNew(t, map[string][]string{
		"~*":               {"src*"},
		"@lib/ui-*":        {"packages/ui/*"},
		"@gen/*.generated": {"gen/*"},
	})

	m, ok := idx.Lookup("~/utils")
	require.True(t, ok)
	assert.Equal(t, "/utils", m.Capture)
	assert.Equal(t, []string{"/proj/src/utils"}, m.Candidates)

	m, ok = idx.Lookup("@lib/ui-button")
	require.True(t, ok)
	assert.Equal(t, "button", m.Capture)
	assert.Equal(t, []string{"/proj/packages/ui/button"}, m.Candidates)

	m, ok = idx.Lookup("@gen/schema.generated")
	require.True(t, ok)
	assert.Equal(t, "schema", m.Capture)

	_, ok = idx.Lookup("@gen/schema")
	assert.False(t, ok)
}

func TestLookup_LongerSegmentPrefixPreferred(t *testing.T) {
	t.Parallel()
	idx := mustNew(t, map[string][]string{
		"@x/*":     {"a/*"},
		"@x/foo-*": {"b/*"},
	})

	m, ok := idx.Lookup("@x/foo-bar")
	require.True(t, ok)
	assert.Equal(t, "@x/foo-*", m.Pattern)
	assert.Equal(t, "bar", m.Capture)
}

func TestLookup_CatchAll(t *testing.T) {
	t.Parallel()
	idx := mustNew(t, map[string][]string{
		"*":      {"types/*", "vendor/*"},
		"@app/*": {"src/*"},
	})

	m, ok := idx.Lookup("lodash")
	require.True(t, ok)
	assert.Equal(t, "*", m.Pattern)
	assert.Equal(t, []string{"/proj/types/lodash", "/proj/vendor/lodash"}, m.Candidates)

	m, ok = idx.Lookup("@app/x")
	require.True(t, ok)
	assert.Equal(t, "@app/*", m.Pattern)
}

func TestLookup_MultipleTemplatesKeepOrder(t *testing.T) {
	t.Parallel()
	idx := mustNew(t, map[string][]string{"@shared/*": {"src/shared/*", "../common/*", "/abs/*"}})

	m, ok := idx.Lookup("@shared/log")
	require.True(t, ok)
	assert.Equal(t, []string{"/proj/src/shared/log", "/common/log", "/abs/log"}, m.Candidates)
	assert.Equal(t, []string{"src/shared/*", "../common/*", "/abs/*"}, m.Templates)
}

func TestLookup_NoMatch(t *testing.T) {
	t.Parallel()
	idx := mustNew(t, map[string][]string{"@app/*": {"src/*"}})

	for _, spec := range []string{"", "react", "@application/x", "@app", "./app/x", "../x", "/abs/x", "."} {
		_, ok := idx.Lookup(spec)
		assert.False(t, ok, spec)
	}
}

func TestLookup_RelativeSpecifiersNeverMatch(t *testing.T) {
	t.Parallel()
	idx := mustNew(t, map[string][]string{"*": {"src/*"}})

	_, ok := idx.Lookup("./local")
	assert.False(t, ok)
	_, ok = idx.Lookup("../app/utils/math")
	assert.False(t, ok)
}

func TestNew_RejectsDoubleWildcard(t *testing.T) {
	t.Parallel()
	_, err := New(map[string][]string{"@a/*/*": {"src/*"}}, "/proj")
	require.ErrorIs(t, err, ErrInvalidPattern)

	_, err = New(map[string][]string{"@a/*": {"src/*/*"}}, "/proj")
	require.ErrorIs(t, err, ErrInvalidPattern)
}

func TestBuild_UsesPathsDir(t *testing.T) {
	t.Parallel()
	cfg := &config.ProjectConfig{
		Paths:    map[string][]string{"@app/*": {"src/app/*"}},
		PathsDir: "/repo/pkg",
	}
	idx, err := Build(cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())

	m, ok := idx.Lookup("@app/a")
	require.True(t, ok)
	assert.Equal(t, []string{"/repo/pkg/src/app/a"}, m.Candidates)
	assert.Equal(t, "@app/*", m.Pattern)
}

func TestLookup_TemplateWithoutWildcard(t *testing.T) {
	t.Parallel()
	idx := mustNew(t, map[string][]string{"@config/*": {"src/config/index"}})

	m, ok := idx.Lookup("@config/anything")
	require.True(t, ok)
	assert.Equal(t, []string{"/proj/src/config/index"}, m.Candidates)
}
