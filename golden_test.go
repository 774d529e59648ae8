package tscalias

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGolden walks testdata/{case}/ directories. Each case holds a
// tsconfig.json, the compiled output to rewrite, and an expected/ tree with
// the files as they must look afterwards, at the same relative paths.
func TestGolden(t *testing.T) {
	cases, err := os.ReadDir("testdata")
	if err != nil {
		t.Skip("no testdata directory found")
	}

	for _, c := range cases {
		if !c.IsDir() {
			continue
		}
		caseDir := filepath.Join("testdata", c.Name())
		if _, err := os.Stat(filepath.Join(caseDir, "tsconfig.json")); err != nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(caseDir, "expected")); err != nil {
			continue
		}

		t.Run(c.Name(), func(t *testing.T) {
			t.Parallel()
			runGoldenTest(t, caseDir)
		})
	}
}

func runGoldenTest(t *testing.T, caseDir string) {
	t.Helper()

	// Rewriting happens in place, so work on a copy.
	work := t.TempDir()
	copyTree(t, caseDir, work, "expected")

	var rec Recorder
	e, err := New(filepath.Join(work, "tsconfig.json"), WithSink(&rec))
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Run(context.Background())
	require.NoError(t, err)

	expectedRoot := filepath.Join(caseDir, "expected")
	err = filepath.WalkDir(expectedRoot, func(p string, d fs.DirEntry, err error) error {
		require.NoError(t, err)
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(expectedRoot, p)
		require.NoError(t, err)

		want, err := os.ReadFile(p)
		require.NoError(t, err)
		got, err := os.ReadFile(filepath.Join(work, rel))
		require.NoError(t, err, "missing output %s", rel)
		assert.Equal(t, string(want), string(got), "file %s", filepath.ToSlash(rel))
		return nil
	})
	require.NoError(t, err)

	// A second run is a no-op.
	rep, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep.FilesChanged, "second run changed files")
	assert.Zero(t, rep.SpecifiersRewritten)
}

// copyTree copies src into dst, skipping the top-level directory named skip.
func copyTree(t *testing.T, src, dst, skip string) {
	t.Helper()
	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if rel == skip {
				return filepath.SkipDir
			}
			return os.MkdirAll(filepath.Join(dst, rel), 0o755)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(dst, rel), data, 0o644)
	})
	require.NoError(t, err)
}
