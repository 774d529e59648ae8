package scan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func values(tokens []Token) []string {
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		out = append(out, tok.Value)
	}
	return out
}

func TestSpecifiers_JavaScript(t *testing.T) {
	t.Parallel()
	src := []byte(`import a from "@app/a";
import "@app/side-effect";
export { b } from '@app/b';
export * from "@app/c";
const d = require("@app/d");
const e = await import("@app/e");
const notASpecifier = "@app/f";
foo("@app/g");
`)

	tokens, err := Specifiers(context.Background(), "/out/main.js", src)
	require.NoError(t, err)
	assert.Equal(t, []string{"@app/a", "@app/side-effect", "@app/b", "@app/c", "@app/d", "@app/e"}, values(tokens))

	kinds := []Kind{}
	for _, tok := range tokens {
		kinds = append(kinds, tok.Kind)
		assert.Equal(t, tok.Value, string(src[tok.Start:tok.End]))
	}
	assert.Equal(t, []Kind{KindImport, KindImport, KindExport, KindExport, KindRequire, KindDynamicImport}, kinds)
}

func TestSpecifiers_RequireOnlyFirstArgument(t *testing.T) {
	t.Parallel()
	src := []byte(`require("@app/a", "@app/not");`)

	tokens, err := Specifiers(context.Background(), "x.cjs", src)
	require.NoError(t, err)
	assert.Equal(t, []string{"@app/a"}, values(tokens))
}

func TestSpecifiers_Declaration(t *testing.T) {
	t.Parallel()
	src := []byte(`import type { A } from "@app/types";
export declare function f(): void;
export * from "@app/b";
import x = require("@app/legacy");
export declare const c: import("@app/c").Config;
export type D = typeof import("@app/d");
`)

	tokens, err := Specifiers(context.Background(), "/out/index.d.ts", src)
	require.NoError(t, err)
	assert.Equal(t, []string{"@app/types", "@app/b", "@app/legacy", "@app/c", "@app/d"}, values(tokens))
	assert.Equal(t, KindImportEquals, tokens[2].Kind)
	for _, tok := range tokens {
		assert.Equal(t, tok.Value, string(src[tok.Start:tok.End]))
	}
}

func TestSpecifiers_UnsupportedExtension(t *testing.T) {
	t.Parallel()
	tokens, err := Specifiers(context.Background(), "styles.css", []byte(`@import "x";`))
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestLanguageForFile(t *testing.T) {
	t.Parallel()
	for _, p := range []string{"a.js", "a.MJS", "a.cjs", "a.jsx", "a.d.ts", "a.d.mts", "a.tsx"} {
		_, ok := LanguageForFile(p)
		assert.True(t, ok, p)
	}
	_, ok := LanguageForFile("a.json")
	assert.False(t, ok)
}

func TestApply(t *testing.T) {
	t.Parallel()
	src := []byte(`import a from "@app/a"; import b from "@app/b";`)
	tokens, err := Specifiers(context.Background(), "m.js", src)
	require.NoError(t, err)
	require.Len(t, tokens, 2)

	out := Apply(src, []Edit{
		{Start: tokens[1].Start, End: tokens[1].End, Text: "./b"},
		{Start: tokens[0].Start, End: tokens[0].End, Text: "../lib/a"},
	})
	assert.Equal(t, `import a from "../lib/a"; import b from "./b";`, string(out))
}

func TestApply_NoEdits(t *testing.T) {
	t.Parallel()
	src := []byte("x")
	assert.Equal(t, src, Apply(src, nil))
}
