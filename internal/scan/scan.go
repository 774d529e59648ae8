// Package scan finds module specifiers in compiled JavaScript and
// declaration files using tree-sitter.
package scan

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	ts "github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Kind says which construct a specifier came from.
type Kind string

const (
	KindImport        Kind = "import"
	KindExport        Kind = "export"
	KindRequire       Kind = "require"
	KindDynamicImport Kind = "dynamic-import"
	KindImportEquals  Kind = "import-equals"
)

// Token is one specifier. Start and End are byte offsets of the specifier
// text inside its quotes.
type Token struct {
	Value string
	Start int
	End   int
	Kind  Kind
}

var (
	grammars     map[string]*sitter.Language
	grammarsOnce sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		grammars = map[string]*sitter.Language{
			"javascript": javascript.GetLanguage(),
			"typescript": ts.GetLanguage(),
			"tsx":        tsx.GetLanguage(),
		}
	})
}

// extToGrammar maps the last extension of a compiled file to a grammar.
// Declaration files (.d.ts, .d.mts) end in a TypeScript extension.
var extToGrammar = map[string]string{
	".js":  "javascript",
	".jsx": "javascript",
	".mjs": "javascript",
	".cjs": "javascript",
	".ts":  "typescript",
	".mts": "typescript",
	".cts": "typescript",
	".tsx": "tsx",
}

// LanguageForFile returns the grammar for path, or false when the extension
// is not scanned.
func LanguageForFile(path string) (*sitter.Language, bool) {
	name, ok := extToGrammar[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, false
	}
	initGrammars()
	return grammars[name], true
}

// Specifiers parses src and returns its specifiers in source order. Files
// with unsupported extensions yield no tokens. Each call uses its own
// parser, so Specifiers is safe for concurrent use.
func Specifiers(ctx context.Context, path string, src []byte) ([]Token, error) {
	lang, ok := LanguageForFile(path)
	if !ok {
		return nil, nil
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("scan: parse %s: %w", path, err)
	}
	defer tree.Close()

	var out []Token
	walk(tree.RootNode(), func(n *sitter.Node) {
		if n.Type() != "string" {
			return
		}
		kind, ok := classify(n, src)
		if !ok {
			return
		}
		start, end := int(n.StartByte())+1, int(n.EndByte())-1
		if end < start {
			return
		}
		out = append(out, Token{
			Value: string(src[start:end]),
			Start: start,
			End:   end,
			Kind:  kind,
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

func walk(n *sitter.Node, visit func(*sitter.Node)) {
	if n == nil {
		return
	}
	visit(n)
	count := int(n.NamedChildCount())
	for i := 0; i < count; i++ {
		walk(n.NamedChild(i), visit)
	}
}

// classify decides whether a string literal is a module specifier.
func classify(n *sitter.Node, src []byte) (Kind, bool) {
	parent := n.Parent()
	if parent == nil {
		return "", false
	}
	switch parent.Type() {
	case "import_statement":
		if sameNode(parent.ChildByFieldName("source"), n) {
			return KindImport, true
		}
	case "export_statement":
		if sameNode(parent.ChildByFieldName("source"), n) {
			return KindExport, true
		}
	case "import_require_clause":
		return KindImportEquals, true
	case "arguments":
		if !sameNode(parent.NamedChild(0), n) {
			return "", false
		}
		if prev := parent.PrevSibling(); prev != nil && prev.Type() == "import" {
			return KindDynamicImport, true
		}
		call := parent.Parent()
		if call == nil || call.Type() != "call_expression" {
			return "", false
		}
		fn := call.ChildByFieldName("function")
		if fn == nil {
			return "", false
		}
		switch {
		case fn.Type() == "import":
			return KindDynamicImport, true
		case fn.Type() == "identifier" && fn.Content(src) == "require":
			return KindRequire, true
		}
	}
	return "", false
}

func sameNode(a, b *sitter.Node) bool {
	return a != nil && b != nil && a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte()
}

// Edit replaces src[Start:End] with Text.
type Edit struct {
	Start int
	End   int
	Text  string
}

// Apply returns src with edits applied. Edits must not overlap.
func Apply(src []byte, edits []Edit) []byte {
	if len(edits) == 0 {
		return src
	}
	sorted := make([]Edit, len(edits))
	copy(sorted, edits)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var b strings.Builder
	b.Grow(len(src))
	last := 0
	for _, e := range sorted {
		b.Write(src[last:e.Start])
		b.WriteString(e.Text)
		last = e.End
	}
	b.Write(src[last:])
	return []byte(b.String())
}
