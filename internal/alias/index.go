// Package alias indexes path aliases in a segment trie and matches import
// specifiers against them.
//
// Nodes live in a flat arena and refer to each other by index. A node has
// ordered static children keyed by path segment and any number of wildcard
// edges. Lookup follows static children as deep as the specifier allows and
// only then falls back to wildcard edges, deepest node first, so the longest
// static prefix always wins.
package alias

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ThomasWhyne/tsc-alias/internal/config"
)

// ErrInvalidPattern is returned for patterns or templates with more than one
// wildcard.
var ErrInvalidPattern = errors.New("invalid alias pattern")

const wildcard = "*"

// Entry is one alias pattern with its ordered physical templates.
type Entry struct {
	Pattern   string
	Templates []string
}

// Match is the result of a successful Lookup.
type Match struct {
	Pattern string
	// Capture is the text the wildcard consumed. Empty for exact patterns.
	Capture  string
	Wildcard bool
	// Templates are the raw templates, in declaration order.
	Templates []string
	// Candidates are the templates with the capture substituted, as
	// absolute slash paths. Candidates[i] comes from Templates[i].
	Candidates []string
}

type edge struct {
	segment string
	child   int32
}

type wildEdge struct {
	// prefix is the part of the wildcard segment before "*", suffix is
	// everything in the pattern after "*".
	prefix string
	suffix string
	entry  int32
}

type node struct {
	edges []edge // sorted by segment
	wild  []wildEdge
	entry int32 // exact-pattern terminal, -1 if none
}

// Index is an immutable alias trie. It is safe for concurrent lookups.
type Index struct {
	nodes   []node
	entries []Entry
	baseDir string
}

// Build indexes cfg.Paths with templates relative to cfg.PathsDir.
func Build(cfg *config.ProjectConfig) (*Index, error) {
	return New(cfg.Paths, cfg.PathsDir)
}

// New indexes paths. Relative templates are joined onto baseDir.
func New(paths map[string][]string, baseDir string) (*Index, error) {
	idx := &Index{
		nodes:   []node{{entry: -1}},
		baseDir: baseDir,
	}

	patterns := make([]string, 0, len(paths))
	for p := range paths {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)

	for _, p := range patterns {
		if err := idx.insert(p, paths[p]); err != nil {
			return nil, err
		}
	}
	for i := range idx.nodes {
		sortWild(idx.nodes[i].wild)
	}
	return idx, nil
}

// Len reports the number of indexed patterns.
func (idx *Index) Len() int {
	return len(idx.entries)
}

func (idx *Index) insert(pattern string, templates []string) error {
	if strings.Count(pattern, wildcard) > 1 {
		return fmt.Errorf("alias: %q: %w", pattern, ErrInvalidPattern)
	}
	for _, t := range templates {
		if strings.Count(t, wildcard) > 1 {
			return fmt.Errorf("alias: %q template %q: %w", pattern, t, ErrInvalidPattern)
		}
	}

	entryID := int32(len(idx.entries))
	idx.entries = append(idx.entries, Entry{Pattern: pattern, Templates: templates})

	star := strings.Index(pattern, wildcard)
	if star < 0 {
		n := idx.walkCreate(strings.Split(pattern, "/"))
		idx.nodes[n].entry = entryID
		return nil
	}

	// Static segments end at the last "/" before the wildcard.
	head := pattern[:star]
	var static []string
	segPrefix := head
	if slash := strings.LastIndex(head, "/"); slash >= 0 {
		static = strings.Split(head[:slash], "/")
		segPrefix = head[slash+1:]
	}
	n := idx.walkCreate(static)
	idx.nodes[n].wild = append(idx.nodes[n].wild, wildEdge{
		prefix: segPrefix,
		suffix: pattern[star+1:],
		entry:  entryID,
	})
	return nil
}

// walkCreate follows segs from the root, creating missing nodes.
func (idx *Index) walkCreate(segs []string) int32 {
	var cur int32
	for _, seg := range segs {
		child, ok := idx.child(cur, seg)
		if !ok {
			child = int32(len(idx.nodes))
			idx.nodes = append(idx.nodes, node{entry: -1})
			idx.addEdge(cur, seg, child)
		}
		cur = child
	}
	return cur
}

func (idx *Index) child(n int32, seg string) (int32, bool) {
	edges := idx.nodes[n].edges
	i := sort.Search(len(edges), func(i int) bool { return edges[i].segment >= seg })
	if i < len(edges) && edges[i].segment == seg {
		return edges[i].child, true
	}
	return 0, false
}

func (idx *Index) addEdge(n int32, seg string, child int32) {
	edges := idx.nodes[n].edges
	i := sort.Search(len(edges), func(i int) bool { return edges[i].segment >= seg })
	edges = append(edges, edge{})
	copy(edges[i+1:], edges[i:])
	edges[i] = edge{segment: seg, child: child}
	idx.nodes[n].edges = edges
}

// sortWild orders wildcard edges most specific first: longer segment
// prefix, then longer suffix.
func sortWild(w []wildEdge) {
	sort.SliceStable(w, func(i, j int) bool {
		if len(w[i].prefix) != len(w[j].prefix) {
			return len(w[i].prefix) > len(w[j].prefix)
		}
		return len(w[i].suffix) > len(w[j].suffix)
	})
}

// Lookup matches specifier against the index. Relative and absolute
// specifiers never match.
func (idx *Index) Lookup(specifier string) (Match, bool) {
	if specifier == "" || isRelative(specifier) || strings.HasPrefix(specifier, "/") ||
		filepath.IsAbs(filepath.FromSlash(specifier)) {
		return Match{}, false
	}

	segs := strings.Split(specifier, "/")

	// Walk static edges, remembering every node on the way with the byte
	// offset of the first unconsumed segment.
	type step struct {
		node   int32
		offset int
	}
	trail := []step{{node: 0, offset: 0}}
	cur, offset := int32(0), 0
	consumed := 0
	for _, seg := range segs {
		child, ok := idx.child(cur, seg)
		if !ok {
			break
		}
		cur = child
		offset += len(seg) + 1
		consumed++
		trail = append(trail, step{node: cur, offset: offset})
	}

	if consumed == len(segs) {
		if e := idx.nodes[cur].entry; e >= 0 {
			return idx.match(e, "", false), true
		}
	}

	for i := len(trail) - 1; i >= 0; i-- {
		st := trail[i]
		if st.offset > len(specifier) {
			continue
		}
		rest := specifier[st.offset:]
		for _, w := range idx.nodes[st.node].wild {
			if len(rest) < len(w.prefix)+len(w.suffix) {
				continue
			}
			if !strings.HasPrefix(rest, w.prefix) || !strings.HasSuffix(rest, w.suffix) {
				continue
			}
			capture := rest[len(w.prefix) : len(rest)-len(w.suffix)]
			return idx.match(w.entry, capture, true), true
		}
	}
	return Match{}, false
}

func (idx *Index) match(entryID int32, capture string, wild bool) Match {
	e := idx.entries[entryID]
	m := Match{
		Pattern:    e.Pattern,
		Capture:    capture,
		Wildcard:   wild,
		Templates:  e.Templates,
		Candidates: make([]string, 0, len(e.Templates)),
	}
	for _, t := range e.Templates {
		m.Candidates = append(m.Candidates, idx.expand(t, capture))
	}
	return m
}

func (idx *Index) expand(template, capture string) string {
	p := strings.Replace(template, wildcard, capture, 1)
	p = filepath.ToSlash(p)
	if !path.IsAbs(p) && !filepath.IsAbs(filepath.FromSlash(p)) {
		p = path.Join(idx.baseDir, p)
	}
	return path.Clean(p)
}

func isRelative(s string) bool {
	return s == "." || s == ".." || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../")
}
