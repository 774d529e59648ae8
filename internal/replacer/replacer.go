// Package replacer defines the transformation steps applied to each
// specifier after core resolution.
//
// A Pipeline runs its replacers in order. The first replacer that returns a
// value decides the specifier; a replacer that declines defers to the next.
// When every replacer declines, the core's candidate is used unchanged.
package replacer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ThomasWhyne/tsc-alias/internal/alias"
	"github.com/ThomasWhyne/tsc-alias/internal/config"
	"github.com/ThomasWhyne/tsc-alias/internal/diag"
	"github.com/ThomasWhyne/tsc-alias/internal/pathcache"
	"github.com/ThomasWhyne/tsc-alias/internal/resolve"
)

// ErrUnknownReplacer is returned when the configuration names a replacer
// that is neither built in, backed by a file, nor registered by the caller.
var ErrUnknownReplacer = errors.New("unknown replacer")

// Input is what a replacer sees for one specifier.
type Input struct {
	// File is the absolute output path of the importing file.
	File string
	// Specifier is the specifier as written in File.
	Specifier string
	// Match is the alias match, nil when no alias matched.
	Match *alias.Match
	// Candidate is the core's computed specifier. It equals Specifier when
	// nothing was resolved.
	Candidate string
	Config    *config.ProjectConfig
}

// Replacer transforms a specifier. It returns ok=false to decline.
type Replacer interface {
	Name() string
	Replace(ctx context.Context, in Input) (out string, ok bool, err error)
}

// Func adapts a function to the Replacer interface.
type Func struct {
	ReplacerName string
	Fn           func(ctx context.Context, in Input) (string, bool, error)
}

func (f Func) Name() string { return f.ReplacerName }

func (f Func) Replace(ctx context.Context, in Input) (string, bool, error) {
	return f.Fn(ctx, in)
}

// Pipeline is an ordered list of replacers. It is safe for concurrent use
// when its replacers are.
type Pipeline struct {
	replacers []Replacer
	sink      diag.Sink
}

// NewPipeline returns a pipeline that reports replacer failures to sink.
func NewPipeline(sink diag.Sink, replacers ...Replacer) *Pipeline {
	if sink == nil {
		sink = diag.Discard
	}
	return &Pipeline{replacers: replacers, sink: sink}
}

// Names lists the replacers in pipeline order.
func (p *Pipeline) Names() []string {
	out := make([]string, 0, len(p.replacers))
	for _, r := range p.replacers {
		out = append(out, r.Name())
	}
	return out
}

// Apply runs the pipeline for one specifier.
func (p *Pipeline) Apply(ctx context.Context, in Input) string {
	for _, r := range p.replacers {
		out, ok, err := r.Replace(ctx, in)
		if err != nil {
			p.sink.Report(diag.Diagnostic{
				Level:     diag.LevelError,
				Code:      diag.CodeReplacerFailed,
				File:      in.File,
				Specifier: in.Specifier,
				Message:   fmt.Sprintf("replacer %s: %v", r.Name(), err),
			})
			continue
		}
		if ok {
			return out
		}
	}
	return in.Candidate
}

// Default returns the core candidate for matched aliases. Replacers ordered
// after it only see specifiers no alias matched.
type Default struct{}

func (Default) Name() string { return config.ReplacerDefault }

func (Default) Replace(_ context.Context, in Input) (string, bool, error) {
	if in.Match == nil || in.Candidate == in.Specifier {
		return "", false, nil
	}
	return in.Candidate, true, nil
}

// FromConfig builds the pipeline for cfg's enabled replacers. Registered
// replacers named in the configuration take the configured position; the
// rest run first, in registration order.
func FromConfig(cfg *config.ProjectConfig, res *resolve.Resolver, cache *pathcache.Cache, sink diag.Sink, registered ...Replacer) (*Pipeline, error) {
	byName := make(map[string]Replacer, len(registered))
	for _, r := range registered {
		byName[r.Name()] = r
	}

	configured := make(map[string]bool)
	var ordered []Replacer
	for _, s := range cfg.EnabledReplacers() {
		configured[s.Name] = true
		if r, ok := byName[s.Name]; ok {
			ordered = append(ordered, r)
			continue
		}
		switch {
		case s.File != "":
			script, err := LoadScript(s.Name, s.File, sink)
			if err != nil {
				return nil, err
			}
			ordered = append(ordered, script)
		case s.Name == config.ReplacerDefault:
			ordered = append(ordered, Default{})
		case s.Name == config.ReplacerBaseURL:
			ordered = append(ordered, NewBaseURL(cfg, res, cache))
		default:
			return nil, fmt.Errorf("replacer: %q: %w", s.Name, ErrUnknownReplacer)
		}
	}
	// Disabled entries still count as configured.
	for _, s := range cfg.Replacers {
		configured[s.Name] = true
	}

	var first []Replacer
	for _, r := range registered {
		if !configured[r.Name()] {
			first = append(first, r)
		}
	}
	return NewPipeline(sink, append(first, ordered...)...), nil
}

func isBare(spec string) bool {
	if spec == "" || strings.HasPrefix(spec, ".") || strings.HasPrefix(spec, "/") {
		return false
	}
	// URLs and node: style builtins.
	return !strings.Contains(spec, ":")
}
