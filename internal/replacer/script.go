package replacer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/object"

	"github.com/ThomasWhyne/tsc-alias/internal/diag"
)

// ScriptExt is the extension of script replacer files.
const ScriptExt = ".risor"

// Script is a replacer implemented as a Risor script. The script runs once
// per specifier with these globals:
//
//	file        absolute output path of the importing file
//	specifier   specifier as written
//	candidate   the core's computed specifier
//	alias       matched alias pattern, "" when none matched
//	capture     text captured by the alias wildcard
//	out_dir     compilerOptions.outDir
//	config_dir  directory of the root config file
//	base_url    compilerOptions.baseUrl
//	log         logger with Debug, Info, Warn and Error methods
//
// The value of the script's last expression is its result: a string
// replaces the specifier, nil declines.
type Script struct {
	name   string
	file   string
	source string
	sink   diag.Sink
}

// LoadScript reads a script replacer from file.
func LoadScript(name, file string, sink diag.Sink) (*Script, error) {
	if !strings.EqualFold(filepath.Ext(file), ScriptExt) {
		return nil, fmt.Errorf("replacer: %s: unsupported replacer file %s (want %s)", name, file, ScriptExt)
	}
	data, err := os.ReadFile(filepath.FromSlash(file))
	if err != nil {
		return nil, fmt.Errorf("replacer: loading script %s: %w", file, err)
	}
	s := NewScript(name, string(data), sink)
	s.file = file
	return s, nil
}

// NewScript returns a script replacer for source.
func NewScript(name, source string, sink diag.Sink) *Script {
	if sink == nil {
		sink = diag.Discard
	}
	return &Script{name: name, file: "<inline>", source: source, sink: sink}
}

func (s *Script) Name() string { return s.name }

func (s *Script) Replace(ctx context.Context, in Input) (string, bool, error) {
	globals := s.buildGlobals(in)

	opts := make([]risor.Option, 0, len(globals))
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}

	result, err := risor.Eval(ctx, s.source, opts...)
	if err != nil {
		return "", false, fmt.Errorf("script %s: %w", s.file, err)
	}
	switch v := result.(type) {
	case nil:
		return "", false, nil
	case *object.String:
		return v.Value(), true, nil
	}
	if result == object.Nil {
		return "", false, nil
	}
	return "", false, fmt.Errorf("script %s: result must be a string or nil, got %s", s.file, result.Type())
}

func (s *Script) buildGlobals(in Input) map[string]any {
	var pattern, capture string
	if in.Match != nil {
		pattern = in.Match.Pattern
		capture = in.Match.Capture
	}
	globals := map[string]any{
		"file":      in.File,
		"specifier": in.Specifier,
		"candidate": in.Candidate,
		"alias":     pattern,
		"capture":   capture,
		"log":       mustProxy(&logObject{sink: s.sink, file: in.File, specifier: in.Specifier, prefix: s.name}),
	}
	if cfg := in.Config; cfg != nil {
		globals["out_dir"] = cfg.OutDir
		globals["config_dir"] = cfg.ConfigDir
		globals["base_url"] = cfg.BaseURL
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("replacer: proxy error: %v", err))
	}
	return p
}

// logObject provides log.debug/info/warn/error for scripts and routes them
// to the diagnostic sink.
type logObject struct {
	sink      diag.Sink
	file      string
	specifier string
	prefix    string
}

func (l *logObject) report(level diag.Level, msg string) {
	l.sink.Report(diag.Diagnostic{
		Level:     level,
		File:      l.file,
		Specifier: l.specifier,
		Message:   fmt.Sprintf("[%s] %s", l.prefix, msg),
	})
}

func (l *logObject) Debug(msg string) { l.report(diag.LevelDebug, msg) }

func (l *logObject) Info(msg string) { l.report(diag.LevelInfo, msg) }

func (l *logObject) Warn(msg string) { l.report(diag.LevelWarn, msg) }

func (l *logObject) Error(msg string) { l.report(diag.LevelError, msg) }
