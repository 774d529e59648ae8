// Package diag carries rewrite diagnostics from the engine to an injected
// sink. Nothing in the module writes to a process-wide logger.
package diag

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the severity of a Diagnostic.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return "unknown"
}

// Diagnostic codes.
const (
	CodeTargetNotFound = "target-not-found"
	CodeReplacerFailed = "replacer-failed"
	CodeRewriteFailed  = "rewrite-failed"
	CodeScanFailed     = "scan-failed"
	CodeForeignTarget  = "foreign-target"
	CodeRewritten      = "rewritten"
	CodeSkipped        = "skipped"
	CodeWatch          = "watch"
	CodeConfig         = "config"
	CodeCache          = "cache"
)

// Diagnostic is one message about a file or specifier.
type Diagnostic struct {
	Level     Level
	Code      string
	File      string
	Specifier string
	Message   string
}

// Sink receives diagnostics. Implementations must be safe for concurrent use.
type Sink interface {
	Report(d Diagnostic)
}

// Discard drops every diagnostic.
var Discard Sink = discard{}

type discard struct{}

func (discard) Report(Diagnostic) {}

// ZapSink writes diagnostics as structured zap log entries.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink wraps logger. A nil logger yields a no-op sink.
func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapSink{logger: logger}
}

func (s *ZapSink) Report(d Diagnostic) {
	fields := make([]zap.Field, 0, 3)
	if d.Code != "" {
		fields = append(fields, zap.String("code", d.Code))
	}
	if d.File != "" {
		fields = append(fields, zap.String("file", d.File))
	}
	if d.Specifier != "" {
		fields = append(fields, zap.String("specifier", d.Specifier))
	}
	if ce := s.logger.Check(zapLevel(d.Level), d.Message); ce != nil {
		ce.Write(fields...)
	}
}

func zapLevel(l Level) zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// Recorder keeps diagnostics in memory. Used by embedders that want to
// inspect results after a run.
type Recorder struct {
	mu    sync.Mutex
	diags []Diagnostic
}

func (r *Recorder) Report(d Diagnostic) {
	r.mu.Lock()
	r.diags = append(r.diags, d)
	r.mu.Unlock()
}

// Diagnostics returns a copy of everything reported so far.
func (r *Recorder) Diagnostics() []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Diagnostic, len(r.diags))
	copy(out, r.diags)
	return out
}

// ByCode returns the recorded diagnostics with the given code.
func (r *Recorder) ByCode(code string) []Diagnostic {
	var out []Diagnostic
	for _, d := range r.Diagnostics() {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}

// Tee fans a diagnostic out to several sinks.
func Tee(sinks ...Sink) Sink {
	return tee(sinks)
}

type tee []Sink

func (t tee) Report(d Diagnostic) {
	for _, s := range t {
		s.Report(d)
	}
}
