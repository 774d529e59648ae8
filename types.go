package tscalias

import (
	"go.uber.org/zap"

	"github.com/ThomasWhyne/tsc-alias/internal/config"
	"github.com/ThomasWhyne/tsc-alias/internal/diag"
	"github.com/ThomasWhyne/tsc-alias/internal/replacer"
)

// Public aliases for internal types used by the Engine API. External
// consumers use these names; no conversion is needed.

type ProjectConfig = config.ProjectConfig
type ConfigOption = config.Option
type ReplacerSetting = config.ReplacerSetting

type Diagnostic = diag.Diagnostic
type DiagnosticLevel = diag.Level
type Sink = diag.Sink
type Recorder = diag.Recorder

type Replacer = replacer.Replacer
type ReplacerInput = replacer.Input
type ReplacerFunc = replacer.Func

// Diagnostic levels.
const (
	LevelDebug = diag.LevelDebug
	LevelInfo  = diag.LevelInfo
	LevelWarn  = diag.LevelWarn
	LevelError = diag.LevelError
)

// Errors returned by New, for use with errors.Is.
var (
	ErrConfigNotFound      = config.ErrConfigNotFound
	ErrMissingOutDir       = config.ErrMissingOutDir
	ErrExtendsCycle        = config.ErrExtendsCycle
	ErrExtendsUnresolvable = config.ErrExtendsUnresolvable
	ErrUnknownReplacer     = replacer.ErrUnknownReplacer
)

// Configuration overrides, applied after the extends chain is merged.
var (
	WithOutDir               = config.WithOutDir
	WithDeclarationDir       = config.WithDeclarationDir
	WithResolveFullPaths     = config.WithResolveFullPaths
	WithResolveFullExtension = config.WithResolveFullExtension
	WithVerbose              = config.WithVerbose
	WithInputGlob            = config.WithInputGlob
	WithPaths                = config.WithPaths
	WithReplacerSettings     = config.WithReplacers
)

// NewZapSink returns a Sink writing diagnostics to logger.
func NewZapSink(logger *zap.Logger) Sink {
	return diag.NewZapSink(logger)
}

// Tee returns a Sink reporting to every sink in order.
func Tee(sinks ...Sink) Sink {
	return diag.Tee(sinks...)
}
