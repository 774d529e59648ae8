package diag

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapSink_WritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := NewZapSink(zap.New(core))

	s.Report(Diagnostic{
		Level:     LevelWarn,
		Code:      CodeTargetNotFound,
		File:      "/out/a.js",
		Specifier: "@app/x",
		Message:   "no output file for alias target",
	})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "no output file for alias target", entry.Message)
	ctx := entry.ContextMap()
	assert.Equal(t, CodeTargetNotFound, ctx["code"])
	assert.Equal(t, "/out/a.js", ctx["file"])
	assert.Equal(t, "@app/x", ctx["specifier"])
}

func TestZapSink_RespectsLevel(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := NewZapSink(zap.New(core))

	s.Report(Diagnostic{Level: LevelDebug, Message: "trace"})
	s.Report(Diagnostic{Level: LevelError, Message: "boom"})

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "boom", logs.All()[0].Message)
}

func TestZapSink_NilLogger(t *testing.T) {
	s := NewZapSink(nil)
	s.Report(Diagnostic{Level: LevelError, Message: "ignored"})
}

func TestRecorder_Concurrent(t *testing.T) {
	var r Recorder
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Report(Diagnostic{Code: CodeRewritten})
		}()
	}
	wg.Wait()
	assert.Len(t, r.Diagnostics(), 50)
	assert.Len(t, r.ByCode(CodeRewritten), 50)
	assert.Empty(t, r.ByCode(CodeTargetNotFound))
}

func TestTee(t *testing.T) {
	var a, b Recorder
	Tee(&a, &b, Discard).Report(Diagnostic{Code: CodeSkipped})
	assert.Len(t, a.Diagnostics(), 1)
	assert.Len(t, b.Diagnostics(), 1)
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "warn", LevelWarn.String())
	assert.Equal(t, "unknown", Level(42).String())
}
