package logging

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, level zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(level)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })
	return logs
}

func TestGet_TagsCategory(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	Get(CategoryFetch).Info("fetched %d symbols", 3)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "fetched 3 symbols", entry.Message)
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	assert.Equal(t, "fetch", entry.ContextMap()["category"])
}

func TestGet_CachedPerCategory(t *testing.T) {
	observe(t, zapcore.DebugLevel)

	assert.Same(t, Get(CategoryState), Get(CategoryState))
	assert.NotSame(t, Get(CategoryState), Get(CategoryExec))
}

func TestSetLogger_ResetsCache(t *testing.T) {
	first := observe(t, zapcore.DebugLevel)
	Get(CategoryArchive).Info("one")

	second := observe(t, zapcore.DebugLevel)
	Get(CategoryArchive).Info("two")

	assert.Equal(t, 1, first.Len())
	assert.Equal(t, 1, second.Len())
	assert.Equal(t, "two", second.All()[0].Message)
}

func TestLevelFiltering(t *testing.T) {
	logs := observe(t, zapcore.WarnLevel)

	l := Get(CategoryPipeline)
	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")
	l.Error("shown")

	assert.Equal(t, 2, logs.Len())
}

func TestWith_AddsFields(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	Get(CategoryFetch).With("debug_file", "foo.pdb").Warn("timed out")

	require.Equal(t, 1, logs.Len())
	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, "foo.pdb", ctx["debug_file"])
	assert.Equal(t, "fetch", ctx["category"])
}

func TestTimer_StopWithThreshold(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	timer := StartTimer(CategoryExec, "slow op")
	timer.start = time.Now().Add(-2 * time.Second)
	elapsed := timer.StopWithThreshold(time.Second)

	assert.GreaterOrEqual(t, elapsed, 2*time.Second)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
}

func TestInitialize(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	file := filepath.Join(t.TempDir(), "symfetch.log")
	l, err := Initialize(Options{Level: "warn", Format: "json", File: file})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	l, err = Initialize(Options{Level: "warn", Format: "console", Verbose: true})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	_, err = Initialize(Options{Level: "loud"})
	assert.Error(t, err)
}
