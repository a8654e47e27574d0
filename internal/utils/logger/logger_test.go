package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRespectsLevel(t *testing.T) {
	l, err := New(&Config{LogFile: filepath.Join(t.TempDir(), "keeper.log"), Level: "warn"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	_, err = New(&Config{Level: "loud"})
	assert.Error(t, err)
}

func TestDevelopmentDefaultsToDebug(t *testing.T) {
	l, err := New(&Config{Development: true})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestWithOperationAddsCorrelationID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l, id := WithOperation(zap.New(core), "batch")
	l.Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "batch", fields["operation"])
	assert.Equal(t, id, fields["correlation_id"])
	assert.Len(t, id, 36)
}
