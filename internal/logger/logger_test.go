package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewParsesLevel(t *testing.T) {
	l, err := New("warn", false)
	require.NoError(t, err)
	assert.False(t, l.Desugar().Core().Enabled(zap.InfoLevel))
	assert.True(t, l.Desugar().Core().Enabled(zap.WarnLevel))
}

func TestNewFallsBackToInfo(t *testing.T) {
	l, err := New("loud", true)
	require.NoError(t, err)
	assert.True(t, l.Desugar().Core().Enabled(zap.InfoLevel))
	assert.False(t, l.Desugar().Core().Enabled(zap.DebugLevel))
}

func TestFromContextAddsRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core).Sugar()

	ctx := WithRequestID(context.Background(), "req-42")
	FromContext(ctx, base).Infow("hello")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "req-42", logs.All()[0].ContextMap()[FieldRequestID])
}

func TestFromContextWithoutRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core).Sugar()

	FromContext(context.Background(), base).Infow("hello")

	require.Equal(t, 1, logs.Len())
	_, ok := logs.All()[0].ContextMap()[FieldRequestID]
	assert.False(t, ok)
}
