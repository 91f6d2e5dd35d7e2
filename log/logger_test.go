package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel(" warning "))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
}

func TestSetLevel(t *testing.T) {
	logger := GetInstance()
	t.Cleanup(func() { SetLevel("info") })

	SetLevel("error")
	assert.False(t, logger.Core().Enabled(zapcore.WarnLevel))

	SetLevel("debug")
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.Same(t, logger, GetInstance())
}
