package logger

import (
	"testing"

	"stealth-signal-bot/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	t.Run("json format honours level", func(t *testing.T) {
		log, err := NewLogger(config.Logger{Level: "warn", Format: "json"})

		require.NoError(t, err)
		assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
		assert.True(t, log.Core().Enabled(zapcore.WarnLevel))
	})

	t.Run("console format", func(t *testing.T) {
		log, err := NewLogger(config.Logger{Level: "debug", Format: "console"})

		require.NoError(t, err)
		assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("unknown level", func(t *testing.T) {
		_, err := NewLogger(config.Logger{Level: "loud"})

		assert.Error(t, err)
	})
}
