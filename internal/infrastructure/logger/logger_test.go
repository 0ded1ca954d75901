package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/formulalab/formula-gateway/internal/infrastructure/config"
)

func TestNewLogger(t *testing.T) {
	t.Run("creates logger with JSON format", func(t *testing.T) {
		cfg := &config.LogConfig{
			Level:  "info",
			Format: "json",
		}

		logger, err := NewLogger(cfg)

		assert.NoError(t, err)
		assert.NotNil(t, logger)
	})

	t.Run("creates logger with console format", func(t *testing.T) {
		cfg := &config.LogConfig{
			Level:  "debug",
			Format: "console",
		}

		logger, err := NewLogger(cfg)

		assert.NoError(t, err)
		assert.NotNil(t, logger)
		assert.True(t, logger.Core().Enabled(-1))
	})

	t.Run("defaults to info level for invalid level", func(t *testing.T) {
		cfg := &config.LogConfig{
			Level:  "invalid",
			Format: "json",
		}

		logger, err := NewLogger(cfg)

		assert.NoError(t, err)
		assert.NotNil(t, logger)
		assert.False(t, logger.Core().Enabled(-1))
		assert.True(t, logger.Core().Enabled(0))
	})

	t.Run("writes to rotating file when configured", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "gateway.log")
		cfg := &config.LogConfig{
			Level:      "info",
			Format:     "json",
			File:       path,
			MaxSizeMB:  1,
			MaxBackups: 1,
		}

		logger, err := NewLogger(cfg)
		require.NoError(t, err)

		logger.Info("formula recognized")
		_ = logger.Sync()

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "formula recognized")
	})

	t.Run("writes to the given sink", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewLoggerTo(&config.LogConfig{Level: "warn", Format: "console"}, zapcore.AddSync(&buf))
		require.NoError(t, err)

		logger.Info("dropped")
		logger.Warn("kept")

		assert.NotContains(t, buf.String(), "dropped")
		assert.Contains(t, buf.String(), "kept")
	})
}
