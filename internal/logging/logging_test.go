package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		cfg     Config
		enabled zapcore.Level
		muted   zapcore.Level
	}{
		{Config{Level: "debug", Format: "console"}, zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{Config{Level: "info", Format: "json"}, zapcore.InfoLevel, zapcore.DebugLevel},
		{Config{Level: "warn"}, zapcore.WarnLevel, zapcore.InfoLevel},
		{Config{Level: "error", Format: "json"}, zapcore.ErrorLevel, zapcore.WarnLevel},
	}
	for _, tt := range tests {
		t.Run(tt.cfg.Level+"/"+tt.cfg.Format, func(t *testing.T) {
			logger, err := New(tt.cfg)
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.enabled))
			assert.False(t, logger.Core().Enabled(tt.muted))
		})
	}
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(Config{Level: "loud", Format: "json"})
	assert.ErrorContains(t, err, "log level")

	_, err = New(Config{Level: "info", Format: "xml"})
	assert.ErrorContains(t, err, "unknown log format")
}
