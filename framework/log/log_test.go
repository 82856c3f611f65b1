package log_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/km-arc/go-overlay/framework/config"
	"github.com/km-arc/go-overlay/framework/log"
)

func TestNew(t *testing.T) {
	tests := []struct {
		cfg     config.LogConfig
		enabled zapcore.Level
		skipped zapcore.Level
	}{
		{config.LogConfig{Level: "debug", Format: "console"}, zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{config.LogConfig{Level: "warn", Format: "json"}, zapcore.WarnLevel, zapcore.InfoLevel},
		{config.LogConfig{Level: "error", Format: "console"}, zapcore.ErrorLevel, zapcore.WarnLevel},
	}
	for _, tt := range tests {
		t.Run(tt.cfg.Level+"/"+tt.cfg.Format, func(t *testing.T) {
			logger, err := log.New(tt.cfg)
			require.NoError(t, err)
			require.True(t, logger.Core().Enabled(tt.enabled))
			require.False(t, logger.Core().Enabled(tt.skipped))
		})
	}
}

func TestNew_BadLevel(t *testing.T) {
	_, err := log.New(config.LogConfig{Level: "loud", Format: "json"})
	require.ErrorContains(t, err, "log:")
}
