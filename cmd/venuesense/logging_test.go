package main

import (
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/venuesense/geofence"
	"github.com/srg/venuesense/internal/device"
	"github.com/srg/venuesense/pkg/config"
	"github.com/srg/venuesense/venue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureLogger(t *testing.T) {
	debugCfg := config.DefaultConfig()
	debugCfg.LogLevel = "debug"

	tests := []struct {
		name     string
		flags    map[string]string
		cfg      *config.Config
		expected logrus.Level
	}{
		{name: "quiet by default", cfg: debugCfg, expected: logrus.WarnLevel},
		{name: "verbose", flags: map[string]string{"verbose": "true"}, expected: logrus.DebugLevel},
		{name: "log-level wins over verbose", flags: map[string]string{"verbose": "true", "log-level": "error"}, expected: logrus.ErrorLevel},
		{name: "config file level", flags: map[string]string{"config": "venuesense.toml"}, cfg: debugCfg, expected: logrus.DebugLevel},
		{name: "log-level wins over config", flags: map[string]string{"config": "venuesense.toml", "log-level": "info"}, cfg: debugCfg, expected: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newFlagCommand()
			for name, value := range tt.flags {
				require.NoError(t, cmd.Flags().Set(name, value))
			}

			logger, err := configureLogger(cmd, tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, logger.GetLevel())

			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			require.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}

	t.Run("invalid level", func(t *testing.T) {
		cmd := newFlagCommand()
		require.NoError(t, cmd.Flags().Set("log-level", "chatty"))

		_, err := configureLogger(cmd, nil)
		assert.ErrorContains(t, err, "invalid log level: chatty")
	})
}

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "missing file",
			err:      fmt.Errorf("reading venues file: %w", os.ErrNotExist),
			expected: "reading venues file: file does not exist (check the file path)",
		},
		{
			name:     "invalid venue",
			err:      fmt.Errorf("venue #0: %w: empty id", venue.ErrInvalidVenue),
			expected: "venue #0: invalid venue: empty id (fix the venues file)",
		},
		{
			name:     "platform scan failure",
			err:      &device.PlatformScanError{Code: 2},
			expected: "platform scan failed (code 2) (the BLE adapter reported a failure)",
		},
		{
			name:     "unknown venue",
			err:      fmt.Errorf("%w: pop-up", geofence.ErrUnknownVenue),
			expected: geofence.ErrUnknownVenue.Error() + ": pop-up (the venue is not in the registry)",
		},
		{
			name:     "no hint",
			err:      errors.New("something else"),
			expected: "something else",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatUserError(tt.err))
		})
	}
}
