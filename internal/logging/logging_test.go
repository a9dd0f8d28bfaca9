package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"", LevelInfo, false},
		{"debug", LevelDebug, false},
		{" WARNING ", LevelWarn, false},
		{"Error", LevelError, false},
		{"off", LevelOff, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLevelString(t *testing.T) {
	for _, l := range []Level{LevelOff, LevelError, LevelWarn, LevelInfo, LevelDebug} {
		parsed, err := ParseLevel(l.String())
		require.NoError(t, err)
		assert.Equal(t, l, parsed)
	}
}

func TestNew_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(&buf, Options{Level: LevelWarn})
	require.NoError(t, err)
	defer func() { _ = closer.Close() }()

	logger.Info("hidden")
	logger.Warn("skipping prompt update", "step", 2)

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "skipping prompt update")
	assert.Contains(t, buf.String(), "step=2")
}

func TestNew_JSONAndFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "workbench.log")

	logger, closer, err := New(&buf, Options{Level: LevelDebug, JSON: true, File: path})
	require.NoError(t, err)

	logger.Debug("generated report", "chars", 42)
	require.NoError(t, closer.Close())

	assert.Contains(t, buf.String(), `"msg":"generated report"`)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"chars":42`)
}

func TestNew_Off(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(&buf, Options{Level: LevelOff})
	require.NoError(t, err)
	assert.NotNil(t, closer)

	logger.Error("nothing")
	assert.Empty(t, buf.String())
}
