package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestCodeOf(t *testing.T) {
	err := fmt.Errorf("create user: %w", New(502, "bad gateway"))
	assert.Equal(t, 502, CodeOf(err))
	assert.Equal(t, "create user: Code: 502, Message: bad gateway", err.Error())
	assert.Zero(t, CodeOf(fmt.Errorf("plain")))
}

func TestNewLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ulift.log")
	logger, err := NewLogger("debug", path)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger.Info("hello")
	_ = logger.Sync()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)

	_, err = NewLogger("loud", "")
	assert.Error(t, err)
}
