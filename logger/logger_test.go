package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeConsole(t *testing.T) {
	err := Initialize(false)
	require.NoError(t, err)
	require.NotNil(t, Logger)
	assert.False(t, JSONOutput)

	// Package-level helpers must not panic
	Infow("console logger ready", FieldComponent, "test")
	Debugw("debug message", FieldCount, 1)
}

func TestInitializeJSON(t *testing.T) {
	err := Initialize(true)
	require.NoError(t, err)
	require.NotNil(t, Logger)
	assert.True(t, JSONOutput)

	Warnw("json logger ready", FieldComponent, "test")
}

func TestHelpersSafeBeforeInitialize(t *testing.T) {
	// The init() no-op logger must absorb calls without panicking
	saved := Logger
	defer func() { Logger = saved }()
	Logger = nil

	Infow("should not panic")
	Warnw("should not panic")
	Errorw("should not panic")
	Debugw("should not panic")
}
