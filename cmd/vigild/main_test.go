package main

import (
	"bytes"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/vigil/internal/daemon"
	"github.com/jmylchreest/vigil/internal/lock"
)

func TestNewLogger_CriticalLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, false)

	logger.Log(t.Context(), daemon.LevelCritical, "could not start display server")
	logger.Error("plain error")
	logger.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "level=CRITICAL")
	assert.Contains(t, out, "level=ERROR msg=\"plain error\"")
	assert.NotContains(t, out, "hidden")
}

func TestNewLogger_Verbose(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, true).Debug("shown", slog.String("key", "value"))
	assert.Contains(t, buf.String(), "key=value")
}

func TestExitError(t *testing.T) {
	assert.Equal(t, "exit status 3", exitError{code: 3}.Error())
}

func TestAcquireLock_SilentWhenHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vigil.lock")
	held, err := lock.Acquire(path)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = acquireLock(path, "/etc/vigil/vigil.toml", nil, newLogger(&buf, true))
	assert.ErrorIs(t, err, lock.ErrHeld)
	assert.Empty(t, buf.String())

	require.NoError(t, held.Release())

	lk, err := acquireLock(path, "/etc/vigil/vigil.toml", errors.New("bad toml"), newLogger(&buf, true))
	require.NoError(t, err)
	defer lk.Release()
	assert.Contains(t, buf.String(), "starting vigild")
	assert.Contains(t, buf.String(), "bad toml")
}
