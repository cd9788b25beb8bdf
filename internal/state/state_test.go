package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhase_String(t *testing.T) {
	tests := []struct {
		phase    Phase
		expected string
	}{
		{PhaseStarting, "starting"},
		{PhaseDisplay, "display"},
		{PhaseAutoLogin, "autologin"},
		{PhaseGreeter, "greeter"},
		{PhaseStopped, "stopped"},
		{PhaseFailed, "failed"},
		{Phase(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.phase.String())
		})
	}
}

func TestPhase_UnmarshalText(t *testing.T) {
	var p Phase
	require.NoError(t, p.UnmarshalText([]byte("greeter")))
	assert.Equal(t, PhaseGreeter, p)
	assert.Error(t, p.UnmarshalText([]byte("dancing")))
}

func TestFile_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "state.json")
	f := NewFile(path)

	require.NoError(t, f.Save(&Status{
		PID:         42,
		Iteration:   3,
		IterationID: "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		Phase:       PhaseGreeter,
		Display:     ":0",
		Theme:       "default",
	}))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, s.PID)
	assert.Equal(t, 3, s.Iteration)
	assert.Equal(t, PhaseGreeter, s.Phase)
	assert.Equal(t, ":0", s.Display)
	assert.Equal(t, CurrentSchemaVersion, s.SchemaVersion)
	assert.NotZero(t, s.UpdatedAt)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"phase": "greeter"`)

}

func TestLoad_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLastLogin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib", "last-login.json")

	assert.Equal(t, LastLogin{}, LoadLastLogin(path))

	require.NoError(t, SaveLastLogin(path, "alice", "xfce"))
	last := LoadLastLogin(path)
	assert.Equal(t, "alice", last.User)
	assert.Equal(t, "xfce", last.Session)
	assert.NotZero(t, last.At)

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0600))
	assert.Equal(t, LastLogin{}, LoadLastLogin(path))
}
