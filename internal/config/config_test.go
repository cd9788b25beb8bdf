package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultLockFile, cfg.LockFile())
	assert.Equal(t, ":0", cfg.General.DefaultDisplay)
	assert.Equal(t, DefaultThemesDir, cfg.ThemesDir())
	assert.Equal(t, "default", cfg.CurrentTheme())
	assert.Empty(t, cfg.AutoUser())
	assert.Empty(t, cfg.CursorTheme())
	assert.Equal(t, 10*time.Second, cfg.Server.StartTimeout.Duration())
	assert.True(t, cfg.Power.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/vigil.toml")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_ParsesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vigil.toml")

	content := `
[general]
lock_file = "/tmp/vigil-test.lock"
default_display = ":1"

[theme]
themes_dir = "/opt/themes"
current = "maui"
cursor_theme = "Adwaita"

[autologin]
user = "alice"
session = "xfce"

[server]
command = "/usr/bin/Xorg"
arguments = ["-nolisten", "tcp"]
start_timeout = "3s"

[users]
minimum_uid = 500
hide_users = ["guest"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/vigil-test.lock", cfg.LockFile())
	assert.Equal(t, ":1", cfg.General.DefaultDisplay)
	assert.Equal(t, "/opt/themes", cfg.ThemesDir())
	assert.Equal(t, "maui", cfg.CurrentTheme())
	assert.Equal(t, "Adwaita", cfg.CursorTheme())
	assert.Equal(t, "alice", cfg.AutoUser())
	assert.Equal(t, "xfce", cfg.AutoLogin.Session)
	assert.Equal(t, "/usr/bin/Xorg", cfg.Server.Command)
	assert.Equal(t, []string{"-nolisten", "tcp"}, cfg.Server.Arguments)
	assert.Equal(t, 3*time.Second, cfg.Server.StartTimeout.Duration())
	assert.Equal(t, 500, cfg.Users.MinimumUID)
	assert.Equal(t, []string{"guest"}, cfg.Users.HideUsers)

	// Untouched sections keep their defaults
	assert.Equal(t, DefaultSessionsDir, cfg.Sessions.Dir)
	assert.Equal(t, DefaultAuthHelper, cfg.Auth.Helper)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vigil.toml")
	require.NoError(t, os.WriteFile(path, []byte(`this is not valid toml [`), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vigil.toml")
	require.NoError(t, os.WriteFile(path, []byte("[general]\ndefault_display = \"0\"\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_display")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"defaults", func(*Config) {}, true},
		{"empty lock file", func(c *Config) { c.General.LockFile = "" }, false},
		{"empty themes dir", func(c *Config) { c.Theme.ThemesDir = "" }, false},
		{"empty server command", func(c *Config) { c.Server.Command = "" }, false},
		{"zero timeout", func(c *Config) { c.Server.StartTimeout = 0 }, false},
		{"inverted uid range", func(c *Config) { c.Users.MaximumUID = 10 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLoader_ReloadsEachCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vigil.toml")
	require.NoError(t, os.WriteFile(path, []byte("[theme]\ncurrent = \"one\"\n"), 0644))

	loader := NewLoader(path)
	first, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "one", first.CurrentTheme())

	require.NoError(t, os.WriteFile(path, []byte("[theme]\ncurrent = \"two\"\n"), 0644))
	second, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "two", second.CurrentTheme())

	// The earlier snapshot is unaffected
	assert.Equal(t, "one", first.CurrentTheme())
}

func TestNewLoader_DefaultPath(t *testing.T) {
	assert.Equal(t, DefaultPath, NewLoader("").Path())
}

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"5s", 5 * time.Second, false},
		{"1m30s", 90 * time.Second, false},
		{"2500", 2500 * time.Millisecond, false},
		{"soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalText([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d.Duration())
		})
	}
}
