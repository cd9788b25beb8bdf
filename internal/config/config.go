// Package config handles loading and validating the vigil daemon configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Default configuration values.
const (
	DefaultPath           = "/etc/vigil/vigil.toml"
	DefaultLockFile       = "/run/vigil.lock"
	DefaultStateFile      = "/run/vigil/state.json"
	DefaultDisplay        = ":0"
	DefaultThemesDir      = "/usr/share/vigil/themes"
	DefaultTheme          = "default"
	DefaultServerCommand  = "/usr/bin/X"
	DefaultAuthDir        = "/run/vigil"
	DefaultSocketDir      = "/tmp/.X11-unix"
	DefaultSessionsDir    = "/usr/share/xsessions"
	DefaultSessionLogFile = ".xsession-errors"
	DefaultAuthHelper     = "/usr/lib/vigil/vigil-auth"
	DefaultRememberFile   = "/var/lib/vigil/last-login.json"
	DefaultMinimumUID     = 1000
	DefaultMaximumUID     = 65000
)

// Config is the vigil daemon configuration.
// A loaded Config is treated as an immutable snapshot.
type Config struct {
	General   GeneralConfig   `toml:"general"`
	Theme     ThemeConfig     `toml:"theme"`
	AutoLogin AutoLoginConfig `toml:"autologin"`
	Server    ServerConfig    `toml:"server"`
	Sessions  SessionsConfig  `toml:"sessions"`
	Users     UsersConfig     `toml:"users"`
	Auth      AuthConfig      `toml:"auth"`
	Power     PowerConfig     `toml:"power"`
}

// GeneralConfig holds process-wide settings.
type GeneralConfig struct {
	LockFile       string `toml:"lock_file"`
	DefaultDisplay string `toml:"default_display"` // Used when DISPLAY is unset
	StateFile      string `toml:"state_file"`      // Runtime status read by `vigil status`
}

// ThemeConfig selects the greeter theme.
type ThemeConfig struct {
	ThemesDir   string `toml:"themes_dir"`
	Current     string `toml:"current"`
	CursorTheme string `toml:"cursor_theme"`
}

// AutoLoginConfig configures the unattended first-boot login.
type AutoLoginConfig struct {
	User    string `toml:"user"`    // Empty disables auto-login
	Session string `toml:"session"` // xsession file name without .desktop
}

// ServerConfig describes how the display server is started.
type ServerConfig struct {
	Command      string   `toml:"command"`
	Arguments    []string `toml:"arguments"`
	AuthDir      string   `toml:"auth_dir"`
	SocketDir    string   `toml:"socket_dir"`
	StartTimeout Duration `toml:"start_timeout"`
}

// SessionsConfig describes where sessions come from and how they are started.
type SessionsConfig struct {
	Dir     string `toml:"dir"`
	Command string `toml:"command"`  // Wrapper run with the session's Exec line; empty = login shell
	LogFile string `toml:"log_file"` // Relative to the user's home
}

// UsersConfig filters the user list shown by the greeter.
type UsersConfig struct {
	MinimumUID   int      `toml:"minimum_uid"`
	MaximumUID   int      `toml:"maximum_uid"`
	HideUsers    []string `toml:"hide_users"`
	HideShells   []string `toml:"hide_shells"`
	RememberLast bool     `toml:"remember_last"`
	RememberFile string   `toml:"remember_file"`
}

// AuthConfig configures credential verification.
type AuthConfig struct {
	Helper string `toml:"helper"`
}

// PowerConfig toggles the power-control object exposed to themes.
type PowerConfig struct {
	Enabled bool `toml:"enabled"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			LockFile:       DefaultLockFile,
			DefaultDisplay: DefaultDisplay,
			StateFile:      DefaultStateFile,
		},
		Theme: ThemeConfig{
			ThemesDir: DefaultThemesDir,
			Current:   DefaultTheme,
		},
		Server: ServerConfig{
			Command:      DefaultServerCommand,
			Arguments:    []string{"-nolisten", "tcp", "-background", "none", "vt7"},
			AuthDir:      DefaultAuthDir,
			SocketDir:    DefaultSocketDir,
			StartTimeout: Duration(10 * time.Second),
		},
		Sessions: SessionsConfig{
			Dir:     DefaultSessionsDir,
			LogFile: DefaultSessionLogFile,
		},
		Users: UsersConfig{
			MinimumUID:   DefaultMinimumUID,
			MaximumUID:   DefaultMaximumUID,
			HideShells:   []string{"/bin/false", "/usr/bin/nologin", "/sbin/nologin", "/usr/sbin/nologin"},
			RememberLast: true,
			RememberFile: DefaultRememberFile,
		},
		Auth: AuthConfig{
			Helper: DefaultAuthHelper,
		},
		Power: PowerConfig{
			Enabled: true,
		},
	}
}

// Load reads the configuration from path.
// If path is empty, DefaultPath is used. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults, then overlay with file contents
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if c.General.LockFile == "" {
		return errors.New("general.lock_file must not be empty")
	}
	if !strings.HasPrefix(c.General.DefaultDisplay, ":") {
		return fmt.Errorf("general.default_display must look like \":0\", got %q", c.General.DefaultDisplay)
	}
	if c.Theme.ThemesDir == "" {
		return errors.New("theme.themes_dir must not be empty")
	}
	if c.Server.Command == "" {
		return errors.New("server.command must not be empty")
	}
	if c.Server.StartTimeout.Duration() <= 0 {
		return fmt.Errorf("server.start_timeout must be positive, got %s", c.Server.StartTimeout.Duration())
	}
	if c.Users.MinimumUID < 0 || c.Users.MaximumUID < c.Users.MinimumUID {
		return fmt.Errorf("users uid range [%d, %d] is invalid", c.Users.MinimumUID, c.Users.MaximumUID)
	}
	return nil
}

// ThemesDir returns the directory themes are installed in.
func (c *Config) ThemesDir() string { return c.Theme.ThemesDir }

// CurrentTheme returns the active theme name.
func (c *Config) CurrentTheme() string { return c.Theme.Current }

// LockFile returns the single-instance lock path.
func (c *Config) LockFile() string { return c.General.LockFile }

// AutoUser returns the auto-login user, or "" when auto-login is disabled.
func (c *Config) AutoUser() string { return c.AutoLogin.User }

// CursorTheme returns the X cursor theme name.
func (c *Config) CursorTheme() string { return c.Theme.CursorTheme }

// Loader is the explicit configuration handle owned by the orchestrator.
// Every call to Load re-reads the file so edits apply on the next iteration.
type Loader struct {
	path string
}

// NewLoader returns a Loader for path (empty = DefaultPath).
func NewLoader(path string) *Loader {
	if path == "" {
		path = DefaultPath
	}
	return &Loader{path: path}
}

// Path returns the file the loader reads.
func (l *Loader) Path() string { return l.path }

// Load reads a fresh snapshot.
func (l *Loader) Load() (*Config, error) {
	return Load(l.path)
}
