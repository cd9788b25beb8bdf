// Package model defines the read-only data the greeter presents: available
// sessions, login users and screen geometry.
package model

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/ini.v1"
)

const desktopEntrySection = "Desktop Entry"

// ErrSessionNotFound is returned when a named session has no desktop entry.
var ErrSessionNotFound = errors.New("session not found")

// errHidden marks entries that exist but must not be offered.
var errHidden = errors.New("session hidden")

// Session is an entry from the xsessions directory.
type Session struct {
	Name         string `cbor:"name"`  // File name without .desktop
	Title        string `cbor:"title"` // Name= key
	Comment      string `cbor:"comment"`
	Exec         string `cbor:"exec"`
	DesktopNames string `cbor:"desktop_names"`
}

// ReadSession parses one .desktop file.
func ReadSession(path string) (*Session, error) {
	f, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	sec, err := f.GetSection(desktopEntrySection)
	if err != nil {
		return nil, fmt.Errorf("%s: no [%s] section", path, desktopEntrySection)
	}

	s := &Session{
		Name:         strings.TrimSuffix(filepath.Base(path), ".desktop"),
		Title:        sec.Key("Name").String(),
		Comment:      sec.Key("Comment").String(),
		Exec:         sec.Key("Exec").String(),
		DesktopNames: sec.Key("DesktopNames").String(),
	}
	if s.Exec == "" {
		return nil, fmt.Errorf("%s: no Exec key", path)
	}
	if s.Title == "" {
		s.Title = s.Name
	}

	if sec.Key("Hidden").MustBool(false) || sec.Key("NoDisplay").MustBool(false) {
		return nil, errHidden
	}
	if tryExec := sec.Key("TryExec").String(); tryExec != "" {
		if _, err := exec.LookPath(tryExec); err != nil {
			return nil, errHidden
		}
	}
	return s, nil
}

// LoadSessions reads every usable session in dir, sorted by title.
// Unreadable entries are skipped and logged.
func LoadSessions(dir string, logger *slog.Logger) ([]Session, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.desktop"))
	if err != nil {
		return nil, err
	}

	sessions := make([]Session, 0, len(matches))
	for _, path := range matches {
		s, err := ReadSession(path)
		if err != nil {
			if !errors.Is(err, errHidden) {
				logger.Warn("skipping session", "path", path, "error", err)
			}
			continue
		}
		sessions = append(sessions, *s)
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return strings.ToLower(sessions[i].Title) < strings.ToLower(sessions[j].Title)
	})
	return sessions, nil
}

// FindSession returns the session called name.
func FindSession(sessions []Session, name string) (Session, error) {
	for _, s := range sessions {
		if s.Name == name {
			return s, nil
		}
	}
	return Session{}, fmt.Errorf("%w: %q", ErrSessionNotFound, name)
}

// IndexOf returns the position of the session called name, or -1.
func IndexOf(sessions []Session, name string) int {
	for i, s := range sessions {
		if s.Name == name {
			return i
		}
	}
	return -1
}
