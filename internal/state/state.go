// Package state persists runtime information shared between vigild, its
// greeter processes and the vigil CLI.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Phase is the orchestrator's position in its loop.
type Phase int

const (
	PhaseStarting Phase = iota
	PhaseDisplay
	PhaseAutoLogin
	PhaseGreeter
	PhaseStopped
	PhaseFailed
)

// String returns a human-readable phase name.
func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseDisplay:
		return "display"
	case PhaseAutoLogin:
		return "autologin"
	case PhaseGreeter:
		return "greeter"
	case PhaseStopped:
		return "stopped"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	for candidate := PhaseStarting; candidate <= PhaseFailed; candidate++ {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// CurrentSchemaVersion is the current version of the status schema.
const CurrentSchemaVersion = 1

// Status is the runtime status of a vigild process.
type Status struct {
	PID         int    `json:"pid"`
	StartedAt   int64  `json:"started_at"`
	Iteration   int    `json:"iteration"`
	IterationID string `json:"iteration_id,omitempty"` // ULID, encodes the iteration start time
	Phase       Phase  `json:"phase"`
	Display     string `json:"display,omitempty"`
	Theme       string `json:"theme,omitempty"`
	GreeterPID  int    `json:"greeter_pid,omitempty"`
	Error       string `json:"error,omitempty"`
	UpdatedAt   int64  `json:"updated_at"`

	SchemaVersion int `json:"schema_version"`
}

// File is a status file written by one process.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile returns a status file at path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the file location.
func (f *File) Path() string { return f.path }

// Save writes s atomically, stamping UpdatedAt.
func (f *File) Save(s *Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	s.UpdatedAt = time.Now().Unix()
	if s.SchemaVersion == 0 {
		s.SchemaVersion = CurrentSchemaVersion
	}
	return writeJSON(f.path, s, 0644)
}

// Load reads the status file at path.
func Load(path string) (*Status, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse status file: %w", err)
	}
	return &s, nil
}

// LastLogin remembers the previous successful greeter login.
type LastLogin struct {
	User    string `json:"user"`
	Session string `json:"session"`
	At      int64  `json:"at"`
}

// LoadLastLogin reads the remembered login. Missing or corrupt files yield
// an empty value.
func LoadLastLogin(path string) LastLogin {
	var last LastLogin
	data, err := os.ReadFile(path)
	if err != nil {
		return last
	}
	if err := json.Unmarshal(data, &last); err != nil {
		return LastLogin{}
	}
	return last
}

// SaveLastLogin remembers user and session.
func SaveLastLogin(path, user, session string) error {
	return writeJSON(path, LastLogin{User: user, Session: session, At: time.Now().Unix()}, 0600)
}

func writeJSON(path string, v any, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	// Write atomically via temp file
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, perm); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
