package greeter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jmylchreest/vigil/internal/model"
	"github.com/jmylchreest/vigil/internal/power"
	"github.com/jmylchreest/vigil/internal/session"
	"github.com/jmylchreest/vigil/internal/state"
	"github.com/jmylchreest/vigil/internal/xauth"
)

// ErrPreview is returned by login attempts in preview mode.
var ErrPreview = errors.New("login is disabled in preview mode")

// Child is the greeter process's view of the world: its own session
// manager, power control and models, built from the payload.
type Child struct {
	logger  *slog.Logger
	payload *Payload

	Manager  *session.Manager
	Power    *power.Control
	Sessions []model.Session
	Users    []model.User
	Screens  []model.Screen
	Hostname string
	Last     state.LastLogin
}

// NewChild builds the child state. Model load failures are logged and leave
// the corresponding list empty.
func NewChild(p *Payload, logger *slog.Logger) *Child {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Child{logger: logger, payload: p}

	c.Manager = session.NewManager(session.Options{
		Sessions:      p.Sessions,
		PasswdPath:    p.PasswdPath,
		Authenticator: session.HelperAuthenticator{Path: p.AuthHelper},
		Logger:        logger,
	})
	c.Manager.SetDisplay(p.Display)
	c.Manager.SetCookie(p.Cookie)

	var err error
	if c.Sessions, err = model.LoadSessions(p.Sessions.Dir, logger); err != nil {
		logger.Warn("failed to load sessions", "error", err)
	}

	passwd := p.PasswdPath
	if passwd == "" {
		passwd = model.PasswdPath
	}
	filter := model.UserFilter{
		MinimumUID: p.Users.MinimumUID,
		MaximumUID: p.Users.MaximumUID,
		HideUsers:  p.Users.HideUsers,
		HideShells: p.Users.HideShells,
	}
	if c.Users, err = model.LoadUsers(passwd, filter); err != nil {
		logger.Warn("failed to load users", "error", err)
	}

	if p.Users.RememberLast && p.Users.RememberFile != "" {
		c.Last = state.LoadLastLogin(p.Users.RememberFile)
	}

	if c.Hostname, err = os.Hostname(); err != nil {
		c.Hostname = ""
	}

	return c
}

// ConnectPower opens the power-control object when enabled. Failure
// leaves power actions unavailable.
func (c *Child) ConnectPower() {
	if !c.payload.Power || c.payload.Preview {
		return
	}
	ctl, err := power.Connect(c.logger)
	if err != nil {
		c.logger.Warn("power control unavailable", "error", err)
		return
	}
	c.Power = ctl
}

// authorizeDisplay writes a private Xauthority holding the payload's cookie
// and points XAUTHORITY and DISPLAY at it, so the toolkit can connect to the
// cookie-protected server. The returned cleanup removes the file.
func authorizeDisplay(p *Payload) (func(), error) {
	dir, err := os.MkdirTemp("", "vigil-greeter-")
	if err != nil {
		return nil, fmt.Errorf("failed to create greeter xauth directory: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	path := filepath.Join(dir, "Xauthority")
	if err := xauth.WriteFile(path, p.Display, p.Cookie, -1, -1); err != nil {
		cleanup()
		return nil, err
	}
	if err := os.Setenv("XAUTHORITY", path); err != nil {
		cleanup()
		return nil, err
	}
	if err := os.Setenv("DISPLAY", p.Display); err != nil {
		cleanup()
		return nil, err
	}
	return cleanup, nil
}

// Preview reports whether logins are disabled.
func (c *Child) Preview() bool {
	return c.payload.Preview
}

// DefaultUser returns the user name to prefill.
func (c *Child) DefaultUser() string {
	if c.Last.User != "" {
		return c.Last.User
	}
	if len(c.Users) == 1 {
		return c.Users[0].Name
	}
	return ""
}

// DefaultUserIndex returns the position of DefaultUser in Users, or -1.
func (c *Child) DefaultUserIndex() int {
	name := c.DefaultUser()
	if name == "" {
		return -1
	}
	for i, u := range c.Users {
		if u.Name == name {
			return i
		}
	}
	return -1
}

// DefaultSessionIndex returns the session to preselect.
func (c *Child) DefaultSessionIndex() int {
	if c.Last.Session != "" {
		if i := model.IndexOf(c.Sessions, c.Last.Session); i >= 0 {
			return i
		}
	}
	return 0
}

// Login authenticates and starts the session at sessionIndex. On success the
// manager's success event fires.
func (c *Child) Login(ctx context.Context, user, password string, sessionIndex int) error {
	if c.payload.Preview {
		return ErrPreview
	}

	sessionName := ""
	if sessionIndex >= 0 && sessionIndex < len(c.Sessions) {
		sessionName = c.Sessions[sessionIndex].Name
	}

	if err := c.Manager.Login(ctx, user, password, sessionName); err != nil {
		return err
	}

	if c.payload.Users.RememberLast && c.payload.Users.RememberFile != "" {
		if err := state.SaveLastLogin(c.payload.Users.RememberFile, user, sessionName); err != nil {
			c.logger.Warn("failed to remember last login", "error", err)
		}
	}
	return nil
}

// PowerAction performs a power action if available.
func (c *Child) PowerAction(action power.Action) error {
	if c.payload.Preview {
		return ErrPreview
	}
	return c.Power.Do(action)
}

// Close releases child resources.
func (c *Child) Close() {
	_ = c.Power.Close()
}

// Message returns the text shown to the user for a failed action.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, session.ErrAuth):
		return "Login incorrect"
	case errors.Is(err, ErrPreview):
		return "Preview mode: actions are disabled"
	case errors.Is(err, session.ErrBusy):
		return "A session is already running"
	case errors.Is(err, power.ErrUnavailable):
		return "This action is not available"
	default:
		return "Login failed: " + err.Error()
	}
}
