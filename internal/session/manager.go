// Package session binds to a display and cookie, authenticates users and
// starts their X sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmylchreest/vigil/internal/auth"
	"github.com/jmylchreest/vigil/internal/config"
	"github.com/jmylchreest/vigil/internal/model"
)

var (
	// ErrNotBound is returned when no display or cookie has been set.
	ErrNotBound = errors.New("session manager is not bound to a display")
	// ErrBusy is returned when a user session is already running.
	ErrBusy = errors.New("a user session is already running")
	// ErrNoAutoLogin is returned by AutoLogin when no user is configured.
	ErrNoAutoLogin = errors.New("no auto-login user configured")
)

// Options configures a Manager.
type Options struct {
	Sessions      config.SessionsConfig
	AutoLogin     config.AutoLoginConfig
	PasswdPath    string // Defaults to model.PasswdPath
	Authenticator Authenticator
	Launcher      Launcher
	Logger        *slog.Logger
}

// Manager is the session controller for one display.
type Manager struct {
	mu     sync.Mutex
	logger *slog.Logger
	opts   Options

	display string
	cookie  auth.Cookie

	onSuccess []func()
	succeeded bool

	proc    Process
	lastErr error
}

// NewManager creates a Manager.
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PasswdPath == "" {
		opts.PasswdPath = model.PasswdPath
	}
	if opts.Launcher == nil {
		opts.Launcher = NewExecLauncher(opts.Sessions.Command, opts.Sessions.LogFile, opts.Logger)
	}
	return &Manager{opts: opts, logger: opts.Logger}
}

// SetDisplay binds the manager to display.
func (m *Manager) SetDisplay(display string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.display = display
}

// SetCookie sets the cookie user sessions are authorized with.
func (m *Manager) SetCookie(cookie auth.Cookie) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cookie = cookie
}

// Display returns the bound display.
func (m *Manager) Display() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.display
}

// Cookie returns the bound cookie.
func (m *Manager) Cookie() auth.Cookie {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cookie
}

// OnSuccess registers fn to run once, on the first successful login.
// If a login already succeeded fn runs immediately.
func (m *Manager) OnSuccess(fn func()) {
	m.mu.Lock()
	if m.succeeded {
		m.mu.Unlock()
		fn()
		return
	}
	m.onSuccess = append(m.onSuccess, fn)
	m.mu.Unlock()
}

// Login authenticates user and starts sessionName. An empty sessionName
// picks the first available session.
func (m *Manager) Login(ctx context.Context, user, password, sessionName string) error {
	if m.opts.Authenticator == nil {
		return m.fail(errors.New("no authenticator configured"))
	}
	if err := m.checkReady(); err != nil {
		return m.fail(err)
	}

	if err := m.opts.Authenticator.Authenticate(ctx, user, password); err != nil {
		m.logger.Info("login failed", "user", user, "error", err)
		return m.fail(err)
	}

	return m.start(ctx, user, sessionName)
}

// AutoLogin starts the configured auto-login session without credentials
// and blocks until it ends.
func (m *Manager) AutoLogin(ctx context.Context) error {
	user := m.opts.AutoLogin.User
	if user == "" {
		return m.fail(ErrNoAutoLogin)
	}
	if err := m.checkReady(); err != nil {
		return m.fail(err)
	}

	m.logger.Info("auto-login", "user", user, "session", m.opts.AutoLogin.Session)
	if err := m.start(ctx, user, m.opts.AutoLogin.Session); err != nil {
		return err
	}
	return m.Wait()
}

// Wait blocks until the launched user session ends. It returns nil at once
// if no session was started.
func (m *Manager) Wait() error {
	m.mu.Lock()
	proc := m.proc
	m.mu.Unlock()

	if proc == nil {
		return nil
	}
	err := proc.Wait()

	m.mu.Lock()
	m.proc = nil
	m.mu.Unlock()

	if err != nil {
		m.logger.Info("user session ended", "error", err)
		return fmt.Errorf("user session ended: %w", err)
	}
	m.logger.Info("user session ended")
	return nil
}

// LastError returns the most recent login failure.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) checkReady() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.display == "" || len(m.cookie) == 0 {
		return ErrNotBound
	}
	if m.proc != nil {
		return ErrBusy
	}
	return nil
}

func (m *Manager) start(ctx context.Context, userName, sessionName string) error {
	u, err := model.LookupUser(m.opts.PasswdPath, userName)
	if err != nil {
		return m.fail(err)
	}

	sessions, err := model.LoadSessions(m.opts.Sessions.Dir, m.logger)
	if err != nil {
		return m.fail(err)
	}
	var sess model.Session
	if sessionName == "" {
		if len(sessions) == 0 {
			return m.fail(fmt.Errorf("%w: no sessions in %s", model.ErrSessionNotFound, m.opts.Sessions.Dir))
		}
		sess = sessions[0]
	} else if sess, err = model.FindSession(sessions, sessionName); err != nil {
		return m.fail(err)
	}

	m.mu.Lock()
	req := LaunchRequest{User: *u, Session: sess, Display: m.display, Cookie: m.cookie}
	m.mu.Unlock()

	proc, err := m.opts.Launcher.Launch(ctx, req)
	if err != nil {
		return m.fail(err)
	}

	m.mu.Lock()
	m.proc = proc
	m.lastErr = nil
	callbacks := m.onSuccess
	m.onSuccess = nil
	m.succeeded = true
	m.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
	return nil
}

func (m *Manager) fail(err error) error {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
	return err
}
