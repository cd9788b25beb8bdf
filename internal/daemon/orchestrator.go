package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/vigil/internal/auth"
	"github.com/jmylchreest/vigil/internal/config"
	"github.com/jmylchreest/vigil/internal/display"
	"github.com/jmylchreest/vigil/internal/greeter"
	"github.com/jmylchreest/vigil/internal/lock"
	"github.com/jmylchreest/vigil/internal/state"
	"github.com/jmylchreest/vigil/internal/theme"
)

// LevelCritical is the severity of failures that end the process.
const LevelCritical = slog.LevelError + 4

var (
	// ErrAlreadyRunning is returned by Run when another instance holds the lock.
	ErrAlreadyRunning = errors.New("another instance is already running")
	// ErrDisplayStart is returned by Run when the display server cannot start.
	ErrDisplayStart = errors.New("failed to start display server")
)

// Environment variables set before the display server starts.
const (
	EnvDisplay     = "DISPLAY"
	EnvCursorTheme = "XCURSOR_THEME"
)

// ConfigSource produces a fresh configuration snapshot per iteration.
type ConfigSource interface {
	Load() (*config.Config, error)
}

// ThemeResolver turns a snapshot's theme selection into a descriptor.
type ThemeResolver interface {
	Resolve(themesDir, name string) (*theme.Descriptor, error)
}

// SessionController is the parent-side session manager of one iteration.
type SessionController interface {
	SetDisplay(display string)
	SetCookie(cookie auth.Cookie)
	AutoLogin(ctx context.Context) error
}

// Greeter is a running greeter process.
type Greeter interface {
	Pid() int
	// Done is closed when the process has exited.
	Done() <-chan struct{}
	Wait() error
	Terminate()
}

// GreeterSpawner starts greeter processes.
type GreeterSpawner interface {
	Spawn(ctx context.Context, p *greeter.Payload) (Greeter, error)
}

// HostSpawner adapts a greeter.Host to GreeterSpawner.
type HostSpawner struct {
	Host *greeter.Host
}

// Spawn implements GreeterSpawner.
func (s HostSpawner) Spawn(ctx context.Context, p *greeter.Payload) (Greeter, error) {
	proc, err := s.Host.Spawn(ctx, p)
	if err != nil {
		return nil, err
	}
	return proc, nil
}

// Releaser is a held single-instance lock.
type Releaser interface {
	Release() error
}

// StatusWriter persists runtime status for the operator CLI.
type StatusWriter interface {
	Save(s *state.Status) error
}

// serverConfigurable is implemented by display controllers whose server
// settings follow the configuration snapshot.
type serverConfigurable interface {
	SetConfig(cfg config.ServerConfig)
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	// Lock acquires the single-instance lock. It is called exactly once,
	// before anything else.
	Lock func() (Releaser, error)
	// Token generates the cookie of one iteration.
	Token func() (auth.Cookie, error)

	Config  ConfigSource
	Themes  ThemeResolver
	Display display.Controller
	// NewSession builds the session controller bound in one iteration.
	NewSession func(cfg *config.Config) SessionController
	Greeter    GreeterSpawner

	// Getenv and Setenv default to the os package.
	Getenv func(key string) string
	Setenv func(key, value string) error

	// State is optional.
	State StatusWriter
	// Verbose is forwarded to greeter processes.
	Verbose bool

	Logger *slog.Logger
}

// Orchestrator drives the login loop: one display server, one cookie and
// at most one greeter per iteration, forever.
type Orchestrator struct {
	deps   Deps
	logger *slog.Logger

	// snapshot is the last successfully loaded configuration.
	snapshot *config.Config
	// first is true until the first iteration reaches the auto-login branch.
	first     bool
	iteration int
	status    state.Status
}

// New creates an Orchestrator.
func New(deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Token == nil {
		deps.Token = auth.Generate
	}
	if deps.Getenv == nil {
		deps.Getenv = os.Getenv
	}
	if deps.Setenv == nil {
		deps.Setenv = os.Setenv
	}
	return &Orchestrator{
		deps:   deps,
		logger: deps.Logger,
		first:  true,
	}
}

// Run acquires the lock and loops until ctx is cancelled or an
// unrecoverable error occurs. It returns nil after a clean shutdown,
// ErrAlreadyRunning if the lock is held and a wrapped ErrDisplayStart if
// the display server fails.
func (o *Orchestrator) Run(ctx context.Context) error {
	lk, err := o.deps.Lock()
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return ErrAlreadyRunning
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if err := lk.Release(); err != nil {
			o.logger.Warn("failed to release lock", "error", err)
		}
	}()

	o.status = state.Status{
		PID:           os.Getpid(),
		StartedAt:     time.Now().Unix(),
		SchemaVersion: state.CurrentSchemaVersion,
	}
	defer o.stopDisplay()

	for {
		if ctx.Err() != nil {
			o.logger.Info("shutting down", "iterations", o.iteration)
			o.setPhase(state.PhaseStopped, nil)
			return nil
		}
		if err := o.iterate(ctx); err != nil {
			o.setPhase(state.PhaseFailed, err)
			return err
		}
	}
}

// iterate runs one pass of the loop. Only unrecoverable errors are returned.
func (o *Orchestrator) iterate(ctx context.Context) error {
	o.iteration++
	id := ulid.Make().String()
	logger := o.logger.With("iteration", id)
	o.status.Iteration = o.iteration
	o.status.IterationID = id
	o.status.GreeterPID = 0
	o.setPhase(state.PhaseStarting, nil)

	cookie, err := o.deps.Token()
	if err != nil {
		logger.Log(ctx, LevelCritical, "could not generate display cookie", "error", err)
		return fmt.Errorf("failed to generate cookie: %w", err)
	}

	cfg := o.loadConfig(logger)

	desc, err := o.deps.Themes.Resolve(cfg.ThemesDir(), cfg.CurrentTheme())
	if err != nil {
		return fmt.Errorf("failed to resolve theme: %w", err)
	}
	o.status.Theme = desc.Name

	displayName := o.prepareEnv(cfg, logger)
	o.status.Display = displayName

	o.setPhase(state.PhaseDisplay, nil)
	if sc, ok := o.deps.Display.(serverConfigurable); ok {
		sc.SetConfig(cfg.Server)
	}
	o.deps.Display.SetDisplay(displayName)
	o.deps.Display.SetCookie(cookie)
	if err := o.deps.Display.Start(ctx); err != nil {
		if ctx.Err() != nil {
			logger.Info("display start interrupted")
			return nil
		}
		logger.Log(ctx, LevelCritical, "could not start display server", "display", displayName, "error", err)
		return fmt.Errorf("%w: %w", ErrDisplayStart, err)
	}

	sess := o.deps.NewSession(cfg)
	sess.SetDisplay(displayName)
	sess.SetCookie(cookie)

	if o.first && cfg.AutoUser() != "" {
		o.first = false
		o.setPhase(state.PhaseAutoLogin, nil)
		logger.Info("auto-login", "user", cfg.AutoUser())
		if err := sess.AutoLogin(ctx); err != nil {
			logger.Warn("auto-login failed", "user", cfg.AutoUser(), "error", err)
		}
		return nil
	}
	o.first = false

	payload := greeter.NewPayload(cfg, displayName, cookie, desc)
	payload.Verbose = o.deps.Verbose
	o.runGreeter(ctx, payload, logger)
	return nil
}

// loadConfig returns a fresh snapshot, or the previous one when loading
// fails.
func (o *Orchestrator) loadConfig(logger *slog.Logger) *config.Config {
	cfg, err := o.deps.Config.Load()
	if err == nil {
		o.snapshot = cfg
		return cfg
	}
	if o.snapshot == nil {
		logger.Error("failed to load config, using defaults", "error", err)
		o.snapshot = config.DefaultConfig()
	} else {
		logger.Error("failed to load config, keeping previous", "error", err)
	}
	return o.snapshot
}

// prepareEnv sets the display and cursor environment and returns the
// display to use.
func (o *Orchestrator) prepareEnv(cfg *config.Config, logger *slog.Logger) string {
	if o.deps.Getenv(EnvDisplay) == "" {
		if err := o.deps.Setenv(EnvDisplay, cfg.General.DefaultDisplay); err != nil {
			logger.Warn("failed to set environment", "key", EnvDisplay, "error", err)
		}
	}
	if err := o.deps.Setenv(EnvCursorTheme, cfg.CursorTheme()); err != nil {
		logger.Warn("failed to set environment", "key", EnvCursorTheme, "error", err)
	}

	if d := o.deps.Getenv(EnvDisplay); d != "" {
		return d
	}
	return cfg.General.DefaultDisplay
}

// runGreeter spawns a greeter and blocks until it has exited. A cancelled
// ctx terminates the greeter, but the wait still completes.
func (o *Orchestrator) runGreeter(ctx context.Context, p *greeter.Payload, logger *slog.Logger) {
	g, err := o.deps.Greeter.Spawn(ctx, p)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("failed to spawn greeter", "error", err)
		}
		return
	}

	o.status.GreeterPID = g.Pid()
	o.setPhase(state.PhaseGreeter, nil)
	logger.Info("greeter started", "pid", g.Pid(), "display", p.Display, "theme", p.Theme.Name)

	select {
	case <-g.Done():
	case <-ctx.Done():
		logger.Info("terminating greeter", "pid", g.Pid())
		g.Terminate()
	}
	err = g.Wait()

	if err != nil {
		logger.Info("greeter exited", "pid", g.Pid(), "error", err)
	} else {
		logger.Info("greeter exited", "pid", g.Pid())
	}
}

func (o *Orchestrator) stopDisplay() {
	if err := o.deps.Display.Stop(); err != nil {
		o.logger.Warn("failed to stop display server", "error", err)
	}
}

func (o *Orchestrator) setPhase(phase state.Phase, err error) {
	if o.deps.State == nil {
		return
	}
	o.status.Phase = phase
	o.status.Error = ""
	if err != nil {
		o.status.Error = err.Error()
	}
	if werr := o.deps.State.Save(&o.status); werr != nil {
		o.logger.Debug("failed to write state", "error", werr)
	}
}
