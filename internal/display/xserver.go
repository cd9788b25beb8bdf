package display

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/jmylchreest/vigil/internal/auth"
	"github.com/jmylchreest/vigil/internal/config"
	"github.com/jmylchreest/vigil/internal/xauth"
)

// Controller starts and owns the display server for one (display, cookie) pair.
type Controller interface {
	SetDisplay(display string)
	SetCookie(cookie auth.Cookie)
	Start(ctx context.Context) error
	Stop() error
}

// ErrServerExited is returned when the server process exits before its socket appears.
var ErrServerExited = errors.New("display server exited during startup")

const (
	pollInterval = 50 * time.Millisecond
	stopTimeout  = 5 * time.Second
)

// XServer runs an X server process.
type XServer struct {
	mu     sync.Mutex
	logger *slog.Logger
	cfg    config.ServerConfig

	display string
	cookie  auth.Cookie

	cmd      *exec.Cmd
	exited   chan struct{}
	exitErr  error
	authFile string
}

var _ Controller = (*XServer)(nil)

// NewXServer creates a controller for the given server settings.
func NewXServer(cfg config.ServerConfig, logger *slog.Logger) *XServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &XServer{cfg: cfg, logger: logger}
}

// SetConfig replaces the server settings used by the next Start.
func (s *XServer) SetConfig(cfg config.ServerConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// SetDisplay sets the display the next Start binds to.
func (s *XServer) SetDisplay(display string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.display = display
}

// SetCookie sets the cookie the next Start authorizes.
func (s *XServer) SetCookie(cookie auth.Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookie = cookie
}

// Start stops any previous server, then starts a new one and waits until it
// accepts connections or the start timeout elapses.
func (s *XServer) Start(ctx context.Context) error {
	if err := s.Stop(); err != nil {
		s.logger.Warn("failed to stop previous display server", "error", err)
	}

	s.mu.Lock()
	display, cookie, cfg := s.display, s.cookie, s.cfg
	s.mu.Unlock()

	if len(cookie) == 0 {
		return errors.New("no cookie set")
	}
	number, err := xauth.DisplayNumber(display)
	if err != nil {
		return err
	}

	authFile := filepath.Join(cfg.AuthDir, "X"+number+".auth")
	if err := xauth.WriteFile(authFile, display, cookie, -1, -1); err != nil {
		return err
	}

	args := append([]string{display, "-auth", authFile}, cfg.Arguments...)
	cmd := exec.Command(cfg.Command, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		_ = os.Remove(authFile)
		return fmt.Errorf("failed to start display server: %w", err)
	}

	exited := make(chan struct{})
	s.mu.Lock()
	s.cmd = cmd
	s.exited = exited
	s.exitErr = nil
	s.authFile = authFile
	s.mu.Unlock()

	go func() {
		err := cmd.Wait()
		s.mu.Lock()
		s.exitErr = err
		s.mu.Unlock()
		close(exited)
	}()

	socket := filepath.Join(cfg.SocketDir, "X"+number)
	s.logger.Debug("waiting for display server", "display", display, "pid", cmd.Process.Pid, "socket", socket)

	if err := s.waitReady(ctx, socket, exited, cfg.StartTimeout.Duration()); err != nil {
		_ = s.Stop()
		return err
	}

	s.logger.Info("display server started", "display", display, "pid", cmd.Process.Pid)
	return nil
}

func (s *XServer) waitReady(ctx context.Context, socket string, exited <-chan struct{}, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if _, err := os.Stat(socket); err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-exited:
			s.mu.Lock()
			exitErr := s.exitErr
			s.mu.Unlock()
			if exitErr != nil {
				return fmt.Errorf("%w: %v", ErrServerExited, exitErr)
			}
			return ErrServerExited
		case <-deadline.C:
			return fmt.Errorf("display server did not become ready within %s", timeout)
		case <-ticker.C:
		}
	}
}

// Stop terminates the server, if any, and removes its Xauthority file.
func (s *XServer) Stop() error {
	s.mu.Lock()
	cmd, exited, authFile := s.cmd, s.exited, s.authFile
	s.cmd, s.exited, s.authFile = nil, nil, ""
	s.mu.Unlock()

	if cmd == nil {
		return nil
	}
	defer func() { _ = os.Remove(authFile) }()

	select {
	case <-exited:
		return nil
	default:
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to signal display server: %w", err)
	}

	select {
	case <-exited:
	case <-time.After(stopTimeout):
		s.logger.Warn("display server ignored SIGTERM, killing", "pid", cmd.Process.Pid)
		_ = cmd.Process.Kill()
		<-exited
	}

	s.logger.Debug("display server stopped", "pid", cmd.Process.Pid)
	return nil
}
