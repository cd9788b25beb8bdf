// Package greeter runs the login surface in an isolated process.
//
// GTK allows at most one application instance per process lifetime, while
// the orchestrator needs a fresh one every iteration. Each greeter therefore
// runs in a re-executed copy of the daemon binary. The child receives a
// serialized Payload on an inherited pipe; it never shares memory with the
// parent, and the session manager it drives is its own copy.
package greeter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// PayloadFD is the descriptor number the child reads its payload from.
// ExtraFiles[0] always becomes fd 3.
const PayloadFD = 3

// DefaultCommand is the hidden subcommand a re-executed daemon runs.
const DefaultCommand = "greeter"

// DefaultStopTimeout is how long Terminate waits before SIGKILL.
const DefaultStopTimeout = 5 * time.Second

// Host spawns greeter processes.
type Host struct {
	logger *slog.Logger

	// Executable defaults to the running binary.
	Executable string
	// Args are passed to Executable; defaults to [DefaultCommand].
	Args []string
	// Env is appended to the inherited environment.
	Env []string
	// StopTimeout bounds the SIGTERM grace period of Terminate.
	StopTimeout time.Duration
}

// NewHost creates a Host that re-executes the current binary.
func NewHost(logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		logger:      logger,
		Args:        []string{DefaultCommand},
		StopTimeout: DefaultStopTimeout,
	}
}

// Spawn starts a greeter process for p and returns once it is running.
// Cancelling ctx afterwards has no effect on the child; use Terminate.
func (h *Host) Spawn(ctx context.Context, p *Payload) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	data, err := p.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to encode greeter payload: %w", err)
	}

	exe := h.Executable
	if exe == "" {
		if exe, err = os.Executable(); err != nil {
			return nil, fmt.Errorf("failed to locate executable: %w", err)
		}
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create payload pipe: %w", err)
	}

	cmd := exec.Command(exe, h.Args...)
	cmd.ExtraFiles = []*os.File{r}
	cmd.Env = append(os.Environ(), h.Env...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, fmt.Errorf("failed to start greeter: %w", err)
	}
	r.Close()

	go func() {
		defer w.Close()
		if _, err := w.Write(data); err != nil {
			h.logger.Warn("failed to send greeter payload", "pid", cmd.Process.Pid, "error", err)
		}
	}()

	proc := &Process{
		cmd:         cmd,
		done:        make(chan struct{}),
		logger:      h.logger,
		stopTimeout: h.StopTimeout,
	}
	go proc.reap()

	h.logger.Debug("greeter spawned", "pid", cmd.Process.Pid)
	return proc, nil
}

// Process is a running greeter.
type Process struct {
	cmd         *exec.Cmd
	done        chan struct{}
	err         error
	logger      *slog.Logger
	stopTimeout time.Duration

	terminateOnce sync.Once
}

func (p *Process) reap() {
	p.err = p.cmd.Wait()
	close(p.done)
}

// Pid returns the child's process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Wait blocks until the child has exited. A non-zero exit is returned as
// an *exec.ExitError.
func (p *Process) Wait() error {
	<-p.done
	return p.err
}

// Done is closed when the child has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Terminate asks the child to exit and kills it if it has not after the
// stop timeout. It does not wait; use Wait.
func (p *Process) Terminate() {
	p.terminateOnce.Do(func() {
		if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.logger.Warn("failed to signal greeter", "pid", p.Pid(), "error", err)
		}
		go func() {
			select {
			case <-p.done:
			case <-time.After(p.stopTimeout):
				p.logger.Warn("greeter ignored SIGTERM, killing", "pid", p.Pid())
				_ = p.cmd.Process.Kill()
			}
		}()
	})
}

// OpenPayload reads the payload handed to a greeter child.
func OpenPayload() (*Payload, error) {
	f := os.NewFile(PayloadFD, "greeter-payload")
	if f == nil {
		return nil, errors.New("no greeter payload descriptor")
	}
	defer f.Close()
	return ReadPayload(f)
}
