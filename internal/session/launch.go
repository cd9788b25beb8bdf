package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/jmylchreest/vigil/internal/auth"
	"github.com/jmylchreest/vigil/internal/model"
	"github.com/jmylchreest/vigil/internal/xauth"
)

// defaultPath is the PATH given to user sessions.
const defaultPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// LaunchRequest describes a user session to start.
type LaunchRequest struct {
	User    model.User
	Session model.Session
	Display string
	Cookie  auth.Cookie
}

// Process is a running user session.
type Process interface {
	Wait() error
}

// Launcher starts user sessions.
type Launcher interface {
	Launch(ctx context.Context, req LaunchRequest) (Process, error)
}

// ExecLauncher starts the session's Exec line as the user.
type ExecLauncher struct {
	Command string // Wrapper receiving Exec as its argument; empty runs it through a login shell
	LogFile string // Relative to the user's home; empty discards output
	logger  *slog.Logger
}

// NewExecLauncher creates an ExecLauncher.
func NewExecLauncher(command, logFile string, logger *slog.Logger) *ExecLauncher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecLauncher{Command: command, LogFile: logFile, logger: logger}
}

type execProcess struct {
	cmd *exec.Cmd
	log *os.File
}

func (p *execProcess) Wait() error {
	err := p.cmd.Wait()
	if p.log != nil {
		_ = p.log.Close()
	}
	return err
}

// Launch writes the user's Xauthority and starts the session.
func (l *ExecLauncher) Launch(ctx context.Context, req LaunchRequest) (Process, error) {
	u := req.User
	xauthority := filepath.Join(u.Home, ".Xauthority")
	if err := xauth.WriteFile(xauthority, req.Display, req.Cookie, u.UID, u.GID); err != nil {
		return nil, fmt.Errorf("failed to write user xauthority: %w", err)
	}

	var cmd *exec.Cmd
	if l.Command != "" {
		cmd = exec.Command(l.Command, req.Session.Exec)
	} else {
		cmd = exec.Command("/bin/sh", "-l", "-c", "exec "+req.Session.Exec)
	}
	cmd.Dir = u.Home
	cmd.Env = sessionEnv(req, xauthority)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if u.UID != os.Getuid() {
		cred := &syscall.Credential{Uid: uint32(u.UID), Gid: uint32(u.GID)}
		cred.Groups = supplementaryGroups(u.Name)
		cmd.SysProcAttr.Credential = cred
	}

	var logFile *os.File
	if l.LogFile != "" {
		path := filepath.Join(u.Home, l.LogFile)
		f, err := openSessionLog(path, u.UID, u.GID)
		if err != nil {
			l.logger.Warn("failed to open session log", "path", path, "error", err)
		} else {
			logFile = f
			cmd.Stdout = f
			cmd.Stderr = f
		}
	}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return nil, fmt.Errorf("failed to start session %q: %w", req.Session.Name, err)
	}

	l.logger.Info("user session started", "user", u.Name, "session", req.Session.Name, "pid", cmd.Process.Pid)
	return &execProcess{cmd: cmd, log: logFile}, nil
}

// openSessionLog opens the log in the user's home without following a
// symlink or writing through a hard link, then truncates and chowns it via
// the descriptor.
func openSessionLog(path string, uid, gid int) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|unix.O_NOFOLLOW|unix.O_NONBLOCK, 0600)
	if err != nil {
		return nil, err
	}
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		f.Close()
		return nil, err
	}
	if st.Mode&unix.S_IFMT != unix.S_IFREG || st.Nlink != 1 {
		f.Close()
		return nil, fmt.Errorf("refusing to write session log %s: not a regular file", path)
	}
	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Chown(uid, gid); err != nil && uid != os.Getuid() {
		f.Close()
		return nil, err
	}
	return f, nil
}

func sessionEnv(req LaunchRequest, xauthority string) []string {
	u := req.User
	shell := u.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	env := []string{
		"DISPLAY=" + req.Display,
		"XAUTHORITY=" + xauthority,
		"HOME=" + u.Home,
		"USER=" + u.Name,
		"LOGNAME=" + u.Name,
		"SHELL=" + shell,
		"PATH=" + defaultPath,
		"DESKTOP_SESSION=" + req.Session.Name,
		"XDG_SESSION_DESKTOP=" + req.Session.Name,
		"XDG_SESSION_TYPE=x11",
		"XDG_SESSION_CLASS=user",
	}
	if names := strings.Trim(req.Session.DesktopNames, ";"); names != "" {
		env = append(env, "XDG_CURRENT_DESKTOP="+strings.ReplaceAll(names, ";", ":"))
	}
	if cursor := os.Getenv("XCURSOR_THEME"); cursor != "" {
		env = append(env, "XCURSOR_THEME="+cursor)
	}
	return env
}

func supplementaryGroups(name string) []uint32 {
	u, err := user.Lookup(name)
	if err != nil {
		return nil
	}
	ids, err := u.GroupIds()
	if err != nil {
		return nil
	}
	groups := make([]uint32, 0, len(ids))
	for _, id := range ids {
		if gid, err := strconv.ParseUint(id, 10, 32); err == nil {
			groups = append(groups, uint32(gid))
		}
	}
	return groups
}
