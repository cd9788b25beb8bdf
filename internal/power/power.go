// Package power exposes shutdown, reboot and sleep to the greeter through
// systemd-logind on the system bus.
package power

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
)

// logind bus coordinates.
const (
	LoginDest      = "org.freedesktop.login1"
	LoginPath      = dbus.ObjectPath("/org/freedesktop/login1")
	LoginInterface = "org.freedesktop.login1.Manager"
)

// Action is a logind power method name.
type Action string

// Supported actions.
const (
	ActionPowerOff    Action = "PowerOff"
	ActionReboot      Action = "Reboot"
	ActionSuspend     Action = "Suspend"
	ActionHibernate   Action = "Hibernate"
	ActionHybridSleep Action = "HybridSleep"
)

// Actions lists every supported action.
var Actions = []Action{ActionPowerOff, ActionReboot, ActionSuspend, ActionHibernate, ActionHybridSleep}

// ErrUnavailable is returned when logind refuses an action.
var ErrUnavailable = errors.New("power action not available")

// caller is the subset of dbus.BusObject used here.
type caller interface {
	Call(method string, flags dbus.Flags, args ...any) *dbus.Call
}

// Control issues power actions.
type Control struct {
	logger *slog.Logger
	conn   *dbus.Conn
	obj    caller
}

// Connect opens a system bus connection to logind.
func Connect(logger *slog.Logger) (*Control, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	c := New(conn.Object(LoginDest, LoginPath), logger)
	c.conn = conn
	return c, nil
}

// New creates a Control backed by obj.
func New(obj caller, logger *slog.Logger) *Control {
	if logger == nil {
		logger = slog.Default()
	}
	return &Control{obj: obj, logger: logger}
}

// Can reports whether action may be performed. logind answers "yes",
// "challenge" (polkit will ask), "no" or "na".
func (c *Control) Can(action Action) bool {
	if c == nil {
		return false
	}
	var answer string
	if err := c.obj.Call(LoginInterface+".Can"+string(action), 0).Store(&answer); err != nil {
		c.logger.Debug("logind capability query failed", "action", action, "error", err)
		return false
	}
	return answer == "yes" || answer == "challenge"
}

// Do performs action non-interactively.
func (c *Control) Do(action Action) error {
	if c == nil {
		return ErrUnavailable
	}
	if !c.Can(action) {
		return fmt.Errorf("%w: %s", ErrUnavailable, action)
	}
	c.logger.Info("requesting power action", "action", action)
	if err := c.obj.Call(LoginInterface+"."+string(action), 0, false).Err; err != nil {
		return fmt.Errorf("failed to call logind %s: %w", action, err)
	}
	return nil
}

// Capabilities returns the availability of every action.
func (c *Control) Capabilities() map[Action]bool {
	caps := make(map[Action]bool, len(Actions))
	for _, a := range Actions {
		caps[a] = c.Can(a)
	}
	return caps
}

// Close releases the bus connection, if owned.
func (c *Control) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
