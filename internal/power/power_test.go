package power

import (
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLogind struct {
	answers map[string]string
	calls   []string
	failOn  string
}

func (f *fakeLogind) Call(method string, _ dbus.Flags, args ...any) *dbus.Call {
	f.calls = append(f.calls, method)
	if method == f.failOn {
		return &dbus.Call{Err: errors.New("boom")}
	}
	if answer, ok := f.answers[method]; ok {
		return &dbus.Call{Body: []any{answer}}
	}
	return &dbus.Call{Body: []any{}}
}

func TestControl_Can(t *testing.T) {
	fake := &fakeLogind{answers: map[string]string{
		LoginInterface + ".CanPowerOff":  "yes",
		LoginInterface + ".CanReboot":    "challenge",
		LoginInterface + ".CanSuspend":   "no",
		LoginInterface + ".CanHibernate": "na",
	}}
	c := New(fake, nil)

	assert.True(t, c.Can(ActionPowerOff))
	assert.True(t, c.Can(ActionReboot))
	assert.False(t, c.Can(ActionSuspend))
	assert.False(t, c.Can(ActionHibernate))
	assert.False(t, c.Can(ActionHybridSleep), "empty reply is not a capability")

	caps := c.Capabilities()
	assert.Len(t, caps, len(Actions))
	assert.True(t, caps[ActionPowerOff])
	assert.False(t, caps[ActionSuspend])
}

func TestControl_Do(t *testing.T) {
	fake := &fakeLogind{answers: map[string]string{
		LoginInterface + ".CanReboot":  "yes",
		LoginInterface + ".CanSuspend": "no",
	}}
	c := New(fake, nil)

	require.NoError(t, c.Do(ActionReboot))
	assert.Equal(t, []string{LoginInterface + ".CanReboot", LoginInterface + ".Reboot"}, fake.calls)

	err := c.Do(ActionSuspend)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestControl_DoCallFails(t *testing.T) {
	fake := &fakeLogind{
		answers: map[string]string{LoginInterface + ".CanPowerOff": "yes"},
		failOn:  LoginInterface + ".PowerOff",
	}
	err := New(fake, nil).Do(ActionPowerOff)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PowerOff")
}

func TestControl_Nil(t *testing.T) {
	var c *Control
	assert.False(t, c.Can(ActionPowerOff))
	assert.ErrorIs(t, c.Do(ActionPowerOff), ErrUnavailable)
	assert.NoError(t, c.Close())
}
