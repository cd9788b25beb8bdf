package greeter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"os/user"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/vigil/internal/auth"
	"github.com/jmylchreest/vigil/internal/config"
	"github.com/jmylchreest/vigil/internal/model"
	"github.com/jmylchreest/vigil/internal/power"
	"github.com/jmylchreest/vigil/internal/session"
	"github.com/jmylchreest/vigil/internal/state"
	"github.com/jmylchreest/vigil/internal/theme"
	"github.com/jmylchreest/vigil/internal/xauth"
)

const (
	envHelper = "VIGIL_TEST_GREETER_CHILD"
	envOut    = "VIGIL_TEST_GREETER_OUT"
	envMode   = "VIGIL_TEST_GREETER_MODE"
)

// TestMain doubles as the greeter child when re-executed by Host.
func TestMain(m *testing.M) {
	if os.Getenv(envHelper) == "1" {
		os.Exit(helperChild())
	}
	os.Exit(m.Run())
}

func helperChild() int {
	p, err := OpenPayload()
	if err != nil {
		fmt.Fprintln(os.Stderr, "helper:", err)
		return 3
	}

	mode := os.Getenv(envMode)
	if mode == "stubborn" {
		signal.Ignore(syscall.SIGTERM)
	}

	display, cookie := p.Display, []byte(p.Cookie)
	if mode == "xauth" {
		cleanup, err := authorizeDisplay(p)
		if err != nil {
			fmt.Fprintln(os.Stderr, "helper:", err)
			return 5
		}
		defer cleanup()
		if cookie, err = readAuthority(os.Getenv("XAUTHORITY")); err != nil {
			fmt.Fprintln(os.Stderr, "helper:", err)
			return 6
		}
		display = os.Getenv("DISPLAY")
	}

	line := fmt.Sprintf("%s %x %s", display, cookie, p.Theme.Name)
	if err := os.WriteFile(os.Getenv(envOut), []byte(line), 0644); err != nil {
		return 4
	}

	switch mode {
	case "fail":
		return 7
	case "sleep", "stubborn":
		time.Sleep(30 * time.Second)
	}
	return 0
}

// readAuthority returns the cookie of the first entry in an Xauthority file.
func readAuthority(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	entries, err := xauth.Read(f)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.New("no xauth entries")
	}
	return entries[0].Data, nil
}

func testPayload(t *testing.T) *Payload {
	t.Helper()
	cookie, err := auth.Generate()
	require.NoError(t, err)
	return NewPayload(config.DefaultConfig(), ":3", cookie, theme.Default())
}

func testHost(t *testing.T, mode string) (*Host, string) {
	t.Helper()
	out := filepath.Join(t.TempDir(), "child.out")
	h := NewHost(nil)
	h.Executable = os.Args[0]
	h.Args = []string{"-test.run=^$"}
	h.Env = []string{envHelper + "=1", envOut + "=" + out, envMode + "=" + mode}
	h.StopTimeout = 200 * time.Millisecond
	return h, out
}

func TestPayload_RoundTrip(t *testing.T) {
	p := testPayload(t)
	p.Users.HideUsers = []string{"guest"}

	data, err := p.Marshal()
	require.NoError(t, err)

	decoded, err := ReadPayload(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, p.Display, decoded.Display)
	assert.True(t, p.Cookie.Equal(decoded.Cookie))
	assert.Equal(t, p.Theme.Config, decoded.Theme.Config)
	assert.True(t, decoded.Theme.Embedded)
	assert.Equal(t, []string{"guest"}, decoded.Users.HideUsers)
	assert.Equal(t, config.DefaultAuthHelper, decoded.AuthHelper)
	assert.True(t, decoded.Power)
}

func TestPayload_Deterministic(t *testing.T) {
	p := testPayload(t)
	first, err := p.Marshal()
	require.NoError(t, err)
	second, err := p.Marshal()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPayload_Validate(t *testing.T) {
	p := testPayload(t)
	require.NoError(t, p.Validate())

	noDisplay := *p
	noDisplay.Display = ""
	assert.Error(t, noDisplay.Validate())

	shortCookie := *p
	shortCookie.Cookie = auth.Cookie{1, 2}
	assert.Error(t, shortCookie.Validate())

	preview := Payload{Theme: p.Theme, Preview: true}
	assert.NoError(t, preview.Validate(), "preview needs no display")

	noTheme := *p
	noTheme.Theme = theme.Descriptor{}
	assert.Error(t, noTheme.Validate())
}

func TestReadPayload_Garbage(t *testing.T) {
	_, err := ReadPayload(bytes.NewReader([]byte{0xff, 0x00}))
	assert.Error(t, err)
}

func TestHost_SpawnPassesPayloadCopy(t *testing.T) {
	h, out := testHost(t, "ok")
	p := testPayload(t)

	proc, err := h.Spawn(context.Background(), p)
	require.NoError(t, err)
	assert.Positive(t, proc.Pid())
	require.NoError(t, proc.Wait())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf(":3 %x default", []byte(p.Cookie)), string(data))

	select {
	case <-proc.Done():
	default:
		t.Fatal("Done not closed after Wait")
	}
}

func TestHost_ChildAuthorizedForDisplay(t *testing.T) {
	h, out := testHost(t, "xauth")
	h.Env = append(h.Env, "XAUTHORITY=", "DISPLAY=")
	p := testPayload(t)

	proc, err := h.Spawn(context.Background(), p)
	require.NoError(t, err)
	require.NoError(t, proc.Wait())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf(":3 %x default", []byte(p.Cookie)), string(data))
}

func TestAuthorizeDisplay(t *testing.T) {
	t.Setenv("XAUTHORITY", "")
	t.Setenv("DISPLAY", "")
	p := testPayload(t)

	cleanup, err := authorizeDisplay(p)
	require.NoError(t, err)

	path := os.Getenv("XAUTHORITY")
	require.NotEmpty(t, path)
	assert.Equal(t, ":3", os.Getenv("DISPLAY"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	cookie, err := readAuthority(path)
	require.NoError(t, err)
	assert.True(t, p.Cookie.Equal(cookie))

	cleanup()
	assert.NoFileExists(t, path)
}

func TestHost_ChildExitStatus(t *testing.T) {
	h, _ := testHost(t, "fail")

	proc, err := h.Spawn(context.Background(), testPayload(t))
	require.NoError(t, err)

	err = proc.Wait()
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 7, exitErr.ExitCode())
}

func TestHost_Terminate(t *testing.T) {
	h, out := testHost(t, "sleep")

	proc, err := h.Spawn(context.Background(), testPayload(t))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, err := os.Stat(out)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	proc.Terminate()
	proc.Terminate()
	assert.Error(t, proc.Wait())
}

func TestHost_TerminateKillsStubbornChild(t *testing.T) {
	h, out := testHost(t, "stubborn")

	proc, err := h.Spawn(context.Background(), testPayload(t))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, err := os.Stat(out)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	start := time.Now()
	proc.Terminate()
	err = proc.Wait()

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	status := exitErr.Sys().(syscall.WaitStatus)
	assert.Equal(t, syscall.SIGKILL, status.Signal())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestHost_SpawnErrors(t *testing.T) {
	h, _ := testHost(t, "ok")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.Spawn(ctx, testPayload(t))
	assert.ErrorIs(t, err, context.Canceled)

	bad := testPayload(t)
	bad.Display = ""
	_, err = h.Spawn(context.Background(), bad)
	assert.Error(t, err)

	h.Executable = filepath.Join(t.TempDir(), "missing")
	_, err = h.Spawn(context.Background(), testPayload(t))
	assert.Error(t, err)
}

// childFixture prepares passwd, xsessions and an auth helper for the
// current user so real sessions can be launched without privileges.
func childFixture(t *testing.T) *Payload {
	t.Helper()
	dir := t.TempDir()

	current, err := user.Current()
	require.NoError(t, err)
	home := filepath.Join(dir, "home")
	require.NoError(t, os.MkdirAll(home, 0755))

	passwd := filepath.Join(dir, "passwd")
	require.NoError(t, os.WriteFile(passwd, []byte(fmt.Sprintf(
		"%s:x:%s:%s:Test User:%s:/bin/sh\nguest:x:4242:4242:Guest:/home/guest:/bin/sh\n",
		current.Username, current.Uid, current.Gid, home)), 0644))

	sessions := filepath.Join(dir, "xsessions")
	require.NoError(t, os.MkdirAll(sessions, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sessions, "alpha.desktop"),
		[]byte("[Desktop Entry]\nName=Alpha\nExec=true\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(sessions, "beta.desktop"),
		[]byte("[Desktop Entry]\nName=Beta\nExec=true\n"), 0644))

	helper := filepath.Join(dir, "auth-helper")
	require.NoError(t, os.WriteFile(helper, []byte("#!/bin/sh\nread pw\n[ \"$pw\" = secret ]\n"), 0755))

	p := testPayload(t)
	p.PasswdPath = passwd
	p.AuthHelper = helper
	p.Power = false
	p.Sessions = config.SessionsConfig{Dir: sessions}
	p.Users = config.UsersConfig{
		MinimumUID:   0,
		MaximumUID:   1 << 30,
		HideUsers:    []string{"guest"},
		RememberLast: true,
		RememberFile: filepath.Join(dir, "last-login.json"),
	}
	return p
}

func TestChild_Models(t *testing.T) {
	p := childFixture(t)
	c := NewChild(p, nil)

	require.Len(t, c.Sessions, 2)
	assert.Equal(t, "alpha", c.Sessions[0].Name)
	require.Len(t, c.Users, 1)
	assert.Equal(t, c.Users[0].Name, c.DefaultUser(), "single user is prefilled")
	assert.Equal(t, 0, c.DefaultUserIndex())
	assert.Equal(t, 0, c.DefaultSessionIndex())
	assert.Equal(t, p.Display, c.Manager.Display())
	assert.True(t, p.Cookie.Equal(c.Manager.Cookie()))
}

func TestChild_DefaultUserIndex(t *testing.T) {
	c := &Child{Users: []model.User{{Name: "alice"}, {Name: "bob"}}}
	assert.Equal(t, -1, c.DefaultUserIndex(), "nothing preselected among several users")

	c.Last.User = "bob"
	assert.Equal(t, 1, c.DefaultUserIndex())

	c.Last.User = "guest"
	assert.Equal(t, "guest", c.DefaultUser())
	assert.Equal(t, -1, c.DefaultUserIndex(), "remembered user that is not listed")
}

func TestChild_LoginRemembersLast(t *testing.T) {
	p := childFixture(t)
	c := NewChild(p, nil)
	name := c.Users[0].Name

	fired := false
	c.Manager.OnSuccess(func() { fired = true })

	err := c.Login(context.Background(), name, "wrong", 1)
	assert.ErrorIs(t, err, session.ErrAuth)
	assert.Equal(t, "Login incorrect", Message(err))
	assert.False(t, fired)

	require.NoError(t, c.Login(context.Background(), name, "secret", 1))
	assert.True(t, fired)
	require.NoError(t, c.Manager.Wait())

	last := state.LoadLastLogin(p.Users.RememberFile)
	assert.Equal(t, name, last.User)
	assert.Equal(t, "beta", last.Session)

	// A new greeter preselects the remembered session
	again := NewChild(p, nil)
	assert.Equal(t, 1, again.DefaultSessionIndex())
	assert.Equal(t, name, again.DefaultUser())
}

func TestChild_Preview(t *testing.T) {
	p := childFixture(t)
	p.Preview = true
	c := NewChild(p, nil)
	c.ConnectPower()

	assert.True(t, c.Preview())
	assert.Nil(t, c.Power)
	assert.ErrorIs(t, c.Login(context.Background(), "x", "secret", 0), ErrPreview)
	assert.ErrorIs(t, c.PowerAction(power.ActionReboot), ErrPreview)
	c.Close()
}

func TestMessage(t *testing.T) {
	assert.Empty(t, Message(nil))
	assert.Equal(t, "A session is already running", Message(session.ErrBusy))
	assert.Equal(t, "This action is not available", Message(power.ErrUnavailable))
	assert.Equal(t, "Login failed: boom", Message(errors.New("boom")))
}
