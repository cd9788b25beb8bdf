package greeter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/diamondburned/gotk4-adwaita/pkg/adw"
	"github.com/diamondburned/gotk4/pkg/gdk/v4"
	"github.com/diamondburned/gotk4/pkg/gio/v2"
	"github.com/diamondburned/gotk4/pkg/glib/v2"
	"github.com/diamondburned/gotk4/pkg/gtk/v4"

	"github.com/jmylchreest/vigil/internal/model"
	"github.com/jmylchreest/vigil/internal/power"
	"github.com/jmylchreest/vigil/internal/theme"
)

const appID = "io.github.jmylchreest.vigil.greeter"

// Widget ids a theme's main script may define. root, user_entry,
// password_entry and login_button are required. user_list is a GtkDropDown
// of the selectable users; picking one fills user_entry.
const (
	idRoot            = "root"
	idUserEntry       = "user_entry"
	idUserList        = "user_list"
	idPasswordEntry   = "password_entry"
	idSessionDropdown = "session_dropdown"
	idLoginButton     = "login_button"
	idMessageLabel    = "message_label"
	idHostnameLabel   = "hostname_label"
	idPoweroffButton  = "poweroff_button"
	idRebootButton    = "reboot_button"
	idSuspendButton   = "suspend_button"
)

// Run hosts the greeter for p until its window closes, then waits for any
// user session started from it. It returns the process exit status.
func Run(ctx context.Context, p *Payload, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}

	if !p.Preview {
		cleanup, err := authorizeDisplay(p)
		if err != nil {
			logger.Error("failed to authorize greeter display", "display", p.Display, "error", err)
			return 1
		}
		defer cleanup()
	}

	c := NewChild(p, logger)
	defer c.Close()
	c.ConnectPower()

	if status := runApplication(ctx, c, logger); status != 0 {
		return status
	}

	if err := c.Manager.Wait(); err != nil {
		logger.Info("user session finished", "error", err)
	}
	return 0
}

// runApplication runs the GTK main loop. It must be called at most once per
// process.
func runApplication(ctx context.Context, c *Child, logger *slog.Logger) int {
	app := adw.NewApplication(appID, gio.ApplicationNonUnique)

	var watcher *theme.StyleWatcher
	failed := false

	app.ConnectActivate(func() {
		v, err := newView(app, c, logger)
		if err != nil {
			logger.Error("failed to build greeter", "theme", c.payload.Theme.Name, "error", err)
			failed = true
			app.Quit()
			return
		}

		c.Manager.OnSuccess(func() {
			glib.IdleAdd(func() {
				logger.Info("login succeeded, closing greeter")
				v.window.Close()
			})
		})

		watcher = theme.NewStyleWatcher(&c.payload.Theme, logger)
		watcher.SetChangeCallback(func(css string) {
			glib.IdleAdd(func() { v.provider.LoadFromString(css) })
		})
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("failed to watch stylesheet", "error", err)
		}

		v.present()
	})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			logger.Info("greeter interrupted")
			glib.IdleAdd(app.Quit)
		case <-stop:
		}
	}()

	status := app.Run([]string{os.Args[0]})
	if watcher != nil {
		watcher.Stop()
	}
	if failed && status == 0 {
		status = 1
	}
	return status
}

type view struct {
	logger *slog.Logger
	child  *Child

	window   *gtk.ApplicationWindow
	provider *gtk.CSSProvider

	user     *gtk.Entry
	users    *gtk.DropDown
	password *gtk.PasswordEntry
	sessions *gtk.DropDown
	login    *gtk.Button
	message  *gtk.Label

	busy atomic.Bool
}

func lookup[T any](b *gtk.Builder, id string) (T, bool) {
	var zero T
	obj := b.GetObject(id)
	if obj == nil {
		return zero, false
	}
	w, ok := obj.Cast().(T)
	return w, ok
}

func newView(app *adw.Application, c *Child, logger *slog.Logger) (*view, error) {
	ui, err := c.payload.Theme.ReadMainScript()
	if err != nil {
		return nil, err
	}
	css, err := c.payload.Theme.ReadStylesheet()
	if err != nil {
		return nil, err
	}

	builder := gtk.NewBuilder()
	if err := builder.AddFromString(ui, len(ui)); err != nil {
		return nil, fmt.Errorf("failed to load main script: %w", err)
	}

	v := &view{logger: logger, child: c}

	root, ok := lookup[gtk.Widgetter](builder, idRoot)
	if !ok {
		return nil, fmt.Errorf("main script has no %q widget", idRoot)
	}
	if v.user, ok = lookup[*gtk.Entry](builder, idUserEntry); !ok {
		return nil, fmt.Errorf("main script has no GtkEntry %q", idUserEntry)
	}
	if v.password, ok = lookup[*gtk.PasswordEntry](builder, idPasswordEntry); !ok {
		return nil, fmt.Errorf("main script has no GtkPasswordEntry %q", idPasswordEntry)
	}
	if v.login, ok = lookup[*gtk.Button](builder, idLoginButton); !ok {
		return nil, fmt.Errorf("main script has no GtkButton %q", idLoginButton)
	}
	v.users, _ = lookup[*gtk.DropDown](builder, idUserList)
	v.sessions, _ = lookup[*gtk.DropDown](builder, idSessionDropdown)
	v.message, _ = lookup[*gtk.Label](builder, idMessageLabel)

	display := gdk.DisplayGetDefault()
	c.Screens = screensOf(display)

	v.provider = gtk.NewCSSProvider()
	v.provider.LoadFromString(css)
	if display != nil {
		gtk.StyleContextAddProviderForDisplay(display, v.provider, gtk.STYLE_PROVIDER_PRIORITY_APPLICATION)
	}

	v.window = gtk.NewApplicationWindow(&app.Application)
	v.window.SetTitle("vigil")
	v.window.SetDecorated(false)
	v.window.AddCSSClass("greeter")
	v.window.SetChild(root)
	if screen, ok := model.PrimaryScreen(c.Screens); ok {
		v.window.SetDefaultSize(screen.Width, screen.Height)
	}

	if label, ok := lookup[*gtk.Label](builder, idHostnameLabel); ok {
		label.SetText(c.Hostname)
	}

	v.bindSessions()
	v.bindLogin()
	v.bindUsers()
	v.bindPower(builder)

	return v, nil
}

func (v *view) bindSessions() {
	if v.sessions == nil {
		return
	}
	titles := make([]string, len(v.child.Sessions))
	for i, s := range v.child.Sessions {
		titles[i] = s.Title
	}
	v.sessions.SetModel(gtk.NewStringList(titles))
	if len(titles) > 0 {
		v.sessions.SetSelected(uint(v.child.DefaultSessionIndex()))
	}
}

func (v *view) bindUsers() {
	if v.users == nil {
		return
	}
	users := v.child.Users
	names := make([]string, len(users))
	for i, u := range users {
		names[i] = u.DisplayName()
	}
	v.users.SetModel(gtk.NewStringList(names))
	if i := v.child.DefaultUserIndex(); i >= 0 {
		v.users.SetSelected(uint(i))
	} else {
		v.users.SetSelected(gtk.INVALID_LIST_POSITION)
	}

	v.users.NotifyProperty("selected", func() {
		i := v.users.Selected()
		if i >= uint(len(users)) {
			return
		}
		v.user.SetText(users[i].Name)
		v.password.GrabFocus()
	})
}

func (v *view) bindLogin() {
	v.user.SetText(v.child.DefaultUser())
	v.user.ConnectActivate(func() { v.password.GrabFocus() })
	v.password.ConnectActivate(v.submit)
	v.login.ConnectClicked(v.submit)
}

func (v *view) bindPower(builder *gtk.Builder) {
	buttons := map[string]power.Action{
		idPoweroffButton: power.ActionPowerOff,
		idRebootButton:   power.ActionReboot,
		idSuspendButton:  power.ActionSuspend,
	}
	for id, action := range buttons {
		btn, ok := lookup[*gtk.Button](builder, id)
		if !ok {
			continue
		}
		if !v.child.Preview() && !v.child.Power.Can(action) {
			btn.SetVisible(false)
			continue
		}
		btn.ConnectClicked(func() {
			go func() {
				if err := v.child.PowerAction(action); err != nil {
					glib.IdleAdd(func() { v.setMessage(Message(err)) })
				}
			}()
		})
	}
}

func (v *view) present() {
	if v.user.Text() != "" {
		v.password.GrabFocus()
	} else {
		v.user.GrabFocus()
	}
	if !v.child.Preview() {
		v.window.Fullscreen()
	}
	v.window.Present()
}

func (v *view) submit() {
	if !v.busy.CompareAndSwap(false, true) {
		return
	}

	user := v.user.Text()
	password := v.password.Text()
	index := -1
	if v.sessions != nil {
		index = int(v.sessions.Selected())
	}

	v.setMessage("")
	v.login.SetSensitive(false)

	go func() {
		err := v.child.Login(context.Background(), user, password, index)
		glib.IdleAdd(func() {
			v.busy.Store(false)
			v.login.SetSensitive(true)
			if err != nil {
				v.password.SetText("")
				v.password.GrabFocus()
				v.setMessage(Message(err))
			}
		})
	}()
}

func (v *view) setMessage(text string) {
	if v.message != nil {
		v.message.SetText(text)
	}
}
