package greeter

import (
	"unsafe"

	"github.com/diamondburned/gotk4/pkg/core/glib"
	"github.com/diamondburned/gotk4/pkg/gdk/v4"

	"github.com/jmylchreest/vigil/internal/model"
)

// screensOf returns the geometry of every monitor on display. GTK4 has no
// primary monitor, so the first one is flagged primary.
func screensOf(display *gdk.Display) []model.Screen {
	if display == nil {
		return nil
	}
	monitors := display.Monitors()
	if monitors == nil {
		return nil
	}

	screens := make([]model.Screen, 0, monitors.NItems())
	for i := uint(0); i < monitors.NItems(); i++ {
		m := wrapMonitor(monitors.Item(i))
		if m == nil {
			continue
		}
		geom := m.Geometry()
		screens = append(screens, model.Screen{
			Name:    m.Connector(),
			X:       geom.X(),
			Y:       geom.Y(),
			Width:   geom.Width(),
			Height:  geom.Height(),
			Primary: i == 0,
		})
	}
	return screens
}

// wrapMonitor wraps a glib.Object as a gdk.Monitor.
// gotk4 does not export its own wrapper.
func wrapMonitor(obj *glib.Object) *gdk.Monitor {
	if obj == nil {
		return nil
	}
	// gdk.Monitor embeds a *glib.Object, matching this layout.
	type monitor struct {
		_ [0]func()
		*glib.Object
	}
	m := &monitor{Object: obj}
	return (*gdk.Monitor)(unsafe.Pointer(m))
}
