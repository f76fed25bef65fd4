package capture

import (
	"context"
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"
)

const (
	shellBus    = "org.gnome.Shell"
	shellPath   = "/org/gnome/Shell"
	shellMethod = "org.gnome.Shell.Screenshot.Screenshot"
)

// GNOMEShell captures the screen through the GNOME Shell Screenshot
// D-Bus API. Preferred on Wayland, where direct framebuffer access is
// unavailable to ordinary processes.
type GNOMEShell struct{}

func (GNOMEShell) Name() string { return "gnome-shell-dbus" }

func (GNOMEShell) Capture(ctx context.Context) ([]byte, error) {
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("session bus: %w", err)
	}
	defer conn.Close()

	tmp, err := os.CreateTemp("", "sahayak-shot-*.png")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	path := tmp.Name()
	tmp.Close()
	defer os.Remove(path)

	var ok bool
	var usedPath string
	obj := conn.Object(shellBus, dbus.ObjectPath(shellPath))
	// Screenshot(include_cursor, flash, filename) -> (success, filename_used)
	call := obj.CallWithContext(ctx, shellMethod, 0, false, false, path)
	if call.Err != nil {
		return nil, fmt.Errorf("dbus call: %w", call.Err)
	}
	if err := call.Store(&ok, &usedPath); err != nil {
		return nil, fmt.Errorf("dbus reply: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("shell reported failure")
	}
	if usedPath != "" && usedPath != path {
		defer os.Remove(usedPath)
		path = usedPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read screenshot: %w", err)
	}
	return data, nil
}
