package capture

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Tool shells out to an external screenshot utility that writes a PNG to
// a path given as its final argument. Used as the last-resort fallback
// (gnome-screenshot, grim).
type Tool struct {
	Binary string
	// Args precede the output path, e.g. ["-f"] for gnome-screenshot.
	Args []string
}

// GnomeScreenshotTool invokes the gnome-screenshot CLI.
func GnomeScreenshotTool() Tool { return Tool{Binary: "gnome-screenshot", Args: []string{"-f"}} }

// GrimTool invokes grim, the wlroots screenshot utility.
func GrimTool() Tool { return Tool{Binary: "grim"} }

func (t Tool) Name() string { return t.Binary }

func (t Tool) Capture(ctx context.Context) ([]byte, error) {
	if _, err := exec.LookPath(t.Binary); err != nil {
		return nil, fmt.Errorf("%s not installed", t.Binary)
	}

	tmp, err := os.CreateTemp("", "sahayak-shot-*.png")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	path := tmp.Name()
	tmp.Close()
	defer os.Remove(path)

	args := append(append([]string(nil), t.Args...), path)
	cmd := exec.CommandContext(ctx, t.Binary, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s: %v: %s", t.Binary, err, strings.TrimSpace(stderr.String()))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	return data, nil
}
