package capture

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/kbinani/screenshot"
)

// Display grabs the primary display directly. Works on X11 and native
// desktops; on Wayland the grab is refused by the compositor and the
// chain moves on.
type Display struct{}

func (Display) Name() string { return "display-grab" }

func (Display) Capture(ctx context.Context) ([]byte, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return nil, fmt.Errorf("no active displays")
	}

	type grab struct {
		data []byte
		err  error
	}
	// CaptureDisplay has no cancellation hook; run it aside and let the
	// deadline abandon it.
	ch := make(chan grab, 1)
	go func() {
		img, err := screenshot.CaptureDisplay(0)
		if err != nil {
			ch <- grab{err: fmt.Errorf("capture display: %w", err)}
			return
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			ch <- grab{err: fmt.Errorf("encode png: %w", err)}
			return
		}
		ch <- grab{data: buf.Bytes()}
	}()

	select {
	case g := <-ch:
		return g.data, g.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
