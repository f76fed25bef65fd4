package input

import (
	"testing"
	"time"

	gohook "github.com/robotn/gohook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwardTranslatesEvents(t *testing.T) {
	in := make(chan gohook.Event, 8)
	out := make(chan KeyEvent, 8)
	done := make(chan struct{})
	go forward(done, in, out)

	in <- gohook.Event{Kind: gohook.KeyDown, Rawcode: 49}
	in <- gohook.Event{Kind: gohook.KeyHold, Rawcode: 49}
	in <- gohook.Event{Kind: gohook.KeyUp, Rawcode: 49}
	close(in)

	assert.Equal(t, KeyEvent{Code: 49, Down: true}, <-out)
	assert.Equal(t, KeyEvent{Code: 49, Down: false}, <-out)

	// Upstream closed: out closes, hold/repeat events were never forwarded.
	_, open := <-out
	assert.False(t, open)
}

func TestForwardUnblocksOnDone(t *testing.T) {
	in := make(chan gohook.Event, 8)
	out := make(chan KeyEvent) // nobody drains this
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		forward(done, in, out)
		close(exited)
	}()

	// The forwarder stalls mid-send with no consumer on out.
	in <- gohook.Event{Kind: gohook.KeyDown, Rawcode: 49}
	time.Sleep(20 * time.Millisecond)

	close(done)
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("forwarder did not exit after shutdown")
	}

	_, open := <-out
	require.False(t, open, "out must be closed on exit")
}
