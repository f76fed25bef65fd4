package input

import (
	"fmt"
	"sync"

	gohook "github.com/robotn/gohook"
)

// HookSource adapts the global keyboard hook into a Source. The hook
// callback thread is the only place in the process allowed to block on
// hardware.
type HookSource struct {
	done      chan struct{}
	closeOnce sync.Once
}

func NewHookSource() *HookSource {
	return &HookSource{done: make(chan struct{})}
}

func (h *HookSource) Name() string { return "global-hook" }

func (h *HookSource) Events() (<-chan KeyEvent, error) {
	evChan := gohook.Start()
	if evChan == nil {
		return nil, fmt.Errorf("keyboard hook failed to start")
	}

	out := make(chan KeyEvent, 64)
	go forward(h.done, evChan, out)
	return out, nil
}

func (h *HookSource) Close() {
	h.closeOnce.Do(func() {
		gohook.End()
		close(h.done)
	})
}

// forward translates raw hook events until the upstream channel closes
// or done is signalled. done also unblocks a send stalled on a consumer
// that stopped draining out.
func forward(done <-chan struct{}, in <-chan gohook.Event, out chan<- KeyEvent) {
	defer close(out)
	for {
		select {
		case <-done:
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			var ke KeyEvent
			switch ev.Kind {
			case gohook.KeyDown:
				ke = KeyEvent{Code: ev.Rawcode, Down: true}
			case gohook.KeyUp:
				ke = KeyEvent{Code: ev.Rawcode, Down: false}
			default:
				continue
			}
			select {
			case out <- ke:
			case <-done:
				return
			}
		}
	}
}
