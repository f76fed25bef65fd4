// Package input turns raw keyboard events into debounced shortcut
// triggers. One goroutine per source blocks on the device; everything
// downstream is non-blocking.
package input

import (
	"errors"
	"fmt"
)

// ErrSourceClosed reports that a source's event channel closed, meaning
// the device went away rather than anyone asking for shutdown.
var ErrSourceClosed = errors.New("event channel closed")

// KeyEvent is one raw key transition.
type KeyEvent struct {
	Code uint16
	Down bool
}

// Source is a stream of raw key events. Events blocks until the source
// is ready or fails; the returned channel closes when the source dies.
type Source interface {
	Name() string
	Events() (<-chan KeyEvent, error)
	Close()
}

// DeviceError reports the loss of one input source. Fatal for that
// source only: the listener keeps running on whatever remains.
type DeviceError struct {
	Source string
	Err    error
}

func (e *DeviceError) Error() string { return fmt.Sprintf("input device %s: %v", e.Source, e.Err) }
func (e *DeviceError) Unwrap() error { return e.Err }
