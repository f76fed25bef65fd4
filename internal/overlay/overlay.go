// Package overlay owns per-overlay visibility state. All mutation goes
// through the state machine's Apply path; no other component holds a
// writable reference to overlay visibility.
package overlay

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hirawatt/sahayak/internal/protocol"
)

// State is a read-only view of one overlay's lifecycle state.
type State struct {
	Visible          bool
	LastTransitionAt time.Time
}

// ApplyFunc is invoked after every applied transition, outside the
// per-overlay lock. Used to persist last-known preferences.
type ApplyFunc func(id protocol.OverlayID, visible bool)

type entry struct {
	mu      sync.Mutex
	visible bool
	last    time.Time
}

// StateMachine holds one entry per overlay for the process lifetime.
// Transitions for the same overlay serialize on the entry lock;
// different overlays proceed independently.
type StateMachine struct {
	entries map[protocol.OverlayID]*entry
	onApply ApplyFunc
	now     func() time.Time
	log     *zap.SugaredLogger
}

// NewStateMachine creates every overlay in the Hidden state.
func NewStateMachine(log *zap.SugaredLogger, onApply ApplyFunc) *StateMachine {
	m := &StateMachine{
		entries: make(map[protocol.OverlayID]*entry),
		onApply: onApply,
		now:     time.Now,
		log:     log,
	}
	for _, id := range protocol.Overlays() {
		m.entries[id] = &entry{}
	}
	return m
}

// Seed sets an overlay's initial visibility from persisted preferences.
// It bypasses the apply hook and emits no events; call before serving.
func (m *StateMachine) Seed(id protocol.OverlayID, visible bool) {
	if e, ok := m.entries[id]; ok {
		e.mu.Lock()
		e.visible = visible
		e.mu.Unlock()
	}
}

// Apply performs one transition and returns the resulting visibility.
// Show on a visible overlay and Hide on a hidden one are valid no-ops.
func (m *StateMachine) Apply(id protocol.OverlayID, op protocol.Op) (bool, error) {
	e, ok := m.entries[id]
	if !ok {
		return false, fmt.Errorf("overlay: unknown overlay %q", id)
	}

	e.mu.Lock()
	prev := e.visible
	switch op {
	case protocol.OpToggle:
		e.visible = !prev
	case protocol.OpShow:
		e.visible = true
	case protocol.OpHide:
		e.visible = false
	default:
		e.mu.Unlock()
		return prev, fmt.Errorf("overlay: op %s is not a transition", op)
	}
	e.last = m.now()
	visible := e.visible
	e.mu.Unlock()

	m.log.Debugw("overlay transition",
		"overlay", id, "op", op.String(), "was", prev, "now", visible)
	if m.onApply != nil {
		m.onApply(id, visible)
	}
	return visible, nil
}

// Visible reports an overlay's current visibility.
func (m *StateMachine) Visible(id protocol.OverlayID) bool {
	e, ok := m.entries[id]
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.visible
}

// States returns a point-in-time copy of every overlay's state.
func (m *StateMachine) States() map[protocol.OverlayID]State {
	out := make(map[protocol.OverlayID]State, len(m.entries))
	for id, e := range m.entries {
		e.mu.Lock()
		out[id] = State{Visible: e.visible, LastTransitionAt: e.last}
		e.mu.Unlock()
	}
	return out
}
