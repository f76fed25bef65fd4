// Package orchestrator binds shortcut events and client control messages
// to overlay transitions and context captures, and publishes the results.
// All triggers flow through one ordered channel consumed by a single
// goroutine, which makes per-overlay transition serialization mechanical.
package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hirawatt/sahayak/internal/overlay"
	"github.com/hirawatt/sahayak/internal/protocol"
	"github.com/hirawatt/sahayak/internal/snapshot"
)

// Publisher fans an event out to connected clients.
type Publisher interface {
	Publish(protocol.Envelope)
}

// Options tune the orchestrator.
type Options struct {
	// Workers sizes the snapshot pool.
	Workers int
	// SnapshotTimeout bounds one whole snapshot build.
	SnapshotTimeout time.Duration
}

// Orchestrator is the coordination loop.
type Orchestrator struct {
	triggers chan protocol.Trigger
	results  chan captureResult
	machine  *overlay.StateMachine
	pool     *pool
	hub      Publisher
	opts     Options
	// pending tracks the in-flight capture per overlay, so a newer
	// request supersedes the old one. Each capture carries a generation
	// number; a superseded job's late result must not evict the entry
	// of the job that replaced it.
	pending map[protocol.OverlayID]pendingCapture
	genSeq  uint64
	log     *zap.SugaredLogger
}

type pendingCapture struct {
	gen    uint64
	cancel context.CancelFunc
}

type captureResult struct {
	trigger protocol.Trigger
	snap    snapshot.Snapshot
	err     error
	// state, when set, is the transition event that must be published
	// after (never before) the context event.
	state  *protocol.StateChange
	gen    uint64
	cancel context.CancelFunc
}

// New wires the loop. builder is typically a snapshot.Aggregator.
func New(log *zap.SugaredLogger, machine *overlay.StateMachine, builder Builder, hub Publisher, opts Options) *Orchestrator {
	if opts.SnapshotTimeout <= 0 {
		opts.SnapshotTimeout = 20 * time.Second
	}
	return &Orchestrator{
		triggers: make(chan protocol.Trigger, 16),
		results:  make(chan captureResult, 8),
		machine:  machine,
		pool:     newPool(opts.Workers, builder),
		hub:      hub,
		opts:     opts,
		pending:  make(map[protocol.OverlayID]pendingCapture),
		log:      log,
	}
}

// Submit hands a trigger to the loop without blocking. Returns false
// when the queue is full; callers report back-pressure to their origin.
func (o *Orchestrator) Submit(t protocol.Trigger) bool {
	select {
	case o.triggers <- t:
		return true
	default:
		return false
	}
}

// HandleShortcut adapts a fired shortcut into a trigger. Wired as the
// input listener's OnShortcut callback; a full queue drops the press
// rather than blocking the listener.
func (o *Orchestrator) HandleShortcut(action protocol.Action) {
	overlayID, ok := protocol.OverlayForAction(action)
	if !ok {
		o.log.Warnw("shortcut fired for unknown action", "action", action)
		return
	}
	if !o.Submit(protocol.Trigger{Overlay: overlayID, Op: protocol.OpToggle, Origin: protocol.OriginHotkey}) {
		o.log.Warnw("trigger queue full, dropping shortcut", "action", action)
	}
}

// Run consumes triggers and capture results until ctx is cancelled.
// No component call made from here is allowed to take the loop down: a
// failure becomes a reported event, never a terminated process.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.pool.close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-o.triggers:
			o.handleTrigger(ctx, t)
		case res := <-o.results:
			o.handleResult(res)
		}
	}
}

func (o *Orchestrator) handleTrigger(ctx context.Context, t protocol.Trigger) {
	o.log.Debugw("trigger", "overlay", t.Overlay, "op", t.Op.String(), "origin", t.Origin)

	if t.Op == protocol.OpCaptureOnly {
		o.startCapture(ctx, t, t.RetainImage, nil)
		return
	}

	visible, err := o.machine.Apply(t.Overlay, t.Op)
	if err != nil {
		o.log.Errorw("transition failed", "overlay", t.Overlay, "error", err)
		o.reply(t, protocol.Envelope{Success: false, Message: err.Error()})
		return
	}
	state := protocol.StateChangeFor(t.Overlay, visible)

	if !visible || !needsContext(t.Overlay) {
		env := protocol.Envelope{Success: true, Data: state}
		o.hub.Publish(env)
		o.reply(t, env)
		return
	}

	// Showing a context-backed overlay: the snapshot is built first and
	// its context event precedes the state-change event on the wire.
	retain := t.Overlay == protocol.OverlayAIAssist
	o.startCapture(ctx, t, retain, &state)
}

// needsContext reports whether showing the overlay requires a fresh
// snapshot. quick_capture only flips visibility.
func needsContext(id protocol.OverlayID) bool {
	return id == protocol.OverlayAIAssist || id == protocol.OverlayAutoContext
}

func (o *Orchestrator) startCapture(ctx context.Context, t protocol.Trigger, retainImage bool, state *protocol.StateChange) {
	if t.Overlay != "" {
		if p, ok := o.pending[t.Overlay]; ok {
			// A newer request for the same overlay supersedes the
			// in-flight one.
			p.cancel()
			delete(o.pending, t.Overlay)
		}
	}

	o.genSeq++
	gen := o.genSeq
	jobCtx, cancel := context.WithTimeout(ctx, o.opts.SnapshotTimeout)
	ok := o.pool.submit(jobCtx, true, retainImage, func(snap snapshot.Snapshot, err error) {
		o.results <- captureResult{trigger: t, snap: snap, err: err, state: state, gen: gen, cancel: cancel}
	})
	if !ok {
		cancel()
		// The transition, if any, already applied; report it with the
		// capture failure rather than leaving the caller waiting.
		env := protocol.Envelope{Success: false, Message: "capture queue full, please retry"}
		if state != nil {
			o.hub.Publish(protocol.Envelope{Success: true, Data: *state})
			env.Data = *state
		}
		o.reply(t, env)
		return
	}
	if t.Overlay != "" {
		o.pending[t.Overlay] = pendingCapture{gen: gen, cancel: cancel}
	}
}

func (o *Orchestrator) handleResult(res captureResult) {
	res.cancel()
	if res.trigger.Overlay != "" {
		// A superseded job's late result leaves the newer pending
		// entry alone.
		if p, ok := o.pending[res.trigger.Overlay]; ok && p.gen == res.gen {
			delete(o.pending, res.trigger.Overlay)
		}
	}

	msg := ""
	if res.err != nil {
		msg = res.err.Error()
		o.log.Warnw("snapshot degraded", "overlay", res.trigger.Overlay, "error", res.err)
	}

	// Partial snapshots are still published; a failed sub-source nulls
	// its field, it does not discard the snapshot.
	o.hub.Publish(protocol.Envelope{Success: res.err == nil, Data: res.snap.Payload(), Message: msg})

	ack := protocol.Envelope{Success: res.err == nil, Data: res.snap.Payload(), Message: msg}
	if res.state != nil {
		o.hub.Publish(protocol.Envelope{Success: true, Data: *res.state})
		ack.Data = *res.state
	}
	o.reply(res.trigger, ack)
}

// reply delivers the single acknowledgement a trigger is owed. Hotkey
// triggers carry no reply channel; for them the broadcast is the event.
func (o *Orchestrator) reply(t protocol.Trigger, env protocol.Envelope) {
	if t.Reply == nil {
		return
	}
	select {
	case t.Reply <- env:
	default:
		o.log.Warnw("reply channel full, acknowledgement dropped", "origin", t.Origin)
	}
}
