package input

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hirawatt/sahayak/internal/protocol"
)

// Matcher answers whether the currently held key set exactly matches a
// registered shortcut. Implemented by shortcuts.Registry.
type Matcher interface {
	Match(held map[uint16]struct{}) (protocol.Action, bool)
}

// Listener tracks the held key set across all sources and fires one
// action per combo press, suppressing key-repeat duplicates inside the
// debounce window.
type Listener struct {
	sources  []Source
	matcher  Matcher
	debounce time.Duration

	// OnShortcut receives each fired action. Must not block; the
	// orchestrator side does a non-blocking channel hand-off.
	OnShortcut func(protocol.Action)
	// OnDegraded is called once per source that fails. Optional.
	OnDegraded func(*DeviceError)

	held       map[uint16]struct{}
	suppressed map[protocol.Action]time.Time
	now        func() time.Time
	log        *zap.SugaredLogger
}

type sourceEvent struct {
	ev   KeyEvent
	err  *DeviceError
	dead bool
}

// NewListener builds a listener over the given sources.
func NewListener(log *zap.SugaredLogger, matcher Matcher, debounce time.Duration, sources ...Source) *Listener {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	return &Listener{
		sources:    sources,
		matcher:    matcher,
		debounce:   debounce,
		held:       make(map[uint16]struct{}),
		suppressed: make(map[protocol.Action]time.Time),
		now:        time.Now,
		log:        log,
	}
}

// Run consumes events until ctx is cancelled. Source failures degrade
// capability (that source stops contributing) without stopping the
// listener; Run itself returns only on ctx cancellation.
func (l *Listener) Run(ctx context.Context) error {
	events := make(chan sourceEvent, 64)
	live := 0
	for _, src := range l.sources {
		ch, err := src.Events()
		if err != nil {
			l.degrade(&DeviceError{Source: src.Name(), Err: err})
			continue
		}
		live++
		go pump(ctx, src.Name(), ch, events)
	}
	if live == 0 {
		l.log.Warnw("no input sources available, shortcuts disabled")
	}

	defer func() {
		for _, src := range l.sources {
			src.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case se := <-events:
			if se.dead {
				l.degrade(se.err)
				continue
			}
			l.handle(se.ev)
		}
	}
}

func pump(ctx context.Context, name string, ch <-chan KeyEvent, out chan<- sourceEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				select {
				case out <- sourceEvent{dead: true, err: &DeviceError{Source: name, Err: ErrSourceClosed}}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case out <- sourceEvent{ev: ev}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (l *Listener) handle(ev KeyEvent) {
	if !ev.Down {
		delete(l.held, ev.Code)
		return
	}
	l.held[ev.Code] = struct{}{}

	action, ok := l.matcher.Match(l.held)
	if !ok {
		return
	}

	now := l.now()
	if until, found := l.suppressed[action]; found && now.Before(until) {
		l.log.Debugw("shortcut suppressed by debounce", "action", action)
		return
	}
	l.suppressed[action] = now.Add(l.debounce)

	l.log.Infow("shortcut fired", "action", action)
	if l.OnShortcut != nil {
		l.OnShortcut(action)
	}
}

func (l *Listener) degrade(err *DeviceError) {
	l.log.Warnw("input source lost", "source", err.Source, "error", err.Err)
	if l.OnDegraded != nil {
		l.OnDegraded(err)
	}
}
