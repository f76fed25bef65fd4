// Package snapshot assembles best-effort context snapshots from the
// capture, OCR, and selection sub-systems. A snapshot is immutable once
// built; failed sub-sources leave their fields nil rather than failing
// the snapshot as a whole.
package snapshot

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hirawatt/sahayak/internal/protocol"
)

// Snapshot is one immutable bundle of extracted on-screen context.
// Pointer fields are nil when the corresponding sub-source failed or was
// not requested. Image carries the raw PNG only when retention was
// requested.
type Snapshot struct {
	CapturedAt   time.Time
	SelectedText *string
	OCRText      *string
	SourceURL    *string
	Image        []byte
}

// Payload converts the snapshot to its wire representation.
func (s Snapshot) Payload() protocol.Context {
	return protocol.Context{
		SelectedText: s.SelectedText,
		OCRText:      s.OCRText,
		SourceURL:    s.SourceURL,
		CapturedAt:   s.CapturedAt,
	}
}

// Capturer produces a screenshot image.
type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

// Recognizer extracts text from a PNG image.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte, lang string) (string, error)
}

// SelectionReader reads the active text selection.
type SelectionReader interface {
	Read(ctx context.Context) (string, error)
}

// Options configure an Aggregator.
type Options struct {
	// Lang is the OCR language hint, e.g. "eng".
	Lang string
	// OCRTimeout bounds one OCR invocation.
	OCRTimeout time.Duration
}

// Aggregator runs the sub-sources and joins their results.
type Aggregator struct {
	capturer  Capturer
	engine    Recognizer
	selection SelectionReader
	title     TitleReader
	opts      Options
	now       func() time.Time
	log       *zap.SugaredLogger
}

// NewAggregator wires the sub-sources together. title may be nil when no
// window-title mechanism is available.
func NewAggregator(log *zap.SugaredLogger, capturer Capturer, engine Recognizer, selection SelectionReader, title TitleReader, opts Options) *Aggregator {
	if opts.Lang == "" {
		opts.Lang = "eng"
	}
	if opts.OCRTimeout <= 0 {
		opts.OCRTimeout = 15 * time.Second
	}
	return &Aggregator{
		capturer:  capturer,
		engine:    engine,
		selection: selection,
		title:     title,
		opts:      opts,
		now:       time.Now,
		log:       log,
	}
}

// Build captures the current context. Selection read always runs;
// capture+OCR runs only when captureImage is set; retainImage keeps the
// PNG bytes on the snapshot. The two legs run concurrently and a failure
// of one never blocks or discards the other. The returned error joins
// any sub-source failures for the caller's acknowledgement; the snapshot
// itself is always valid and should still be published.
func (a *Aggregator) Build(ctx context.Context, captureImage, retainImage bool) (Snapshot, error) {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		snap    Snapshot
		subErrs []error
	)

	fail := func(err error) {
		mu.Lock()
		subErrs = append(subErrs, err)
		mu.Unlock()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		text, err := a.selection.Read(ctx)
		if err != nil {
			a.log.Debugw("selection read failed", "error", err)
			fail(err)
			return
		}
		mu.Lock()
		snap.SelectedText = &text
		mu.Unlock()
	}()

	if captureImage {
		wg.Add(1)
		go func() {
			defer wg.Done()
			image, err := a.capturer.Capture(ctx)
			if err != nil {
				a.log.Debugw("capture failed", "error", err)
				fail(err)
				return
			}
			if retainImage {
				mu.Lock()
				snap.Image = image
				mu.Unlock()
			}

			ocrCtx, cancel := context.WithTimeout(ctx, a.opts.OCRTimeout)
			text, err := a.engine.Recognize(ocrCtx, image, a.opts.Lang)
			cancel()
			if err != nil {
				a.log.Debugw("ocr failed", "error", err)
				fail(err)
				return
			}
			mu.Lock()
			snap.OCRText = &text
			mu.Unlock()
		}()
	}

	wg.Wait()

	// Window-title heuristics run last and never fail the snapshot.
	if a.title != nil {
		if url, ok := a.title.ActiveURL(ctx); ok {
			snap.SourceURL = &url
		}
	}

	snap.CapturedAt = a.now()
	return snap, errors.Join(subErrs...)
}
