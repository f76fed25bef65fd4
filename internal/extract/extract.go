// Package extract converts captured images to text (OCR) and reads the
// active text selection. The two operations are independent: each is
// bounded by its own timeout and fails without affecting the other.
package extract

import (
	"context"
	"fmt"
)

// OCRError reports an OCR invocation failure: engine missing, crashed,
// or timed out. An empty extraction result is success, not an OCRError.
type OCRError struct {
	Engine string
	Err    error
}

func (e *OCRError) Error() string { return fmt.Sprintf("ocr %s: %v", e.Engine, e.Err) }
func (e *OCRError) Unwrap() error { return e.Err }

// SelectionError reports that no selection mechanism could be queried at
// all. An absent selection is an empty result, not a SelectionError.
type SelectionError struct {
	Err error
}

func (e *SelectionError) Error() string { return fmt.Sprintf("selection: %v", e.Err) }
func (e *SelectionError) Unwrap() error { return e.Err }

// Engine is a black-box text extractor for PNG images.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, image []byte, lang string) (string, error)
}

// Runner abstracts subprocess invocation so tests can substitute fakes.
type Runner interface {
	// Output runs the command and returns its stdout. stdin may be nil.
	Output(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)
}
