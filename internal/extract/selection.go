package extract

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.design/x/clipboard"
)

// SelectionReader queries the active text selection. It tries the X
// primary selection first (what the user has highlighted), then the
// clipboard, then an in-process clipboard read. Absence of a selection
// is an empty result, not an error.
type SelectionReader struct {
	runner  Runner
	timeout time.Duration
	log     *zap.SugaredLogger

	clipInit sync.Once
	clipErr  error
}

// NewSelectionReader builds a reader. A nil runner defaults to real
// subprocess execution; timeout bounds each individual query.
func NewSelectionReader(log *zap.SugaredLogger, timeout time.Duration, runner Runner) *SelectionReader {
	if runner == nil {
		runner = ExecRunner{}
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &SelectionReader{runner: runner, timeout: timeout, log: log}
}

// Read returns the current selection text, or "" when nothing is
// selected. A SelectionError means no mechanism could be queried at all.
func (r *SelectionReader) Read(ctx context.Context) (string, error) {
	var lastErr error
	for _, sel := range []string{"primary", "clipboard"} {
		qCtx, cancel := context.WithTimeout(ctx, r.timeout)
		out, err := r.runner.Output(qCtx, nil, "xclip", "-selection", sel, "-o")
		cancel()
		if err == nil {
			return strings.TrimSpace(string(out)), nil
		}
		// xclip exits nonzero when the selection is empty; that is an
		// empty result rather than a failure of the mechanism.
		if strings.Contains(err.Error(), "not available") {
			return "", nil
		}
		lastErr = err
		r.log.Debugw("selection query failed", "selection", sel, "error", err)
	}

	if text, err := r.readInProcess(); err == nil {
		return text, nil
	} else {
		r.log.Debugw("in-process clipboard read failed", "error", err)
	}

	return "", &SelectionError{Err: lastErr}
}

func (r *SelectionReader) readInProcess() (string, error) {
	r.clipInit.Do(func() {
		r.clipErr = clipboard.Init()
	})
	if r.clipErr != nil {
		return "", r.clipErr
	}
	return strings.TrimSpace(string(clipboard.Read(clipboard.FmtText))), nil
}
