package snapshot

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hirawatt/sahayak/internal/extract"
)

var (
	urlPattern = regexp.MustCompile(`https?://(\S+)`)
	// Bare domains show up in browser window titles even when the full
	// URL does not.
	domainPattern = regexp.MustCompile(`([a-zA-Z0-9-]+\.)+[a-zA-Z]{2,}`)
)

// TitleReader extracts a best-effort source URL for the active window.
type TitleReader interface {
	// ActiveURL returns a URL-ish string parsed from the focused
	// window, and false when none could be determined.
	ActiveURL(ctx context.Context) (string, bool)
}

// XDoTitleReader reads the focused window's title via xdotool.
type XDoTitleReader struct {
	runner  extract.Runner
	timeout time.Duration
	log     *zap.SugaredLogger
}

func NewXDoTitleReader(log *zap.SugaredLogger, timeout time.Duration, runner extract.Runner) *XDoTitleReader {
	if runner == nil {
		runner = extract.ExecRunner{}
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &XDoTitleReader{runner: runner, timeout: timeout, log: log}
}

func (r *XDoTitleReader) ActiveURL(ctx context.Context) (string, bool) {
	qCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	out, err := r.runner.Output(qCtx, nil, "xdotool", "getactivewindow", "getwindowname")
	if err != nil {
		r.log.Debugw("active window title unavailable", "error", err)
		return "", false
	}
	return URLFromTitle(strings.TrimSpace(string(out)))
}

// URLFromTitle applies the browser-title heuristics: prefer an explicit
// URL (returned without its scheme), else a bare domain.
func URLFromTitle(title string) (string, bool) {
	if m := urlPattern.FindStringSubmatch(title); m != nil {
		return m[1], true
	}
	if m := domainPattern.FindString(title); m != "" {
		return m, true
	}
	return "", false
}
