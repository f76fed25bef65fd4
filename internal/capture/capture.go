// Package capture produces full-screen screenshots through an ordered
// chain of strategies. Each strategy either returns a decodable PNG or a
// failure reason; the chain advances until one succeeds. Strategies that
// write temporary files must remove them on every exit path.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Strategy is one capture mechanism. Capture must honor ctx cancellation
// and release any subprocess or file handle before returning.
type Strategy interface {
	Name() string
	Capture(ctx context.Context) ([]byte, error)
}

// StrategyFailure records why one strategy in the chain failed.
type StrategyFailure struct {
	Strategy string
	Reason   string
}

// ChainError is returned when every strategy in the chain has failed.
type ChainError struct {
	Failures []StrategyFailure
}

func (e *ChainError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s: %s", f.Strategy, f.Reason)
	}
	return "capture: all strategies failed: " + strings.Join(parts, "; ")
}

// Backend tries each strategy in priority order with a per-strategy
// timeout.
type Backend struct {
	strategies []Strategy
	timeout    time.Duration
	log        *zap.SugaredLogger
}

// NewBackend builds a chain from the given strategies. timeout bounds
// each individual strategy attempt, not the chain as a whole.
func NewBackend(log *zap.SugaredLogger, timeout time.Duration, strategies ...Strategy) *Backend {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Backend{strategies: strategies, timeout: timeout, log: log}
}

// Capture returns PNG bytes from the first strategy that succeeds. When
// all strategies fail the returned error is a *ChainError carrying every
// per-strategy reason.
func (b *Backend) Capture(ctx context.Context) ([]byte, error) {
	chainErr := &ChainError{}
	for _, s := range b.strategies {
		if err := ctx.Err(); err != nil {
			// Not attributed to s: the strategy was never attempted.
			chainErr.Failures = append(chainErr.Failures, StrategyFailure{Strategy: "chain", Reason: err.Error()})
			return nil, chainErr
		}

		attemptCtx, cancel := context.WithTimeout(ctx, b.timeout)
		data, err := s.Capture(attemptCtx)
		cancel()
		if err != nil {
			b.log.Debugw("capture strategy failed", "strategy", s.Name(), "error", err)
			chainErr.Failures = append(chainErr.Failures, StrategyFailure{Strategy: s.Name(), Reason: err.Error()})
			continue
		}
		if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
			b.log.Warnw("capture strategy returned undecodable image", "strategy", s.Name(), "error", err)
			chainErr.Failures = append(chainErr.Failures, StrategyFailure{Strategy: s.Name(), Reason: "not a decodable PNG: " + err.Error()})
			continue
		}
		b.log.Debugw("capture succeeded", "strategy", s.Name(), "bytes", len(data))
		return data, nil
	}
	return nil, chainErr
}
