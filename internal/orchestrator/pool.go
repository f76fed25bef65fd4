package orchestrator

import (
	"context"
	"sync"

	"github.com/hirawatt/sahayak/internal/snapshot"
)

// Builder produces a context snapshot. Implemented by snapshot.Aggregator.
type Builder interface {
	Build(ctx context.Context, captureImage, retainImage bool) (snapshot.Snapshot, error)
}

// resultFunc is invoked from a worker goroutine when a snapshot settles;
// it must hand off to the orchestrator loop, not do work itself.
type resultFunc func(snapshot.Snapshot, error)

type job struct {
	ctx          context.Context
	captureImage bool
	retainImage  bool
	cb           resultFunc
}

// pool runs snapshot builds off the orchestrator loop so a slow capture
// or OCR call never stalls trigger handling. The small queue applies
// back-pressure instead of piling up stale capture requests.
type pool struct {
	jobs    chan job
	builder Builder
	wg      sync.WaitGroup
}

func newPool(size int, builder Builder) *pool {
	if size <= 0 {
		size = 2
	}
	p := &pool{jobs: make(chan job, 1), builder: builder}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for j := range p.jobs {
				snap, err := p.builder.Build(j.ctx, j.captureImage, j.retainImage)
				j.cb(snap, err)
			}
		}()
	}
	return p
}

// submit enqueues a build if the queue has room. Returns false when the
// caller should report back-pressure instead of waiting.
func (p *pool) submit(ctx context.Context, captureImage, retainImage bool, cb resultFunc) bool {
	select {
	case p.jobs <- job{ctx: ctx, captureImage: captureImage, retainImage: retainImage, cb: cb}:
		return true
	default:
		return false
	}
}

// close stops the workers after draining queued jobs.
func (p *pool) close() {
	close(p.jobs)
	p.wg.Wait()
}
