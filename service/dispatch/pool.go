package dispatch

import (
	"context"
	"sync"

	"PPulse/logger"
	"PPulse/tools/safe"
)

// Pool is a bounded worker pool for event jobs. Handlers are short-lived and
// stateless between invocations; all durable state lives in the stores.
type Pool struct {
	jobs chan func(ctx context.Context)
	wg   sync.WaitGroup

	closeOnce sync.Once
}

func NewPool(ctx context.Context, workers, queue int) *Pool {
	p := &Pool{jobs: make(chan func(ctx context.Context), queue)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				func() {
					defer safe.Recover("dispatch-worker")
					job(ctx)
				}()
			}
		}()
	}
	return p
}

// Submit enqueues a job; when the queue is full the job is dropped and
// counted against the caller, never blocking the subscription callback.
func (p *Pool) Submit(job func(ctx context.Context)) bool {
	select {
	case p.jobs <- job:
		return true
	default:
		logger.Warn("dispatch queue full, dropping job")
		return false
	}
}

// Close stops intake and waits for in-flight jobs.
func (p *Pool) Close() {
	p.closeOnce.Do(func() { close(p.jobs) })
	p.wg.Wait()
}
