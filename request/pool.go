package request

import (
	"context"
	"sync"
)

// blockingPool runs Blocking tasks on a fixed set of goroutines so they
// cannot pile up without bound. A job abandoned at its deadline keeps its
// worker until it returns.
type blockingPool struct {
	jobs chan func()
	quit chan struct{}
	once sync.Once
}

func newBlockingPool(workers int) *blockingPool {
	p := &blockingPool{
		jobs: make(chan func()),
		quit: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

func (p *blockingPool) work() {
	for {
		select {
		case job := <-p.jobs:
			job()
		case <-p.quit:
			return
		}
	}
}

// submit hands job to an idle worker. It returns false if ctx is done or
// the pool is closed before a worker becomes free.
func (p *blockingPool) submit(ctx context.Context, job func()) bool {
	select {
	case p.jobs <- job:
		return true
	case <-ctx.Done():
		return false
	case <-p.quit:
		return false
	}
}

func (p *blockingPool) close() {
	p.once.Do(func() { close(p.quit) })
}
