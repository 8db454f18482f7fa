// Package parallel provides the worker pool that runs parallel translate
// tasks.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool is a pool of goroutines for translate tasks.
//
// Each worker owns a queue and steals from the other queues when its own is
// empty, which keeps long buffers from stalling short ones queued behind them.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers    int
	workQueues []chan func()
	done       chan struct{}
	wake       chan struct{}
	wg         sync.WaitGroup
	running    atomic.Bool

	// next is the round-robin cursor for Submit.
	next atomic.Uint32

	executed atomic.Uint64
	stolen   atomic.Uint64
}

// NewWorkerPool creates a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
		wake:       make(chan struct{}, workers),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	own := p.workQueues[id]
	for {
		select {
		case <-p.done:
			p.drain(own)
			return
		case task := <-own:
			p.run(task)
			continue
		default:
		}

		if task := p.steal(id); task != nil {
			p.stolen.Add(1)
			p.run(task)
			continue
		}

		select {
		case <-p.done:
			p.drain(own)
			return
		case task := <-own:
			p.run(task)
		case <-p.wake:
			// Work was queued somewhere; look again.
		}
	}
}

func (p *WorkerPool) run(task func()) {
	if task == nil {
		return
	}
	task()
	p.executed.Add(1)
}

// drain runs whatever is left in a queue at shutdown.
func (p *WorkerPool) drain(queue chan func()) {
	for {
		select {
		case task := <-queue:
			p.run(task)
		default:
			return
		}
	}
}

func (p *WorkerPool) steal(self int) func() {
	for i := range p.workers {
		if i == self {
			continue
		}
		select {
		case task := <-p.workQueues[i]:
			return task
		default:
		}
	}
	return nil
}

// Submit queues one task. It returns false when the pool is closed and the
// task was not accepted; the caller then owns running it.
// Submit blocks while the chosen queue is full.
func (p *WorkerPool) Submit(task func()) bool {
	if task == nil || !p.running.Load() {
		return false
	}
	id := int(p.next.Add(1)-1) % p.workers
	select {
	case p.workQueues[id] <- task:
		select {
		case p.wake <- struct{}{}:
		default:
		}
		return true
	case <-p.done:
		return false
	}
}

// ExecuteAll runs every task on the pool and waits for all of them.
// Tasks the pool refuses run on the calling goroutine.
func (p *WorkerPool) ExecuteAll(tasks []func()) {
	var wg sync.WaitGroup
	for _, task := range tasks {
		if task == nil {
			continue
		}
		wg.Add(1)
		wrapped := func() {
			defer wg.Done()
			task()
		}
		if !p.Submit(wrapped) {
			wrapped()
		}
	}
	wg.Wait()
}

// Close stops accepting work, runs what is queued, and stops the workers.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning reports whether the pool accepts work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}

// QueuedWork returns an approximate count of queued tasks.
func (p *WorkerPool) QueuedWork() int {
	total := 0
	for _, q := range p.workQueues {
		total += len(q)
	}
	return total
}

// Executed returns the number of tasks run so far.
func (p *WorkerPool) Executed() uint64 {
	return p.executed.Load()
}

// Stolen returns how many tasks ran on a worker other than the one they
// were queued to.
func (p *WorkerPool) Stolen() uint64 {
	return p.stolen.Load()
}
