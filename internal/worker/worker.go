package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reelcut/playback/internal/queue"
)

// Logger is the subset of *slog.Logger the pool uses.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

// Dependencies holds all dependencies for a worker pool.
type Dependencies[T any] struct {
	// Queue is drained by every worker in the pool.
	Queue *queue.Queue[T]
	// Less orders pending jobs and is evaluated at pop time, so it may read
	// state that changes while jobs wait.
	Less func(a, b T) bool
	// Run executes one job. It must honour ctx for long work.
	Run    func(ctx context.Context, job T)
	Logger Logger
}

// Pool runs a fixed number of goroutines that each pop the best pending job.
type Pool[T any] struct {
	deps Dependencies[T]
	size int

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool

	busy     atomic.Int32
	executed atomic.Int64
	lastRun  atomic.Int64
}

// NewPool creates a pool of size workers. A size of zero or less means one
// worker per CPU.
func NewPool[T any](deps Dependencies[T], size int) (*Pool[T], error) {
	if deps.Queue == nil || deps.Run == nil || deps.Less == nil {
		return nil, fmt.Errorf("worker pool requires a queue, an ordering and a run function")
	}
	if size <= 0 {
		size = runtime.NumCPU()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Pool[T]{deps: deps, size: size}, nil
}

// Size returns the number of workers.
func (p *Pool[T]) Size() int {
	return p.size
}

// Start launches the workers. Calling Start on a running pool is a no-op.
func (p *Pool[T]) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.running = true
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.loop(ctx, i)
	}
	p.deps.Logger.Debug("worker pool started", "workers", p.size)
}

// Stop cancels the workers and waits for in-flight jobs to return.
func (p *Pool[T]) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	p.deps.Logger.Debug("worker pool stopped", "executed", p.executed.Load())
}

// IsRunning reports whether the workers are active.
func (p *Pool[T]) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Busy returns the number of workers currently executing a job.
func (p *Pool[T]) Busy() int {
	return int(p.busy.Load())
}

// Executed returns the number of jobs run since creation.
func (p *Pool[T]) Executed() int64 {
	return p.executed.Load()
}

// GetLastRunDuration returns how long the most recent job took.
func (p *Pool[T]) GetLastRunDuration() time.Duration {
	return time.Duration(p.lastRun.Load())
}

func (p *Pool[T]) loop(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.deps.Queue.Ready():
		}

		for {
			if ctx.Err() != nil {
				return
			}
			job, ok := p.deps.Queue.PopBest(p.deps.Less)
			if !ok {
				break
			}
			p.run(ctx, id, job)
		}
	}
}

func (p *Pool[T]) run(ctx context.Context, id int, job T) {
	p.busy.Add(1)
	start := time.Now()
	defer func() {
		p.lastRun.Store(int64(time.Since(start)))
		p.busy.Add(-1)
		p.executed.Add(1)
		if r := recover(); r != nil {
			p.deps.Logger.Error("worker job panicked", "worker", id, "panic", r)
		}
	}()
	p.deps.Run(ctx, job)
}
