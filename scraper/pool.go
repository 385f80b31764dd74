package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/use-agent/quizflow/models"
)

// Task is one unit of pool work: navigate to a URL with the given cookies,
// extract its questions, and hand the outcome to the sink. The sink receives
// errors too; a failing task never aborts its siblings.
type Task struct {
	URL     string
	Cookies []models.Cookie
	Sink    func(models.ScrapeOutcome)
}

// runner executes one task and returns its outcome. Injected so the pool's
// scheduling can be tested without a browser.
type runner func(id string, task Task) models.ScrapeOutcome

// queuedTask pairs a task with its id for the dispatch queue.
type queuedTask struct {
	id   string
	task Task
}

// submitQueueDepth bounds how many tasks can sit queued behind the worker
// slots before Submit blocks.
const submitQueueDepth = 256

// Pool executes tasks with a fixed concurrency ceiling. Excess tasks wait
// their turn in strict submission order: a single dispatcher pulls from the
// queue and acquires a worker slot before moving on, so a later submission
// can never overtake an earlier one. Each running task gets an isolated
// browsing context so failures cannot corrupt another task's page state.
type Pool struct {
	run       runner
	sem       *semaphore.Weighted
	tasks     chan queuedTask
	wg        sync.WaitGroup
	active    atomic.Int32
	closeOnce sync.Once
}

// NewPool creates a pool with the given concurrency ceiling and starts its
// dispatcher.
func NewPool(maxWorkers int, run runner) *Pool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	p := &Pool{
		run:   run,
		sem:   semaphore.NewWeighted(int64(maxWorkers)),
		tasks: make(chan queuedTask, submitQueueDepth),
	}
	go p.dispatch()
	return p
}

// Submit enqueues a task; it runs as soon as a worker slot frees up. Submit
// blocks only if the queue itself is full. Panics inside a task are confined
// to it and reported through the sink.
func (p *Pool) Submit(task Task) {
	p.wg.Add(1)
	p.tasks <- queuedTask{id: uuid.NewString(), task: task}
}

// dispatch admits queued tasks to worker slots one at a time, in queue
// order. The slot acquire happens here rather than in per-task goroutines,
// which is what keeps admission FIFO.
func (p *Pool) dispatch() {
	for q := range p.tasks {
		if err := p.sem.Acquire(context.Background(), 1); err != nil {
			p.deliver(q.task, models.ScrapeOutcome{URL: q.task.URL, Err: err})
			p.wg.Done()
			continue
		}
		go p.runOne(q)
	}
}

func (p *Pool) runOne(q queuedTask) {
	defer p.wg.Done()
	defer p.sem.Release(1)

	p.active.Add(1)
	defer p.active.Add(-1)

	slog.Debug("worker task starting", "task_id", q.id, "url", q.task.URL)
	p.deliver(q.task, p.safeRun(q.id, q.task))
}

// Join suspends the caller until every queued task has settled, success or
// error. It is a pool-wide barrier, not a per-task wait, and returns early
// only if ctx is cancelled.
func (p *Pool) Join(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active returns the number of tasks currently holding a worker slot.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Close stops the dispatcher once the already-queued tasks have drained.
// Submit must not be called after Close.
func (p *Pool) Close() {
	p.closeOnce.Do(func() { close(p.tasks) })
}

// safeRun confines a task panic to its own outcome.
func (p *Pool) safeRun(id string, task Task) (outcome models.ScrapeOutcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker task panicked", "task_id", id, "url", task.URL, "panic", r)
			outcome = models.ScrapeOutcome{
				URL: task.URL,
				Err: fmt.Errorf("worker task panic: %v", r),
			}
		}
	}()
	return p.run(id, task)
}

func (p *Pool) deliver(task Task, outcome models.ScrapeOutcome) {
	if outcome.Err != nil {
		slog.Warn("worker task failed", "url", task.URL, "error", outcome.Err)
	}
	if task.Sink != nil {
		task.Sink(outcome)
	}
}
