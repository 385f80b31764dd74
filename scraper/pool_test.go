package scraper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/use-agent/quizflow/models"
)

func TestPool_NeverExceedsBound(t *testing.T) {
	const bound = 3
	const tasks = 12

	var current, peak atomic.Int32
	pool := NewPool(bound, func(_ string, task Task) models.ScrapeOutcome {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
		return models.ScrapeOutcome{URL: task.URL}
	})

	var settled atomic.Int32
	for i := 0; i < tasks; i++ {
		pool.Submit(Task{
			URL:  "https://www.coursera.org/learn/go/quiz/1",
			Sink: func(models.ScrapeOutcome) { settled.Add(1) },
		})
	}

	if err := pool.Join(context.Background()); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	if got := peak.Load(); got > bound {
		t.Errorf("pool ran %d tasks simultaneously, bound is %d", got, bound)
	}
	if got := settled.Load(); got != tasks {
		t.Errorf("join returned before all tasks settled: %d of %d", got, tasks)
	}
}

func TestPool_RunsQueuedTasksInSubmissionOrder(t *testing.T) {
	const tasks = 20

	var mu sync.Mutex
	var order []string
	pool := NewPool(1, func(_ string, task Task) models.ScrapeOutcome {
		mu.Lock()
		order = append(order, task.URL)
		mu.Unlock()
		return models.ScrapeOutcome{URL: task.URL}
	})

	urls := make([]string, tasks)
	for i := 0; i < tasks; i++ {
		urls[i] = "https://www.coursera.org/learn/go/quiz/" + string(rune('a'+i))
		pool.Submit(Task{URL: urls[i]})
	}

	if err := pool.Join(context.Background()); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != tasks {
		t.Fatalf("expected %d tasks to run, got %d", tasks, len(order))
	}
	for i, url := range urls {
		if order[i] != url {
			t.Fatalf("task %d ran out of order: got %s, want %s", i, order[i], url)
		}
	}
}

func TestPool_ErrorsSurfaceToSinkWithoutAbortingSiblings(t *testing.T) {
	boom := errors.New("navigation timeout")
	var calls atomic.Int32
	pool := NewPool(2, func(_ string, task Task) models.ScrapeOutcome {
		if calls.Add(1)%2 == 0 {
			return models.ScrapeOutcome{URL: task.URL, Err: boom}
		}
		return models.ScrapeOutcome{URL: task.URL, Questions: []models.Question{{Text: "ok question"}}}
	})

	var mu sync.Mutex
	var outcomes []models.ScrapeOutcome
	for i := 0; i < 6; i++ {
		pool.Submit(Task{Sink: func(o models.ScrapeOutcome) {
			mu.Lock()
			outcomes = append(outcomes, o)
			mu.Unlock()
		}})
	}

	if err := pool.Join(context.Background()); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(outcomes) != 6 {
		t.Fatalf("expected 6 settled outcomes, got %d", len(outcomes))
	}
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	if failed != 3 {
		t.Errorf("expected 3 errored outcomes, got %d", failed)
	}
}

func TestPool_PanicConfinedToTask(t *testing.T) {
	pool := NewPool(2, func(_ string, task Task) models.ScrapeOutcome {
		if task.URL == "bad" {
			panic("extraction exploded")
		}
		return models.ScrapeOutcome{URL: task.URL}
	})

	var mu sync.Mutex
	results := map[string]error{}
	sink := func(o models.ScrapeOutcome) {
		mu.Lock()
		results[o.URL] = o.Err
		mu.Unlock()
	}

	pool.Submit(Task{URL: "bad", Sink: sink})
	pool.Submit(Task{URL: "good", Sink: sink})

	if err := pool.Join(context.Background()); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if results["bad"] == nil {
		t.Error("panicking task should surface an error to its sink")
	}
	if results["good"] != nil {
		t.Errorf("sibling task should be unaffected, got %v", results["good"])
	}
}

func TestPool_JoinHonorsContext(t *testing.T) {
	block := make(chan struct{})
	pool := NewPool(1, func(_ string, task Task) models.ScrapeOutcome {
		<-block
		return models.ScrapeOutcome{}
	})
	defer close(block)

	pool.Submit(Task{})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := pool.Join(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestPool_JoinOnIdlePoolReturnsImmediately(t *testing.T) {
	pool := NewPool(4, func(_ string, task Task) models.ScrapeOutcome {
		return models.ScrapeOutcome{}
	})
	if err := pool.Join(context.Background()); err != nil {
		t.Fatalf("join on idle pool failed: %v", err)
	}
}
