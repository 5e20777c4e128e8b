package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int]()
	for i := 0; i < 200; i++ {
		if err := q.Push(i); err != nil {
			t.Fatalf("push: %v", err)
		}
		// interleave pops so compaction kicks in
		if i%3 == 0 {
			if _, ok := q.TryPop(); !ok {
				t.Fatalf("pop %d: empty", i)
			}
		}
	}
	prev := -1
	for q.Len() > 0 {
		v, ok := q.TryPop()
		if !ok || v <= prev {
			t.Fatalf("out of order: %d after %d", v, prev)
		}
		prev = v
	}
	if _, ok := q.TryPop(); ok {
		t.Fatalf("expected empty queue")
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := NewQueue[[2]int]()
	const producers, each = 8, 100
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				_ = q.Push([2]int{p, i})
			}
		}(p)
	}
	go func() {
		wg.Wait()
		q.Close()
	}()
	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}
	n := 0
	for {
		v, err := q.Pop(context.Background())
		if errors.Is(err, ErrQueueClosed) {
			break
		}
		if err != nil {
			t.Fatalf("pop: %v", err)
		}
		if v[1] != last[v[0]]+1 {
			t.Fatalf("producer %d: got %d after %d", v[0], v[1], last[v[0]])
		}
		last[v[0]] = v[1]
		n++
	}
	if n != producers*each {
		t.Fatalf("popped %d, want %d", n, producers*each)
	}
}

func TestQueuePopWaitsAndHonorsContext(t *testing.T) {
	q := NewQueue[string]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := q.Pop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = q.Push("late")
	}()
	v, err := q.Pop(context.Background())
	if err != nil || v != "late" {
		t.Fatalf("got %q, %v", v, err)
	}
}

func TestQueueCloseKeepsItemsAndRejectsPush(t *testing.T) {
	q := NewQueue[int]()
	_ = q.Push(1)
	_ = q.Push(2)
	q.Close()
	q.Close()
	if err := q.Push(3); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
	if v, err := q.Pop(context.Background()); err != nil || v != 1 {
		t.Fatalf("got %d, %v", v, err)
	}
	if got := q.Drain(); len(got) != 1 || got[0] != 2 {
		t.Fatalf("drain = %v", got)
	}
	if _, err := q.Pop(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}
