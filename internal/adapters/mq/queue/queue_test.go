package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if !q.Enqueue(ctx, Task{EndorsementID: "e1"}) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	task := <-q.Dequeue(ctx)
	if task.EndorsementID != "e1" {
		t.Errorf("expected e1, got %v", task.EndorsementID)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2), WithBufferSize(1))
	ctx := context.Background()

	if !q.Enqueue(ctx, Task{EndorsementID: "e1"}) {
		t.Error("expected enqueue to succeed")
	}
	if !q.Enqueue(ctx, Task{EndorsementID: "e2"}) {
		t.Error("expected enqueue to succeed")
	}
	if q.Enqueue(ctx, Task{EndorsementID: "e3"}) {
		t.Error("expected enqueue to fail when full")
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(50))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	const producers, perProducer = 10, 100

	var consumed sync.Map
	var consumers sync.WaitGroup
	for i := 0; i < 4; i++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for task := range q.Dequeue(ctx) {
				consumed.Store(task.EndorsementID, struct{}{})
			}
		}()
	}

	var producersWG sync.WaitGroup
	for p := 0; p < producers; p++ {
		producersWG.Add(1)
		go func(p int) {
			defer producersWG.Done()
			for j := 0; j < perProducer; j++ {
				task := Task{EndorsementID: fmt.Sprintf("e-%d-%d", p, j)}
				for !q.Enqueue(ctx, task) {
					time.Sleep(time.Millisecond)
				}
			}
		}(p)
	}
	producersWG.Wait()

	// Closing lets consumers drain what is buffered and exit.
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	consumers.Wait()

	count := 0
	consumed.Range(func(_, _ any) bool {
		count++
		return true
	})
	if count != producers*perProducer {
		t.Errorf("expected %d tasks consumed, got %d", producers*perProducer, count)
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if !q.Enqueue(ctx, Task{EndorsementID: "e1", Attempt: 2}) {
		t.Error("expected enqueue to succeed")
	}
	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}
	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if q.Enqueue(ctx, Task{EndorsementID: "e2"}) {
		t.Error("expected enqueue to fail after closing")
	}

	ch := q.Dequeue(ctx)
	select {
	case task, ok := <-ch:
		if !ok || task.EndorsementID != "e1" || task.Attempt != 2 {
			t.Errorf("expected buffered task e1 after close, got %+v ok=%v", task, ok)
		}
	case <-time.After(time.Second):
		t.Fatal("expected buffered task to be delivered")
	}
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected dequeue channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("expected dequeue channel to close")
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected second close to succeed, got error: %v", err)
	}
}

func TestInMemoryQueue_ContextCancel(t *testing.T) {
	q := NewInMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	ch := q.Dequeue(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected no task after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("expected dequeue channel to close on cancel")
	}
}
