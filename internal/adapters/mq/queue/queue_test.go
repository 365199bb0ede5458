package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/okian/ascent/internal/domain/model"
)

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	// Test empty queue
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	// Test enqueue
	event1 := model.ActivityEvent{EventID: "event1", UserID: "user1", Action: "focus_session", TS: time.Now()}
	if !q.Enqueue(ctx, event1) {
		t.Error("expected enqueue to succeed")
	}

	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	// Test dequeue
	eventChan := q.Dequeue(ctx)
	event := <-eventChan
	if event.EventID != "event1" {
		t.Errorf("expected event1, got %v", event.EventID)
	}

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	// Fill the queue
	event1 := model.ActivityEvent{EventID: "event1", UserID: "user1", Action: "focus_session", TS: time.Now()}
	event2 := model.ActivityEvent{EventID: "event2", UserID: "user2", Action: "workout_logged", TS: time.Now()}
	event3 := model.ActivityEvent{EventID: "event3", UserID: "user3", Action: "journal_entry", TS: time.Now()}

	if !q.Enqueue(ctx, event1) {
		t.Error("expected enqueue to succeed")
	}
	if !q.Enqueue(ctx, event2) {
		t.Error("expected enqueue to succeed")
	}

	// Try to enqueue when full
	if q.Enqueue(ctx, event3) {
		t.Error("expected enqueue to fail when full")
	}

	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx := context.Background()
	numGoroutines := 10
	numEvents := 100

	// Start producer goroutines
	done := make(chan bool, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			for j := 0; j < numEvents; j++ {
				event := model.ActivityEvent{
					EventID: fmt.Sprintf("event%d_%d", id, j),
					UserID:  fmt.Sprintf("user%d", id),
					Action:  "habit_completed",
					TS:      time.Now(),
				}
				for !q.Enqueue(ctx, event) {
					time.Sleep(time.Millisecond)
				}
			}
			done <- true
		}(i)
	}

	// Start consumer goroutine
	received := make(map[string]bool)
	consumerDone := make(chan bool)
	go func() {
		eventChan := q.Dequeue(ctx)
		for i := 0; i < numGoroutines*numEvents; i++ {
			event := <-eventChan
			received[event.EventID] = true
		}
		consumerDone <- true
	}()

	// Wait for producers
	for i := 0; i < numGoroutines; i++ {
		<-done
	}

	// Wait for consumer
	select {
	case <-consumerDone:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer timed out")
	}

	if len(received) != numGoroutines*numEvents {
		t.Errorf("expected %d unique events, got %d", numGoroutines*numEvents, len(received))
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	event := model.ActivityEvent{EventID: "event1", UserID: "user1", Action: "focus_session", TS: time.Now()}
	if !q.Enqueue(ctx, event) {
		t.Error("expected enqueue to succeed")
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got %v", err)
	}

	if !q.IsClosed() {
		t.Error("expected queue to be closed")
	}

	// Enqueue after close must fail
	if q.Enqueue(ctx, event) {
		t.Error("expected enqueue to fail after close")
	}

	// Close is idempotent
	if err := q.Close(); err != nil {
		t.Errorf("expected second close to succeed, got %v", err)
	}

	// Drain the remaining event
	eventChan := q.Dequeue(ctx)
	got, ok := <-eventChan
	if !ok || got.EventID != "event1" {
		t.Errorf("expected buffered event1 after close, got %v (ok=%v)", got.EventID, ok)
	}
	if _, ok := <-eventChan; ok {
		t.Error("expected dequeue channel to be closed after drain")
	}
}
