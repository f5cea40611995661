package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/parts-catalog-crawler/internal/crawler"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan crawler.Task, 1)
	errCh := make(chan error, 1)

	go func() {
		task, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- task
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	require.NoError(t, q.Enqueue(context.Background(), crawler.Task{Model: "iPhone 12"}))
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		require.Equal(t, "iPhone 12", got.Model)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return task")
	}
}

func TestQueueFIFOAndDrain(t *testing.T) {
	t.Parallel()

	q := NewQueue(3)
	for _, m := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(context.Background(), crawler.Task{Model: m}))
	}
	require.Equal(t, 3, q.Len())
	q.Close()
	require.ErrorIs(t, q.Enqueue(context.Background(), crawler.Task{}), crawler.ErrQueueClosed)

	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Dequeue(context.Background())
		require.NoError(t, err)
		require.Equal(t, want, got.Model)
	}
	_, err := q.Dequeue(context.Background())
	require.ErrorIs(t, err, crawler.ErrQueueClosed)
	// Closing twice should be safe.
	q.Close()
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), crawler.Task{Model: "primed"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Dequeue(ctx)
	require.EqualError(t, err, "dequeue canceled: context canceled")
	require.EqualError(t, q.Enqueue(ctx, crawler.Task{}), "enqueue canceled: context canceled")
}

func TestQueueConcurrentConsumersSeeEachTaskOnce(t *testing.T) {
	t.Parallel()

	const n = 200
	q := NewQueue(n)
	for i := range n {
		require.NoError(t, q.Enqueue(context.Background(), crawler.Task{URL: fmt.Sprint(i)}))
	}
	q.Close()

	var mu sync.Mutex
	seen := map[string]int{}
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, err := q.Dequeue(context.Background())
				if err != nil {
					return
				}
				mu.Lock()
				seen[task.URL]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Len(t, seen, n)
	for _, c := range seen {
		require.Equal(t, 1, c)
	}
}
