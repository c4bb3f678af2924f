package fifo

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_EnqueueDequeue(t *testing.T) {
	q := New[string]()

	require.True(t, q.Enqueue("a"), "enqueue should succeed")

	got, ok := q.TryDequeue()
	require.True(t, ok, "dequeue should succeed")
	assert.Equal(t, "a", got)
}

func TestQueue_FIFO(t *testing.T) {
	q := New[int]()
	for i := 1; i <= 3; i++ {
		q.Enqueue(i)
	}
	assert.Equal(t, 3, q.Len())

	for want := 1; want <= 3; want++ {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestQueue_TryDequeue_Empty(t *testing.T) {
	q := New[int]()

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestQueue_SignalOnEnqueue(t *testing.T) {
	q := New[int]()
	q.Enqueue(1)

	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("no signal after enqueue")
	}
}

func TestQueue_CloseDrains(t *testing.T) {
	q := New[int]()
	q.Enqueue(1)
	q.Close()
	q.Close()

	assert.False(t, q.Enqueue(2), "closed queue rejects new items")
	assert.False(t, q.Drained(), "queued item still pending")

	_, ok := q.TryDequeue()
	require.True(t, ok)
	assert.True(t, q.Drained())

	select {
	case <-q.Wait():
	default:
		t.Fatal("closed queue must wake waiters")
	}
}

func TestQueue_ServePreservesOrder(t *testing.T) {
	q := New[int]()
	const n = 100

	var (
		mu  sync.Mutex
		got []int
	)
	done := make(chan struct{})
	go func() {
		q.Serve(func(i int) {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
		close(done)
	}()

	for i := 0; i < n; i++ {
		require.True(t, q.Enqueue(i))
	}
	q.Close()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Close")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, n)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}
