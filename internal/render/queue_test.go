package render

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueueFIFO(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, id))
	}
	for _, want := range []string{"a", "b", "c"} {
		got, err := q.ClaimBlocking(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := q.ClaimBlocking(ctx, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestMemoryQueueWakesWaiter(t *testing.T) {
	q := NewMemoryQueue()
	got := make(chan string, 1)
	go func() {
		id, _ := q.ClaimBlocking(context.Background(), 0)
		got <- id
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), "late"))
	select {
	case id := <-got:
		assert.Equal(t, "late", id)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken")
	}
}

func TestMemoryQueueCancel(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.ClaimBlocking(ctx, 0)
	assert.True(t, errors.Is(err, context.Canceled))
}

// Runs against a live Redis when REDIS_TEST_ADDR is set.
func TestRedisQueueRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	key := "test:renders:" + time.Now().Format("150405.000000")
	q := NewRedisQueue(rdb, key)
	t.Cleanup(func() { rdb.Del(ctx, key, key+":processing", key+":claims") })

	require.NoError(t, q.Enqueue(ctx, "r1"))
	require.NoError(t, q.Enqueue(ctx, "r2"))

	id, err := q.ClaimBlocking(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "r1", id)

	moved, err := q.RequeueStale(ctx, time.Hour, 10)
	require.NoError(t, err)
	assert.Zero(t, moved)

	moved, err = q.RequeueStale(ctx, -time.Second, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, moved)

	waiting, processing, err := q.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, waiting)
	assert.Zero(t, processing)

	id, err = q.ClaimBlocking(ctx, time.Second)
	require.NoError(t, err)
	require.NoError(t, q.Ack(ctx, id))
	_, processing, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, processing)
}
