package webchat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTopicQueuesSerializeSameTopic(t *testing.T) {
	q := NewTopicQueues()
	release := make(chan struct{})

	var mu sync.Mutex
	var order []int
	record := func(i int) func(context.Context) {
		return func(context.Context) {
			if i == 1 {
				<-release
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}
	}

	require.Equal(t, 1, q.Enqueue(context.Background(), "c1", "t1", record(1)))
	require.Equal(t, 2, q.Enqueue(context.Background(), "c1", "t1", record(2)))
	require.Equal(t, 3, q.Enqueue(context.Background(), "c1", "t1", record(3)))
	close(release)
	q.Wait()

	require.Equal(t, []int{1, 2, 3}, order)
	require.Equal(t, 1, q.Enqueue(context.Background(), "c1", "t1", func(context.Context) {}))
	q.Wait()
}

func TestTopicQueuesRunTopicsConcurrently(t *testing.T) {
	q := NewTopicQueues()
	release := make(chan struct{})
	done := make(chan struct{})

	q.Enqueue(context.Background(), "c1", "t1", func(context.Context) { <-release })
	q.Enqueue(context.Background(), "c1", "t2", func(context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second topic blocked behind the first")
	}
	close(release)
	q.Wait()
}

func TestTopicQueuesSkipJobsAfterCancel(t *testing.T) {
	q := NewTopicQueues()
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	ran := false

	q.Enqueue(ctx, "c1", "t1", func(context.Context) { <-release })
	q.Enqueue(ctx, "c1", "t1", func(context.Context) { ran = true })
	cancel()
	close(release)
	q.Wait()

	require.False(t, ran)
}

func TestTopicQueuesCloseRejectsNewJobs(t *testing.T) {
	q := NewTopicQueues()
	release := make(chan struct{})
	finished := make(chan struct{})

	require.Equal(t, 1, q.Enqueue(context.Background(), "c1", "t1", func(context.Context) {
		<-release
		close(finished)
	}))

	closed := make(chan struct{})
	go func() {
		q.Close()
		close(closed)
	}()

	require.Eventually(t, func() bool {
		return q.Enqueue(context.Background(), "c1", "t2", func(context.Context) {}) == 0
	}, time.Second, 5*time.Millisecond)

	select {
	case <-closed:
		t.Fatal("close returned before the running lane drained")
	default:
	}
	close(release)

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("close did not return")
	}
	<-finished
	require.Equal(t, 0, q.Enqueue(context.Background(), "c1", "t1", func(context.Context) {}))
}
