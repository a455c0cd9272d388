package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/schedulex/internal/domain"
)

func readyJob(id string, priority int) domain.Job {
	return domain.Job{JobID: id, Priority: priority, Status: domain.JobStatusPending}
}

func TestReadyQueue_PriorityThenFIFO(t *testing.T) {
	q := NewReadyQueue()
	ctx := context.Background()

	require.True(t, q.Push(readyJob("low-1", 1)))
	require.True(t, q.Push(readyJob("high-1", 8)))
	require.True(t, q.Push(readyJob("low-2", 1)))
	require.True(t, q.Push(readyJob("high-2", 8)))
	require.True(t, q.Push(readyJob("mid", 5)))

	var got []string
	for i := 0; i < 5; i++ {
		job, err := q.Pop(ctx)
		require.NoError(t, err)
		got = append(got, job.JobID)
	}

	assert.Equal(t, []string{"high-1", "high-2", "mid", "low-1", "low-2"}, got)
	assert.Equal(t, 0, q.Len())
}

func TestReadyQueue_RejectsQueuedDuplicate(t *testing.T) {
	q := NewReadyQueue()

	assert.True(t, q.Push(readyJob("a", 0)))
	assert.False(t, q.Push(readyJob("a", 0)))
	assert.Equal(t, 1, q.Len())

	_, err := q.Pop(context.Background())
	require.NoError(t, err)

	// Once popped, the id may be queued again
	assert.True(t, q.Push(readyJob("a", 0)))
}

func TestReadyQueue_PopBlocksUntilPush(t *testing.T) {
	q := NewReadyQueue()

	result := make(chan domain.Job, 1)
	go func() {
		job, err := q.Pop(context.Background())
		if err == nil {
			result <- job
		}
	}()

	select {
	case <-result:
		t.Fatal("Pop returned before any push")
	case <-time.After(50 * time.Millisecond):
	}

	q.Push(readyJob("late", 0))

	select {
	case job := <-result:
		assert.Equal(t, "late", job.JobID)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake up after push")
	}
}

func TestReadyQueue_PopHonoursContext(t *testing.T) {
	q := NewReadyQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReadyQueue_CloseWakesWaiters(t *testing.T) {
	q := NewReadyQueue()

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := q.Pop(context.Background())
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	q.Close()

	for i := 0; i < 3; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrQueueClosed)
		case <-time.After(time.Second):
			t.Fatal("waiter not released by Close")
		}
	}

	assert.False(t, q.Push(readyJob("after-close", 0)))
	q.Close()
}

func TestReadyQueue_ConcurrentNoLossNoDuplication(t *testing.T) {
	const (
		pushes  = 2000
		poppers = 8
	)

	q := NewReadyQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		seen = make(map[string]int, pushes)
		wg   sync.WaitGroup
	)

	for i := 0; i < poppers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := q.Pop(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				seen[job.JobID]++
				mu.Unlock()
			}
		}()
	}

	var pushers sync.WaitGroup
	for p := 0; p < 4; p++ {
		pushers.Add(1)
		go func(p int) {
			defer pushers.Done()
			for i := 0; i < pushes/4; i++ {
				q.Push(readyJob(fmt.Sprintf("job-%d-%d", p, i), i%10))
			}
		}(p)
	}
	pushers.Wait()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == pushes
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	wg.Wait()

	for id, n := range seen {
		assert.Equal(t, 1, n, "job %s delivered %d times", id, n)
	}
}
