package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPoolSubmitBeforeStart(t *testing.T) {
	p := New("test", func(context.Context, Task) error { return nil }, Config{Size: 1, Logger: zap.NewNop()})
	err := p.Submit(Task{ID: "early"})
	require.Error(t, err)
}

func TestPoolStartBlocksUntilAllReady(t *testing.T) {
	gate := make(chan struct{})
	var initialized int32
	p := New("test", func(context.Context, Task) error { return nil }, Config{
		Size:   3,
		Logger: zap.NewNop(),
		Init: func(ctx context.Context, workerID int) error {
			<-gate
			atomic.AddInt32(&initialized, 1)
			return nil
		},
	})
	defer p.Stop()

	started := make(chan error, 1)
	go func() { started <- p.Start(context.Background()) }()

	select {
	case <-started:
		t.Fatal("pool accepted work before workers were ready")
	case <-time.After(100 * time.Millisecond):
	}

	close(gate)
	select {
	case err := <-started:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pool never became ready")
	}
	assert.EqualValues(t, 3, atomic.LoadInt32(&initialized))
}

func TestPoolStartCancelled(t *testing.T) {
	p := New("test", func(context.Context, Task) error { return nil }, Config{
		Size:   1,
		Logger: zap.NewNop(),
		Init: func(ctx context.Context, workerID int) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.Error(t, p.Start(ctx))
	p.Stop()
}

func TestPoolDispatchesFIFO(t *testing.T) {
	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup

	p := New("test", func(_ context.Context, task Task) error {
		mu.Lock()
		order = append(order, task.ID)
		mu.Unlock()
		wg.Done()
		return nil
	}, Config{Size: 1, Logger: zap.NewNop()})
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	ids := []string{"t1", "t2", "t3", "t4", "t5"}
	wg.Add(len(ids))
	for _, id := range ids {
		require.NoError(t, p.Submit(Task{ID: id}))
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, ids, order)
}

func TestPoolCrashReplacesWorkerAndLosesTask(t *testing.T) {
	processed := make(chan string, 8)
	p := New("test", func(_ context.Context, task Task) error {
		if task.ID == "boom" {
			panic("simulated worker crash")
		}
		processed <- task.ID
		return nil
	}, Config{Size: 1, Logger: zap.NewNop()})
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	require.NoError(t, p.Submit(Task{ID: "before"}))
	require.NoError(t, p.Submit(Task{ID: "boom"}))
	require.NoError(t, p.Submit(Task{ID: "after"}))

	var seen []string
	for len(seen) < 2 {
		select {
		case id := <-processed:
			seen = append(seen, id)
		case <-time.After(2 * time.Second):
			t.Fatalf("pool stalled after crash, processed so far: %v", seen)
		}
	}

	// the crashed task is lost; the replacement worker drains the rest
	assert.Equal(t, []string{"before", "after"}, seen)
	assert.NotContains(t, seen, "boom")
}

func TestPoolCrashDuringInitIsReplaced(t *testing.T) {
	var attempts int32
	p := New("test", func(context.Context, Task) error { return nil }, Config{
		Size:   1,
		Logger: zap.NewNop(),
		Init: func(ctx context.Context, workerID int) error {
			if atomic.AddInt32(&attempts, 1) == 1 {
				panic("bad startup")
			}
			return nil
		},
	})
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()
	assert.GreaterOrEqual(t, atomic.LoadInt32(&attempts), int32(2))
}

func TestPoolStatsOccupancy(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var hooked []Stats

	p := New("test", func(_ context.Context, task Task) error {
		<-release
		return nil
	}, Config{
		Size:   2,
		Logger: zap.NewNop(),
		OnStats: func(s Stats) {
			mu.Lock()
			hooked = append(hooked, s)
			mu.Unlock()
		},
	})
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Submit(Task{ID: "t"}))
	}

	require.Eventually(t, func() bool {
		s := p.Stats()
		return s.Busy == 2 && s.Queued == 1
	}, 2*time.Second, 10*time.Millisecond)

	close(release)
	require.Eventually(t, func() bool {
		s := p.Stats()
		return s.Busy == 0 && s.Queued == 0
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, hooked)
}

func TestPoolStopDropsQueuedTasks(t *testing.T) {
	release := make(chan struct{})
	var processed int32
	p := New("test", func(_ context.Context, task Task) error {
		<-release
		atomic.AddInt32(&processed, 1)
		return nil
	}, Config{Size: 1, Logger: zap.NewNop()})
	require.NoError(t, p.Start(context.Background()))

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Submit(Task{ID: "t"}))
	}
	require.Eventually(t, func() bool { return p.Stats().Busy == 1 }, 2*time.Second, 10*time.Millisecond)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()
	p.Stop()

	// the in-flight task finished; the two queued ones were dropped
	assert.EqualValues(t, 1, atomic.LoadInt32(&processed))
	require.Error(t, p.Submit(Task{ID: "late"}))
}
