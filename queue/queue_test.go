package queue_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stateforward/go-hfsm/queue"
)

func TestSubmitRunsTask(t *testing.T) {
	q := queue.New()
	ran := false
	require.NoError(t, q.Submit(context.Background(), func(ctx context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
	assert.Zero(t, q.Len())

	boom := errors.New("boom")
	assert.ErrorIs(t, q.Submit(context.Background(), func(ctx context.Context) error { return boom }), boom)
}

func TestGoPreservesOrderAndSerializes(t *testing.T) {
	q := queue.New()
	var (
		mu      sync.Mutex
		order   []int
		running atomic.Int32
		overlap atomic.Bool
	)
	results := make([]<-chan error, 0, 20)
	for i := range 20 {
		results = append(results, q.Go(context.Background(), func(ctx context.Context) error {
			if running.Add(1) > 1 {
				overlap.Store(true)
			}
			defer running.Add(-1)
			time.Sleep(time.Millisecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}))
	}
	for _, result := range results {
		require.NoError(t, <-result)
	}
	assert.False(t, overlap.Load())
	for i, got := range order {
		assert.Equal(t, i, got)
	}
}

func TestSubmitWaitsForLateJoiners(t *testing.T) {
	q := queue.New()
	release := make(chan struct{})
	started := make(chan struct{})
	lateRan := atomic.Bool{}

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- q.Submit(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	late := q.Go(context.Background(), func(ctx context.Context) error {
		lateRan.Store(true)
		return nil
	})
	assert.Equal(t, 1, q.Len())
	close(release)
	require.NoError(t, <-firstDone)
	// the first submitter only returns once the drain it started is empty
	assert.True(t, lateRan.Load())
	require.NoError(t, <-late)
}

func TestSubmitContextCanceled(t *testing.T) {
	q := queue.New()
	release := make(chan struct{})
	started := make(chan struct{})
	go q.Submit(context.Background(), func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	skipped := atomic.Bool{}
	done := make(chan error, 1)
	go func() {
		done <- q.Submit(ctx, func(ctx context.Context) error {
			skipped.Store(false)
			return nil
		})
	}()
	require.Eventually(t, func() bool { return q.Len() == 1 }, time.Second, time.Millisecond)
	skipped.Store(true)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	close(release)
	require.NoError(t, q.Submit(context.Background(), func(ctx context.Context) error { return nil }))
	assert.True(t, skipped.Load())
}
