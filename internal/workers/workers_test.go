package workers_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clipforge/clipforge/internal/database"
	"github.com/clipforge/clipforge/internal/workers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConfigManager struct {
	workers int

	watchErr error
}

func (m *mockConfigManager) Watch(ctx context.Context) (<-chan struct{}, <-chan error, error) {
	if m.watchErr != nil {
		return nil, nil, m.watchErr
	}

	changes := make(chan struct{}, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(changes)
		defer close(errs)
		<-ctx.Done()
	}()
	return changes, errs, nil
}

func (m *mockConfigManager) Workers() int {
	return m.workers
}

type mockProcessor struct {
	calls atomic.Int64

	processErr error
}

func (m *mockProcessor) ProcessNext(ctx context.Context) error {
	m.calls.Add(1)
	if m.processErr != nil {
		return m.processErr
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(10 * time.Millisecond):
	}
	return nil
}

func TestRunProcessesJobs(t *testing.T) {
	t.Parallel()

	cm := &mockConfigManager{workers: 2}
	proc := &mockProcessor{}

	pool, err := workers.New(cm, proc, prometheus.NewRegistry())
	require.NoError(t, err, "Setup: failed to create worker pool")

	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan error, 1)
	go func() {
		done <- pool.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return proc.calls.Load() > 2
	}, 5*time.Second, 10*time.Millisecond, "Workers should be claiming jobs")

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled, "Run should return the context error")
	case <-time.After(5 * time.Second):
		t.Fatal("Worker pool did not stop in time")
	}
}

func TestRunBacksOffOnEmptyQueue(t *testing.T) {
	t.Parallel()

	cm := &mockConfigManager{workers: 1}
	proc := &mockProcessor{processErr: database.ErrNoJobs}

	pool, err := workers.New(cm, proc, prometheus.NewRegistry())
	require.NoError(t, err, "Setup: failed to create worker pool")

	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan error, 1)
	go func() {
		done <- pool.Run(ctx)
	}()

	// With a 5 second base backoff, an empty queue must not busy-loop.
	time.Sleep(500 * time.Millisecond)
	calls := proc.calls.Load()
	assert.LessOrEqual(t, calls, int64(3), "Worker should back off on an empty queue")
	assert.GreaterOrEqual(t, calls, int64(1), "Worker should have polled at least once")

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Worker pool did not stop in time")
	}
}

func TestRunWatchError(t *testing.T) {
	t.Parallel()

	cm := &mockConfigManager{workers: 1, watchErr: assert.AnError}
	pool, err := workers.New(cm, &mockProcessor{}, prometheus.NewRegistry())
	require.NoError(t, err, "Setup: failed to create worker pool")

	require.Error(t, pool.Run(t.Context()), "Run should fail when the configuration watch cannot start")
}

func TestRunAlreadyCanceled(t *testing.T) {
	t.Parallel()

	pool, err := workers.New(&mockConfigManager{workers: 1}, &mockProcessor{}, prometheus.NewRegistry())
	require.NoError(t, err, "Setup: failed to create worker pool")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	require.ErrorIs(t, pool.Run(ctx), context.Canceled, "Run should return immediately on a canceled context")
}

func TestNewRejectsDuplicateMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := workers.New(&mockConfigManager{}, &mockProcessor{}, reg)
	require.NoError(t, err, "Setup: first pool should register cleanly")

	_, err = workers.New(&mockConfigManager{}, &mockProcessor{}, reg)
	require.Error(t, err, "Second registration on the same registry should fail")
}
