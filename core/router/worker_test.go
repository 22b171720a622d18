package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/ert-go/core/metrics"
)

func TestWorker_PanicTerminatesWorker(t *testing.T) {
	panicked := make(chan int, 1)
	r := newTestRouter(t, 2, WithOnPanic(func(worker int, recovered any, stack []byte) {
		assert.Equal(t, "kaboom", recovered)
		assert.NotEmpty(t, stack)
		panicked <- worker
	}))

	dead := WorkerFor(r, "bad")
	other := ""
	for i := 0; other == ""; i++ {
		if k := string(rune('a' + i)); WorkerFor(r, k) != dead {
			other = k
		}
	}

	Go(r, "bad", func(ctx context.Context) error { panic("kaboom") })

	select {
	case w := <-panicked:
		require.Equal(t, dead, w)
	case <-time.After(5 * time.Second):
		t.Fatal("panic was not reported")
	}

	// waits for the run loop to exit before submitting again
	require.Eventually(t, func() bool {
		return r.workers[dead].stopped.Load()
	}, 5*time.Second, time.Millisecond)

	lost := Submit(r, "bad", func(ctx context.Context) (int, error) { return 1, nil })
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	_, err := lost.Await(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	alive := Submit(r, other, func(ctx context.Context) (int, error) { return WorkerID(ctx), nil })
	got := awaitAll(t, []*Via[int]{alive})
	require.NotEqual(t, dead, got[0])
}

func TestWorker_PanicDropsQueuedWork(t *testing.T) {
	r := newTestRouter(t, 1)

	release := make(chan struct{})
	Go(r, 0, func(ctx context.Context) error {
		<-release
		panic("late")
	})
	queued := Submit(r, 0, func(ctx context.Context) (int, error) { return 1, nil })
	close(release)

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()
	_, err := queued.Await(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

type recordingMetrics struct {
	mu        sync.Mutex
	submitted int
	failed    int
	completed map[bool]int
	panics    int
	running   []int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{completed: map[bool]int{}}
}

func (m *recordingMetrics) TaskSubmitted(string, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted++
}

func (m *recordingMetrics) DeliveryFailed(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed++
}

func (m *recordingMetrics) TaskDuration(string) metrics.Timer { return metrics.NopTimer() }

func (m *recordingMetrics) TaskCompleted(_ string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed[success]++
}

func (m *recordingMetrics) QueueDepth(string, int, int) {}

func (m *recordingMetrics) WorkersRunning(_ string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = append(m.running, count)
}

func (m *recordingMetrics) WorkerPanicked(string, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panics++
}

type metricsSnapshot struct {
	submitted int
	failed    int
	completed map[bool]int
	panics    int
	running   []int
}

func (m *recordingMetrics) snapshot() metricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	completed := map[bool]int{}
	for k, v := range m.completed {
		completed[k] = v
	}
	return metricsSnapshot{
		submitted: m.submitted,
		failed:    m.failed,
		completed: completed,
		panics:    m.panics,
		running:   append([]int(nil), m.running...),
	}
}

func TestWorker_Metrics(t *testing.T) {
	m := newRecordingMetrics()
	r := newTestRouter(t, 2, WithMetrics(m))

	vias := []*Via[int]{
		Submit(r, 1, func(ctx context.Context) (int, error) { return 1, nil }),
		Submit(r, 2, func(ctx context.Context) (int, error) { return 0, context.Canceled }),
	}
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	for _, v := range vias {
		_, _ = v.Await(ctx)
	}

	r.Close()
	r.Wait()
	Go(r, 3, func(ctx context.Context) error { return nil })

	s := m.snapshot()
	require.Equal(t, 2, s.submitted)
	require.Equal(t, 1, s.failed)
	require.Equal(t, 1, s.completed[true])
	require.Equal(t, 1, s.completed[false])
	require.Equal(t, 0, s.panics)
	require.Equal(t, 2, s.running[0])
	require.Eventually(t, func() bool {
		s := m.snapshot()
		return s.running[len(s.running)-1] == 0
	}, 5*time.Second, time.Millisecond)
}

func TestWorker_WaitReportsPanic(t *testing.T) {
	constructors := map[string]func(opts ...Option) (*Router, error){
		"attached": func(opts ...Option) (*Router, error) { return New(t.Context(), 2, opts...) },
		"detached": func(opts ...Option) (*Router, error) { return NewDetached(2, opts...) },
	}
	for name, construct := range constructors {
		t.Run(name, func(t *testing.T) {
			r, err := construct(WithLogger(quietLogger()))
			require.NoError(t, err)

			dead := WorkerFor(r, "bad")
			Go(r, "bad", func(ctx context.Context) error { panic("kaboom") })
			require.Eventually(t, func() bool {
				return r.workers[dead].stopped.Load()
			}, 5*time.Second, time.Millisecond)

			r.Close()
			err = r.Wait()
			require.ErrorIs(t, err, ErrWorkerPanicked)

			var perr *PanicError
			require.ErrorAs(t, err, &perr)
			require.Equal(t, dead, perr.Worker)
			require.Equal(t, "kaboom", perr.Recovered)
			require.NotEmpty(t, perr.Stack)
		})
	}
}

func TestWorker_WaitWithoutPanic(t *testing.T) {
	r, err := NewDetached(2, WithLogger(quietLogger()))
	require.NoError(t, err)
	awaitAll(t, []*Via[int]{Submit(r, 1, func(ctx context.Context) (int, error) { return 1, nil })})

	r.Close()
	require.NoError(t, r.Wait())
}
