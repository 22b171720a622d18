package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVia_ErrorIsData(t *testing.T) {
	r := newTestRouter(t, 1)

	boom := errors.New("boom")
	failed := Submit(r, "k", func(ctx context.Context) (int, error) {
		return 7, boom
	})
	next := Submit(r, "k", func(ctx context.Context) (int, error) {
		return 8, nil
	})

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	v, err := failed.Await(ctx)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 7, v)

	v, err = next.Await(ctx)
	require.NoError(t, err)
	require.Equal(t, 8, v)
}

func TestVia_ResultAndDone(t *testing.T) {
	r := newTestRouter(t, 1)

	release := make(chan struct{})
	via := Submit(r, "k", func(ctx context.Context) (string, error) {
		<-release
		return "ok", nil
	})

	_, ok, _ := via.Result()
	require.False(t, ok)

	close(release)
	select {
	case <-via.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("via never resolved")
	}

	v, ok, err := via.Result()
	require.True(t, ok)
	require.NoError(t, err)
	require.Equal(t, "ok", v)

	// resolved vias answer even with an ended context
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	v, err = via.Await(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", v)
}

func TestVia_AbandonedWorkStillRuns(t *testing.T) {
	r := newTestRouter(t, 2)

	ran := make(chan struct{})
	release := make(chan struct{})
	via := Submit(r, "k", func(ctx context.Context) (struct{}, error) {
		<-release
		close(ran)
		return struct{}{}, nil
	})

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	_, err := via.Await(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("abandoned work was cancelled")
	}
}

func TestVia_PendingForeverAfterClose(t *testing.T) {
	r := newTestRouter(t, 2)
	r.Close()
	r.Wait()

	via := Submit(r, "k", func(ctx context.Context) (int, error) {
		t.Error("work ran on a closed router")
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	_, err := via.Await(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	_, ok, _ := via.Result()
	require.False(t, ok)
}

func TestVia_QueuedWorkDroppedOnClose(t *testing.T) {
	r := newTestRouter(t, 1)

	started := make(chan struct{})
	release := make(chan struct{})
	running := Submit(r, "k", func(ctx context.Context) (int, error) {
		close(started)
		<-release
		return 1, nil
	})
	queued := Submit(r, "k", func(ctx context.Context) (int, error) {
		return 2, nil
	})

	<-started
	r.Close()
	close(release)
	r.Wait()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	v, err := running.Await(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, v)

	short, cancelShort := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancelShort()
	_, err = queued.Await(short)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
