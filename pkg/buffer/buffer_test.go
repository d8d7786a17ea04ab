package buffer

import (
	"context"
	"testing"
	"time"

	"github.com/lattice-acs/acs/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(ctx context.Context, cmd interface{}) (interface{}, error) {
	return cmd, nil
}

func TestEnqueueAndDispatchInOrder(t *testing.T) {
	b := New(10, 0.8, 0.5, echoHandler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	var envelopes []*Envelope
	for i := 0; i < 5; i++ {
		env, err := b.Enqueue(context.Background(), i, "corr", time.Time{})
		require.NoError(t, err)
		envelopes = append(envelopes, env)
	}

	for i, env := range envelopes {
		res := env.Wait()
		require.NoError(t, res.Err)
		assert.Equal(t, i, res.Value)
	}
}

func TestEnqueueReturnsBufferFullAtCapacity(t *testing.T) {
	// mirrors scenario S6: no consumer running, so the queue fills and
	// backpressure must trip before BufferFull is returned.
	b := New(2, 0.8, 0.5, echoHandler)

	_, err := b.Enqueue(context.Background(), 1, "corr", time.Time{})
	require.NoError(t, err)
	_, err = b.Enqueue(context.Background(), 2, "corr", time.Time{})
	require.NoError(t, err)

	_, err = b.Enqueue(context.Background(), 3, "corr", time.Time{})
	require.Error(t, err)
	assert.True(t, common.AsACSError(err).Is(common.New(common.KindBufferFull, "")))
}

func TestStopCancelsQueuedEnvelopes(t *testing.T) {
	b := New(5, 0.8, 0.5, echoHandler)

	env, err := b.Enqueue(context.Background(), 1, "corr", time.Time{})
	require.NoError(t, err)

	b.Stop()

	res := env.Wait()
	require.Error(t, res.Err)
	assert.Equal(t, StateCancelled, env.State())

	_, err = b.Enqueue(context.Background(), 2, "corr", time.Time{})
	require.Error(t, err)
}

func TestStatsReportsCounts(t *testing.T) {
	b := New(10, 0.8, 0.5, echoHandler)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	env, err := b.Enqueue(context.Background(), 1, "corr", time.Time{})
	require.NoError(t, err)
	env.Wait()

	// allow the consumer goroutine to update counters before reading.
	time.Sleep(10 * time.Millisecond)

	stats := b.Stats()
	assert.Equal(t, uint64(1), stats.Enqueued)
	assert.Equal(t, uint64(1), stats.Completed)
}

func TestCancelledDuringExecutingAfterCommitReportsCancelledAfterCommit(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	committing := func(ctx context.Context, cmd interface{}) (interface{}, error) {
		close(started)
		<-release
		// the handler's commit has already happened by the time it
		// observes ctx's cancellation; spec §5 says it must still
		// report the outcome as committed-then-cancelled, not discard it.
		return cmd, nil
	}

	b := New(5, 0.8, 0.5, committing)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	env, err := b.Enqueue(context.Background(), 1, "corr", time.Time{})
	require.NoError(t, err)

	<-started
	cancel()
	close(release)

	res := env.Wait()
	require.Error(t, res.Err)
	assert.True(t, common.AsACSError(res.Err).Is(common.New(common.KindCancelledAfterCmt, "")))
	assert.Equal(t, StateCancelledAfterCommit, env.State())
	assert.Equal(t, 1, res.Value)
}

func TestHandlerErrorMarksEnvelopeFailed(t *testing.T) {
	failing := func(ctx context.Context, cmd interface{}) (interface{}, error) {
		return nil, common.New(common.KindNotFound, "missing")
	}
	b := New(5, 0.8, 0.5, failing)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	env, err := b.Enqueue(context.Background(), 1, "corr", time.Time{})
	require.NoError(t, err)

	res := env.Wait()
	require.Error(t, res.Err)
}
