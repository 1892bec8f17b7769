package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvaleed/acs/internal/dispatch"
)

func TestDeadLetterQueue_EnqueueSetsFirstFailureAndBackoff(t *testing.T) {
	q := NewDeadLetterQueue(nil, WithBaseBackoff(time.Minute))
	m := dispatch.Mutation{EntityID: 1, CommandKind: dispatch.CreateUser}

	q.Enqueue(m, errors.New("boom"))

	require.Equal(t, 1, q.Len())
	q.mu.Lock()
	var fc *FailedCommand
	for _, e := range q.entries {
		fc = e
	}
	q.mu.Unlock()
	require.NotNil(t, fc)
	assert.Equal(t, 1, fc.Attempts)
	assert.WithinDuration(t, fc.FirstFailureAt, fc.LastAttemptAt, time.Second)
	assert.True(t, fc.NextRetryAt.After(fc.FirstFailureAt))
}

func TestDeadLetterQueue_RetrySuccessRemovesEntry(t *testing.T) {
	q := NewDeadLetterQueue(nil, WithBaseBackoff(time.Millisecond))
	m := dispatch.Mutation{EntityID: 1, CommandKind: dispatch.CreateUser}
	q.Enqueue(m, errors.New("boom"))

	q.mu.Lock()
	var fc *FailedCommand
	for _, e := range q.entries {
		fc = e
	}
	q.mu.Unlock()

	q.retryOne(context.Background(), fc, func(ctx context.Context, m dispatch.Mutation) error {
		return nil
	})

	assert.Equal(t, 0, q.Len())
}

func TestDeadLetterQueue_ExhaustsToSink(t *testing.T) {
	sink := &recordingSink{}
	q := NewDeadLetterQueue(nil, WithMaxAttempts(2), WithBaseBackoff(time.Millisecond), WithSink(sink))
	m := dispatch.Mutation{EntityID: 1, CommandKind: dispatch.CreateUser}
	q.Enqueue(m, errors.New("boom"))

	q.mu.Lock()
	var fc *FailedCommand
	for _, e := range q.entries {
		fc = e
	}
	q.mu.Unlock()

	// first retry still fails: attempts becomes 2, which meets maxAttempts
	// and should move straight to the sink rather than rescheduling.
	q.retryOne(context.Background(), fc, func(ctx context.Context, m dispatch.Mutation) error {
		return errors.New("still failing")
	})

	assert.Equal(t, 0, q.Len())
	require.Len(t, sink.recorded, 1)
	assert.Equal(t, 2, sink.recorded[0].Attempts)
	assert.Len(t, sink.recorded[0].ErrorChain, 2)
}

func TestDeadLetterQueue_ExpiredEntryFinalizesWithoutRetrying(t *testing.T) {
	sink := &recordingSink{}
	q := NewDeadLetterQueue(nil, WithEntryTTL(time.Millisecond), WithSink(sink))
	m := dispatch.Mutation{EntityID: 1, CommandKind: dispatch.CreateUser}
	q.Enqueue(m, errors.New("boom"))

	time.Sleep(5 * time.Millisecond)

	q.mu.Lock()
	var fc *FailedCommand
	for _, e := range q.entries {
		fc = e
	}
	q.mu.Unlock()

	called := false
	q.retryOne(context.Background(), fc, func(ctx context.Context, m dispatch.Mutation) error {
		called = true
		return nil
	})

	assert.False(t, called, "an expired entry must not be retried")
	require.Len(t, sink.recorded, 1)
}

type recordingSink struct {
	recorded []FailedCommand
}

func (s *recordingSink) Record(fc FailedCommand) {
	s.recorded = append(s.recorded, fc)
}
