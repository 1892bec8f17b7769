package persistence

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mvaleed/acs/internal/dispatch"
	"github.com/mvaleed/acs/internal/obs"
)

const (
	DefaultMaxAttempts  = 3
	DefaultBaseBackoff  = 5 * time.Minute
	DefaultEntryTTL     = 24 * time.Hour
	defaultSweepPeriod  = 30 * time.Second
)

// FailedCommand is one dead-lettered mutation (spec §4.D).
type FailedCommand struct {
	ID               int64
	CommandType      string
	Mutation         dispatch.Mutation
	FirstFailureAt   time.Time
	LastAttemptAt    time.Time
	NextRetryAt      time.Time
	Attempts         int
	ErrorChain       []string
	ExpiresAt        time.Time
}

// PermanentFailureSink receives entries that exhausted retries or expired,
// for operator inspection (spec §4.D). The default sink only logs.
type PermanentFailureSink interface {
	Record(fc FailedCommand)
}

type loggingSink struct{ logger *obs.Logger }

func (s loggingSink) Record(fc FailedCommand) {
	s.logger.Error("command moved to permanent-failure sink",
		zap.Int64("id", fc.ID),
		zap.String("command_type", fc.CommandType),
		zap.Int("attempts", fc.Attempts),
		zap.Strings("error_chain", fc.ErrorChain),
	)
}

// DeadLetterQueue is an unbounded, mutex-guarded queue of FailedCommand
// entries with jittered exponential backoff retry (spec §4.D).
type DeadLetterQueue struct {
	mu      sync.Mutex
	entries map[int64]*FailedCommand
	nextID  int64

	maxAttempts int
	baseBackoff time.Duration
	ttl         time.Duration

	sink   PermanentFailureSink
	logger *obs.Logger
}

type DLQOption func(*DeadLetterQueue)

func WithMaxAttempts(n int) DLQOption    { return func(q *DeadLetterQueue) { q.maxAttempts = n } }
func WithBaseBackoff(d time.Duration) DLQOption { return func(q *DeadLetterQueue) { q.baseBackoff = d } }
func WithEntryTTL(d time.Duration) DLQOption    { return func(q *DeadLetterQueue) { q.ttl = d } }
func WithSink(s PermanentFailureSink) DLQOption { return func(q *DeadLetterQueue) { q.sink = s } }

func NewDeadLetterQueue(logger *obs.Logger, opts ...DLQOption) *DeadLetterQueue {
	if logger == nil {
		logger = obs.NewNop()
	}
	q := &DeadLetterQueue{
		entries:     make(map[int64]*FailedCommand),
		maxAttempts: DefaultMaxAttempts,
		baseBackoff: DefaultBaseBackoff,
		ttl:         DefaultEntryTTL,
		logger:      logger,
	}
	q.sink = loggingSink{logger: logger}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue records a first failure for m.
func (q *DeadLetterQueue) Enqueue(m dispatch.Mutation, cause error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextID++
	now := time.Now().UTC()
	q.entries[q.nextID] = &FailedCommand{
		ID:             q.nextID,
		CommandType:    m.CommandKind.String(),
		Mutation:       m,
		FirstFailureAt: now,
		LastAttemptAt:  now,
		NextRetryAt:    now.Add(jitter(q.baseBackoff)),
		Attempts:       1,
		ErrorChain:     []string{cause.Error()},
		ExpiresAt:      now.Add(q.ttl),
	}
}

// Len reports the number of entries currently queued for retry.
func (q *DeadLetterQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// jitter applies ±25% uniform jitter around d, the same scheme the retry
// policy in internal/resilience uses (spec §4.E).
func jitter(d time.Duration) time.Duration {
	delta := float64(d) * 0.25
	offset := (rand.Float64()*2 - 1) * delta
	return time.Duration(float64(d) + offset)
}

func backoffFor(base time.Duration, attempts int) time.Duration {
	// attempts counts the failed attempt just recorded; the Nth retry
	// waits base*2^(N-1), capped implicitly by maxAttempts being small.
	mult := 1 << uint(attempts-1)
	return jitter(base * time.Duration(mult))
}

// Run drains due entries every sweep period, retrying each via retryFn
// until maxAttempts is exhausted or the entry expires, at which point it
// moves to the PermanentFailureSink. It blocks until ctx is canceled.
func (q *DeadLetterQueue) Run(ctx context.Context, retryFn func(ctx context.Context, m dispatch.Mutation) error) {
	ticker := time.NewTicker(defaultSweepPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.sweep(ctx, retryFn)
		}
	}
}

func (q *DeadLetterQueue) sweep(ctx context.Context, retryFn func(ctx context.Context, m dispatch.Mutation) error) {
	now := time.Now().UTC()

	q.mu.Lock()
	var due []*FailedCommand
	for _, fc := range q.entries {
		if now.After(fc.NextRetryAt) || now.Equal(fc.NextRetryAt) {
			due = append(due, fc)
		}
	}
	q.mu.Unlock()

	for _, fc := range due {
		q.retryOne(ctx, fc, retryFn)
	}
}

func (q *DeadLetterQueue) retryOne(ctx context.Context, fc *FailedCommand, retryFn func(ctx context.Context, m dispatch.Mutation) error) {
	now := time.Now().UTC()

	if now.After(fc.ExpiresAt) {
		q.finalize(fc)
		return
	}

	err := retryFn(ctx, fc.Mutation)

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, present := q.entries[fc.ID]; !present {
		return
	}

	if err == nil {
		delete(q.entries, fc.ID)
		return
	}

	fc.Attempts++
	fc.LastAttemptAt = now
	fc.ErrorChain = append(fc.ErrorChain, err.Error())

	if fc.Attempts >= q.maxAttempts {
		delete(q.entries, fc.ID)
		q.sink.Record(*fc)
		return
	}
	fc.NextRetryAt = now.Add(backoffFor(q.baseBackoff, fc.Attempts))
}

func (q *DeadLetterQueue) finalize(fc *FailedCommand) {
	q.mu.Lock()
	delete(q.entries, fc.ID)
	q.mu.Unlock()
	q.sink.Record(*fc)
}
