package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/fraud-detector/internal/classifier"
	"github.com/akylbek/payment-system/fraud-detector/internal/features"
	"github.com/akylbek/payment-system/fraud-detector/internal/models"
)

// fakeReader serves queued messages, then blocks until ctx is done.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	fetchErrs []error
	committed []kafka.Message
	closed    bool
	drained   chan struct{}
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{queue: msgs, drained: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	select {
	case <-r.drained:
	default:
		close(r.drained)
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

type countingEvaluator struct {
	mu    sync.Mutex
	calls []*models.RawTransaction
	err   error
}

func (e *countingEvaluator) Evaluate(_ context.Context, raw *models.RawTransaction, _ json.RawMessage) (*models.PredictionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, raw)
	if e.err != nil {
		return nil, e.err
	}
	return &models.PredictionResult{SaveStatus: models.SaveStatusSuccess}, nil
}

type mapLocker struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func (l *mapLocker) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *mapLocker) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

func txMessage(t *testing.T, key string, offset int64) kafka.Message {
	t.Helper()
	payload, err := json.Marshal(lowRiskRaw())
	require.NoError(t, err)
	return kafka.Message{Topic: "transactions.raw", Key: []byte(key), Value: payload, Offset: offset}
}

func runUntilDrained(t *testing.T, c *TransactionConsumer, r *fakeReader) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case <-r.drained:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not drain the queue")
	}
	cancel()
	require.NoError(t, <-done)
}

func TestConsumer_EvaluatesAndCommitsEachMessage(t *testing.T) {
	reader := newFakeReader(txMessage(t, "a", 1), txMessage(t, "b", 2))
	eval := &countingEvaluator{}

	runUntilDrained(t, NewTransactionConsumer(reader, eval, nil), reader)

	assert.Len(t, eval.calls, 2)
	assert.Equal(t, "Withdrawal", eval.calls[0].Type)
	assert.Len(t, reader.committed, 2)
	assert.True(t, reader.closed)
}

func TestConsumer_SkipsRedeliveredMessages(t *testing.T) {
	reader := newFakeReader(txMessage(t, "dup", 1), txMessage(t, "dup", 2), txMessage(t, "other", 3))
	eval := &countingEvaluator{}
	locker := &mapLocker{held: map[string]bool{}}

	runUntilDrained(t, NewTransactionConsumer(reader, eval, locker), reader)

	assert.Len(t, eval.calls, 2)
	// Skipped messages are still committed.
	assert.Len(t, reader.committed, 3)
	assert.True(t, locker.held["transaction_lock:dup"])
}

func TestConsumer_LockerFailureStillEvaluates(t *testing.T) {
	reader := newFakeReader(txMessage(t, "a", 1))
	eval := &countingEvaluator{}
	locker := &mapLocker{held: map[string]bool{}, err: errors.New("redis down")}

	runUntilDrained(t, NewTransactionConsumer(reader, eval, locker), reader)

	assert.Len(t, eval.calls, 1)
}

func TestConsumer_BadMessagesDoNotStopTheLoop(t *testing.T) {
	garbage := kafka.Message{Topic: "transactions.raw", Partition: 2, Offset: 9, Value: []byte("{not json")}
	reader := newFakeReader(garbage, txMessage(t, "ok", 10))
	reader.fetchErrs = []error{errors.New("broker hiccup")}
	eval := &countingEvaluator{}

	runUntilDrained(t, NewTransactionConsumer(reader, eval, nil), reader)

	assert.Len(t, eval.calls, 1)
	assert.Len(t, reader.committed, 2)
}

func TestConsumer_MalformedTransactionIsNotAnError(t *testing.T) {
	eval := &countingEvaluator{err: &features.MalformedInputError{Fields: map[string]string{"TransactionDate": "bad"}}}
	c := NewTransactionConsumer(newFakeReader(), eval, nil)

	assert.NoError(t, c.handle(context.Background(), txMessage(t, "a", 1)))
}

func TestConsumer_EvaluatorFailureIsReported(t *testing.T) {
	eval := &countingEvaluator{err: errors.New("model offline")}
	c := NewTransactionConsumer(newFakeReader(), eval, nil)

	assert.Error(t, c.handle(context.Background(), txMessage(t, "a", 1)))
}

func TestLockKey(t *testing.T) {
	assert.Equal(t, "transaction_lock:abc", lockKey(kafka.Message{Key: []byte("abc")}))
	assert.Equal(t, "transaction_lock:raw:3:42", lockKey(kafka.Message{Topic: "raw", Partition: 3, Offset: 42}))
}

// recoveringEvaluator reports the model as unavailable for the first
// failures calls.
type recoveringEvaluator struct {
	countingEvaluator
	failures int
}

func (e *recoveringEvaluator) Evaluate(ctx context.Context, raw *models.RawTransaction, payload json.RawMessage) (*models.PredictionResult, error) {
	e.mu.Lock()
	if len(e.calls) < e.failures {
		e.calls = append(e.calls, raw)
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: no model loaded", classifier.ErrModelUnavailable)
	}
	e.mu.Unlock()
	return e.countingEvaluator.Evaluate(ctx, raw, payload)
}

func (e *recoveringEvaluator) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func TestConsumer_RetriesWhileModelUnavailable(t *testing.T) {
	reader := newFakeReader(txMessage(t, "tx-1", 1))
	eval := &recoveringEvaluator{failures: 2}
	locker := &mapLocker{held: map[string]bool{}}
	c := NewTransactionConsumer(reader, eval, locker)
	c.retryDelay = time.Millisecond

	runUntilDrained(t, c, reader)

	// The lock is released after each failure so the retry is not skipped.
	assert.Equal(t, 3, eval.callCount())
	assert.Len(t, reader.committed, 1)
	assert.True(t, locker.held["transaction_lock:tx-1"])
}

func TestConsumer_ShutdownDuringRetryLeavesOffset(t *testing.T) {
	reader := newFakeReader(txMessage(t, "tx-1", 1))
	eval := &recoveringEvaluator{failures: math.MaxInt32}
	locker := &mapLocker{held: map[string]bool{}}
	c := NewTransactionConsumer(reader, eval, locker)
	c.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return eval.callCount() >= 2 }, 5*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	reader.mu.Lock()
	defer reader.mu.Unlock()
	assert.Empty(t, reader.committed)
	assert.True(t, reader.closed)
	assert.False(t, locker.held["transaction_lock:tx-1"])
}
