package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/fraud-detector/internal/cache"
	"github.com/akylbek/payment-system/fraud-detector/internal/classifier"
	"github.com/akylbek/payment-system/fraud-detector/internal/features"
	"github.com/akylbek/payment-system/fraud-detector/internal/models"
	"github.com/akylbek/payment-system/fraud-detector/internal/telemetry"
)

// TransactionEvaluator is satisfied by *Evaluator.
type TransactionEvaluator interface {
	Evaluate(ctx context.Context, raw *models.RawTransaction, payload json.RawMessage) (*models.PredictionResult, error)
}

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	DefaultLockTTL    = 10 * time.Minute
	DefaultRetryDelay = 5 * time.Second
)

// TransactionConsumer evaluates raw transactions streamed from Kafka with
// the same pipeline as the HTTP entry point.
type TransactionConsumer struct {
	reader     MessageReader
	evaluator  TransactionEvaluator
	locker     cache.Locker
	lockTTL    time.Duration
	// retryDelay spaces out attempts while the model is unavailable.
	retryDelay time.Duration
}

func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
}

// NewTransactionConsumer builds a consumer. locker may be nil, in which case
// redelivered messages are evaluated again.
func NewTransactionConsumer(reader MessageReader, evaluator TransactionEvaluator, locker cache.Locker) *TransactionConsumer {
	return &TransactionConsumer{
		reader:     reader,
		evaluator:  evaluator,
		locker:     locker,
		lockTTL:    DefaultLockTTL,
		retryDelay: DefaultRetryDelay,
	}
}

// Run consumes until ctx is cancelled, then closes the reader.
func (c *TransactionConsumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	telemetry.Logger.Info("Started consuming raw transactions")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				telemetry.Logger.Info("Transaction consumer stopped")
				return nil
			}
			telemetry.Logger.Error("Error reading message from Kafka", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if !c.process(ctx, msg) {
			telemetry.Logger.Info("Transaction consumer stopped")
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			telemetry.Logger.Error("Error committing offset", zap.Error(err))
		}
	}
}

// process evaluates msg, retrying while the model is unavailable so the
// offset is only committed once the transaction was scored or rejected. It
// returns false when ctx is cancelled before that happens.
func (c *TransactionConsumer) process(ctx context.Context, msg kafka.Message) bool {
	for {
		err := c.handle(ctx, msg)
		if err == nil {
			return true
		}
		if !errors.Is(err, classifier.ErrModelUnavailable) {
			telemetry.Logger.Error("Error evaluating streamed transaction",
				zap.String("key", lockKey(msg)),
				zap.Error(err),
			)
			return true
		}

		telemetry.Logger.Warn("Model unavailable, retrying streamed transaction",
			zap.String("key", lockKey(msg)),
			zap.Duration("retry_in", c.retryDelay),
		)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.retryDelay):
		}
	}
}

func (c *TransactionConsumer) handle(ctx context.Context, msg kafka.Message) error {
	key := lockKey(msg)
	if c.locker != nil {
		// The lock is left to expire so a redelivery within the TTL is skipped.
		locked, err := c.locker.Acquire(ctx, key, c.lockTTL)
		if err != nil {
			telemetry.Logger.Warn("Dedupe lock unavailable, evaluating anyway", zap.Error(err))
		} else if !locked {
			telemetry.Logger.Info("Skipping already evaluated message", zap.String("key", key))
			return nil
		}
	}

	var raw models.RawTransaction
	if err := json.Unmarshal(msg.Value, &raw); err != nil {
		return fmt.Errorf("decode transaction: %w", err)
	}

	result, err := c.evaluator.Evaluate(ctx, &raw, msg.Value)
	if errors.Is(err, classifier.ErrModelUnavailable) && c.locker != nil {
		// Nothing was stored; free the key for the retry.
		if rerr := c.locker.Release(ctx, key); rerr != nil {
			telemetry.Logger.Warn("Failed to release dedupe lock", zap.String("key", key), zap.Error(rerr))
		}
	}
	var malformed *features.MalformedInputError
	if errors.As(err, &malformed) {
		telemetry.Logger.Warn("Rejected malformed streamed transaction", zap.String("detail", malformed.Error()))
		return nil
	}
	if err != nil {
		return err
	}

	telemetry.Logger.Info("Streamed transaction evaluated",
		zap.String("key", key),
		zap.Float64("probability", result.Prediction.FraudProbability),
		zap.String("action", string(result.Recommendation.Action)),
		zap.String("save_status", result.SaveStatus),
	)
	return nil
}

func lockKey(msg kafka.Message) string {
	if len(msg.Key) > 0 {
		return fmt.Sprintf("transaction_lock:%s", msg.Key)
	}
	return fmt.Sprintf("transaction_lock:%s:%d:%d", msg.Topic, msg.Partition, msg.Offset)
}
