package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/fraud-detector/internal/classifier"
	"github.com/akylbek/payment-system/fraud-detector/internal/features"
	"github.com/akylbek/payment-system/fraud-detector/internal/models"
	"github.com/akylbek/payment-system/fraud-detector/internal/telemetry"
)

const MaxBatchSize = 100

// EvaluateBatch runs every item through ev in order. A malformed or failing
// item is reported in its slot and the rest still run. The whole batch
// fails only when the model is unavailable.
func EvaluateBatch(ctx context.Context, ev TransactionEvaluator, items []json.RawMessage) (*models.BatchResult, error) {
	if len(items) == 0 || len(items) > MaxBatchSize {
		return nil, fmt.Errorf("%w: a batch holds between 1 and %d transactions", ErrInvalidArgument, MaxBatchSize)
	}
	ctx, span := telemetry.StartSpan(ctx, "evaluate_batch", attribute.Int("batch.size", len(items)))
	defer span.End()

	res := &models.BatchResult{
		Results: make([]models.BatchItem, 0, len(items)),
		Summary: models.BatchSummary{TotalTransactions: len(items)},
	}
	for i, payload := range items {
		item := models.BatchItem{Index: i + 1, Status: models.BatchItemFailed}

		var raw models.RawTransaction
		if err := json.Unmarshal(payload, &raw); err != nil {
			item.Error = "invalid transaction JSON"
			res.Results = append(res.Results, item)
			continue
		}

		result, err := ev.Evaluate(ctx, &raw, payload)
		var malformed *features.MalformedInputError
		switch {
		case errors.Is(err, classifier.ErrModelUnavailable):
			return nil, err
		case errors.As(err, &malformed):
			item.Error = "invalid transaction"
			item.Fields = malformed.Fields
		case err != nil:
			telemetry.Logger.Error("Batch item failed", zap.Int("index", item.Index), zap.Error(err))
			item.Error = err.Error()
		default:
			item.Status = models.BatchItemOK
			item.Result = result
			res.Summary.Processed++
			if result.Prediction.IsFraud {
				res.Summary.FraudDetected++
			}
		}
		res.Results = append(res.Results, item)
	}

	s := &res.Summary
	s.Failed = s.TotalTransactions - s.Processed
	s.Legitimate = s.Processed - s.FraudDetected
	if s.Processed > 0 {
		s.FraudPercentage = round2(float64(s.FraudDetected) / float64(s.Processed) * 100)
	}
	res.Timestamp = time.Now().UTC()
	return res, nil
}
