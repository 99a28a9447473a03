package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/fraud-detector/internal/classifier"
	"github.com/akylbek/payment-system/fraud-detector/internal/features"
	"github.com/akylbek/payment-system/fraud-detector/internal/interfaces"
	"github.com/akylbek/payment-system/fraud-detector/internal/metrics"
	"github.com/akylbek/payment-system/fraud-detector/internal/models"
	"github.com/akylbek/payment-system/fraud-detector/internal/recommendation"
	"github.com/akylbek/payment-system/fraud-detector/internal/telemetry"
)

const (
	// AlertFrom is the probability an alert must exceed.
	AlertFrom = 70.0
	// CriticalFrom is the probability a critical alert must exceed.
	CriticalFrom = 90.0

	DefaultStorageTimeout = 3 * time.Second

	LabelFraud      = "FRAUD DETECTED"
	LabelLegitimate = "LEGITIMATE"
)

// Evaluator runs one transaction through preprocessing, scoring,
// recommendation and persistence. Only malformed input and an unavailable
// model fail an evaluation; storage problems are reported in the result.
type Evaluator struct {
	preprocessor   *features.Preprocessor
	classifier     *classifier.Classifier
	transactions   interfaces.TransactionRepository
	alerts         interfaces.AlertRepository
	publisher      AlertPublisher
	storageTimeout time.Duration
	now            func() time.Time
	newID          func() string
}

type EvaluatorOption func(*Evaluator)

func WithAlertPublisher(p AlertPublisher) EvaluatorOption {
	return func(e *Evaluator) { e.publisher = p }
}

// WithStorageTimeout bounds each store write. Expiry counts as a save
// failure.
func WithStorageTimeout(d time.Duration) EvaluatorOption {
	return func(e *Evaluator) {
		if d > 0 {
			e.storageTimeout = d
		}
	}
}

func WithClock(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) { e.now = now }
}

func NewEvaluator(
	preprocessor *features.Preprocessor,
	clf *classifier.Classifier,
	transactions interfaces.TransactionRepository,
	alerts interfaces.AlertRepository,
	opts ...EvaluatorOption,
) *Evaluator {
	e := &Evaluator{
		preprocessor:   preprocessor,
		classifier:     clf,
		transactions:   transactions,
		alerts:         alerts,
		storageTimeout: DefaultStorageTimeout,
		now:            time.Now,
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate scores raw and persists the outcome. payload is the request body
// as received and is stored verbatim; when nil, raw is re-encoded.
func (e *Evaluator) Evaluate(ctx context.Context, raw *models.RawTransaction, payload json.RawMessage) (*models.PredictionResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "evaluate")
	defer span.End()

	_, pspan := telemetry.StartSpan(ctx, "preprocess")
	prepared, err := e.preprocessor.Transform(raw)
	telemetry.EndSpan(pspan, err)
	if err != nil {
		return nil, err
	}

	unknown := make([]string, 0, len(prepared.Unknown))
	for _, u := range prepared.Unknown {
		metrics.UnknownCategoriesTotal.WithLabelValues(u.Field).Inc()
		telemetry.Logger.Warn("Unknown category encoded as reserved code",
			zap.String("field", u.Field),
			zap.String("value", u.Value),
		)
		unknown = append(unknown, u.String())
	}

	sctx, sspan := telemetry.StartSpan(ctx, "score")
	score, err := e.classifier.Evaluate(sctx, prepared.Vector)
	telemetry.EndSpan(sspan, err)
	if err != nil {
		telemetry.Logger.Error("Scoring failed", zap.Error(err))
		return nil, err
	}

	rec := recommendation.Recommend(score.Probability)
	metrics.PredictionsTotal.WithLabelValues(string(rec.Action), string(rec.RiskLevel)).Inc()
	span.SetAttributes(
		attribute.Float64("fraud.probability", score.Probability),
		attribute.String("fraud.action", string(rec.Action)),
		attribute.String("fraud.risk_level", string(rec.RiskLevel)),
	)

	now := e.now().UTC()
	result := &models.PredictionResult{
		Transaction: models.EchoedTransaction{
			Amount: raw.Amount.InexactFloat64(),
			Type:   raw.Type,
			Date:   raw.TransactionDate,
		},
		Prediction: models.Prediction{
			IsFraud:          score.IsFraud,
			FraudLabel:       fraudLabel(score.IsFraud),
			FraudProbability: score.Probability,
			RiskLevel:        rec.RiskLevel,
			Confidence:       score.Confidence,
		},
		Recommendation: models.Recommendation{
			Action:  rec.Action,
			Message: rec.Message,
		},
		UnknownCategories: unknown,
		Timestamp:         now,
	}
	if len(unknown) == 0 {
		result.UnknownCategories = nil
	}

	if payload == nil {
		payload, _ = json.Marshal(raw)
	}
	record := buildRecord(e.newID(), raw, prepared.Derived, score, rec, payload, now)
	e.persist(ctx, record, raw, result)

	return result, nil
}

// persist writes the transaction and, above the alert threshold, its alert.
// Failures only change the save statuses on result.
func (e *Evaluator) persist(ctx context.Context, record *models.TransactionRecord, raw *models.RawTransaction, result *models.PredictionResult) {
	ctx, span := telemetry.StartSpan(ctx, "persist")
	defer span.End()

	if err := e.write(ctx, func(ctx context.Context) error {
		return e.transactions.InsertTransaction(ctx, record)
	}); err != nil {
		metrics.PersistenceFailuresTotal.WithLabelValues("transactions").Inc()
		telemetry.Logger.Error("Failed to save transaction",
			zap.String("transaction_id", record.ID),
			zap.Error(err),
		)
		span.RecordError(err)
		result.SaveStatus = failedStatus(err)
		if record.FraudProbability > AlertFrom {
			result.AlertSaveStatus = models.SaveStatusSkipped
		}
		return
	}
	id := record.ID
	result.TransactionID = &id
	result.SaveStatus = models.SaveStatusSuccess

	if record.FraudProbability <= AlertFrom {
		return
	}

	alert := buildAlert(e.newID(), record, raw)
	if err := e.write(ctx, func(ctx context.Context) error {
		return e.alerts.InsertAlert(ctx, alert)
	}); err != nil {
		metrics.PersistenceFailuresTotal.WithLabelValues("alerts").Inc()
		telemetry.Logger.Error("Failed to save alert",
			zap.String("transaction_id", record.ID),
			zap.Error(err),
		)
		result.AlertSaveStatus = failedStatus(err)
		return
	}
	alertID := alert.ID
	result.AlertID = &alertID
	result.AlertSaveStatus = models.SaveStatusSuccess
	metrics.AlertsCreatedTotal.WithLabelValues(string(alert.Severity)).Inc()
	telemetry.Logger.Info("Fraud alert created",
		zap.String("alert_id", alert.ID),
		zap.String("transaction_id", record.ID),
		zap.String("severity", string(alert.Severity)),
		zap.Float64("probability", alert.FraudProbability),
	)

	if e.publisher != nil {
		if err := e.write(ctx, func(ctx context.Context) error {
			return e.publisher.PublishAlert(ctx, alert)
		}); err != nil {
			telemetry.Logger.Warn("Failed to publish alert event",
				zap.String("alert_id", alert.ID),
				zap.Error(err),
			)
		}
	}
}

// write runs fn under the storage timeout. It returns on expiry even when fn
// ignores its context.
func (e *Evaluator) write(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.storageTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("storage timeout after %s: %w", e.storageTimeout, ctx.Err())
	}
}

// AlertSeverity returns the severity of an alert raised at probability p.
// Only meaningful for p above AlertFrom.
func AlertSeverity(p float64) models.AlertSeverity {
	if p > CriticalFrom {
		return models.SeverityCritical
	}
	return models.SeverityHigh
}

func buildRecord(
	id string,
	raw *models.RawTransaction,
	derived features.Derived,
	score classifier.Score,
	rec recommendation.Result,
	payload json.RawMessage,
	now time.Time,
) *models.TransactionRecord {
	return &models.TransactionRecord{
		ID:                      id,
		Amount:                  *raw.Amount,
		TransactionDate:         raw.TransactionDate,
		PreviousTransactionDate: raw.PreviousTransactionDate,
		Type:                    models.TransactionType(raw.Type),
		Channel:                 raw.Channel,
		Location:                raw.Location,
		CustomerAge:             raw.CustomerAge,
		CustomerOccupation:      raw.CustomerOccupation,
		AccountBalance:          raw.AccountBalance,
		AccountStatus:           raw.AccountStatus,
		SenderCountry:           raw.SenderCountry,
		ReceiverCountry:         raw.ReceiverCountry,
		SenderCurrency:          raw.SenderCurrency,
		ReceiverCurrency:        raw.ReceiverCurrency,
		PinStatus:               raw.PinStatus,
		PinRetryLimit:           raw.PinRetryLimit,
		PinRetryCount:           raw.PinRetryCount,
		LoginAttempts:           raw.LoginAttempts,

		CrossBorder:         derived.CrossBorder,
		CurrencyMismatch:    derived.CurrencyMismatch,
		TransactionDuration: derived.TransactionDuration,

		IsFraud:           score.IsFraud,
		FraudProbability:  score.Probability,
		RiskLevel:         rec.RiskLevel,
		Confidence:        score.Confidence,
		ActionRecommended: rec.Action,

		Raw:       payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func buildAlert(id string, record *models.TransactionRecord, raw *models.RawTransaction) *models.AlertRecord {
	return &models.AlertRecord{
		ID:                id,
		TransactionID:     record.ID,
		Severity:          AlertSeverity(record.FraudProbability),
		FraudProbability:  record.FraudProbability,
		RiskLevel:         record.RiskLevel,
		TransactionAmount: record.Amount,
		Customer: models.CustomerInfo{
			Age:        raw.CustomerAge,
			Occupation: raw.CustomerOccupation,
		},
		AlertReason:       fmt.Sprintf("High fraud probability: %.2f%%", record.FraudProbability),
		RecommendedAction: record.ActionRecommended,
		Status:            models.AlertPending,
		CreatedAt:         record.CreatedAt,
	}
}

func fraudLabel(isFraud bool) string {
	if isFraud {
		return LabelFraud
	}
	return LabelLegitimate
}

func failedStatus(err error) string {
	return "failed: " + err.Error()
}
