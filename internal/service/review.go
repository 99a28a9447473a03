package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/fraud-detector/internal/interfaces"
	"github.com/akylbek/payment-system/fraud-detector/internal/models"
	"github.com/akylbek/payment-system/fraud-detector/internal/telemetry"
)

const DefaultAlertListLimit = 50

// ReviewService applies reviewer decisions. The evaluation pipeline never
// calls it.
type ReviewService struct {
	transactions interfaces.TransactionRepository
	alerts       interfaces.AlertRepository
	now          func() time.Time
	timeout      time.Duration
}

type ReviewOption func(*ReviewService)

// WithReviewStorageTimeout bounds each store call made by the service.
func WithReviewStorageTimeout(d time.Duration) ReviewOption {
	return func(s *ReviewService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewReviewService(transactions interfaces.TransactionRepository, alerts interfaces.AlertRepository, opts ...ReviewOption) *ReviewService {
	s := &ReviewService{transactions: transactions, alerts: alerts, now: time.Now, timeout: DefaultStorageTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListAlerts returns alerts in status, newest first. An empty status means
// pending.
func (s *ReviewService) ListAlerts(ctx context.Context, status models.AlertStatus, limit int) ([]models.AlertRecord, error) {
	if status == "" {
		status = models.AlertPending
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown alert status %q", ErrInvalidArgument, status)
	}
	if limit <= 0 {
		limit = DefaultAlertListLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.alerts.ListAlerts(ctx, models.AlertFilter{Status: status, Limit: limit})
}

func (s *ReviewService) UpdateAlert(ctx context.Context, id string, update models.AlertStatusUpdate) (*models.AlertRecord, error) {
	if !update.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown alert status %q", ErrInvalidArgument, update.Status)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	alert, err := s.alerts.UpdateAlertStatus(ctx, id, update, s.now().UTC())
	if err != nil {
		return nil, err
	}
	telemetry.Logger.Info("Alert status updated",
		zap.String("alert_id", id),
		zap.String("status", string(update.Status)),
		zap.String("reviewed_by", update.ReviewedBy),
	)
	return alert, nil
}

func (s *ReviewService) GetTransaction(ctx context.Context, id string) (*models.TransactionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.transactions.GetTransaction(ctx, id)
}

// ListTransactions pages through transactions. The limit defaults to
// DefaultAlertListLimit and is clamped to MaxRecentLimit.
func (s *ReviewService) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.TransactionRecord, error) {
	switch {
	case filter.Limit <= 0:
		filter.Limit = DefaultAlertListLimit
	case filter.Limit > MaxRecentLimit:
		filter.Limit = MaxRecentLimit
	}
	if filter.Skip < 0 {
		filter.Skip = 0
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.transactions.ListTransactions(ctx, filter)
}

// ReviewTransaction records review metadata. Outcome fields are never
// touched.
func (s *ReviewService) ReviewTransaction(ctx context.Context, id string, update models.ReviewUpdate) (*models.TransactionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rec, err := s.transactions.UpdateTransactionReview(ctx, id, update)
	if err != nil {
		return nil, err
	}
	telemetry.Logger.Info("Transaction reviewed",
		zap.String("transaction_id", id),
		zap.Bool("reviewed", update.Reviewed),
	)
	return rec, nil
}
