package interfaces

import (
	"context"
	"time"

	"github.com/akylbek/payment-system/fraud-detector/internal/models"
)

type TransactionRepository interface {
	InsertTransaction(ctx context.Context, rec *models.TransactionRecord) error
	GetTransaction(ctx context.Context, id string) (*models.TransactionRecord, error)
	ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.TransactionRecord, error)
	UpdateTransactionReview(ctx context.Context, id string, update models.ReviewUpdate) (*models.TransactionRecord, error)
}

type AlertRepository interface {
	InsertAlert(ctx context.Context, alert *models.AlertRecord) error
	GetAlert(ctx context.Context, id string) (*models.AlertRecord, error)
	// ListAlerts returns alerts newest first.
	ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.AlertRecord, error)
	UpdateAlertStatus(ctx context.Context, id string, update models.AlertStatusUpdate, at time.Time) (*models.AlertRecord, error)
}

// StatsRepository holds the read primitives the statistics engine composes.
// Implementations never mutate state.
type StatsRepository interface {
	CountTransactions(ctx context.Context, filter models.TransactionFilter) (int, error)
	// DailyCounts groups transactions created in [since, until) by calendar
	// day in loc. Days without transactions are omitted.
	DailyCounts(ctx context.Context, since, until time.Time, loc *time.Location) ([]models.DailyCounts, error)
	// HourlyCounts groups transactions matching filter by hour of day in
	// loc, ascending. Hours without transactions are omitted.
	HourlyCounts(ctx context.Context, filter models.TransactionFilter, loc *time.Location) ([]models.HourlyCounts, error)
	GroupTransactions(ctx context.Context, field models.GroupField, filter models.TransactionFilter) ([]models.GroupTotals, error)
	RecentTransactions(ctx context.Context, limit int) ([]models.RecentTransaction, error)
	ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.TransactionRecord, error)
	CountAlertsByStatus(ctx context.Context) (map[models.AlertStatus]int, error)
	ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.AlertRecord, error)
}

// Store is the document store backing both collections.
type Store interface {
	TransactionRepository
	AlertRepository
	StatsRepository
	Ping(ctx context.Context) error
}
