package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/fraud-detector/internal/models"
	"github.com/akylbek/payment-system/fraud-detector/internal/repository"
)

func newReviewFixture(t *testing.T) (*ReviewService, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.InsertTransaction(ctx, &models.TransactionRecord{
		ID:                "tx-1",
		Amount:            decimal.NewFromInt(5000),
		IsFraud:           true,
		FraudProbability:  94,
		RiskLevel:         models.RiskHigh,
		ActionRecommended: models.ActionBlock,
		CreatedAt:         fixedNow,
	}))
	require.NoError(t, store.InsertAlert(ctx, &models.AlertRecord{
		ID:            "al-1",
		TransactionID: "tx-1",
		Severity:      models.SeverityCritical,
		Status:        models.AlertPending,
		CreatedAt:     fixedNow,
	}))

	svc := NewReviewService(store, store)
	svc.now = func() time.Time { return fixedNow }
	return svc, store
}

func TestReview_ListAlertsDefaultsToPending(t *testing.T) {
	svc, _ := newReviewFixture(t)

	alerts, err := svc.ListAlerts(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "al-1", alerts[0].ID)

	resolved, err := svc.ListAlerts(context.Background(), models.AlertResolved, 10)
	require.NoError(t, err)
	assert.Empty(t, resolved)

	_, err = svc.ListAlerts(context.Background(), "archived", 10)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestReview_UpdateAlert(t *testing.T) {
	svc, store := newReviewFixture(t)
	notes := "confirmed with customer"

	alert, err := svc.UpdateAlert(context.Background(), "al-1", models.AlertStatusUpdate{
		Status:     models.AlertResolved,
		ReviewedBy: "analyst@bank",
		Notes:      &notes,
	})
	require.NoError(t, err)
	assert.Equal(t, models.AlertResolved, alert.Status)
	assert.True(t, alert.Reviewed)
	require.NotNil(t, alert.ReviewedAt)
	assert.Equal(t, fixedNow, *alert.ReviewedAt)

	// The transaction the alert points at is left alone.
	tx, err := store.GetTransaction(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.False(t, tx.Reviewed)
	assert.Equal(t, models.ActionBlock, tx.ActionRecommended)
}

func TestReview_UpdateAlertErrors(t *testing.T) {
	svc, _ := newReviewFixture(t)

	_, err := svc.UpdateAlert(context.Background(), "al-1", models.AlertStatusUpdate{Status: "closed"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.UpdateAlert(context.Background(), "missing", models.AlertStatusUpdate{Status: models.AlertResolved})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestReview_ReviewTransactionKeepsOutcome(t *testing.T) {
	svc, _ := newReviewFixture(t)
	notes := "false alarm"

	rec, err := svc.ReviewTransaction(context.Background(), "tx-1", models.ReviewUpdate{Reviewed: true, Notes: &notes})
	require.NoError(t, err)
	assert.True(t, rec.Reviewed)
	require.NotNil(t, rec.ReviewNotes)
	assert.Equal(t, notes, *rec.ReviewNotes)
	assert.True(t, rec.IsFraud)
	assert.Equal(t, 94.0, rec.FraudProbability)

	_, err = svc.ReviewTransaction(context.Background(), "missing", models.ReviewUpdate{Reviewed: true})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestReview_ListTransactionsClampsLimit(t *testing.T) {
	svc, _ := newReviewFixture(t)

	out, err := svc.ListTransactions(context.Background(), models.TransactionFilter{Limit: 5000, Skip: -3})
	require.NoError(t, err)
	assert.Len(t, out, 1)

	got, err := svc.GetTransaction(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.Equal(t, "tx-1", got.ID)
}

type recordingTransactions struct {
	*repository.MemoryStore
	filters []models.TransactionFilter
	stall   bool
}

func (r *recordingTransactions) ListTransactions(ctx context.Context, f models.TransactionFilter) ([]models.TransactionRecord, error) {
	r.filters = append(r.filters, f)
	if r.stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return r.MemoryStore.ListTransactions(ctx, f)
}

func TestReview_ListTransactionsLimits(t *testing.T) {
	store := &recordingTransactions{MemoryStore: repository.NewMemoryStore()}
	svc := NewReviewService(store, store)

	for _, limit := range []int{0, -1, 20, MaxRecentLimit, MaxRecentLimit + 1, 5000} {
		_, err := svc.ListTransactions(context.Background(), models.TransactionFilter{Limit: limit})
		require.NoError(t, err)
	}

	got := make([]int, 0, len(store.filters))
	for _, f := range store.filters {
		got = append(got, f.Limit)
	}
	assert.Equal(t, []int{DefaultAlertListLimit, DefaultAlertListLimit, 20, MaxRecentLimit, MaxRecentLimit, MaxRecentLimit}, got)
}

func TestReview_StorageTimeout(t *testing.T) {
	store := &recordingTransactions{MemoryStore: repository.NewMemoryStore(), stall: true}
	svc := NewReviewService(store, store, WithReviewStorageTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := svc.ListTransactions(context.Background(), models.TransactionFilter{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
