package report

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/fraud-detector/internal/models"
	"github.com/akylbek/payment-system/fraud-detector/internal/repository"
	"github.com/akylbek/payment-system/fraud-detector/internal/service"
)

var now = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func seededEngine(t *testing.T) *service.StatisticsEngine {
	t.Helper()
	store := repository.NewMemoryStore()
	ctx := context.Background()

	rows := []models.TransactionRecord{
		{ID: "1", Amount: decimal.NewFromInt(5000), Type: models.TypeTransfer, Location: "Kigali", IsFraud: true, RiskLevel: models.RiskHigh, ActionRecommended: models.ActionBlock, CreatedAt: now},
		{ID: "2", Amount: decimal.NewFromInt(150), Type: models.TypeWithdrawal, Location: "Butare", RiskLevel: models.RiskLow, ActionRecommended: models.ActionAllow, CreatedAt: now},
		{ID: "3", Amount: decimal.NewFromInt(900), Type: models.TypeTransfer, Location: "Atlantis", IsFraud: true, RiskLevel: models.RiskHigh, ActionRecommended: models.ActionBlock, CreatedAt: now.AddDate(0, 0, -2)},
	}
	for i := range rows {
		require.NoError(t, store.InsertTransaction(ctx, &rows[i]))
	}
	require.NoError(t, store.InsertAlert(ctx, &models.AlertRecord{
		ID: "a1", TransactionID: "1", Severity: models.SeverityCritical, Status: models.AlertPending, CreatedAt: now,
	}))

	return service.NewStatisticsEngine(store, service.WithStatsClock(func() time.Time { return now }))
}

func TestCollectAndWriteTables(t *testing.T) {
	snap, err := Collect(context.Background(), seededEngine(t), 7)
	require.NoError(t, err)
	require.Len(t, snap.Trends.Points, 7)

	var buf bytes.Buffer
	WriteTables(&buf, snap)
	out := buf.String()

	assert.Contains(t, out, "Total Transactions Today")
	assert.Contains(t, out, "Risk distribution (3 transactions)")
	assert.Contains(t, out, "Transfer")
	assert.Contains(t, out, "Fraud hotspots (1 of 2 mapped)")
	assert.Contains(t, out, "-1.9536")
	assert.Contains(t, out, "Alerts (1 total)")
	assert.Contains(t, out, "false_positive")
}

func TestCollect_RejectsBadWindow(t *testing.T) {
	_, err := Collect(context.Background(), seededEngine(t), 0)
	assert.ErrorIs(t, err, service.ErrInvalidArgument)
}

func TestRenderTrends(t *testing.T) {
	snap, err := Collect(context.Background(), seededEngine(t), 7)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderTrends(&buf, snap.Trends))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))
}

func TestRenderTrends_Empty(t *testing.T) {
	trends := &models.Trends{Points: []models.TrendPoint{{Date: "2024-03-15", DateFormatted: "Mar 15"}}, Period: "Last 1 days"}

	var buf bytes.Buffer
	assert.ErrorIs(t, RenderTrends(&buf, trends), ErrNoData)
	assert.Zero(t, buf.Len())
}
