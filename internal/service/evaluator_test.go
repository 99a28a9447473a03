package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/fraud-detector/internal/classifier"
	"github.com/akylbek/payment-system/fraud-detector/internal/features"
	"github.com/akylbek/payment-system/fraud-detector/internal/models"
	"github.com/akylbek/payment-system/fraud-detector/internal/repository"
)

var fixedNow = time.Date(2024, 3, 15, 14, 45, 0, 0, time.UTC)

func artifactPreprocessor(t *testing.T) *features.Preprocessor {
	t.Helper()
	tables, err := features.LoadTables(filepath.Join("..", "..", "artifacts", "feature_tables.json"))
	require.NoError(t, err)
	return features.NewPreprocessor(tables)
}

func artifactClassifier(t *testing.T) *classifier.Classifier {
	t.Helper()
	tree, err := classifier.LoadTree(filepath.Join("..", "..", "artifacts", "fraud_tree.json"))
	require.NoError(t, err)
	return classifier.New(tree)
}

func newTestEvaluator(t *testing.T, store *repository.MemoryStore, opts ...EvaluatorOption) *Evaluator {
	t.Helper()
	opts = append([]EvaluatorOption{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewEvaluator(artifactPreprocessor(t), artifactClassifier(t), store, store, opts...)
}

func dec(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

// lowRiskRaw is a daytime domestic ATM withdrawal on a healthy account.
func lowRiskRaw() *models.RawTransaction {
	return &models.RawTransaction{
		Amount:                  dec(150),
		TransactionDate:         "15/03/2024 14:30",
		PreviousTransactionDate: "14/03/2024 10:00",
		Type:                    "Withdrawal",
		Location:                "Kigali",
		Channel:                 "ATM",
		CustomerAge:             35,
		CustomerOccupation:      "Teacher",
		AccountBalance:          decimal.NewFromInt(5000),
		AccountStatus:           "Active",
		LoginAttempts:           1,
		SenderCountry:           "Rwanda",
		ReceiverCountry:         "Rwanda",
		SenderCurrency:          "RWF",
		ReceiverCurrency:        "RWF",
		PinStatus:               "Valid",
		PinRetryLimit:           3,
	}
}

// highRiskRaw is a late-night cross-border online transfer from a flagged
// account with a locked PIN.
func highRiskRaw() *models.RawTransaction {
	return &models.RawTransaction{
		Amount:                  dec(5000),
		TransactionDate:         "15/03/2024 23:30",
		PreviousTransactionDate: "15/03/2024 23:10",
		Type:                    "Transfer",
		Location:                "Gisenyi",
		Channel:                 "Online",
		CustomerAge:             41,
		CustomerOccupation:      "Engineer",
		AccountBalance:          decimal.NewFromInt(5200),
		AccountStatus:           "Flagged",
		LoginAttempts:           5,
		SenderCountry:           "USA",
		ReceiverCountry:         "Germany",
		SenderCurrency:          "USD",
		ReceiverCurrency:        "EUR",
		PinStatus:               "Locked",
		PinRetryLimit:           3,
		PinRetryCount:           3,
	}
}

func TestEvaluate_LowRiskScenario(t *testing.T) {
	store := repository.NewMemoryStore()
	e := newTestEvaluator(t, store)

	res, err := e.Evaluate(context.Background(), lowRiskRaw(), nil)
	require.NoError(t, err)

	assert.Equal(t, 4.0, res.Prediction.FraudProbability)
	assert.False(t, res.Prediction.IsFraud)
	assert.Equal(t, LabelLegitimate, res.Prediction.FraudLabel)
	assert.Equal(t, 96.0, res.Prediction.Confidence)
	assert.Equal(t, models.RiskLow, res.Prediction.RiskLevel)
	assert.Equal(t, models.ActionAllow, res.Recommendation.Action)
	assert.Equal(t, models.SaveStatusSuccess, res.SaveStatus)
	require.NotNil(t, res.TransactionID)
	assert.Nil(t, res.AlertID)
	assert.Empty(t, res.AlertSaveStatus)
	assert.Equal(t, 150.0, res.Transaction.Amount)
	assert.Equal(t, fixedNow, res.Timestamp)

	rec, err := store.GetTransaction(context.Background(), *res.TransactionID)
	require.NoError(t, err)
	assert.False(t, rec.CrossBorder)
	assert.False(t, rec.CurrencyMismatch)
	assert.Equal(t, models.ActionAllow, rec.ActionRecommended)
	assert.False(t, rec.Reviewed)
	assert.Nil(t, rec.ReviewNotes)
	assert.Contains(t, string(rec.Raw), `"TransactionAmount"`)

	alerts, err := store.ListAlerts(context.Background(), models.AlertFilter{})
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestEvaluate_HighRiskScenario(t *testing.T) {
	store := repository.NewMemoryStore()
	e := newTestEvaluator(t, store)

	res, err := e.Evaluate(context.Background(), highRiskRaw(), nil)
	require.NoError(t, err)

	assert.Equal(t, 94.0, res.Prediction.FraudProbability)
	assert.True(t, res.Prediction.IsFraud)
	assert.Equal(t, LabelFraud, res.Prediction.FraudLabel)
	assert.Equal(t, models.RiskHigh, res.Prediction.RiskLevel)
	assert.Equal(t, models.ActionBlock, res.Recommendation.Action)
	require.NotNil(t, res.AlertID)
	assert.Equal(t, models.SaveStatusSuccess, res.AlertSaveStatus)

	alert, err := store.GetAlert(context.Background(), *res.AlertID)
	require.NoError(t, err)
	assert.Equal(t, *res.TransactionID, alert.TransactionID)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
	assert.Equal(t, models.AlertPending, alert.Status)
	assert.Equal(t, "High fraud probability: 94.00%", alert.AlertReason)
	assert.Equal(t, models.CustomerInfo{Age: 41, Occupation: "Engineer"}, alert.Customer)
	assert.True(t, decimal.NewFromInt(5000).Equal(alert.TransactionAmount))

	rec, err := store.GetTransaction(context.Background(), *res.TransactionID)
	require.NoError(t, err)
	assert.True(t, rec.CrossBorder)
	assert.True(t, rec.CurrencyMismatch)
}

func TestEvaluate_DaytimeFlaggedIsHighSeverity(t *testing.T) {
	store := repository.NewMemoryStore()
	e := newTestEvaluator(t, store)

	raw := highRiskRaw()
	raw.TransactionDate = "15/03/2024 11:00"
	res, err := e.Evaluate(context.Background(), raw, nil)
	require.NoError(t, err)
	assert.Equal(t, 78.0, res.Prediction.FraudProbability)
	require.NotNil(t, res.AlertID)

	alert, err := store.GetAlert(context.Background(), *res.AlertID)
	require.NoError(t, err)
	assert.Equal(t, models.SeverityHigh, alert.Severity)
}

func TestEvaluate_HighRiskButReviewOnly(t *testing.T) {
	store := repository.NewMemoryStore()
	e := newTestEvaluator(t, store)

	// Flagged account, valid PIN, large amount: 66%.
	raw := highRiskRaw()
	raw.PinStatus = "Valid"
	raw.Amount = dec(2500)
	res, err := e.Evaluate(context.Background(), raw, nil)
	require.NoError(t, err)
	assert.Equal(t, 66.0, res.Prediction.FraudProbability)
	assert.Equal(t, models.RiskHigh, res.Prediction.RiskLevel)
	assert.Equal(t, models.ActionReview, res.Recommendation.Action)
	assert.Nil(t, res.AlertID)
}

type stubScorer struct{ p float64 }

func (s stubScorer) Score(context.Context, []float64) (float64, error) { return s.p, nil }

func TestEvaluate_AlertThresholds(t *testing.T) {
	tests := []struct {
		raw      float64
		alert    bool
		severity models.AlertSeverity
	}{
		{0.5, false, ""},
		{0.70, false, ""},
		{0.7001, true, models.SeverityHigh},
		{0.90, true, models.SeverityHigh},
		{0.9001, true, models.SeverityCritical},
		{1, true, models.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("p=%v", tt.raw), func(t *testing.T) {
			store := repository.NewMemoryStore()
			e := NewEvaluator(artifactPreprocessor(t), classifier.New(stubScorer{p: tt.raw}), store, store)

			res, err := e.Evaluate(context.Background(), lowRiskRaw(), nil)
			require.NoError(t, err)
			if !tt.alert {
				assert.Nil(t, res.AlertID)
				return
			}
			require.NotNil(t, res.AlertID)
			alert, err := store.GetAlert(context.Background(), *res.AlertID)
			require.NoError(t, err)
			assert.Equal(t, tt.severity, alert.Severity)
		})
	}
}

// failingStore fails or stalls writes per collection.
type failingStore struct {
	*repository.MemoryStore
	txErr    error
	alertErr error
	stall    time.Duration
}

func (s *failingStore) InsertTransaction(ctx context.Context, rec *models.TransactionRecord) error {
	if s.stall > 0 {
		time.Sleep(s.stall)
	}
	if s.txErr != nil {
		return s.txErr
	}
	return s.MemoryStore.InsertTransaction(ctx, rec)
}

func (s *failingStore) InsertAlert(ctx context.Context, a *models.AlertRecord) error {
	if s.alertErr != nil {
		return s.alertErr
	}
	return s.MemoryStore.InsertAlert(ctx, a)
}

func TestEvaluate_StoreUnreachable(t *testing.T) {
	store := &failingStore{MemoryStore: repository.NewMemoryStore(), txErr: errors.New("connection refused")}
	e := NewEvaluator(artifactPreprocessor(t), artifactClassifier(t), store, store)

	res, err := e.Evaluate(context.Background(), highRiskRaw(), nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.SaveStatus, "failed:"), res.SaveStatus)
	assert.Contains(t, res.SaveStatus, "connection refused")
	assert.Nil(t, res.TransactionID)
	assert.Nil(t, res.AlertID)
	assert.Equal(t, models.SaveStatusSkipped, res.AlertSaveStatus)

	// The prediction itself is intact.
	assert.Equal(t, 94.0, res.Prediction.FraudProbability)
	assert.Equal(t, models.ActionBlock, res.Recommendation.Action)
	assert.NotEmpty(t, res.Recommendation.Message)
}

func TestEvaluate_StoreTimeout(t *testing.T) {
	store := &failingStore{MemoryStore: repository.NewMemoryStore(), stall: 200 * time.Millisecond}
	e := NewEvaluator(artifactPreprocessor(t), artifactClassifier(t), store, store, WithStorageTimeout(20*time.Millisecond))

	start := time.Now()
	res, err := e.Evaluate(context.Background(), lowRiskRaw(), nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.True(t, strings.HasPrefix(res.SaveStatus, "failed:"), res.SaveStatus)
	assert.Equal(t, models.ActionAllow, res.Recommendation.Action)
}

func TestEvaluate_AlertWriteFailureKeepsTransaction(t *testing.T) {
	store := &failingStore{MemoryStore: repository.NewMemoryStore(), alertErr: errors.New("alerts unavailable")}
	e := NewEvaluator(artifactPreprocessor(t), artifactClassifier(t), store, store)

	res, err := e.Evaluate(context.Background(), highRiskRaw(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.SaveStatusSuccess, res.SaveStatus)
	require.NotNil(t, res.TransactionID)
	assert.Nil(t, res.AlertID)
	assert.True(t, strings.HasPrefix(res.AlertSaveStatus, "failed:"))

	_, err = store.GetTransaction(context.Background(), *res.TransactionID)
	assert.NoError(t, err)
}

func TestEvaluate_MalformedInput(t *testing.T) {
	e := newTestEvaluator(t, repository.NewMemoryStore())

	raw := lowRiskRaw()
	raw.TransactionDate = "2024-03-15T14:30:00Z"
	_, err := e.Evaluate(context.Background(), raw, nil)

	var malformed *features.MalformedInputError
	require.ErrorAs(t, err, &malformed)
	assert.Contains(t, malformed.Fields, "TransactionDate")
}

func TestEvaluate_ModelUnavailable(t *testing.T) {
	store := repository.NewMemoryStore()
	e := NewEvaluator(artifactPreprocessor(t), classifier.New(nil), store, store)

	res, err := e.Evaluate(context.Background(), lowRiskRaw(), nil)
	assert.ErrorIs(t, err, classifier.ErrModelUnavailable)
	assert.Nil(t, res)

	n, err := store.CountTransactions(context.Background(), models.TransactionFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEvaluate_UnknownCategoryDoesNotBlock(t *testing.T) {
	e := newTestEvaluator(t, repository.NewMemoryStore())

	raw := lowRiskRaw()
	raw.Channel = "Carrier Pigeon"
	res, err := e.Evaluate(context.Background(), raw, nil)
	require.NoError(t, err)
	require.Len(t, res.UnknownCategories, 1)
	assert.Contains(t, res.UnknownCategories[0], "Carrier Pigeon")
	assert.Equal(t, models.SaveStatusSuccess, res.SaveStatus)
}

type recordingPublisher struct {
	mu     sync.Mutex
	alerts []*models.AlertRecord
	err    error
}

func (p *recordingPublisher) PublishAlert(_ context.Context, a *models.AlertRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, a)
	return p.err
}

func TestEvaluate_PublishesAlerts(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	e := newTestEvaluator(t, repository.NewMemoryStore(), WithAlertPublisher(pub))

	res, err := e.Evaluate(context.Background(), highRiskRaw(), nil)
	require.NoError(t, err)
	// Publish failures do not affect the result.
	assert.Equal(t, models.SaveStatusSuccess, res.AlertSaveStatus)
	require.Len(t, pub.alerts, 1)
	assert.Equal(t, *res.AlertID, pub.alerts[0].ID)

	_, err = e.Evaluate(context.Background(), lowRiskRaw(), nil)
	require.NoError(t, err)
	assert.Len(t, pub.alerts, 1)
}
