package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/fraud-detector/internal/models"
)

type capturingWriter struct {
	msgs []kafka.Message
}

func (w *capturingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestKafkaAlertPublisher(t *testing.T) {
	w := &capturingWriter{}
	alert := &models.AlertRecord{
		ID:                "al-1",
		TransactionID:     "tx-1",
		Severity:          models.SeverityCritical,
		FraudProbability:  94,
		RiskLevel:         models.RiskHigh,
		TransactionAmount: decimal.RequireFromString("5000.5"),
		RecommendedAction: models.ActionBlock,
		AlertReason:       "High fraud probability: 94.00%",
		CreatedAt:         fixedNow,
	}

	require.NoError(t, NewKafkaAlertPublisher(w).PublishAlert(context.Background(), alert))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "tx-1", string(w.msgs[0].Key))

	var event map[string]any
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &event))
	assert.Equal(t, "al-1", event["alert_id"])
	assert.Equal(t, "critical", event["severity"])
	assert.Equal(t, "5000.50", event["transaction_amount"])
	assert.Equal(t, "BLOCK", event["recommended_action"])
	assert.Equal(t, 94.0, event["fraud_probability"])
}
