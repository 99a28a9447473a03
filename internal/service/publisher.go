package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/akylbek/payment-system/fraud-detector/internal/models"
)

// AlertPublisher announces newly created alerts to downstream consumers.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, alert *models.AlertRecord) error
}

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type alertEvent struct {
	AlertID           string               `json:"alert_id"`
	TransactionID     string               `json:"transaction_id"`
	Severity          models.AlertSeverity `json:"severity"`
	FraudProbability  float64              `json:"fraud_probability"`
	RiskLevel         models.RiskLevel     `json:"risk_level"`
	TransactionAmount string               `json:"transaction_amount"`
	RecommendedAction models.Action        `json:"recommended_action"`
	AlertReason       string               `json:"alert_reason"`
	Timestamp         time.Time            `json:"timestamp"`
}

// KafkaAlertPublisher writes one message per alert, keyed by transaction id.
type KafkaAlertPublisher struct {
	writer MessageWriter
}

func NewKafkaAlertPublisher(writer MessageWriter) *KafkaAlertPublisher {
	return &KafkaAlertPublisher{writer: writer}
}

func (p *KafkaAlertPublisher) PublishAlert(ctx context.Context, alert *models.AlertRecord) error {
	eventJSON, err := json.Marshal(alertEvent{
		AlertID:           alert.ID,
		TransactionID:     alert.TransactionID,
		Severity:          alert.Severity,
		FraudProbability:  alert.FraudProbability,
		RiskLevel:         alert.RiskLevel,
		TransactionAmount: alert.TransactionAmount.StringFixed(2),
		RecommendedAction: alert.RecommendedAction,
		AlertReason:       alert.AlertReason,
		Timestamp:         alert.CreatedAt,
	})
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(alert.TransactionID),
		Value: eventJSON,
	})
}
