package models

import "time"

const (
	SaveStatusSuccess = "success"
	SaveStatusSkipped = "skipped"
)

type Prediction struct {
	IsFraud          bool      `json:"is_fraud"`
	FraudLabel       string    `json:"fraud_label"`
	FraudProbability float64   `json:"probability"`
	RiskLevel        RiskLevel `json:"risk_level"`
	Confidence       float64   `json:"confidence"`
}

type Recommendation struct {
	Action  Action `json:"action"`
	Message string `json:"message"`
}

type EchoedTransaction struct {
	Amount float64 `json:"amount"`
	Type   string  `json:"type"`
	Date   string  `json:"date"`
}

// PredictionResult is returned for every scored transaction, whether or not
// it could be persisted.
type PredictionResult struct {
	TransactionID     *string           `json:"transaction_id"`
	AlertID           *string           `json:"alert_id"`
	SaveStatus        string            `json:"database_save_status"`
	AlertSaveStatus   string            `json:"alert_save_status,omitempty"`
	Transaction       EchoedTransaction `json:"transaction"`
	Prediction        Prediction        `json:"prediction"`
	Recommendation    Recommendation    `json:"recommendation"`
	UnknownCategories []string          `json:"unknown_categories,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
}
