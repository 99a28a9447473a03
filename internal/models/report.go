package models

import "time"

// BatchItem is the outcome of one transaction in a batch. Index is the
// 1-based position in the request.
type BatchItem struct {
	Index  int               `json:"index"`
	Status string            `json:"status"`
	Result *PredictionResult `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

const (
	BatchItemOK     = "ok"
	BatchItemFailed = "failed"
)

type BatchSummary struct {
	TotalTransactions int     `json:"total_transactions"`
	Processed         int     `json:"processed"`
	Failed            int     `json:"failed"`
	FraudDetected     int     `json:"fraud_detected"`
	Legitimate        int     `json:"legitimate"`
	FraudPercentage   float64 `json:"fraud_percentage"`
}

type BatchResult struct {
	Summary   BatchSummary `json:"summary"`
	Results   []BatchItem  `json:"results"`
	Timestamp time.Time    `json:"timestamp"`
}

// DailyReport lists the fraud flagged and the alerts raised on one calendar
// day.
type DailyReport struct {
	Date              string              `json:"report_date"`
	GeneratedAt       time.Time           `json:"generated_at"`
	TotalTransactions int                 `json:"total_transactions"`
	FraudDetected     int                 `json:"total_fraud_detected"`
	Blocked           int                 `json:"blocked_transactions"`
	FraudTransactions []RecentTransaction `json:"fraud_transactions"`
	Alerts            []AlertRecord       `json:"alerts"`
	TotalAlerts       int                 `json:"total_alerts"`
}

type PatternGroup struct {
	Key    string  `json:"key"`
	Count  int     `json:"count"`
	Amount float64 `json:"total_amount"`
}

type HourlyFraud struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

type CrossBorderFraud struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// FraudPatterns breaks fraud-flagged transactions down by type, hour of day
// and location.
type FraudPatterns struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Period      string           `json:"period"`
	TotalFraud  int              `json:"total_fraud"`
	ByType      []PatternGroup   `json:"fraud_by_transaction_type"`
	ByHour      []HourlyFraud    `json:"fraud_by_hour"`
	ByLocation  []PatternGroup   `json:"fraud_by_location"`
	CrossBorder CrossBorderFraud `json:"cross_border_fraud"`
}

// HourlyCounts is one hour of the day as grouped by the store.
type HourlyCounts struct {
	Hour       int `db:"hour"`
	Count      int `db:"count"`
	FraudCount int `db:"fraud_count"`
}
