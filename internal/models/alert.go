package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

type AlertStatus string

const (
	AlertPending       AlertStatus = "pending"
	AlertInvestigating AlertStatus = "investigating"
	AlertResolved      AlertStatus = "resolved"
	AlertFalsePositive AlertStatus = "false_positive"
)

// AlertStatuses lists every status an alert can hold.
var AlertStatuses = []AlertStatus{AlertPending, AlertInvestigating, AlertResolved, AlertFalsePositive}

// Valid reports whether s is a known alert status.
func (s AlertStatus) Valid() bool {
	for _, known := range AlertStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// CustomerInfo is a snapshot of the customer at alert time.
type CustomerInfo struct {
	Age        int    `json:"age"`
	Occupation string `json:"occupation"`
}

// AlertRecord marks a transaction for human review. TransactionID is a weak
// reference; the alert does not own the transaction.
type AlertRecord struct {
	ID                string          `json:"id" db:"id"`
	TransactionID     string          `json:"transaction_id" db:"transaction_id"`
	Severity          AlertSeverity   `json:"severity" db:"severity"`
	FraudProbability  float64         `json:"fraud_probability" db:"fraud_probability"`
	RiskLevel         RiskLevel       `json:"risk_level" db:"risk_level"`
	TransactionAmount decimal.Decimal `json:"transaction_amount" db:"transaction_amount"`
	Customer          CustomerInfo    `json:"customer_info" db:"-"`
	AlertReason       string          `json:"alert_reason" db:"alert_reason"`
	RecommendedAction Action          `json:"recommended_action" db:"recommended_action"`
	Status            AlertStatus     `json:"status" db:"status"`

	Reviewed        bool       `json:"reviewed" db:"reviewed"`
	ReviewedBy      *string    `json:"reviewed_by" db:"reviewed_by"`
	ReviewedAt      *time.Time `json:"reviewed_at" db:"reviewed_at"`
	ResolutionNotes *string    `json:"resolution_notes" db:"resolution_notes"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AlertStatusUpdate is a reviewer decision on an alert.
type AlertStatusUpdate struct {
	Status     AlertStatus `json:"status" binding:"required"`
	ReviewedBy string      `json:"reviewed_by"`
	Notes      *string     `json:"notes"`
}

// AlertFilter narrows alert listings. Zero values are ignored.
type AlertFilter struct {
	Status   AlertStatus
	Severity AlertSeverity
	Since    time.Time
	Until    time.Time
	Limit    int
}
