package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TimestampLayout is the textual format of TransactionDate and PreviousTransactionDate.
const TimestampLayout = "02/01/2006 15:04"

type TransactionType string

const (
	TypeTransfer   TransactionType = "Transfer"
	TypeWithdrawal TransactionType = "Withdrawal"
	TypePayment    TransactionType = "Payment"
	TypeDeposit    TransactionType = "Deposit"
	TypePurchase   TransactionType = "Purchase"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// RiskLevels lists the bands in ascending severity.
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh}

type Action string

const (
	ActionAllow  Action = "ALLOW"
	ActionReview Action = "REVIEW"
	ActionBlock  Action = "BLOCK"
)

// RawTransaction is the transaction payload as sent by the dashboard.
// JSON keys match the column names the classifier was trained on.
type RawTransaction struct {
	Amount                  *decimal.Decimal `json:"TransactionAmount" validate:"required"`
	TransactionDate         string           `json:"TransactionDate" validate:"required"`
	PreviousTransactionDate string           `json:"PreviousTransactionDate" validate:"required"`
	SessionStartDate        string           `json:"SessionStartDate,omitempty"`
	Type                    string           `json:"TransactionType" validate:"required"`
	Location                string           `json:"Location"`
	Channel                 string           `json:"Channel" validate:"required"`
	CustomerAge             int              `json:"CustomerAge" validate:"gte=0,lte=150"`
	CustomerOccupation      string           `json:"CustomerOccupation"`
	AccountBalance          decimal.Decimal  `json:"AccountBalance"`
	AccountStatus           string           `json:"Account Status" validate:"required"`
	TransactionDuration     *float64         `json:"TransactionDuration,omitempty"`
	LoginAttempts           int              `json:"LoginAttempts" validate:"gte=0"`
	SenderCountry           string           `json:"Sender Country" validate:"required"`
	ReceiverCountry         string           `json:"Receiver Country" validate:"required"`
	SenderCurrency          string           `json:"Sender Currency"`
	ReceiverCurrency        string           `json:"Receiver Currency"`
	PinStatus               string           `json:"Invalid Pin Status"`
	PinRetryLimit           int              `json:"Invalid pin retry limits" validate:"gte=0"`
	PinRetryCount           int              `json:"Invalid pin retry count" validate:"gte=0"`
}

// TransactionRecord is the persisted document for one prediction request.
type TransactionRecord struct {
	ID string `json:"id" db:"id"`

	Amount                  decimal.Decimal `json:"transaction_amount" db:"transaction_amount"`
	TransactionDate         string          `json:"transaction_date" db:"transaction_date"`
	PreviousTransactionDate string          `json:"previous_transaction_date" db:"previous_transaction_date"`
	Type                    TransactionType `json:"transaction_type" db:"transaction_type"`
	Channel                 string          `json:"channel" db:"channel"`
	Location                string          `json:"location" db:"location"`
	CustomerAge             int             `json:"customer_age" db:"customer_age"`
	CustomerOccupation      string          `json:"customer_occupation" db:"customer_occupation"`
	AccountBalance          decimal.Decimal `json:"account_balance" db:"account_balance"`
	AccountStatus           string          `json:"account_status" db:"account_status"`
	SenderCountry           string          `json:"sender_country" db:"sender_country"`
	ReceiverCountry         string          `json:"receiver_country" db:"receiver_country"`
	SenderCurrency          string          `json:"sender_currency" db:"sender_currency"`
	ReceiverCurrency        string          `json:"receiver_currency" db:"receiver_currency"`
	PinStatus               string          `json:"invalid_pin_status" db:"invalid_pin_status"`
	PinRetryLimit           int             `json:"invalid_pin_retry_limits" db:"invalid_pin_retry_limits"`
	PinRetryCount           int             `json:"invalid_pin_retry_count" db:"invalid_pin_retry_count"`
	LoginAttempts           int             `json:"login_attempts" db:"login_attempts"`

	// Derived once by the preprocessor.
	CrossBorder         bool    `json:"is_cross_border" db:"is_cross_border"`
	CurrencyMismatch    bool    `json:"is_currency_mismatch" db:"is_currency_mismatch"`
	TransactionDuration float64 `json:"transaction_duration" db:"transaction_duration"`

	// Outcome, write-once.
	IsFraud           bool      `json:"is_fraud" db:"is_fraud"`
	FraudProbability  float64   `json:"fraud_probability" db:"fraud_probability"`
	RiskLevel         RiskLevel `json:"risk_level" db:"risk_level"`
	Confidence        float64   `json:"confidence" db:"confidence"`
	ActionRecommended Action    `json:"action_recommended" db:"action_recommended"`

	Reviewed    bool    `json:"reviewed" db:"reviewed"`
	ReviewNotes *string `json:"review_notes" db:"review_notes"`

	// Raw is the request payload as received.
	Raw json.RawMessage `json:"raw,omitempty" db:"raw"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RecentTransaction is the dashboard-safe projection of a TransactionRecord.
type RecentTransaction struct {
	ID                string          `json:"id" db:"id"`
	Amount            decimal.Decimal `json:"transaction_amount" db:"transaction_amount"`
	Type              TransactionType `json:"transaction_type" db:"transaction_type"`
	Location          string          `json:"location" db:"location"`
	IsFraud           bool            `json:"is_fraud" db:"is_fraud"`
	FraudProbability  float64         `json:"fraud_probability" db:"fraud_probability"`
	RiskLevel         RiskLevel       `json:"risk_level" db:"risk_level"`
	ActionRecommended Action          `json:"action_recommended" db:"action_recommended"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

// Project returns the dashboard-safe subset of r.
func (r *TransactionRecord) Project() RecentTransaction {
	return RecentTransaction{
		ID:                r.ID,
		Amount:            r.Amount,
		Type:              r.Type,
		Location:          r.Location,
		IsFraud:           r.IsFraud,
		FraudProbability:  r.FraudProbability,
		RiskLevel:         r.RiskLevel,
		ActionRecommended: r.ActionRecommended,
		CreatedAt:         r.CreatedAt,
	}
}

// TransactionFilter narrows transaction listings. Zero values are ignored.
type TransactionFilter struct {
	IsFraud     *bool
	RiskLevel   RiskLevel
	Action      Action
	MinAmount   *decimal.Decimal
	MaxAmount   *decimal.Decimal
	Type        TransactionType
	Location    string
	CrossBorder *bool
	Since       time.Time
	Until       time.Time
	Limit       int
	Skip        int
}

// ReviewUpdate is applied by an external reviewer, never by the pipeline.
type ReviewUpdate struct {
	Reviewed bool    `json:"reviewed"`
	Notes    *string `json:"review_notes"`
}
