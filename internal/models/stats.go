package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DashboardCard is one headline number on the dashboard.
type DashboardCard struct {
	Value         float64 `json:"value"`
	ChangePercent float64 `json:"change"`
	Label         string  `json:"label"`
}

type DashboardCards struct {
	TotalTransactions DashboardCard `json:"total_transactions"`
	FraudDetected     DashboardCard `json:"fraud_detected"`
	Blocked           DashboardCard `json:"blocked_transactions"`
	Timestamp         time.Time     `json:"timestamp"`
}

// TrendPoint is one calendar day of the trend series. The three counts
// partition Total.
type TrendPoint struct {
	Date          string `json:"date"`
	DateFormatted string `json:"date_formatted"`
	Normal        int    `json:"normal"`
	Fraudulent    int    `json:"fraudulent"`
	UnderReview   int    `json:"under_review"`
	Total         int    `json:"total"`
}

type Trends struct {
	Points []TrendPoint `json:"trends"`
	Period string       `json:"period"`
}

type RiskBucket struct {
	Count      int     `json:"count"`
	Amount     float64 `json:"amount"`
	Percentage float64 `json:"percentage"`
}

type RiskDistribution struct {
	Buckets           map[RiskLevel]RiskBucket `json:"distribution"`
	TotalTransactions int                      `json:"total_transactions"`
}

type TransactionTypeStat struct {
	Type            string  `json:"type"`
	Total           int     `json:"total"`
	FraudCount      int     `json:"fraud_count"`
	FraudPercentage float64 `json:"fraud_percentage"`
	Amount          float64 `json:"total_amount"`
}

type Coordinates struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Name string  `json:"name"`
}

// Hotspot aggregates fraud-flagged transactions at one location.
// Coordinates is nil when the location is not in the lookup table.
type Hotspot struct {
	Location    string       `json:"location"`
	Coordinates *Coordinates `json:"coordinates"`
	FraudCount  int          `json:"fraud_count"`
	Amount      float64      `json:"total_amount"`
}

type Hotspots struct {
	Hotspots        []Hotspot `json:"hotspots"`
	TotalLocations  int       `json:"total_locations"`
	MappedLocations int       `json:"mapped_locations"`
}

type AlertsSummary struct {
	ByStatus       map[AlertStatus]int `json:"summary"`
	Total          int                 `json:"total_alerts"`
	RecentCritical []AlertRecord       `json:"recent_critical"`
}

// AlertOutcomes summarises reviewer verdicts on closed alerts.
type AlertOutcomes struct {
	Confirmed         int     `json:"confirmed"`
	FalsePositives    int     `json:"false_positives"`
	Reviewed          int     `json:"reviewed"`
	Precision         float64 `json:"precision"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
}

// DailyCounts is one day of transactions as grouped by the store. Day is
// YYYY-MM-DD in the location the store was asked to group by.
type DailyCounts struct {
	Day         string `db:"day"`
	Total       int    `db:"total"`
	Fraud       int    `db:"fraud"`
	UnderReview int    `db:"under_review"`
}

// GroupTotals is one group of a group-by query over transactions.
type GroupTotals struct {
	Key        string          `db:"key"`
	Count      int             `db:"count"`
	FraudCount int             `db:"fraud_count"`
	Amount     decimal.Decimal `db:"amount"`
}

// GroupField names a column transactions can be grouped by.
type GroupField string

const (
	GroupByRiskLevel GroupField = "risk_level"
	GroupByType      GroupField = "transaction_type"
	GroupByLocation  GroupField = "location"
)
