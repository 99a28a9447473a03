package features

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Categorical fields, keyed as in the training data.
const (
	FieldType             = "TransactionType"
	FieldLocation         = "Location"
	FieldChannel          = "Channel"
	FieldOccupation       = "CustomerOccupation"
	FieldSenderCountry    = "Sender Country"
	FieldReceiverCountry  = "Receiver Country"
	FieldSenderCurrency   = "Sender Currency"
	FieldReceiverCurrency = "Receiver Currency"
	FieldAccountStatus    = "Account Status"
	FieldPinStatus        = "Invalid Pin Status"
)

// Names is the fixed feature order the classifier was trained on.
var Names = []string{
	"TransactionAmount",
	FieldType,
	FieldLocation,
	FieldChannel,
	"CustomerAge",
	FieldOccupation,
	"TransactionDuration",
	"LoginAttempts",
	"AccountBalance",
	FieldSenderCountry,
	FieldReceiverCountry,
	FieldSenderCurrency,
	FieldReceiverCurrency,
	FieldAccountStatus,
	FieldPinStatus,
	"Invalid pin retry limits",
	"Invalid pin retry count",
	"Hour",
	"DayOfWeek",
	"Month",
	"IsWeekend",
	"IsNightTime",
	"HoursSincePrevTransaction",
	"AmountToBalanceRatio",
	"IsCrossBorder",
	"IsCurrencyMismatch",
}

// Count is the length of every feature vector.
var Count = len(Names)

const (
	defaultUnknownCode      = -1
	defaultZeroBalanceRatio = 1e6
)

// Tables holds the category encodings and scaling parameters produced at
// training time. It is read-only after Load.
type Tables struct {
	Categories       map[string]map[string]float64 `json:"categories"`
	Center           []float64                     `json:"center"`
	Scale            []float64                     `json:"scale"`
	UnknownCode      *float64                      `json:"unknown_code,omitempty"`
	ZeroBalanceRatio *float64                      `json:"zero_balance_ratio,omitempty"`
}

// LoadTables reads and validates a tables artifact.
func LoadTables(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feature tables: %w", err)
	}

	var t Tables
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode feature tables: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks that the scaling vectors match the feature schema.
func (t *Tables) Validate() error {
	if len(t.Center) != Count {
		return fmt.Errorf("feature tables: center has %d entries, want %d", len(t.Center), Count)
	}
	if len(t.Scale) != Count {
		return fmt.Errorf("feature tables: scale has %d entries, want %d", len(t.Scale), Count)
	}
	for field, codes := range t.Categories {
		if len(codes) == 0 {
			return fmt.Errorf("feature tables: category %q has no codes", field)
		}
	}
	return nil
}

// CategoricalFields lists the fields with an encoding table, sorted.
func (t *Tables) CategoricalFields() []string {
	out := make([]string, 0, len(t.Categories))
	for field := range t.Categories {
		out = append(out, field)
	}
	sort.Strings(out)
	return out
}

func (t *Tables) unknownCode() float64 {
	if t.UnknownCode != nil {
		return *t.UnknownCode
	}
	return defaultUnknownCode
}

func (t *Tables) zeroBalanceRatio() float64 {
	if t.ZeroBalanceRatio != nil {
		return *t.ZeroBalanceRatio
	}
	return defaultZeroBalanceRatio
}

// Encode maps a category value to its code. The second result is false when
// the value was not seen at training time and the unknown code was used.
func (t *Tables) Encode(field, value string) (float64, bool) {
	codes, ok := t.Categories[field]
	if !ok {
		return t.unknownCode(), false
	}
	code, ok := codes[value]
	if !ok {
		return t.unknownCode(), false
	}
	return code, true
}
