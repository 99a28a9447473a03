// Package features turns raw transactions into the numeric vectors the
// classifier was trained on.
package features

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/akylbek/payment-system/fraud-detector/internal/models"
)

const (
	DefaultNightStart = 22
	DefaultNightEnd   = 6
)

// Derived holds the values computed from a transaction that are stored
// alongside it.
type Derived struct {
	TransactionTime     time.Time
	PreviousTime        time.Time
	CrossBorder         bool
	CurrencyMismatch    bool
	TransactionDuration float64
	Hour                int
	DayOfWeek           int
	IsNight             bool
}

// Result is the output of Transform.
type Result struct {
	// Vector is scaled and in Names order.
	Vector  []float64
	Derived Derived
	Unknown []UnknownCategory
}

type Preprocessor struct {
	tables     *Tables
	nightStart int
	nightEnd   int
	validate   *validator.Validate
}

type Option func(*Preprocessor)

// WithNightHours sets the inclusive hour bounds of the is_night feature.
// A window with start > end wraps midnight.
func WithNightHours(start, end int) Option {
	return func(p *Preprocessor) {
		p.nightStart = start
		p.nightEnd = end
	}
}

func NewPreprocessor(tables *Tables, opts ...Option) *Preprocessor {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	p := &Preprocessor{
		tables:     tables,
		nightStart: DefaultNightStart,
		nightEnd:   DefaultNightEnd,
		validate:   v,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Transform validates raw and produces its feature vector. It returns a
// *MalformedInputError for missing or unparsable fields; unseen categories
// are reported in Result.Unknown and never fail the call.
func (p *Preprocessor) Transform(raw *models.RawTransaction) (*Result, error) {
	if raw == nil {
		return nil, &MalformedInputError{Fields: map[string]string{"body": "no transaction provided"}}
	}

	bad := &MalformedInputError{}
	if err := p.validate.Struct(raw); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, err
		}
		for _, fe := range verrs {
			bad.add(fe.Field(), describe(fe))
		}
	}
	if raw.Amount != nil && raw.Amount.IsNegative() {
		bad.add("TransactionAmount", "must not be negative")
	}
	if raw.AccountBalance.IsNegative() {
		bad.add("AccountBalance", "must not be negative")
	}

	txTime, txErr := parseTimestamp(raw.TransactionDate)
	if txErr != "" {
		bad.add("TransactionDate", txErr)
	}
	prevTime, prevErr := parseTimestamp(raw.PreviousTransactionDate)
	if prevErr != "" {
		bad.add("PreviousTransactionDate", prevErr)
	}

	duration := 0.0
	switch {
	case raw.TransactionDuration != nil:
		duration = *raw.TransactionDuration
		if duration < 0 {
			bad.add("TransactionDuration", "must not be negative")
		}
	case raw.SessionStartDate != "":
		start, err := time.Parse(models.TimestampLayout, strings.TrimSpace(raw.SessionStartDate))
		if err != nil {
			bad.add("SessionStartDate", "expected format DD/MM/YYYY HH:MM")
		} else if txErr == "" {
			duration = txTime.Sub(start).Seconds()
		}
	}

	if len(bad.Fields) > 0 {
		return nil, bad
	}

	derived := Derived{
		TransactionTime:     txTime,
		PreviousTime:        prevTime,
		CrossBorder:         differs(raw.SenderCountry, raw.ReceiverCountry),
		CurrencyMismatch:    differs(raw.SenderCurrency, raw.ReceiverCurrency),
		TransactionDuration: duration,
		Hour:                txTime.Hour(),
		DayOfWeek:           (int(txTime.Weekday()) + 6) % 7,
	}
	derived.IsNight = p.isNight(derived.Hour)

	res := &Result{Derived: derived}
	encode := func(field, value string) float64 {
		code, known := p.tables.Encode(field, strings.TrimSpace(value))
		if !known {
			res.Unknown = append(res.Unknown, UnknownCategory{Field: field, Value: value})
		}
		return code
	}

	amount := raw.Amount.InexactFloat64()
	balance := raw.AccountBalance.InexactFloat64()
	ratio := p.tables.zeroBalanceRatio()
	if balance != 0 {
		ratio = amount / balance
	}

	vec := []float64{
		amount,
		encode(FieldType, raw.Type),
		encode(FieldLocation, raw.Location),
		encode(FieldChannel, raw.Channel),
		float64(raw.CustomerAge),
		encode(FieldOccupation, raw.CustomerOccupation),
		duration,
		float64(raw.LoginAttempts),
		balance,
		encode(FieldSenderCountry, raw.SenderCountry),
		encode(FieldReceiverCountry, raw.ReceiverCountry),
		encode(FieldSenderCurrency, raw.SenderCurrency),
		encode(FieldReceiverCurrency, raw.ReceiverCurrency),
		encode(FieldAccountStatus, raw.AccountStatus),
		encode(FieldPinStatus, raw.PinStatus),
		float64(raw.PinRetryLimit),
		float64(raw.PinRetryCount),
		float64(derived.Hour),
		float64(derived.DayOfWeek),
		float64(txTime.Month()),
		boolFeature(derived.DayOfWeek >= 5),
		boolFeature(derived.IsNight),
		txTime.Sub(prevTime).Hours(),
		ratio,
		boolFeature(derived.CrossBorder),
		boolFeature(derived.CurrencyMismatch),
	}

	res.Vector = p.scale(vec)
	return res, nil
}

func (p *Preprocessor) isNight(hour int) bool {
	if p.nightStart > p.nightEnd {
		return hour >= p.nightStart || hour <= p.nightEnd
	}
	return hour >= p.nightStart && hour <= p.nightEnd
}

// scale applies the training-time (x - center) / scale transform.
func (p *Preprocessor) scale(vec []float64) []float64 {
	out := make([]float64, len(vec))
	for i, x := range vec {
		s := p.tables.Scale[i]
		if s == 0 {
			s = 1
		}
		out[i] = (x - p.tables.Center[i]) / s
	}
	return out
}

func parseTimestamp(value string) (time.Time, string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, "is required"
	}
	t, err := time.Parse(models.TimestampLayout, value)
	if err != nil {
		return time.Time{}, "expected format DD/MM/YYYY HH:MM"
	}
	return t, ""
}

// differs compares two country or currency codes ignoring case and
// surrounding whitespace.
func differs(a, b string) bool {
	return !strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
