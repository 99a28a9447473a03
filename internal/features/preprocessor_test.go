package features

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/fraud-detector/internal/models"
)

func identityTables() *Tables {
	center := make([]float64, Count)
	scale := make([]float64, Count)
	for i := range scale {
		scale[i] = 1
	}
	return &Tables{
		Categories: map[string]map[string]float64{
			FieldType:          {"Deposit": 0, "Payment": 1, "Purchase": 2, "Transfer": 3, "Withdrawal": 4},
			FieldChannel:       {"ATM": 0, "Branch": 1, "Mobile": 2, "Online": 3},
			FieldAccountStatus: {"Active": 0, "Dormant": 1, "Flagged": 2},
			FieldPinStatus:     {"Locked": 0, "Valid": 2},
			FieldOccupation:    {"Doctor": 0, "Engineer": 1},
			FieldLocation:      {"Kigali": 0},
			FieldSenderCountry: {"Rwanda": 0, "USA": 1},
		},
		Center: center,
		Scale:  scale,
	}
}

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func validRaw() *models.RawTransaction {
	return &models.RawTransaction{
		Amount:                  amount("150"),
		TransactionDate:         "15/03/2024 14:30",
		PreviousTransactionDate: "14/03/2024 10:00",
		Type:                    "Withdrawal",
		Location:                "Kigali",
		Channel:                 "ATM",
		CustomerAge:             35,
		CustomerOccupation:      "Engineer",
		AccountBalance:          decimal.NewFromInt(3000),
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

func index(name string) int {
	for i, n := range Names {
		if n == name {
			return i
		}
	}
	panic("unknown feature " + name)
}

func TestTransform_VectorOrderAndDerivedFeatures(t *testing.T) {
	p := NewPreprocessor(identityTables())

	res, err := p.Transform(validRaw())
	require.NoError(t, err)
	require.Len(t, res.Vector, Count)

	assert.Equal(t, 150.0, res.Vector[index("TransactionAmount")])
	assert.Equal(t, 4.0, res.Vector[index(FieldType)])
	assert.Equal(t, 14.0, res.Vector[index("Hour")])
	assert.Equal(t, 4.0, res.Vector[index("DayOfWeek")], "15 March 2024 is a Friday")
	assert.Equal(t, 3.0, res.Vector[index("Month")])
	assert.Equal(t, 0.0, res.Vector[index("IsWeekend")])
	assert.Equal(t, 0.0, res.Vector[index("IsNightTime")])
	assert.InDelta(t, 28.5, res.Vector[index("HoursSincePrevTransaction")], 1e-9)
	assert.InDelta(t, 0.05, res.Vector[index("AmountToBalanceRatio")], 1e-9)
	assert.Equal(t, 0.0, res.Vector[index("IsCrossBorder")])
	assert.False(t, res.Derived.CrossBorder)
	assert.False(t, res.Derived.CurrencyMismatch)
}

func TestTransform_Scaling(t *testing.T) {
	tables := identityTables()
	tables.Center[0] = 100
	tables.Scale[0] = 25
	tables.Scale[1] = 0

	res, err := NewPreprocessor(tables).Transform(validRaw())
	require.NoError(t, err)
	assert.Equal(t, 2.0, res.Vector[0])
	assert.Equal(t, 4.0, res.Vector[1], "zero scale is treated as one")
}

func TestTransform_CrossBorderNormalisesCaseAndWhitespace(t *testing.T) {
	tests := []struct {
		sender, receiver string
		want             bool
	}{
		{"USA", "Germany", true},
		{"Rwanda", "Rwanda", false},
		{" rwanda ", "RWANDA", false},
		{"USA", "US", true},
	}

	p := NewPreprocessor(identityTables())
	for _, tt := range tests {
		raw := validRaw()
		raw.SenderCountry = tt.sender
		raw.ReceiverCountry = tt.receiver
		res, err := p.Transform(raw)
		require.NoError(t, err)
		assert.Equal(t, tt.want, res.Derived.CrossBorder, "%q -> %q", tt.sender, tt.receiver)
	}
}

func TestTransform_CurrencyMismatch(t *testing.T) {
	raw := validRaw()
	raw.SenderCurrency = "USD"
	raw.ReceiverCurrency = "eur"
	res, err := NewPreprocessor(identityTables()).Transform(raw)
	require.NoError(t, err)
	assert.True(t, res.Derived.CurrencyMismatch)
	assert.Equal(t, 1.0, res.Vector[index("IsCurrencyMismatch")])
}

func TestTransform_ZeroBalanceUsesSentinel(t *testing.T) {
	tables := identityTables()
	sentinel := 42.0
	tables.ZeroBalanceRatio = &sentinel

	raw := validRaw()
	raw.AccountBalance = decimal.Zero
	res, err := NewPreprocessor(tables).Transform(raw)
	require.NoError(t, err)
	assert.Equal(t, 42.0, res.Vector[index("AmountToBalanceRatio")])
}

func TestTransform_UnknownCategoryDegrades(t *testing.T) {
	raw := validRaw()
	raw.Channel = "Carrier Pigeon"

	res, err := NewPreprocessor(identityTables()).Transform(raw)
	require.NoError(t, err)
	assert.Equal(t, -1.0, res.Vector[index(FieldChannel)])

	var fields []string
	for _, u := range res.Unknown {
		fields = append(fields, u.Field)
	}
	assert.Contains(t, fields, FieldChannel)
}

func TestTransform_CustomUnknownCode(t *testing.T) {
	tables := identityTables()
	code := 99.0
	tables.UnknownCode = &code

	raw := validRaw()
	raw.Type = "Refund"
	res, err := NewPreprocessor(tables).Transform(raw)
	require.NoError(t, err)
	assert.Equal(t, 99.0, res.Vector[index(FieldType)])
}

func TestTransform_NightHours(t *testing.T) {
	tests := []struct {
		date  string
		night bool
	}{
		{"15/03/2024 22:00", true},
		{"15/03/2024 23:45", true},
		{"15/03/2024 03:10", true},
		{"15/03/2024 06:59", true},
		{"15/03/2024 07:00", false},
		{"15/03/2024 21:59", false},
	}

	p := NewPreprocessor(identityTables())
	for _, tt := range tests {
		raw := validRaw()
		raw.TransactionDate = tt.date
		res, err := p.Transform(raw)
		require.NoError(t, err)
		assert.Equal(t, tt.night, res.Derived.IsNight, tt.date)
	}

	narrow := NewPreprocessor(identityTables(), WithNightHours(0, 4))
	for date, night := range map[string]bool{
		"15/03/2024 23:00": false,
		"15/03/2024 12:00": false,
		"15/03/2024 05:00": false,
		"15/03/2024 00:00": true,
		"15/03/2024 04:59": true,
	} {
		raw := validRaw()
		raw.TransactionDate = date
		res, err := narrow.Transform(raw)
		require.NoError(t, err)
		assert.Equal(t, night, res.Derived.IsNight, date)
	}
}

func TestTransform_Duration(t *testing.T) {
	p := NewPreprocessor(identityTables())

	raw := validRaw()
	d := 95.0
	raw.TransactionDuration = &d
	res, err := p.Transform(raw)
	require.NoError(t, err)
	assert.Equal(t, 95.0, res.Derived.TransactionDuration)

	raw = validRaw()
	raw.SessionStartDate = "15/03/2024 14:28"
	res, err = p.Transform(raw)
	require.NoError(t, err)
	assert.Equal(t, 120.0, res.Derived.TransactionDuration)
}

func TestTransform_MalformedInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.RawTransaction)
		field  string
	}{
		{"missing amount", func(r *models.RawTransaction) { r.Amount = nil }, "TransactionAmount"},
		{"negative amount", func(r *models.RawTransaction) { r.Amount = amount("-1") }, "TransactionAmount"},
		{"missing date", func(r *models.RawTransaction) { r.TransactionDate = "" }, "TransactionDate"},
		{"bad date", func(r *models.RawTransaction) { r.TransactionDate = "2024-03-15T14:30:00Z" }, "TransactionDate"},
		{"bad previous date", func(r *models.RawTransaction) { r.PreviousTransactionDate = "yesterday" }, "PreviousTransactionDate"},
		{"missing previous date", func(r *models.RawTransaction) { r.PreviousTransactionDate = "  " }, "PreviousTransactionDate"},
		{"negative age", func(r *models.RawTransaction) { r.CustomerAge = -4 }, "CustomerAge"},
		{"missing status", func(r *models.RawTransaction) { r.AccountStatus = "" }, "Account Status"},
		{"bad session start", func(r *models.RawTransaction) { r.SessionStartDate = "soon" }, "SessionStartDate"},
	}

	p := NewPreprocessor(identityTables())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validRaw()
			tt.mutate(raw)

			_, err := p.Transform(raw)
			var bad *MalformedInputError
			require.True(t, errors.As(err, &bad), "expected MalformedInputError, got %v", err)
			assert.Contains(t, bad.Fields, tt.field)
		})
	}
}

func TestTransform_NilInput(t *testing.T) {
	_, err := NewPreprocessor(identityTables()).Transform(nil)
	var bad *MalformedInputError
	assert.True(t, errors.As(err, &bad))
}

func TestLoadTables(t *testing.T) {
	tables, err := LoadTables(filepath.Join("..", "..", "artifacts", "feature_tables.json"))
	require.NoError(t, err)
	assert.Len(t, tables.Center, Count)

	code, known := tables.Encode(FieldChannel, "ATM")
	assert.True(t, known)
	assert.Equal(t, 0.0, code)

	fields := tables.CategoricalFields()
	assert.Len(t, fields, 10)
	assert.Equal(t, FieldAccountStatus, fields[0])
	assert.Equal(t, FieldType, fields[9])
}

func TestLoadTables_RejectsWrongShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"center":[0,1],"scale":[1,1]}`), 0o600))

	_, err := LoadTables(path)
	assert.Error(t, err)
}
