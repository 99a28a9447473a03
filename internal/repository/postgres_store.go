package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/akylbek/payment-system/fraud-detector/internal/models"
)

const transactionColumns = `
	id, transaction_amount, transaction_date, previous_transaction_date, transaction_type,
	channel, location, customer_age, customer_occupation, account_balance, account_status,
	sender_country, receiver_country, sender_currency, receiver_currency,
	invalid_pin_status, invalid_pin_retry_limits, invalid_pin_retry_count, login_attempts,
	is_cross_border, is_currency_mismatch, transaction_duration,
	is_fraud, fraud_probability, risk_level, confidence, action_recommended,
	reviewed, review_notes, created_at, updated_at`

const alertColumns = `
	id, transaction_id, severity, fraud_probability, risk_level, transaction_amount,
	customer_age, customer_occupation, alert_reason, recommended_action, status,
	reviewed, reviewed_by, reviewed_at, resolution_notes, created_at`

// groupColumns whitelists the columns GroupTransactions may interpolate.
var groupColumns = map[models.GroupField]string{
	models.GroupByRiskLevel: "risk_level",
	models.GroupByType:      "transaction_type",
	models.GroupByLocation:  "location",
}

type transactionRow struct {
	models.TransactionRecord
	RawText sql.NullString `db:"raw_text"`
}

func (r transactionRow) record() *models.TransactionRecord {
	rec := r.TransactionRecord
	if r.RawText.Valid {
		rec.Raw = []byte(r.RawText.String)
	}
	return &rec
}

type alertRow struct {
	models.AlertRecord
	CustomerAge        int    `db:"customer_age"`
	CustomerOccupation string `db:"customer_occupation"`
}

func (r alertRow) record() *models.AlertRecord {
	a := r.AlertRecord
	a.Customer = models.CustomerInfo{Age: r.CustomerAge, Occupation: r.CustomerOccupation}
	return &a
}

// PostgresStore keeps transactions and alerts in PostgreSQL. The raw request
// payload is stored as JSONB next to the typed columns.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (r *PostgresStore) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			id VARCHAR(64) PRIMARY KEY,
			transaction_amount NUMERIC(20,2) NOT NULL,
			transaction_date VARCHAR(32) NOT NULL,
			previous_transaction_date VARCHAR(32) NOT NULL,
			transaction_type VARCHAR(32) NOT NULL DEFAULT '',
			channel VARCHAR(32) NOT NULL DEFAULT '',
			location VARCHAR(128) NOT NULL DEFAULT '',
			customer_age INT NOT NULL DEFAULT 0,
			customer_occupation VARCHAR(64) NOT NULL DEFAULT '',
			account_balance NUMERIC(20,2) NOT NULL DEFAULT 0,
			account_status VARCHAR(32) NOT NULL DEFAULT '',
			sender_country VARCHAR(64) NOT NULL DEFAULT '',
			receiver_country VARCHAR(64) NOT NULL DEFAULT '',
			sender_currency VARCHAR(8) NOT NULL DEFAULT '',
			receiver_currency VARCHAR(8) NOT NULL DEFAULT '',
			invalid_pin_status VARCHAR(32) NOT NULL DEFAULT '',
			invalid_pin_retry_limits INT NOT NULL DEFAULT 0,
			invalid_pin_retry_count INT NOT NULL DEFAULT 0,
			login_attempts INT NOT NULL DEFAULT 0,
			is_cross_border BOOLEAN NOT NULL DEFAULT FALSE,
			is_currency_mismatch BOOLEAN NOT NULL DEFAULT FALSE,
			transaction_duration DOUBLE PRECISION NOT NULL DEFAULT 0,
			is_fraud BOOLEAN NOT NULL,
			fraud_probability DOUBLE PRECISION NOT NULL,
			risk_level VARCHAR(16) NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			action_recommended VARCHAR(16) NOT NULL,
			reviewed BOOLEAN NOT NULL DEFAULT FALSE,
			review_notes TEXT,
			raw JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_is_fraud ON transactions(is_fraud)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id VARCHAR(64) PRIMARY KEY,
			transaction_id VARCHAR(64) NOT NULL UNIQUE,
			severity VARCHAR(16) NOT NULL,
			fraud_probability DOUBLE PRECISION NOT NULL,
			risk_level VARCHAR(16) NOT NULL,
			transaction_amount NUMERIC(20,2) NOT NULL,
			customer_age INT NOT NULL DEFAULT 0,
			customer_occupation VARCHAR(64) NOT NULL DEFAULT '',
			alert_reason TEXT NOT NULL,
			recommended_action VARCHAR(16) NOT NULL,
			status VARCHAR(32) NOT NULL DEFAULT 'pending',
			reviewed BOOLEAN NOT NULL DEFAULT FALSE,
			reviewed_by VARCHAR(128),
			reviewed_at TIMESTAMPTZ,
			resolution_notes TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_severity_created ON alerts(severity, created_at DESC)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

func (r *PostgresStore) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *PostgresStore) InsertTransaction(ctx context.Context, rec *models.TransactionRecord) error {
	var raw interface{}
	if len(rec.Raw) > 0 {
		raw = string(rec.Raw)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`, raw)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32::jsonb)
	`,
		rec.ID, rec.Amount, rec.TransactionDate, rec.PreviousTransactionDate, rec.Type,
		rec.Channel, rec.Location, rec.CustomerAge, rec.CustomerOccupation, rec.AccountBalance, rec.AccountStatus,
		rec.SenderCountry, rec.ReceiverCountry, rec.SenderCurrency, rec.ReceiverCurrency,
		rec.PinStatus, rec.PinRetryLimit, rec.PinRetryCount, rec.LoginAttempts,
		rec.CrossBorder, rec.CurrencyMismatch, rec.TransactionDuration,
		rec.IsFraud, rec.FraudProbability, rec.RiskLevel, rec.Confidence, rec.ActionRecommended,
		rec.Reviewed, rec.ReviewNotes, rec.CreatedAt, rec.UpdatedAt, raw,
	)
	return mapWriteError(err, "insert transaction")
}

func (r *PostgresStore) GetTransaction(ctx context.Context, id string) (*models.TransactionRecord, error) {
	var row transactionRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+transactionColumns+`, raw::text AS raw_text FROM transactions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return row.record(), nil
}

func (r *PostgresStore) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.TransactionRecord, error) {
	where, args := transactionWhere(filter)
	query := `SELECT ` + transactionColumns + `, raw::text AS raw_text FROM transactions` + where +
		` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Skip > 0 {
		args = append(args, filter.Skip)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var rows []transactionRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := make([]models.TransactionRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.record())
	}
	return out, nil
}

func (r *PostgresStore) UpdateTransactionReview(ctx context.Context, id string, update models.ReviewUpdate) (*models.TransactionRecord, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET reviewed = $1, review_notes = $2, updated_at = NOW()
		WHERE id = $3
	`, update.Reviewed, update.Notes, id)
	if err != nil {
		return nil, fmt.Errorf("update transaction review: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return r.GetTransaction(ctx, id)
}

func (r *PostgresStore) InsertAlert(ctx context.Context, a *models.AlertRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		a.ID, a.TransactionID, a.Severity, a.FraudProbability, a.RiskLevel, a.TransactionAmount,
		a.Customer.Age, a.Customer.Occupation, a.AlertReason, a.RecommendedAction, a.Status,
		a.Reviewed, a.ReviewedBy, a.ReviewedAt, a.ResolutionNotes, a.CreatedAt,
	)
	return mapWriteError(err, "insert alert")
}

func (r *PostgresStore) GetAlert(ctx context.Context, id string) (*models.AlertRecord, error) {
	var row alertRow
	err := r.db.GetContext(ctx, &row, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return row.record(), nil
}

func (r *PostgresStore) ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.AlertRecord, error) {
	var conds []string
	var args []interface{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Severity != "" {
		args = append(args, filter.Severity)
		conds = append(conds, fmt.Sprintf("severity = $%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.Until.IsZero() {
		args = append(args, filter.Until)
		conds = append(conds, fmt.Sprintf("created_at < $%d", len(args)))
	}

	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var rows []alertRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	out := make([]models.AlertRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.record())
	}
	return out, nil
}

func (r *PostgresStore) UpdateAlertStatus(ctx context.Context, id string, update models.AlertStatusUpdate, at time.Time) (*models.AlertRecord, error) {
	var reviewedBy *string
	if update.ReviewedBy != "" {
		reviewedBy = &update.ReviewedBy
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE alerts
		SET status = $1, reviewed = TRUE, reviewed_at = $2,
			reviewed_by = COALESCE($3, reviewed_by),
			resolution_notes = COALESCE($4, resolution_notes)
		WHERE id = $5
	`, update.Status, at, reviewedBy, update.Notes, id)
	if err != nil {
		return nil, fmt.Errorf("update alert status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return r.GetAlert(ctx, id)
}

func (r *PostgresStore) CountTransactions(ctx context.Context, filter models.TransactionFilter) (int, error) {
	where, args := transactionWhere(filter)
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM transactions`+where, args...); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

func (r *PostgresStore) DailyCounts(ctx context.Context, since, until time.Time, loc *time.Location) ([]models.DailyCounts, error) {
	if loc == nil {
		loc = time.UTC
	}
	var out []models.DailyCounts
	err := r.db.SelectContext(ctx, &out, `
		SELECT to_char(created_at AT TIME ZONE $3, 'YYYY-MM-DD') AS day,
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE is_fraud) AS fraud,
			COUNT(*) FILTER (WHERE NOT is_fraud AND action_recommended = 'REVIEW') AS under_review
		FROM transactions
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY day
		ORDER BY day
	`, since, until, loc.String())
	if err != nil {
		return nil, fmt.Errorf("daily counts: %w", err)
	}
	return out, nil
}

func (r *PostgresStore) HourlyCounts(ctx context.Context, filter models.TransactionFilter, loc *time.Location) ([]models.HourlyCounts, error) {
	if loc == nil {
		loc = time.UTC
	}
	where, args := transactionWhere(filter)
	args = append(args, loc.String())

	query := fmt.Sprintf(`
		SELECT EXTRACT(HOUR FROM created_at AT TIME ZONE $%d)::int AS hour,
			COUNT(*) AS count,
			COUNT(*) FILTER (WHERE is_fraud) AS fraud_count
		FROM transactions%s
		GROUP BY 1
		ORDER BY 1
	`, len(args), where)

	var out []models.HourlyCounts
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("hourly counts: %w", err)
	}
	return out, nil
}

func (r *PostgresStore) GroupTransactions(ctx context.Context, field models.GroupField, filter models.TransactionFilter) ([]models.GroupTotals, error) {
	column, ok := groupColumns[field]
	if !ok {
		return nil, ErrUnsupportedGroup
	}
	where, args := transactionWhere(filter)
	args = append(args, UnknownKey)

	query := fmt.Sprintf(`
		SELECT COALESCE(MIN(NULLIF(TRIM(%[1]s), '')), $%[2]d) AS key,
			COUNT(*) AS count,
			COUNT(*) FILTER (WHERE is_fraud) AS fraud_count,
			COALESCE(SUM(transaction_amount), 0) AS amount
		FROM transactions%[3]s
		GROUP BY LOWER(COALESCE(TRIM(%[1]s), ''))
	`, column, len(args), where)

	var out []models.GroupTotals
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("group transactions by %s: %w", field, err)
	}
	return out, nil
}

func (r *PostgresStore) RecentTransactions(ctx context.Context, limit int) ([]models.RecentTransaction, error) {
	var out []models.RecentTransaction
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, transaction_amount, transaction_type, location, is_fraud,
			fraud_probability, risk_level, action_recommended, created_at
		FROM transactions
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent transactions: %w", err)
	}
	return out, nil
}

func (r *PostgresStore) CountAlertsByStatus(ctx context.Context) (map[models.AlertStatus]int, error) {
	var rows []struct {
		Status models.AlertStatus `db:"status"`
		Count  int                `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM alerts GROUP BY status`); err != nil {
		return nil, fmt.Errorf("count alerts by status: %w", err)
	}
	counts := make(map[models.AlertStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func transactionWhere(f models.TransactionFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, value interface{}) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.IsFraud != nil {
		add("is_fraud = $%d", *f.IsFraud)
	}
	if f.RiskLevel != "" {
		add("risk_level = $%d", f.RiskLevel)
	}
	if f.Action != "" {
		add("action_recommended = $%d", f.Action)
	}
	if f.MinAmount != nil {
		add("transaction_amount >= $%d", *f.MinAmount)
	}
	if f.MaxAmount != nil {
		add("transaction_amount <= $%d", *f.MaxAmount)
	}
	if f.Type != "" {
		add("transaction_type = $%d", f.Type)
	}
	if f.Location != "" {
		add("LOWER(TRIM(location)) = LOWER(TRIM($%d))", f.Location)
	}
	if f.CrossBorder != nil {
		add("is_cross_border = $%d", *f.CrossBorder)
	}
	if !f.Since.IsZero() {
		add("created_at >= $%d", f.Since)
	}
	if !f.Until.IsZero() {
		add("created_at < $%d", f.Until)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func mapWriteError(err error, op string) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
		return ErrDuplicate
	}
	return fmt.Errorf("%s: %w", op, err)
}
