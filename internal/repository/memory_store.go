package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/fraud-detector/internal/models"
)

// MemoryStore is an in-memory implementation of interfaces.Store for local
// runs and tests.
type MemoryStore struct {
	mu           sync.RWMutex
	transactions []*models.TransactionRecord // insertion order
	txByID       map[string]*models.TransactionRecord
	alerts       []*models.AlertRecord
	alertByID    map[string]*models.AlertRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		txByID:    make(map[string]*models.TransactionRecord),
		alertByID: make(map[string]*models.AlertRecord),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) InsertTransaction(ctx context.Context, rec *models.TransactionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.txByID[rec.ID]; exists {
		return ErrDuplicate
	}
	cp := copyTransaction(rec)
	s.transactions = append(s.transactions, cp)
	s.txByID[cp.ID] = cp
	return nil
}

func (s *MemoryStore) GetTransaction(ctx context.Context, id string) (*models.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.txByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyTransaction(rec), nil
}

func (s *MemoryStore) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.newestFirst(filter)
	if filter.Skip > 0 {
		if filter.Skip >= len(matched) {
			return []models.TransactionRecord{}, nil
		}
		matched = matched[filter.Skip:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	out := make([]models.TransactionRecord, 0, len(matched))
	for _, rec := range matched {
		out = append(out, *copyTransaction(rec))
	}
	return out, nil
}

func (s *MemoryStore) UpdateTransactionReview(ctx context.Context, id string, update models.ReviewUpdate) (*models.TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.txByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	rec.Reviewed = update.Reviewed
	rec.ReviewNotes = copyString(update.Notes)
	rec.UpdatedAt = time.Now().UTC()
	return copyTransaction(rec), nil
}

func (s *MemoryStore) InsertAlert(ctx context.Context, alert *models.AlertRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.alertByID[alert.ID]; exists {
		return ErrDuplicate
	}
	for _, a := range s.alerts {
		if a.TransactionID == alert.TransactionID {
			return ErrDuplicate
		}
	}
	cp := copyAlert(alert)
	s.alerts = append(s.alerts, cp)
	s.alertByID[cp.ID] = cp
	return nil
}

func (s *MemoryStore) GetAlert(ctx context.Context, id string) (*models.AlertRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alertByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAlert(a), nil
}

func (s *MemoryStore) ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.AlertRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.AlertRecord
	for _, a := range s.alerts {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.Severity != "" && a.Severity != filter.Severity {
			continue
		}
		if !filter.Since.IsZero() && a.CreatedAt.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && !a.CreatedAt.Before(filter.Until) {
			continue
		}
		matched = append(matched, a)
	}
	// Reverse insertion order first so equal timestamps list the latest insert first.
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	out := make([]models.AlertRecord, 0, len(matched))
	for _, a := range matched {
		out = append(out, *copyAlert(a))
	}
	return out, nil
}

func (s *MemoryStore) UpdateAlertStatus(ctx context.Context, id string, update models.AlertStatusUpdate, at time.Time) (*models.AlertRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alertByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	a.Status = update.Status
	a.Reviewed = true
	reviewedAt := at
	a.ReviewedAt = &reviewedAt
	if update.ReviewedBy != "" {
		by := update.ReviewedBy
		a.ReviewedBy = &by
	}
	if update.Notes != nil {
		a.ResolutionNotes = copyString(update.Notes)
	}
	return copyAlert(a), nil
}

func (s *MemoryStore) CountTransactions(ctx context.Context, filter models.TransactionFilter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rec := range s.transactions {
		if matches(filter, rec) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DailyCounts(ctx context.Context, since, until time.Time, loc *time.Location) ([]models.DailyCounts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	byDay := make(map[string]*models.DailyCounts)
	for _, rec := range s.transactions {
		if rec.CreatedAt.Before(since) || !rec.CreatedAt.Before(until) {
			continue
		}
		day := rec.CreatedAt.In(loc).Format(DayLayout)
		dc, ok := byDay[day]
		if !ok {
			dc = &models.DailyCounts{Day: day}
			byDay[day] = dc
		}
		dc.Total++
		switch {
		case rec.IsFraud:
			dc.Fraud++
		case rec.ActionRecommended == models.ActionReview:
			dc.UnderReview++
		}
	}

	out := make([]models.DailyCounts, 0, len(byDay))
	for _, dc := range byDay {
		out = append(out, *dc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

func (s *MemoryStore) HourlyCounts(ctx context.Context, filter models.TransactionFilter, loc *time.Location) ([]models.HourlyCounts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var byHour [24]models.HourlyCounts
	for _, rec := range s.transactions {
		if !matches(filter, rec) {
			continue
		}
		h := &byHour[rec.CreatedAt.In(loc).Hour()]
		h.Count++
		if rec.IsFraud {
			h.FraudCount++
		}
	}

	var out []models.HourlyCounts
	for hour, h := range byHour {
		if h.Count == 0 {
			continue
		}
		h.Hour = hour
		out = append(out, h)
	}
	return out, nil
}

func (s *MemoryStore) GroupTransactions(ctx context.Context, field models.GroupField, filter models.TransactionFilter) ([]models.GroupTotals, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := groupKey(field)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Keys group case-insensitively; the smallest spelling is reported.
	groups := make(map[string]*models.GroupTotals)
	var order []string
	for _, rec := range s.transactions {
		if !matches(filter, rec) {
			continue
		}
		k := key(rec)
		id := strings.ToLower(k)
		g, ok := groups[id]
		if !ok {
			g = &models.GroupTotals{Key: k, Amount: decimal.Zero}
			groups[id] = g
			order = append(order, id)
		} else if k < g.Key {
			g.Key = k
		}
		g.Count++
		if rec.IsFraud {
			g.FraudCount++
		}
		g.Amount = g.Amount.Add(rec.Amount)
	}

	out := make([]models.GroupTotals, 0, len(order))
	for _, k := range order {
		out = append(out, *groups[k])
	}
	return out, nil
}

func (s *MemoryStore) RecentTransactions(ctx context.Context, limit int) ([]models.RecentTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.newestFirst(models.TransactionFilter{})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]models.RecentTransaction, 0, len(matched))
	for _, rec := range matched {
		out = append(out, rec.Project())
	}
	return out, nil
}

func (s *MemoryStore) CountAlertsByStatus(ctx context.Context) (map[models.AlertStatus]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[models.AlertStatus]int)
	for _, a := range s.alerts {
		counts[a.Status]++
	}
	return counts, nil
}

// newestFirst returns matching records by CreatedAt descending. Callers hold
// the read lock.
func (s *MemoryStore) newestFirst(filter models.TransactionFilter) []*models.TransactionRecord {
	matched := make([]*models.TransactionRecord, 0, len(s.transactions))
	for i := len(s.transactions) - 1; i >= 0; i-- {
		if matches(filter, s.transactions[i]) {
			matched = append(matched, s.transactions[i])
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched
}

func matches(f models.TransactionFilter, rec *models.TransactionRecord) bool {
	if f.IsFraud != nil && rec.IsFraud != *f.IsFraud {
		return false
	}
	if f.RiskLevel != "" && rec.RiskLevel != f.RiskLevel {
		return false
	}
	if f.Action != "" && rec.ActionRecommended != f.Action {
		return false
	}
	if f.MinAmount != nil && rec.Amount.LessThan(*f.MinAmount) {
		return false
	}
	if f.MaxAmount != nil && rec.Amount.GreaterThan(*f.MaxAmount) {
		return false
	}
	if f.Type != "" && rec.Type != f.Type {
		return false
	}
	if f.Location != "" && !strings.EqualFold(strings.TrimSpace(rec.Location), strings.TrimSpace(f.Location)) {
		return false
	}
	if f.CrossBorder != nil && rec.CrossBorder != *f.CrossBorder {
		return false
	}
	if !f.Since.IsZero() && rec.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !rec.CreatedAt.Before(f.Until) {
		return false
	}
	return true
}

func groupKey(field models.GroupField) (func(*models.TransactionRecord) string, error) {
	switch field {
	case models.GroupByRiskLevel:
		return func(r *models.TransactionRecord) string { return orUnknown(string(r.RiskLevel)) }, nil
	case models.GroupByType:
		return func(r *models.TransactionRecord) string { return orUnknown(string(r.Type)) }, nil
	case models.GroupByLocation:
		return func(r *models.TransactionRecord) string { return orUnknown(r.Location) }, nil
	default:
		return nil, ErrUnsupportedGroup
	}
}

func orUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return UnknownKey
	}
	return s
}

func copyTransaction(rec *models.TransactionRecord) *models.TransactionRecord {
	cp := *rec
	cp.ReviewNotes = copyString(rec.ReviewNotes)
	if rec.Raw != nil {
		cp.Raw = append([]byte(nil), rec.Raw...)
	}
	return &cp
}

func copyAlert(a *models.AlertRecord) *models.AlertRecord {
	cp := *a
	cp.ReviewedBy = copyString(a.ReviewedBy)
	cp.ResolutionNotes = copyString(a.ResolutionNotes)
	if a.ReviewedAt != nil {
		t := *a.ReviewedAt
		cp.ReviewedAt = &t
	}
	return &cp
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
