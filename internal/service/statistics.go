package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/fraud-detector/internal/interfaces"
	"github.com/akylbek/payment-system/fraud-detector/internal/metrics"
	"github.com/akylbek/payment-system/fraud-detector/internal/models"
	"github.com/akylbek/payment-system/fraud-detector/internal/repository"
	"github.com/akylbek/payment-system/fraud-detector/internal/telemetry"
)

const (
	DefaultTrendDays     = 7
	MaxTrendDays         = 90
	DefaultRecentLimit   = 10
	MaxRecentLimit       = 100
	DefaultCriticalLimit = 5
	MaxReportRows        = 500
	TopPatternLocations  = 10
)

// StatisticsEngine computes the dashboard views from the stored
// transactions and alerts. It keeps no state between calls; every view is
// recomputed from the store.
type StatisticsEngine struct {
	store          interfaces.StatsRepository
	loc            *time.Location
	now            func() time.Time
	coordinates    coordinateIndex
	storageTimeout time.Duration
}

type StatsOption func(*StatisticsEngine)

// WithLocation sets the time zone whose midnights bound "today" and the
// trend days.
func WithLocation(loc *time.Location) StatsOption {
	return func(e *StatisticsEngine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

func WithStatsClock(now func() time.Time) StatsOption {
	return func(e *StatisticsEngine) { e.now = now }
}

// WithStatsStorageTimeout bounds the store reads behind each view. Expiry
// fails the view with an *AggregationError.
func WithStatsStorageTimeout(d time.Duration) StatsOption {
	return func(e *StatisticsEngine) {
		if d > 0 {
			e.storageTimeout = d
		}
	}
}

// WithCoordinates replaces the location lookup used by Hotspots.
func WithCoordinates(c map[string]models.Coordinates) StatsOption {
	return func(e *StatisticsEngine) { e.coordinates = newCoordinateIndex(c) }
}

func NewStatisticsEngine(store interfaces.StatsRepository, opts ...StatsOption) *StatisticsEngine {
	e := &StatisticsEngine{
		store:          store,
		loc:            time.UTC,
		now:            time.Now,
		coordinates:    newCoordinateIndex(RwandaCities),
		storageTimeout: DefaultStorageTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *StatisticsEngine) Dashboard(ctx context.Context) (*models.DashboardCards, error) {
	const view = "dashboard"
	ctx, span := telemetry.StartSpan(ctx, "stats."+view)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, e.storageTimeout)
	defer cancel()

	now := e.now()
	today := e.startOfDay(now)
	yesterday := today.AddDate(0, 0, -1)
	tomorrow := today.AddDate(0, 0, 1)

	fraud := true
	type pair struct{ today, yesterday int }
	count := func(f models.TransactionFilter) (pair, error) {
		var p pair
		var err error
		f.Since, f.Until = today, tomorrow
		if p.today, err = e.store.CountTransactions(ctx, f); err != nil {
			return p, err
		}
		f.Since, f.Until = yesterday, today
		p.yesterday, err = e.store.CountTransactions(ctx, f)
		return p, err
	}

	total, err := count(models.TransactionFilter{})
	if err != nil {
		return nil, e.fail(view, err)
	}
	flagged, err := count(models.TransactionFilter{IsFraud: &fraud})
	if err != nil {
		return nil, e.fail(view, err)
	}
	blocked, err := count(models.TransactionFilter{Action: models.ActionBlock})
	if err != nil {
		return nil, e.fail(view, err)
	}

	card := func(p pair, label string) models.DashboardCard {
		return models.DashboardCard{
			Value:         float64(p.today),
			ChangePercent: ChangePercent(p.today, p.yesterday),
			Label:         label,
		}
	}
	return &models.DashboardCards{
		TotalTransactions: card(total, "Total Transactions Today"),
		FraudDetected:     card(flagged, "Fraud Detected"),
		Blocked:           card(blocked, "Blocked Transactions"),
		Timestamp:         now,
	}, nil
}

// ChangePercent is the day-over-day change rounded to one decimal. It is
// defined as 0 when the previous count is 0.
func ChangePercent(today, yesterday int) float64 {
	if yesterday == 0 {
		return 0
	}
	return round1(float64(today-yesterday) / float64(yesterday) * 100)
}

// Trends returns one point per calendar day for the last days days, today
// included, oldest first.
func (e *StatisticsEngine) Trends(ctx context.Context, days int) (*models.Trends, error) {
	const view = "trends"
	if days < 1 || days > MaxTrendDays {
		return nil, fmt.Errorf("%w: days must be between 1 and %d", ErrInvalidArgument, MaxTrendDays)
	}
	ctx, span := telemetry.StartSpan(ctx, "stats."+view, attribute.Int("days", days))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, e.storageTimeout)
	defer cancel()

	today := e.startOfDay(e.now())
	start := today.AddDate(0, 0, -(days - 1))
	end := today.AddDate(0, 0, 1)

	rows, err := e.store.DailyCounts(ctx, start, end, e.loc)
	if err != nil {
		return nil, e.fail(view, err)
	}
	byDay := make(map[string]models.DailyCounts, len(rows))
	for _, r := range rows {
		byDay[r.Day] = r
	}

	points := make([]models.TrendPoint, 0, days)
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i)
		key := day.Format(repository.DayLayout)
		c := byDay[key]
		points = append(points, models.TrendPoint{
			Date:          key,
			DateFormatted: day.Format("Jan 02"),
			Normal:        c.Total - c.Fraud - c.UnderReview,
			Fraudulent:    c.Fraud,
			UnderReview:   c.UnderReview,
			Total:         c.Total,
		})
	}

	return &models.Trends{Points: points, Period: fmt.Sprintf("Last %d days", days)}, nil
}

// RiskDistribution buckets transactions by risk level. days limits the
// window to the last days calendar days; 0 means all time.
func (e *StatisticsEngine) RiskDistribution(ctx context.Context, days int) (*models.RiskDistribution, error) {
	const view = "risk_distribution"
	filter, err := e.window(days)
	if err != nil {
		return nil, err
	}
	ctx, span := telemetry.StartSpan(ctx, "stats."+view)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, e.storageTimeout)
	defer cancel()

	groups, err := e.store.GroupTransactions(ctx, models.GroupByRiskLevel, filter)
	if err != nil {
		return nil, e.fail(view, err)
	}

	buckets := make(map[models.RiskLevel]models.RiskBucket, len(models.RiskLevels))
	for _, level := range models.RiskLevels {
		buckets[level] = models.RiskBucket{}
	}
	total := 0
	for _, g := range groups {
		level := models.RiskLevel(g.Key)
		if _, known := buckets[level]; !known {
			continue
		}
		buckets[level] = models.RiskBucket{Count: g.Count, Amount: money(g)}
		total += g.Count
	}
	for level, b := range buckets {
		b.Percentage = percentage(b.Count, total)
		buckets[level] = b
	}

	return &models.RiskDistribution{Buckets: buckets, TotalTransactions: total}, nil
}

// TransactionTypes breaks transactions down by type, largest first.
func (e *StatisticsEngine) TransactionTypes(ctx context.Context, days int) ([]models.TransactionTypeStat, error) {
	const view = "transaction_types"
	filter, err := e.window(days)
	if err != nil {
		return nil, err
	}
	ctx, span := telemetry.StartSpan(ctx, "stats."+view)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, e.storageTimeout)
	defer cancel()

	groups, err := e.store.GroupTransactions(ctx, models.GroupByType, filter)
	if err != nil {
		return nil, e.fail(view, err)
	}

	out := make([]models.TransactionTypeStat, 0, len(groups))
	for _, g := range groups {
		out = append(out, models.TransactionTypeStat{
			Type:            g.Key,
			Total:           g.Count,
			FraudCount:      g.FraudCount,
			FraudPercentage: percentage(g.FraudCount, g.Count),
			Amount:          money(g),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Type < out[j].Type
	})
	return out, nil
}

// Hotspots groups fraud-flagged transactions by location. Locations missing
// from the coordinate lookup are kept with nil coordinates.
func (e *StatisticsEngine) Hotspots(ctx context.Context, days int) (*models.Hotspots, error) {
	const view = "hotspots"
	filter, err := e.window(days)
	if err != nil {
		return nil, err
	}
	ctx, span := telemetry.StartSpan(ctx, "stats."+view)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, e.storageTimeout)
	defer cancel()

	fraud := true
	filter.IsFraud = &fraud
	groups, err := e.store.GroupTransactions(ctx, models.GroupByLocation, filter)
	if err != nil {
		return nil, e.fail(view, err)
	}

	res := &models.Hotspots{Hotspots: make([]models.Hotspot, 0, len(groups))}
	for _, g := range groups {
		h := models.Hotspot{
			Location:    g.Key,
			Coordinates: e.coordinates.lookup(g.Key),
			FraudCount:  g.FraudCount,
			Amount:      money(g),
		}
		if h.Coordinates != nil {
			res.MappedLocations++
		}
		res.Hotspots = append(res.Hotspots, h)
	}
	sort.Slice(res.Hotspots, func(i, j int) bool {
		a, b := res.Hotspots[i], res.Hotspots[j]
		if a.FraudCount != b.FraudCount {
			return a.FraudCount > b.FraudCount
		}
		return a.Location < b.Location
	})
	res.TotalLocations = len(res.Hotspots)
	return res, nil
}

// AlertsSummary counts alerts per status and lists the newest critical
// alerts.
func (e *StatisticsEngine) AlertsSummary(ctx context.Context, limit int) (*models.AlertsSummary, error) {
	const view = "alerts_summary"
	if limit <= 0 {
		limit = DefaultCriticalLimit
	}
	ctx, span := telemetry.StartSpan(ctx, "stats."+view)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, e.storageTimeout)
	defer cancel()

	counts, err := e.store.CountAlertsByStatus(ctx)
	if err != nil {
		return nil, e.fail(view, err)
	}
	recent, err := e.store.ListAlerts(ctx, models.AlertFilter{Severity: models.SeverityCritical, Limit: limit})
	if err != nil {
		return nil, e.fail(view, err)
	}

	summary := &models.AlertsSummary{
		ByStatus:       make(map[models.AlertStatus]int, len(models.AlertStatuses)),
		RecentCritical: recent,
	}
	for _, status := range models.AlertStatuses {
		summary.ByStatus[status] = counts[status]
		summary.Total += counts[status]
	}
	if summary.RecentCritical == nil {
		summary.RecentCritical = []models.AlertRecord{}
	}
	return summary, nil
}

// AlertOutcomes reports how reviewers closed alerts. Precision is the share
// of closed alerts confirmed as fraud.
func (e *StatisticsEngine) AlertOutcomes(ctx context.Context) (*models.AlertOutcomes, error) {
	const view = "alert_outcomes"
	ctx, span := telemetry.StartSpan(ctx, "stats."+view)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, e.storageTimeout)
	defer cancel()

	counts, err := e.store.CountAlertsByStatus(ctx)
	if err != nil {
		return nil, e.fail(view, err)
	}

	confirmed := counts[models.AlertResolved]
	falsePositives := counts[models.AlertFalsePositive]
	closed := confirmed + falsePositives
	return &models.AlertOutcomes{
		Confirmed:         confirmed,
		FalsePositives:    falsePositives,
		Reviewed:          closed,
		Precision:         percentage(confirmed, closed),
		FalsePositiveRate: percentage(falsePositives, closed),
	}, nil
}

// RecentTransactions returns the newest transactions, newest first.
func (e *StatisticsEngine) RecentTransactions(ctx context.Context, limit int) ([]models.RecentTransaction, error) {
	const view = "recent_transactions"
	if limit < 1 || limit > MaxRecentLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidArgument, MaxRecentLimit)
	}
	ctx, span := telemetry.StartSpan(ctx, "stats."+view)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, e.storageTimeout)
	defer cancel()

	out, err := e.store.RecentTransactions(ctx, limit)
	if err != nil {
		return nil, e.fail(view, err)
	}
	if out == nil {
		out = []models.RecentTransaction{}
	}
	return out, nil
}

// DailyReport lists the fraud-flagged transactions and the alerts of one
// calendar day, given as YYYY-MM-DD in the engine's time zone.
func (e *StatisticsEngine) DailyReport(ctx context.Context, day string) (*models.DailyReport, error) {
	const view = "daily_report"
	start, err := time.ParseInLocation(repository.DayLayout, day, e.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidArgument)
	}
	end := start.AddDate(0, 0, 1)
	ctx, span := telemetry.StartSpan(ctx, "stats."+view, attribute.String("day", day))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, e.storageTimeout)
	defer cancel()

	fraud := true
	report := &models.DailyReport{Date: day, GeneratedAt: e.now().UTC()}
	if report.TotalTransactions, err = e.store.CountTransactions(ctx, models.TransactionFilter{Since: start, Until: end}); err != nil {
		return nil, e.fail(view, err)
	}
	if report.FraudDetected, err = e.store.CountTransactions(ctx, models.TransactionFilter{IsFraud: &fraud, Since: start, Until: end}); err != nil {
		return nil, e.fail(view, err)
	}
	if report.Blocked, err = e.store.CountTransactions(ctx, models.TransactionFilter{Action: models.ActionBlock, Since: start, Until: end}); err != nil {
		return nil, e.fail(view, err)
	}

	flagged, err := e.store.ListTransactions(ctx, models.TransactionFilter{IsFraud: &fraud, Since: start, Until: end, Limit: MaxReportRows})
	if err != nil {
		return nil, e.fail(view, err)
	}
	report.FraudTransactions = make([]models.RecentTransaction, 0, len(flagged))
	for i := range flagged {
		report.FraudTransactions = append(report.FraudTransactions, flagged[i].Project())
	}

	report.Alerts, err = e.store.ListAlerts(ctx, models.AlertFilter{Since: start, Until: end, Limit: MaxReportRows})
	if err != nil {
		return nil, e.fail(view, err)
	}
	if report.Alerts == nil {
		report.Alerts = []models.AlertRecord{}
	}
	report.TotalAlerts = len(report.Alerts)
	return report, nil
}

// FraudPatterns breaks fraud-flagged transactions down by type, hour of day
// in the engine's time zone and location. days limits the window as in
// RiskDistribution.
func (e *StatisticsEngine) FraudPatterns(ctx context.Context, days int) (*models.FraudPatterns, error) {
	const view = "fraud_patterns"
	filter, err := e.window(days)
	if err != nil {
		return nil, err
	}
	ctx, span := telemetry.StartSpan(ctx, "stats."+view)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, e.storageTimeout)
	defer cancel()

	fraud := true
	filter.IsFraud = &fraud
	res := &models.FraudPatterns{GeneratedAt: e.now().UTC(), Period: "All time"}
	if days > 0 {
		res.Period = fmt.Sprintf("Last %d days", days)
	}

	if res.TotalFraud, err = e.store.CountTransactions(ctx, filter); err != nil {
		return nil, e.fail(view, err)
	}
	crossBorder := filter
	yes := true
	crossBorder.CrossBorder = &yes
	if res.CrossBorder.Count, err = e.store.CountTransactions(ctx, crossBorder); err != nil {
		return nil, e.fail(view, err)
	}
	res.CrossBorder.Percentage = percentage(res.CrossBorder.Count, res.TotalFraud)

	byType, err := e.store.GroupTransactions(ctx, models.GroupByType, filter)
	if err != nil {
		return nil, e.fail(view, err)
	}
	res.ByType = patternGroups(byType, 0)

	byLocation, err := e.store.GroupTransactions(ctx, models.GroupByLocation, filter)
	if err != nil {
		return nil, e.fail(view, err)
	}
	res.ByLocation = patternGroups(byLocation, TopPatternLocations)

	hours, err := e.store.HourlyCounts(ctx, filter, e.loc)
	if err != nil {
		return nil, e.fail(view, err)
	}
	res.ByHour = make([]models.HourlyFraud, 24)
	for i := range res.ByHour {
		res.ByHour[i].Hour = i
	}
	for _, h := range hours {
		if h.Hour >= 0 && h.Hour < 24 {
			res.ByHour[h.Hour].Count = h.FraudCount
		}
	}
	return res, nil
}

// patternGroups sorts groups largest first and keeps at most limit of them;
// 0 keeps all.
func patternGroups(groups []models.GroupTotals, limit int) []models.PatternGroup {
	out := make([]models.PatternGroup, 0, len(groups))
	for _, g := range groups {
		out = append(out, models.PatternGroup{Key: g.Key, Count: g.Count, Amount: money(g)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Totals returns the number of stored transactions and alerts.
func (e *StatisticsEngine) Totals(ctx context.Context) (transactions, alerts int, err error) {
	const view = "totals"
	ctx, cancel := context.WithTimeout(ctx, e.storageTimeout)
	defer cancel()

	transactions, err = e.store.CountTransactions(ctx, models.TransactionFilter{})
	if err != nil {
		return 0, 0, e.fail(view, err)
	}
	counts, err := e.store.CountAlertsByStatus(ctx)
	if err != nil {
		return 0, 0, e.fail(view, err)
	}
	for _, n := range counts {
		alerts += n
	}
	return transactions, alerts, nil
}

func (e *StatisticsEngine) window(days int) (models.TransactionFilter, error) {
	if days < 0 || days > MaxTrendDays {
		return models.TransactionFilter{}, fmt.Errorf("%w: days must be between 0 and %d", ErrInvalidArgument, MaxTrendDays)
	}
	if days == 0 {
		return models.TransactionFilter{}, nil
	}
	today := e.startOfDay(e.now())
	return models.TransactionFilter{Since: today.AddDate(0, 0, -(days - 1))}, nil
}

func (e *StatisticsEngine) startOfDay(t time.Time) time.Time {
	y, m, d := t.In(e.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, e.loc)
}

func (e *StatisticsEngine) fail(view string, err error) error {
	metrics.StatsQueryFailuresTotal.WithLabelValues(view).Inc()
	telemetry.Logger.Error("Statistics query failed", zap.String("view", view), zap.Error(err))
	return &AggregationError{View: view, Err: err}
}

func percentage(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return round1(float64(part) / float64(whole) * 100)
}

func money(g models.GroupTotals) float64 {
	return g.Amount.Round(2).InexactFloat64()
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
