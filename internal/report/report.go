// Package report renders the statistics views for the command line: tables
// for the headline numbers and a stacked bar chart of the daily trend.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/akylbek/payment-system/fraud-detector/internal/models"
	"github.com/akylbek/payment-system/fraud-detector/internal/service"
)

// ErrNoData is returned by RenderTrends when every day is empty.
var ErrNoData = errors.New("no transactions in the trend window")

type Snapshot struct {
	Dashboard *models.DashboardCards
	Trends    *models.Trends
	Risk      *models.RiskDistribution
	Types     []models.TransactionTypeStat
	Hotspots  *models.Hotspots
	Alerts    *models.AlertsSummary
}

// Collect reads every view the report prints. days bounds the trend and the
// windowed views.
func Collect(ctx context.Context, engine *service.StatisticsEngine, days int) (*Snapshot, error) {
	var s Snapshot
	var err error

	if s.Dashboard, err = engine.Dashboard(ctx); err != nil {
		return nil, err
	}
	if s.Trends, err = engine.Trends(ctx, days); err != nil {
		return nil, err
	}
	if s.Risk, err = engine.RiskDistribution(ctx, days); err != nil {
		return nil, err
	}
	if s.Types, err = engine.TransactionTypes(ctx, days); err != nil {
		return nil, err
	}
	if s.Hotspots, err = engine.Hotspots(ctx, days); err != nil {
		return nil, err
	}
	if s.Alerts, err = engine.AlertsSummary(ctx, service.DefaultCriticalLimit); err != nil {
		return nil, err
	}
	return &s, nil
}

// WriteTables prints the snapshot as plain text tables.
func WriteTables(w io.Writer, s *Snapshot) {
	fmt.Fprintf(w, "Dashboard (%s)\n", s.Dashboard.Timestamp.Format("2006-01-02 15:04 MST"))
	cards := newTable(w, "Metric", "Today", "Change %")
	for _, card := range []models.DashboardCard{s.Dashboard.TotalTransactions, s.Dashboard.FraudDetected, s.Dashboard.Blocked} {
		cards.Append([]string{card.Label, fmt.Sprintf("%.0f", card.Value), fmt.Sprintf("%+.1f", card.ChangePercent)})
	}
	cards.Render()

	fmt.Fprintf(w, "\nRisk distribution (%d transactions)\n", s.Risk.TotalTransactions)
	risk := newTable(w, "Risk level", "Count", "Amount", "Share %")
	for _, level := range models.RiskLevels {
		b := s.Risk.Buckets[level]
		risk.Append([]string{string(level), fmt.Sprint(b.Count), fmt.Sprintf("%.2f", b.Amount), fmt.Sprintf("%.1f", b.Percentage)})
	}
	risk.Render()

	fmt.Fprintln(w, "\nTransaction types")
	types := newTable(w, "Type", "Total", "Fraud", "Fraud %", "Amount")
	for _, t := range s.Types {
		types.Append([]string{t.Type, fmt.Sprint(t.Total), fmt.Sprint(t.FraudCount), fmt.Sprintf("%.1f", t.FraudPercentage), fmt.Sprintf("%.2f", t.Amount)})
	}
	types.Render()

	fmt.Fprintf(w, "\nFraud hotspots (%d of %d mapped)\n", s.Hotspots.MappedLocations, s.Hotspots.TotalLocations)
	hotspots := newTable(w, "Location", "Fraud", "Amount", "Lat", "Lng")
	for _, h := range s.Hotspots.Hotspots {
		lat, lng := "-", "-"
		if h.Coordinates != nil {
			lat, lng = fmt.Sprintf("%.4f", h.Coordinates.Lat), fmt.Sprintf("%.4f", h.Coordinates.Lng)
		}
		hotspots.Append([]string{h.Location, fmt.Sprint(h.FraudCount), fmt.Sprintf("%.2f", h.Amount), lat, lng})
	}
	hotspots.Render()

	fmt.Fprintf(w, "\nAlerts (%d total)\n", s.Alerts.Total)
	alerts := newTable(w, "Status", "Count")
	statuses := make([]string, 0, len(s.Alerts.ByStatus))
	for status := range s.Alerts.ByStatus {
		statuses = append(statuses, string(status))
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		alerts.Append([]string{status, fmt.Sprint(s.Alerts.ByStatus[models.AlertStatus(status)])})
	}
	alerts.Render()
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetHeader(header)
	t.SetAutoFormatHeaders(false)
	return t
}

var (
	normalColor = drawing.Color{R: 77, G: 184, B: 255, A: 255}
	fraudColor  = drawing.Color{R: 235, G: 87, B: 87, A: 255}
	reviewColor = drawing.Color{R: 252, G: 201, B: 100, A: 255}
)

// RenderTrends draws one stacked bar per day as a PNG.
func RenderTrends(w io.Writer, trends *models.Trends) error {
	total := 0
	bars := make([]chart.StackedBar, 0, len(trends.Points))
	for _, p := range trends.Points {
		total += p.Total
		bars = append(bars, chart.StackedBar{
			Name: p.DateFormatted,
			Values: []chart.Value{
				{Label: "normal", Value: float64(p.Normal), Style: chart.Style{FillColor: normalColor, StrokeColor: normalColor}},
				{Label: "fraud", Value: float64(p.Fraudulent), Style: chart.Style{FillColor: fraudColor, StrokeColor: fraudColor}},
				{Label: "review", Value: float64(p.UnderReview), Style: chart.Style{FillColor: reviewColor, StrokeColor: reviewColor}},
			},
		})
	}
	if total == 0 {
		return ErrNoData
	}

	graph := chart.StackedBarChart{
		Title: fmt.Sprintf("Transactions, %s", trends.Period),
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		Width:  1000,
		Height: 400,
		Bars:   bars,
	}
	return graph.Render(chart.PNG, w)
}
