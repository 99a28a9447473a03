package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/akylbek/payment-system/fraud-detector/internal/cache"
	"github.com/akylbek/payment-system/fraud-detector/internal/models"
	"github.com/akylbek/payment-system/fraud-detector/internal/service"
)

// StatsHandler serves the dashboard views. Each view fails on its own; a
// broken aggregation never affects the others.
type StatsHandler struct {
	engine *service.StatisticsEngine
	cache  cache.Cache
	ttl    time.Duration
	now    func() time.Time
}

// NewStatsHandler builds the handler. c may be nil to disable caching.
func NewStatsHandler(engine *service.StatisticsEngine, c cache.Cache, ttl time.Duration) *StatsHandler {
	return &StatsHandler{engine: engine, cache: c, ttl: ttl, now: time.Now}
}

func (h *StatsHandler) Dashboard(c *gin.Context) {
	cards, err := cache.Remember(c.Request.Context(), h.cache, "dashboard", h.ttl, h.engine.Dashboard)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"cards": cards, "timestamp": cards.Timestamp})
}

func (h *StatsHandler) Trends(c *gin.Context) {
	days, err := intQuery(c, "days", service.DefaultTrendDays)
	if err != nil {
		fail(c, err)
		return
	}
	trends, err := cache.Remember(c.Request.Context(), h.cache, fmt.Sprintf("trends:%d", days), h.ttl,
		func(ctx context.Context) (*models.Trends, error) { return h.engine.Trends(ctx, days) })
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, trends)
}

func (h *StatsHandler) RiskDistribution(c *gin.Context) {
	days, err := intQuery(c, "days", 0)
	if err != nil {
		fail(c, err)
		return
	}
	dist, err := cache.Remember(c.Request.Context(), h.cache, fmt.Sprintf("risk:%d", days), h.ttl,
		func(ctx context.Context) (*models.RiskDistribution, error) { return h.engine.RiskDistribution(ctx, days) })
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, dist)
}

func (h *StatsHandler) TransactionTypes(c *gin.Context) {
	days, err := intQuery(c, "days", 0)
	if err != nil {
		fail(c, err)
		return
	}
	types, err := cache.Remember(c.Request.Context(), h.cache, fmt.Sprintf("types:%d", days), h.ttl,
		func(ctx context.Context) ([]models.TransactionTypeStat, error) { return h.engine.TransactionTypes(ctx, days) })
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"transaction_types": types})
}

func (h *StatsHandler) Hotspots(c *gin.Context) {
	days, err := intQuery(c, "days", 0)
	if err != nil {
		fail(c, err)
		return
	}
	hotspots, err := cache.Remember(c.Request.Context(), h.cache, fmt.Sprintf("hotspots:%d", days), h.ttl,
		func(ctx context.Context) (*models.Hotspots, error) { return h.engine.Hotspots(ctx, days) })
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, hotspots)
}

func (h *StatsHandler) AlertsSummary(c *gin.Context) {
	limit, err := intQuery(c, "limit", service.DefaultCriticalLimit)
	if err != nil {
		fail(c, err)
		return
	}
	summary, err := cache.Remember(c.Request.Context(), h.cache, fmt.Sprintf("alerts:%d", limit), h.ttl,
		func(ctx context.Context) (*models.AlertsSummary, error) { return h.engine.AlertsSummary(ctx, limit) })
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, summary)
}

func (h *StatsHandler) AlertOutcomes(c *gin.Context) {
	outcomes, err := cache.Remember(c.Request.Context(), h.cache, "outcomes", h.ttl, h.engine.AlertOutcomes)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, outcomes)
}

// RecentTransactions is never cached; the dashboard polls it for new rows.
func (h *StatsHandler) RecentTransactions(c *gin.Context) {
	limit, err := intQuery(c, "limit", service.DefaultRecentLimit)
	if err != nil {
		fail(c, err)
		return
	}
	recent, err := h.engine.RecentTransactions(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"transactions": recent, "count": len(recent)})
}

// DailyReport serves the fraud and alerts of the day in the :date path
// parameter, formatted YYYY-MM-DD.
func (h *StatsHandler) DailyReport(c *gin.Context) {
	day := c.Param("date")
	report, err := cache.Remember(c.Request.Context(), h.cache, "daily:"+day, h.ttl,
		func(ctx context.Context) (*models.DailyReport, error) { return h.engine.DailyReport(ctx, day) })
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "report": report})
}

func (h *StatsHandler) FraudPatterns(c *gin.Context) {
	days, err := intQuery(c, "days", 0)
	if err != nil {
		fail(c, err)
		return
	}
	patterns, err := cache.Remember(c.Request.Context(), h.cache, fmt.Sprintf("patterns:%d", days), h.ttl,
		func(ctx context.Context) (*models.FraudPatterns, error) { return h.engine.FraudPatterns(ctx, days) })
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "report": patterns})
}

func (h *StatsHandler) Health(c *gin.Context) {
	transactions, alerts, err := h.engine.Totals(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"timestamp":     h.now().UTC(),
		"total_records": transactions,
		"total_alerts":  alerts,
	})
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", service.ErrInvalidArgument, name)
	}
	return n, nil
}
