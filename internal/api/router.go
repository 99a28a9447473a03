package api

import (
	"github.com/gin-gonic/gin"

	"github.com/akylbek/payment-system/fraud-detector/internal/handlers"
	"github.com/akylbek/payment-system/fraud-detector/internal/metrics"
	"github.com/akylbek/payment-system/fraud-detector/internal/telemetry"
)

const ServiceName = "fraud-detector"

type Handlers struct {
	Health       *handlers.HealthHandler
	Prediction   *handlers.PredictionHandler
	Model        *handlers.ModelInfoHandler
	Transactions *handlers.TransactionHandler
	Alerts       *handlers.AlertHandler
	Stats        *handlers.StatsHandler
}

func NewRouter(h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())
	r.Use(metrics.Middleware())

	r.GET("/metrics", metrics.Handler())
	r.GET("/health", h.Health.Health)

	api := r.Group("/api")
	api.POST("/predict", h.Prediction.Predict)
	api.POST("/predict/batch", h.Prediction.PredictBatch)
	api.GET("/model-info", h.Model.ModelInfo)

	api.GET("/transactions", h.Transactions.ListTransactions)
	api.GET("/transactions/:id", h.Transactions.GetTransaction)
	api.POST("/transactions/:id/review", h.Transactions.ReviewTransaction)

	api.GET("/alerts", h.Alerts.ListAlerts)
	api.POST("/alerts/:id/update", h.Alerts.UpdateAlert)

	reports := api.Group("/reports")
	reports.GET("/daily/:date", h.Stats.DailyReport)
	reports.GET("/patterns", h.Stats.FraudPatterns)

	stats := api.Group("/stats")
	stats.GET("/dashboard", h.Stats.Dashboard)
	stats.GET("/trends", h.Stats.Trends)
	stats.GET("/risk-distribution", h.Stats.RiskDistribution)
	stats.GET("/transaction-types", h.Stats.TransactionTypes)
	stats.GET("/hotspots", h.Stats.Hotspots)
	stats.GET("/alerts/summary", h.Stats.AlertsSummary)
	stats.GET("/alerts/outcomes", h.Stats.AlertOutcomes)
	stats.GET("/recent-transactions", h.Stats.RecentTransactions)
	stats.GET("/health", h.Stats.Health)

	return r
}
