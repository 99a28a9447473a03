package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/fraud-detector/internal/models"
	"github.com/akylbek/payment-system/fraud-detector/internal/service"
	"github.com/akylbek/payment-system/fraud-detector/internal/telemetry"
)

type TransactionHandler struct {
	reviews *service.ReviewService
}

func NewTransactionHandler(reviews *service.ReviewService) *TransactionHandler {
	return &TransactionHandler{reviews: reviews}
}

type transactionQuery struct {
	IsFraud   *bool  `form:"is_fraud"`
	RiskLevel string `form:"risk_level" binding:"omitempty,oneof=Low Medium High"`
	Action    string `form:"action" binding:"omitempty,oneof=ALLOW REVIEW BLOCK"`
	MinAmount string `form:"min_amount"`
	MaxAmount string `form:"max_amount"`
	Type      string `form:"type"`
	Location  string `form:"location"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Skip      int    `form:"skip" binding:"omitempty,min=0"`
}

func (q transactionQuery) filter() (models.TransactionFilter, error) {
	f := models.TransactionFilter{
		IsFraud:   q.IsFraud,
		RiskLevel: models.RiskLevel(q.RiskLevel),
		Action:    models.Action(q.Action),
		Type:      models.TransactionType(q.Type),
		Location:  q.Location,
		Limit:     q.Limit,
		Skip:      q.Skip,
	}
	for _, bound := range []struct {
		raw  string
		dest **decimal.Decimal
	}{{q.MinAmount, &f.MinAmount}, {q.MaxAmount, &f.MaxAmount}} {
		if bound.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(bound.raw)
		if err != nil {
			return f, err
		}
		*bound.dest = &d
	}
	return f, nil
}

func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	var q transactionQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	filter, err := q.filter()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount bound"})
		return
	}

	transactions, err := h.reviews.ListTransactions(c.Request.Context(), filter)
	if err != nil {
		telemetry.Logger.Error("Error listing transactions", zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"count":        len(transactions),
		"transactions": transactions,
	})
}

func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	rec, err := h.reviews.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		if statusFor(err) == http.StatusNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transaction"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "transaction": rec})
}

func (h *TransactionHandler) ReviewTransaction(c *gin.Context) {
	var update models.ReviewUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	rec, err := h.reviews.ReviewTransaction(c.Request.Context(), c.Param("id"), update)
	if err != nil {
		if statusFor(err) == http.StatusNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
			return
		}
		telemetry.Logger.Error("Error reviewing transaction", zap.String("transaction_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update transaction"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "transaction": rec})
}
