package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/fraud-detector/internal/features"
	"github.com/akylbek/payment-system/fraud-detector/internal/models"
	"github.com/akylbek/payment-system/fraud-detector/internal/service"
	"github.com/akylbek/payment-system/fraud-detector/internal/telemetry"
)

type PredictionHandler struct {
	evaluator service.TransactionEvaluator
}

func NewPredictionHandler(evaluator service.TransactionEvaluator) *PredictionHandler {
	return &PredictionHandler{evaluator: evaluator}
}

// Predict scores one raw transaction. The body is stored verbatim next to
// the outcome.
func (h *PredictionHandler) Predict(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil || len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No data provided"})
		return
	}

	var raw models.RawTransaction
	if err := json.Unmarshal(body, &raw); err != nil {
		telemetry.Logger.Error("Error decoding transaction", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "message": err.Error()})
		return
	}

	result, err := h.evaluator.Evaluate(c.Request.Context(), &raw, body)
	if err != nil {
		var malformed *features.MalformedInputError
		if errors.As(err, &malformed) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction", "fields": malformed.Fields})
			return
		}
		telemetry.Logger.Error("Error evaluating transaction", zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": "Prediction failed", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

type batchRequest struct {
	Transactions []json.RawMessage `json:"transactions" binding:"required"`
}

// PredictBatch scores up to service.MaxBatchSize transactions. Items that
// fail are reported in place; the request only fails when the model is
// unavailable.
func (h *PredictionHandler) PredictBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid format",
			"message": `send {"transactions": [...]}`,
		})
		return
	}

	res, err := service.EvaluateBatch(c.Request.Context(), h.evaluator, req.Transactions)
	if err != nil {
		telemetry.Logger.Error("Error evaluating batch", zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": "Batch prediction failed", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"summary":   res.Summary,
		"results":   res.Results,
		"timestamp": res.Timestamp,
	})
}
