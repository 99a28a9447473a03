package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/fraud-detector/internal/models"
	"github.com/akylbek/payment-system/fraud-detector/internal/service"
	"github.com/akylbek/payment-system/fraud-detector/internal/telemetry"
)

const defaultReviewer = "admin"

type AlertHandler struct {
	reviews *service.ReviewService
}

func NewAlertHandler(reviews *service.ReviewService) *AlertHandler {
	return &AlertHandler{reviews: reviews}
}

func (h *AlertHandler) ListAlerts(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(service.DefaultAlertListLimit)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
		return
	}

	alerts, err := h.reviews.ListAlerts(c.Request.Context(), models.AlertStatus(c.Query("status")), limit)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(alerts),
		"alerts":  alerts,
	})
}

func (h *AlertHandler) UpdateAlert(c *gin.Context) {
	var update models.AlertStatusUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if update.ReviewedBy == "" {
		update.ReviewedBy = defaultReviewer
	}

	alertID := c.Param("id")
	alert, err := h.reviews.UpdateAlert(c.Request.Context(), alertID, update)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			telemetry.Logger.Error("Error updating alert", zap.String("alert_id", alertID), zap.Error(err))
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Alert updated successfully",
		"alert":   alert,
	})
}
