package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/akylbek/payment-system/fraud-detector/internal/classifier"
)

type ModelInfoHandler struct {
	info        *classifier.Info
	categorical []string
}

// NewModelInfoHandler describes the model behind the prediction endpoints.
// info is nil when no model is loaded.
func NewModelInfoHandler(info *classifier.Info, categorical []string) *ModelInfoHandler {
	return &ModelInfoHandler{info: info, categorical: categorical}
}

func (h *ModelInfoHandler) ModelInfo(c *gin.Context) {
	if h.info == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Model not loaded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"model_type":           h.info.Model,
		"version":              h.info.Version,
		"features_count":       h.info.Features,
		"source":               h.info.Source,
		"categorical_features": h.categorical,
		"status":               "ready",
	})
}
