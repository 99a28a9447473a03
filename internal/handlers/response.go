package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/akylbek/payment-system/fraud-detector/internal/classifier"
	"github.com/akylbek/payment-system/fraud-detector/internal/features"
	"github.com/akylbek/payment-system/fraud-detector/internal/repository"
	"github.com/akylbek/payment-system/fraud-detector/internal/service"
)

// statusFor maps a service error onto an HTTP status code.
func statusFor(err error) int {
	var malformed *features.MalformedInputError
	switch {
	case errors.As(err, &malformed), errors.Is(err, service.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, classifier.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ok wraps a statistics view the way the dashboard expects it.
func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
}
