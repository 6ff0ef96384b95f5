package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBodyBytes = 1024 * 1024 // 1 MiB

// HandleStripeWebhook answers 2xx only once the event is applied and
// journaled. Any other answer makes Stripe redeliver.
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.httpMetrics.ObserveWebhook("invalid_body")
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			AbortWithError(c, newValidationError("body", "payload_too_large", "webhook payload too large"))
			return
		}
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.billingSvc.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		s.httpMetrics.ObserveWebhook("error")
		AbortWithError(c, err)
		return
	}

	outcome := string(result.Outcome)
	if result.Duplicate {
		outcome = "duplicate"
	}
	s.httpMetrics.ObserveWebhook(outcome)

	c.JSON(http.StatusOK, gin.H{
		"received": true,
		"outcome":  outcome,
	})
}

// ReconcileBilling is the user-triggered "refresh my subscription" action.
func (s *Server) ReconcileBilling(c *gin.Context) {
	userID := userIDParam(c)
	tier, err := s.billingSvc.ReconcileFromSource(c.Request.Context(), userID)
	if err != nil {
		s.log.Warn("billing reconcile failed", zap.String("user_id", userID), zap.Error(err))
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tier})
}
