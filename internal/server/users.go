package server

import (
	"net/http"
	"strings"

	usagedomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/usage/domain"
	"github.com/gin-gonic/gin"
)

// RegisterUser is called by the identity provider hook after sign-up.
func (s *Server) RegisterUser(c *gin.Context) {
	profile, err := s.profileSvc.Register(c.Request.Context(), userIDParam(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": profile})
}

type adjustUsageRequest struct {
	UserID       string                   `json:"user_id"`
	ResourceKind usagedomain.ResourceKind `json:"resource_kind"`
	SubjectID    string                   `json:"subject_id"`
	PeriodKey    string                   `json:"period_key"`
	Delta        int64                    `json:"delta"`
	Reason       string                   `json:"reason"`
	Actor        string                   `json:"actor"`
}

// AdjustUsage corrects a counter by hand. An empty period means the current
// month.
func (s *Server) AdjustUsage(c *gin.Context) {
	var req adjustUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	periodKey := strings.TrimSpace(req.PeriodKey)
	if periodKey == "" {
		periodKey = s.usageSvc.CurrentPeriod().Key
	}
	key := usagedomain.CounterKey{
		UserID:    req.UserID,
		Kind:      req.ResourceKind,
		SubjectID: req.SubjectID,
		PeriodKey: periodKey,
	}

	consumed, err := s.usageSvc.AdjustCount(c.Request.Context(), usagedomain.AdjustRequest{
		Key:    key,
		Delta:  req.Delta,
		Reason: req.Reason,
		Actor:  strings.TrimSpace(req.Actor),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"user_id":       key.UserID,
		"resource_kind": key.Kind,
		"subject_id":    key.SubjectID,
		"period_key":    key.PeriodKey,
		"consumed":      consumed,
	}})
}
