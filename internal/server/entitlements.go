package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	entitlementdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/entitlement/domain"
	tierdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/tier/domain"
	"github.com/gin-gonic/gin"
)

const contextDenialReasonKey = "denial_reason"

func userIDParam(c *gin.Context) string {
	return strings.TrimSpace(c.Param("user_id"))
}

// CheckStoryEntitlement never charges usage. Any failure resolving the tier
// or counters answers with an error, never with an allowed decision.
func (s *Server) CheckStoryEntitlement(c *gin.Context) {
	illustrated := false
	if raw := strings.TrimSpace(c.Query("illustrated")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			AbortWithError(c, newValidationError("illustrated", "invalid_illustrated", "illustrated must be a boolean"))
			return
		}
		illustrated = v
	}

	decision, err := s.entitlementSvc.CanGenerateStory(c.Request.Context(), userIDParam(c), entitlementdomain.StoryRequest{
		IncludeIllustrations: illustrated,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !decision.Allowed {
		c.Set(contextDenialReasonKey, string(decision.Reason))
	}

	c.JSON(http.StatusOK, gin.H{"data": decision})
}

// RecordStoryUsage is called after a story was delivered. A failed write is
// reported in the body, not as an HTTP error, because the story is already
// out and must not be revoked.
func (s *Server) RecordStoryUsage(c *gin.Context) {
	var req entitlementdomain.StoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err := s.entitlementSvc.RecordUsage(c.Request.Context(), userIDParam(c), req)
	if errors.Is(err, entitlementdomain.ErrInvalidUserID) {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"recorded": err == nil,
		"bucket":   req.Bucket(),
	}})
}

func (s *Server) GetUsageSummary(c *gin.Context) {
	summary, err := s.entitlementSvc.GetUsageSummary(c.Request.Context(), userIDParam(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) CheckFeatureAccess(c *gin.Context) {
	feature, ok := tierdomain.ParseFeature(strings.TrimSpace(c.Param("feature")))
	if !ok {
		AbortWithError(c, newValidationError("feature", "invalid_feature", "unknown feature"))
		return
	}

	allowed := s.entitlementSvc.ValidateFeatureAccess(c.Request.Context(), userIDParam(c), feature)
	if !allowed {
		c.Set(contextDenialReasonKey, string(entitlementdomain.ReasonFeatureNotAllowed))
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"feature": feature,
		"allowed": allowed,
	}})
}

type profileCheckRequest struct {
	Kind     entitlementdomain.ProfileKind `json:"kind"`
	Existing int                           `json:"existing"`
}

func (s *Server) CheckProfileLimit(c *gin.Context) {
	var req profileCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	decision, err := s.entitlementSvc.CheckProfileLimit(c.Request.Context(), userIDParam(c), req.Kind, req.Existing)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !decision.Allowed {
		c.Set(contextDenialReasonKey, string(decision.Reason))
	}

	c.JSON(http.StatusOK, gin.H{"data": decision})
}

