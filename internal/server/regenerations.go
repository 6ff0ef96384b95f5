package server

import (
	"net/http"
	"strings"

	regendomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/regeneration/domain"
	"github.com/gin-gonic/gin"
)

func characterIDParam(c *gin.Context) string {
	return strings.TrimSpace(c.Param("character_id"))
}

func (s *Server) GetRegenerations(c *gin.Context) {
	status, err := s.regenerationSvc.GetRemainingRegenerations(c.Request.Context(), userIDParam(c), characterIDParam(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": status})
}

// RecordRegeneration checks the allowance, then charges one regeneration.
// The charge itself reports failure in the body like story usage does.
func (s *Server) RecordRegeneration(c *gin.Context) {
	ctx := c.Request.Context()
	userID, characterID := userIDParam(c), characterIDParam(c)

	allowed, err := s.regenerationSvc.CanGenerate(ctx, userID, characterID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !allowed {
		status, err := s.regenerationSvc.GetRemainingRegenerations(ctx, userID, characterID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Set(contextDenialReasonKey, regendomain.ReasonLimitReached)
		c.JSON(http.StatusOK, gin.H{"data": gin.H{
			"allowed":        false,
			"recorded":       false,
			"reason":         regendomain.ReasonLimitReached,
			"character_id":   status.CharacterID,
			"used":           status.Used,
			"limit":          status.Limit,
			"remaining":      status.Remaining,
			"resets_in_days": status.ResetsInDays,
			"resets_at":      status.ResetsAt,
		}})
		return
	}

	recorded := s.regenerationSvc.IncrementUsage(ctx, userID, characterID)
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"allowed":  true,
		"recorded": recorded,
	}})
}
