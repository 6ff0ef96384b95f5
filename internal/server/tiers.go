package server

import (
	"net/http"
	"strings"

	tierdomain "github.com/benjask5360/tuckandtaleMVP-sub002/internal/tier/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) ListTiers(c *gin.Context) {
	tiers, err := s.tierSvc.ListActiveTiers(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tiers})
}

func (s *Server) GetUserTier(c *gin.Context) {
	tier, err := s.tierSvc.GetUserTier(c.Request.Context(), userIDParam(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tier})
}

// UpsertTier replaces the whole definition of the tier named in the path.
func (s *Server) UpsertTier(c *gin.Context) {
	var req tierdomain.Tier
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req.ID = strings.TrimSpace(c.Param("tier_id"))
	req.Name = strings.TrimSpace(req.Name)

	tier, err := s.tierSvc.UpsertTier(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tier})
}
