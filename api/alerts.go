package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/hdtickets/services/discovery/models"
)

// AlertRuleRequest creates a new alert rule. At least one matching criterion
// must be present; validation beyond tags happens in the handler.
type AlertRuleRequest struct {
	UserID           string  `json:"user_id" binding:"required"`
	MonitorID        string  `json:"monitor_id"`
	NameContains     string  `json:"name_contains"`
	VenueContains    string  `json:"venue_contains"`
	CategoryContains string  `json:"category_contains"`
	MaxPrice         float64 `json:"max_price" binding:"omitempty,gt=0"`
	Currency         string  `json:"currency" binding:"required_with=MaxPrice,omitempty,len=3,uppercase"`
}

// createAlertRule registers a user alert rule.
func (s *Server) createAlertRule(c *gin.Context) {
	var req AlertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.NameContains == "" && req.VenueContains == "" && req.CategoryContains == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one matching criterion is required"})
		return
	}

	rule := &models.AlertRule{
		RuleID:           uuid.New().String(),
		UserID:           req.UserID,
		MonitorID:        req.MonitorID,
		NameContains:     req.NameContains,
		VenueContains:    req.VenueContains,
		CategoryContains: req.CategoryContains,
		MaxPrice:         req.MaxPrice,
		Currency:         req.Currency,
		Active:           true,
	}

	if err := s.alerts.Create(c.Request.Context(), rule); err != nil {
		log.Error().Err(err).Str("userID", req.UserID).Msg("Failed to create alert rule")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create alert rule"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"rule_id": rule.RuleID})
}
