package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"example.com/hdtickets/services/discovery/cache"
	"example.com/hdtickets/services/discovery/models"
	"example.com/hdtickets/services/discovery/projections"
)

const defaultListLimit = 50

// TicketResponse is the full ticket read model view.
type TicketResponse struct {
	TicketID            string                     `json:"ticket_id"`
	PlatformSource      string                     `json:"platform_source"`
	EventName           string                     `json:"event_name"`
	EventCategory       string                     `json:"event_category"`
	Venue               string                     `json:"venue"`
	EventDate           time.Time                  `json:"event_date"`
	CurrentPrice        float64                    `json:"current_price"`
	Currency            string                     `json:"currency"`
	AvailabilityStatus  string                     `json:"availability_status"`
	Quantity            int                        `json:"quantity"`
	IsHighDemand        bool                       `json:"is_high_demand"`
	Version             int64                      `json:"version"`
	FirstDiscoveredAt   time.Time                  `json:"first_discovered_at"`
	LastUpdatedAt       time.Time                  `json:"last_updated_at"`
	PriceHistory        []models.PricePoint        `json:"price_history,omitempty"`
	AvailabilityHistory []models.AvailabilityPoint `json:"availability_history,omitempty"`
}

// getTicket returns a single ticket, serving the cached summary when the
// caller does not need history.
func (s *Server) getTicket(c *gin.Context) {
	id := c.Param("id")

	if c.Query("full") != "true" {
		var summary projections.TicketSummary
		if err := s.cache.Get(c.Request.Context(), cache.TicketCacheKey(id), &summary); err == nil {
			c.JSON(http.StatusOK, summary)
			return
		}
	}

	ticket, err := s.tickets.FindByTicketID(c.Request.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("ticketID", id).Msg("Failed to load ticket")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load ticket"})
		return
	}
	if ticket == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
		return
	}

	c.JSON(http.StatusOK, toTicketResponse(ticket))
}

// listTickets returns recently updated tickets for a platform.
func (s *Server) listTickets(c *gin.Context) {
	platform := c.Query("platform")
	if platform == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "platform query parameter is required"})
		return
	}

	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	tickets, err := s.tickets.ListByPlatform(c.Request.Context(), platform, limit)
	if err != nil {
		log.Error().Err(err).Str("platform", platform).Msg("Failed to list tickets")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tickets"})
		return
	}

	responses := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		responses = append(responses, toTicketResponse(&tickets[i]))
	}

	c.JSON(http.StatusOK, gin.H{"tickets": responses})
}

// getStats returns a discovery counter for a platform and day.
func (s *Server) getStats(c *gin.Context) {
	platform := c.Param("platform")

	date := c.Query("date")
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}

	metric := c.Query("metric")
	if metric == "" {
		metric = "tickets_discovered"
	}

	count, err := s.recorder.Count(c.Request.Context(), platform, date, metric)
	if err != nil {
		log.Error().Err(err).Str("platform", platform).Msg("Failed to read statistics")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read statistics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"platform": platform,
		"date":     date,
		"metric":   metric,
		"count":    count,
	})
}

func toTicketResponse(ticket *models.Ticket) TicketResponse {
	response := TicketResponse{
		TicketID:           ticket.TicketID,
		PlatformSource:     ticket.PlatformSource,
		EventName:          ticket.EventName,
		EventCategory:      ticket.EventCategory,
		Venue:              ticket.Venue,
		EventDate:          ticket.EventDate,
		CurrentPrice:       ticket.CurrentPrice,
		Currency:           ticket.Currency,
		AvailabilityStatus: ticket.AvailabilityStatus,
		Quantity:           ticket.Quantity,
		IsHighDemand:       ticket.IsHighDemand,
		Version:            ticket.Version,
		FirstDiscoveredAt:  ticket.FirstDiscoveredAt,
		LastUpdatedAt:      ticket.LastUpdatedAt,
	}

	if len(ticket.PriceHistory) > 0 {
		if err := json.Unmarshal(ticket.PriceHistory, &response.PriceHistory); err != nil {
			log.Warn().Err(err).Str("ticketID", ticket.TicketID).Msg("Corrupt price history")
		}
	}
	if len(ticket.AvailabilityHistory) > 0 {
		if err := json.Unmarshal(ticket.AvailabilityHistory, &response.AvailabilityHistory); err != nil {
			log.Warn().Err(err).Str("ticketID", ticket.TicketID).Msg("Corrupt availability history")
		}
	}

	return response
}
