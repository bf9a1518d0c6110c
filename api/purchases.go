package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"example.com/hdtickets/services/discovery/domain"
	"example.com/hdtickets/services/discovery/purchase"
)

// PurchaseRequest starts an automated purchase for a discovered ticket.
type PurchaseRequest struct {
	UserID         string `json:"user_id" binding:"required"`
	TicketID       string `json:"ticket_id" binding:"required"`
	PaymentMethod  string `json:"payment_method" binding:"required"`
	BillingAddress string `json:"billing_address"`
	Quantity       int    `json:"quantity" binding:"omitempty,gt=0"`
}

// createPurchase queues a purchase and runs the pipeline in the background.
func (s *Server) createPurchase(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ticket, err := s.tickets.FindByTicketID(c.Request.Context(), req.TicketID)
	if err != nil {
		log.Error().Err(err).Str("ticketID", req.TicketID).Msg("Failed to load ticket")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load ticket"})
		return
	}
	if ticket == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
		return
	}

	status := domain.ParseAvailabilityStatus(ticket.AvailabilityStatus)
	if !status.IsPurchasable() {
		c.JSON(http.StatusConflict, gin.H{"error": "ticket is not purchasable", "availability": ticket.AvailabilityStatus})
		return
	}

	price, err := domain.NewPrice(ticket.CurrentPrice, ticket.Currency)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "ticket has no valid price"})
		return
	}

	purchaseID, err := s.engine.Initiate(
		c.Request.Context(),
		req.UserID,
		req.TicketID,
		price,
		ticket.PlatformSource,
		req.PaymentMethod,
		req.BillingAddress,
		req.Quantity,
	)
	if err != nil {
		switch {
		case errors.Is(err, purchase.ErrPurchaseInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, purchase.ErrUnknownPlatform):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			log.Error().Err(err).Str("ticketID", req.TicketID).Msg("Failed to initiate purchase")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to initiate purchase"})
		}
		return
	}

	// The pipeline outlives the request
	go func() {
		if err := s.engine.Execute(context.Background(), purchaseID); err != nil {
			log.Error().Err(err).Str("purchaseID", purchaseID).Msg("Purchase execution error")
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"purchase_id": purchaseID, "status": string(domain.PurchaseQueued)})
}

// getPurchase returns the purchase read model row.
func (s *Server) getPurchase(c *gin.Context) {
	id := c.Param("id")

	row, err := s.purchases.FindByPurchaseID(c.Request.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("purchaseID", id).Msg("Failed to load purchase")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load purchase"})
		return
	}
	if row == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "purchase not found"})
		return
	}

	c.JSON(http.StatusOK, row)
}

// cancelPurchase aborts a purchase whose pipeline has not started.
func (s *Server) cancelPurchase(c *gin.Context) {
	id := c.Param("id")

	if err := s.engine.Cancel(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, purchase.ErrPurchaseNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, domain.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"purchase_id": id, "status": string(domain.PurchaseCancelled)})
}

// refundPurchase marks a completed purchase refunded.
func (s *Server) refundPurchase(c *gin.Context) {
	id := c.Param("id")

	if err := s.engine.Refund(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, purchase.ErrPurchaseNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, domain.ErrInvalidTransition):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"purchase_id": id, "status": string(domain.PurchaseRefunded)})
}
