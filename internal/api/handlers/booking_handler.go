package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/iAmShivaySharma/bedspace-sub002/internal/api/middleware"
	"github.com/iAmShivaySharma/bedspace-sub002/internal/engine"
	"github.com/iAmShivaySharma/bedspace-sub002/internal/models"
)

// BookingHandler handles REST requests for booking requests. All business
// rules live in the engine; this layer only parses, dispatches and maps
// errors onto HTTP statuses.
type BookingHandler struct {
	engine engine.IBookingEngine
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(eng engine.IBookingEngine) *BookingHandler {
	return &BookingHandler{engine: eng}
}

// writeEngineError translates the engine's error taxonomy into an HTTP
// response. Messages are user-facing; the wrapped detail goes to the log via
// gin's error list.
func writeEngineError(c *gin.Context, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, engine.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, engine.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "You are not allowed to perform this action"})
	case errors.Is(err, engine.ErrInvalidState):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "The booking is not in a state that allows this action"})
	case errors.Is(err, engine.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "The booking was modified concurrently, please retry"})
	case errors.Is(err, engine.ErrGatewayUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Payment service is temporarily unavailable, please retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func actorOrAbort(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication context"})
	}
	return actor, ok
}

func bookingIDOrAbort(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID"})
		return primitive.NilObjectID, false
	}
	return id, true
}

// CreateBooking handles POST /v1/booking
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var req struct {
		ListingID string `json:"listing_id" binding:"required"`
		Message   string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	listingID, err := primitive.ObjectIDFromHex(req.ListingID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID"})
		return
	}

	result, err := h.engine.Create(c.Request.Context(), actor, listingID, req.Message)
	if err != nil {
		writeEngineError(c, err)
		return
	}

	resp := gin.H{"booking": result.Booking}
	if result.Intent != nil {
		resp["payment_intent"] = result.Intent
	}
	c.JSON(http.StatusCreated, resp)
}

// ListBookings handles GET /v1/booking
func (h *BookingHandler) ListBookings(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 50
	}

	bookings, err := h.engine.ListBookings(c.Request.Context(), actor, limit)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	if bookings == nil {
		bookings = []models.BookingRequest{}
	}
	c.JSON(http.StatusOK, gin.H{"data": bookings})
}

// GetBooking handles GET /v1/booking/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	bookingID, ok := bookingIDOrAbort(c)
	if !ok {
		return
	}

	booking, err := h.engine.GetBooking(c.Request.Context(), actor, bookingID)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// ConfirmPayment handles POST /v1/booking/:id/payment/confirm
func (h *BookingHandler) ConfirmPayment(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	bookingID, ok := bookingIDOrAbort(c)
	if !ok {
		return
	}

	var req struct {
		GatewayIntentID string `json:"gateway_intent_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	result, err := h.engine.ConfirmPayment(c.Request.Context(), actor, bookingID, req.GatewayIntentID)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"booking":        result.Booking,
		"payment_intent": result.Intent,
	})
}

// Respond handles POST /v1/booking/:id/respond
func (h *BookingHandler) Respond(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	bookingID, ok := bookingIDOrAbort(c)
	if !ok {
		return
	}

	var req struct {
		Decision string `json:"decision" binding:"required"`
		Message  string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Decision != "approve" && req.Decision != "reject" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Decision must be approve or reject"})
		return
	}
	approve := req.Decision == "approve"

	// One transparent retry on a lost race: the re-read inside the engine
	// will classify the booking's new state correctly.
	booking, err := h.engine.Respond(c.Request.Context(), actor, bookingID, approve, req.Message)
	if errors.Is(err, engine.ErrConflict) {
		booking, err = h.engine.Respond(c.Request.Context(), actor, bookingID, approve, req.Message)
	}
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// CancelBooking handles POST /v1/booking/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	bookingID, ok := bookingIDOrAbort(c)
	if !ok {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	// Body is optional for cancel.
	_ = c.ShouldBindJSON(&req)

	booking, err := h.engine.Cancel(c.Request.Context(), actor, bookingID, req.Reason)
	if errors.Is(err, engine.ErrConflict) {
		booking, err = h.engine.Cancel(c.Request.Context(), actor, bookingID, req.Reason)
	}
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": booking})
}
