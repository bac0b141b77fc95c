package handler

import (
	"errors"
	"strconv"

	"github.com/GearGrab/service-booking/internal/application"
	bookingDomain "github.com/GearGrab/service-booking/internal/domain/booking"
	"github.com/GearGrab/service-booking/internal/platform/auth"
	"github.com/GearGrab/service-booking/internal/platform/middleware"
	"github.com/GearGrab/service-booking/internal/platform/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BookingHandler handles HTTP requests for booking operations.
type BookingHandler struct {
	service     *application.BookingService
	resolutions *application.ResolutionService
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(service *application.BookingService, resolutions *application.ResolutionService) *BookingHandler {
	return &BookingHandler{service: service, resolutions: resolutions}
}

// RegisterRoutes registers all booking routes on the given router group.
func (h *BookingHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)

	bookings := r.Group("/api/v1/bookings")
	bookings.Use(authMW)
	{
		bookings.POST("", middleware.RequireRole(auth.RoleRenter), h.RequestBooking)
		bookings.GET("", h.ListBookings)
		bookings.GET("/:id", h.GetBooking)
		bookings.POST("/:id/approve", h.ResolveBooking)
		bookings.POST("/:id/activate", h.ActivateRental)
		bookings.POST("/:id/complete", h.CompleteRental)
		bookings.POST("/:id/dispute", h.OpenDispute)
		bookings.POST("/:id/cancel", h.CancelBooking)
	}
}

// ResolveRequest is the owner's decision on a pending booking.
type ResolveRequest struct {
	Action string `json:"action" binding:"required,oneof=approve deny"`
	Reason string `json:"reason" binding:"required_if=Action deny,max=500"`
}

// ResolveResponse is the body of a successful or already-processed resolution.
type ResolveResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	ChargeID string `json:"charge_id,omitempty"`
	RefundID string `json:"refund_id,omitempty"`
}

// ResolveBooking handles POST /api/v1/bookings/:id/approve.
func (h *BookingHandler) ResolveBooking(c *gin.Context) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid booking ID")
		return
	}

	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, bindingMessage(err))
		return
	}
	action, err := application.ParseAction(req.Action)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.resolutions.ResolveBooking(c.Request.Context(), application.ResolveCommand{
		BookingID: bookingID,
		ActorID:   userID,
		Action:    action,
		Reason:    req.Reason,
	})
	if err != nil {
		if errors.Is(err, bookingDomain.ErrAlreadyResolved) && result != nil {
			response.Success(c, ResolveResponse{Status: result.Status, Message: result.Message})
			return
		}
		response.Error(c, err)
		return
	}

	response.Success(c, ResolveResponse{
		Status:   result.Status,
		Message:  result.Message,
		ChargeID: result.ChargeID,
		RefundID: result.RefundID,
	})
}

// RequestBooking handles POST /api/v1/bookings.
func (h *BookingHandler) RequestBooking(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	var req application.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, bindingMessage(err))
		return
	}

	result, err := h.service.RequestBooking(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// ListBookings handles GET /api/v1/bookings. Callers see bookings they own or rent.
func (h *BookingHandler) ListBookings(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	page, limit := parsePagination(c)
	result, err := h.service.ListBookings(c.Request.Context(), userID, c.Query("status"), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, result.Items, result.Total, result.Page, result.Limit)
}

// GetBooking handles GET /api/v1/bookings/:id.
func (h *BookingHandler) GetBooking(c *gin.Context) {
	bookingID, actor, ok := bookingAndActor(c)
	if !ok {
		return
	}

	result, err := h.service.GetBooking(c.Request.Context(), bookingID, actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// ActivateRental handles POST /api/v1/bookings/:id/activate.
func (h *BookingHandler) ActivateRental(c *gin.Context) {
	bookingID, actor, ok := bookingAndActor(c)
	if !ok {
		return
	}

	result, err := h.service.ActivateRental(c.Request.Context(), bookingID, actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// CompleteRental handles POST /api/v1/bookings/:id/complete.
func (h *BookingHandler) CompleteRental(c *gin.Context) {
	bookingID, actor, ok := bookingAndActor(c)
	if !ok {
		return
	}

	result, err := h.service.CompleteRental(c.Request.Context(), bookingID, actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

type reasonRequest struct {
	Reason string `json:"reason" binding:"required,max=1000"`
}

// OpenDispute handles POST /api/v1/bookings/:id/dispute.
func (h *BookingHandler) OpenDispute(c *gin.Context) {
	bookingID, actor, ok := bookingAndActor(c)
	if !ok {
		return
	}

	var body reasonRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, bindingMessage(err))
		return
	}

	result, err := h.service.OpenDispute(c.Request.Context(), bookingID, actor, body.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// CancelBooking handles POST /api/v1/bookings/:id/cancel.
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	bookingID, actor, ok := bookingAndActor(c)
	if !ok {
		return
	}

	var body reasonRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, bindingMessage(err))
		return
	}

	result, err := h.service.CancelBooking(c.Request.Context(), bookingID, actor, body.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// bookingAndActor parses the :id param and the caller. It writes the error
// response itself and reports false when either is missing.
func bookingAndActor(c *gin.Context) (uuid.UUID, application.Actor, bool) {
	bookingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid booking ID")
		return uuid.Nil, application.Actor{}, false
	}

	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return uuid.Nil, application.Actor{}, false
	}
	role, _ := middleware.GetUserRole(c)

	return bookingID, application.Actor{ID: userID, Role: role}, true
}

// parsePagination extracts page and limit query parameters with defaults.
func parsePagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	return page, limit
}
