// Package api provides the HTTP handlers for the counseling booking API.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tetonam/counseling-system/internal/counseling"
	"github.com/tetonam/counseling-system/internal/drawing"
	"github.com/tetonam/counseling-system/internal/user"
)

// RequesterHeader carries the authenticated requester's email, set by the
// auth gateway in front of this service.
const RequesterHeader = "X-User-Email"

// timeLayouts accepted for reservation times. Second precision is accepted;
// minute precision is what determines the slot.
var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05"}

// Handler handles counseling booking requests.
type Handler struct {
	svc    *counseling.Service
	logger zerolog.Logger
}

// NewHandler creates a new booking API handler.
func NewHandler(svc *counseling.Service, logger zerolog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger.With().Str("component", "api").Logger(),
	}
}

// RegisterRoutes registers the booking routes on the provided router group.
// reserveMiddleware is applied to the reservation endpoint only (e.g. the
// idempotency middleware).
func (h *Handler) RegisterRoutes(router *gin.RouterGroup, reserveMiddleware ...gin.HandlerFunc) {
	g := router.Group("/counseling")

	handlers := append(reserveMiddleware, h.Reserve)
	g.POST("", handlers...)

	g.GET("/available", h.AvailableCounselors)
	g.GET("/my/student", h.StudentHistory)
	g.GET("/my/counselor", h.CounselorHistory)
	g.GET("/my/recent", h.Upcoming)
	g.GET("/my/:id", h.Detail)
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ReserveRequest is the booking request payload.
type ReserveRequest struct {
	CounselorID int64  `json:"counselorId" binding:"required"`
	Time        string `json:"time" binding:"required"`
	Type        string `json:"type"`
}

// ReserveResponse acknowledges a successful booking.
type ReserveResponse struct {
	Message    string                `json:"message"`
	Counseling *counseling.Counseling `json:"counseling"`
}

// Reserve handles POST /counseling.
func (h *Handler) Reserve(c *gin.Context) {
	email, ok := h.requester(c)
	if !ok {
		return
	}

	var req ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "INVALID_REQUEST",
			Message: err.Error(),
		})
		return
	}

	when, err := parseTime(req.Time)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "INVALID_REQUEST",
			Message: "time must be an ISO timestamp",
		})
		return
	}

	created, err := h.svc.Reserve(c.Request.Context(), email, counseling.ReserveRequest{
		CounselorID: req.CounselorID,
		Time:        when,
		Type:        req.Type,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ReserveResponse{
		Message:    "counseling reserved",
		Counseling: created,
	})
}

// AvailableCounselors handles GET /counseling/available?time=...
func (h *Handler) AvailableCounselors(c *gin.Context) {
	email, ok := h.requester(c)
	if !ok {
		return
	}

	when, err := parseTime(c.Query("time"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "INVALID_REQUEST",
			Message: "time query parameter must be an ISO timestamp",
		})
		return
	}

	counselors, err := h.svc.AvailableCounselors(c.Request.Context(), email, when)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"counselors": counselors})
}

// StudentHistory handles GET /counseling/my/student.
func (h *Handler) StudentHistory(c *gin.Context) {
	h.history(c, h.svc.StudentHistory)
}

// CounselorHistory handles GET /counseling/my/counselor.
func (h *Handler) CounselorHistory(c *gin.Context) {
	h.history(c, h.svc.CounselorHistory)
}

func (h *Handler) history(c *gin.Context, list func(ctx context.Context, email string) ([]*counseling.Counseling, error)) {
	email, ok := h.requester(c)
	if !ok {
		return
	}

	sessions, err := list(c.Request.Context(), email)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"counselings": sessions})
}

// Upcoming handles GET /counseling/my/recent.
func (h *Handler) Upcoming(c *gin.Context) {
	email, ok := h.requester(c)
	if !ok {
		return
	}

	next, err := h.svc.Upcoming(c.Request.Context(), email)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, next)
}

// Detail handles GET /counseling/my/:id.
func (h *Handler) Detail(c *gin.Context) {
	email, ok := h.requester(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "INVALID_REQUEST",
			Message: "id must be a UUID",
		})
		return
	}

	detail, err := h.svc.Detail(c.Request.Context(), email, id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// requester extracts the authenticated requester email, responding 401 when absent.
func (h *Handler) requester(c *gin.Context) (string, bool) {
	email := c.GetHeader(RequesterHeader)
	if email == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "UNAUTHORIZED",
			Message: "requester identity is required",
		})
		return "", false
	}
	return email, true
}

// respondError maps domain errors to stable API error codes.
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, counseling.ErrAlreadyReserved):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "ALREADY_RESERVED",
			Message: "this counselor is already booked at that time",
		})
	case errors.Is(err, user.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "USER_NOT_FOUND",
			Message: "requester or counselor could not be resolved",
		})
	case errors.Is(err, drawing.ErrNoDrawing):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "DRAWING_NOT_FOUND",
			Message: "a drawing submission is required before booking",
		})
	case errors.Is(err, counseling.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "COUNSELING_NOT_FOUND",
			Message: "counseling not found",
		})
	case errors.Is(err, counseling.ErrNotParticipant):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "FORBIDDEN",
			Message: "only participants may view this counseling",
		})
	case errors.Is(err, counseling.ErrLockUnavailable):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "LOCK_UNAVAILABLE",
			Message: "booking is temporarily unavailable, please retry",
		})
	default:
		h.logger.Error().Err(err).Msg("unhandled error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "INTERNAL_ERROR",
			Message: "internal server error",
		})
	}
}

// parseTime parses a reservation time in any accepted layout.
func parseTime(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
