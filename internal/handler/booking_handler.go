package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/camhoccode/seatflash/internal/apperr"
	"github.com/camhoccode/seatflash/internal/booking"
)

// BookingHandler translates HTTP requests into booking.Service calls
// and renders its results/errors as JSON, grounded on the teacher's
// handler style of one method per route with no business logic
// leaking into the transport layer.
type BookingHandler struct {
	svc *booking.Service
}

// NewBookingHandler constructs a BookingHandler.
func NewBookingHandler(svc *booking.Service) *BookingHandler {
	return &BookingHandler{svc: svc}
}

func writeAppErr(c echo.Context, err *apperr.AppError) error {
	return c.JSON(err.HTTPStatus, err)
}

// HoldSeats handles POST /v1/bookings/hold.
func (h *BookingHandler) HoldSeats(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}
	idemKey := c.Request().Header.Get("X-Idempotency-Key")
	if idemKey == "" {
		return writeAppErr(c, apperr.Validation("VALIDATION", "X-Idempotency-Key header is required", nil))
	}
	var req booking.HoldSeatsRequest
	if err := c.Bind(&req); err != nil {
		return writeAppErr(c, apperr.Validation("VALIDATION", "invalid request body", nil))
	}
	resp, appErr := h.svc.HoldSeats(c.Request().Context(), userID, idemKey, req)
	if appErr != nil {
		return writeAppErr(c, appErr)
	}
	return c.JSON(http.StatusCreated, resp)
}

// CancelBooking handles DELETE /v1/bookings/:id.
func (h *BookingHandler) CancelBooking(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return writeAppErr(c, apperr.Validation("VALIDATION", "invalid booking id", nil))
	}
	b, appErr := h.svc.CancelBooking(c.Request().Context(), id, userID)
	if appErr != nil {
		return writeAppErr(c, appErr)
	}
	return c.JSON(http.StatusOK, b)
}

// GetBooking handles GET /v1/bookings/:id.
func (h *BookingHandler) GetBooking(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return writeAppErr(c, apperr.Validation("VALIDATION", "invalid booking id", nil))
	}
	b, appErr := h.svc.GetBooking(c.Request().Context(), id, userID)
	if appErr != nil {
		return writeAppErr(c, appErr)
	}
	return c.JSON(http.StatusOK, b)
}
