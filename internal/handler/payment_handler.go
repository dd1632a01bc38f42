package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/camhoccode/seatflash/internal/apperr"
	"github.com/camhoccode/seatflash/internal/gateway"
	"github.com/camhoccode/seatflash/internal/payment"
)

// PaymentHandler translates HTTP requests into payment.Service calls.
type PaymentHandler struct {
	svc    *payment.Service
	signer *gateway.WebhookSigner
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(svc *payment.Service, signer *gateway.WebhookSigner) *PaymentHandler {
	return &PaymentHandler{svc: svc, signer: signer}
}

// CreatePayment handles POST /v1/payments.
func (h *PaymentHandler) CreatePayment(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}
	idemKey := c.Request().Header.Get("X-Idempotency-Key")
	if idemKey == "" {
		return writeAppErr(c, apperr.Validation("VALIDATION", "X-Idempotency-Key header is required", nil))
	}
	var req payment.CreatePaymentRequest
	if err := c.Bind(&req); err != nil {
		return writeAppErr(c, apperr.Validation("VALIDATION", "invalid request body", nil))
	}
	// POST /v1/bookings/:id/confirm supplies booking_id via the path.
	if idParam := c.Param("id"); idParam != "" {
		id, err := strconv.ParseUint(idParam, 10, 64)
		if err != nil {
			return writeAppErr(c, apperr.Validation("VALIDATION", "invalid booking id", nil))
		}
		req.BookingID = id
	}
	resp, appErr := h.svc.CreatePayment(c.Request().Context(), userID, idemKey, req)
	if appErr != nil {
		return writeAppErr(c, appErr)
	}
	status := http.StatusCreated
	if resp.Status != payment.StatusProcessing {
		status = http.StatusOK
	}
	return c.JSON(status, resp)
}

// HandleWebhook handles POST /v1/payments/webhook/:provider. The
// signature is verified on the raw body before any JSON decoding, per
// spec.md §4.E/§9: "refuse unsigned or malformed signatures at the
// collaborator boundary."
func (h *PaymentHandler) HandleWebhook(c echo.Context) error {
	provider := c.Param("provider")
	if !gateway.ValidProvider(provider) {
		return writeAppErr(c, apperr.Validation("BAD_PROVIDER", "unknown payment provider", nil))
	}
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return writeAppErr(c, apperr.Validation("VALIDATION", "unreadable request body", nil))
	}
	signature := c.Request().Header.Get("X-Signature")
	if !h.signer.Verify(provider, body, signature) {
		return writeAppErr(c, apperr.Validation("VALIDATION", "invalid webhook signature", nil))
	}

	var payload payment.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return writeAppErr(c, apperr.Validation("VALIDATION", "invalid webhook payload", nil))
	}
	if appErr := h.svc.HandleWebhook(c.Request().Context(), provider, payload); appErr != nil {
		return writeAppErr(c, appErr)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "ok"})
}

// GetPayment handles GET /v1/payments/:id.
func (h *PaymentHandler) GetPayment(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return writeAppErr(c, apperr.Validation("VALIDATION", "invalid payment id", nil))
	}
	p, appErr := h.svc.GetPayment(c.Request().Context(), id, userID)
	if appErr != nil {
		return writeAppErr(c, appErr)
	}
	return c.JSON(http.StatusOK, p)
}
