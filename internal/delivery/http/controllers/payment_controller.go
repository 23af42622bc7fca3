package controllers

import (
	"log/slog"
	"net/http"
	"strings"

	"festreg/internal/delivery/http/helpers"
	"festreg/internal/delivery/http/middleware"
	"festreg/internal/domain"
)

type PaymentController struct {
	Logger   *slog.Logger
	Orders   domain.PaymentOrderService
	Verifier domain.PaymentVerificationService
	Refunds  domain.RefundService
}

func NewPaymentController(logger *slog.Logger, orders domain.PaymentOrderService, verifier domain.PaymentVerificationService, refunds domain.RefundService) *PaymentController {
	return &PaymentController{
		Logger:   logger,
		Orders:   orders,
		Verifier: verifier,
		Refunds:  refunds,
	}
}

// CreatePaymentOrder godoc
// @Summary Create (or reuse) a gateway order for a registration
// @Description Idempotent per registration: a retry returns the existing open order instead of creating a duplicate on the gateway.
// @Tags payments
// @Produce json
// @Security BearerAuth
// @Param registrationID path string true "Registration ID (UUID)"
// @Success 201 {object} helpers.APIResponse "data: OrderResult"
// @Success 200 {object} helpers.APIResponse "data: OrderResult (existing order reused)"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict"
// @Failure 502 {object} helpers.APIResponse "error.code: bad_gateway"
// @Router /registrations/{registrationID}/payment-order [post]
func (c *PaymentController) CreatePaymentOrder(w http.ResponseWriter, r *http.Request) {
	id, claims, ok := c.pathIDAndClaims(w, r, "registrationID")
	if !ok {
		return
	}
	result, err := c.Orders.CreateOrder(r.Context(), id, claims.UserID)
	if err != nil {
		writeServiceError(c.Logger, w, r, err)
		return
	}
	if result.Reused {
		helpers.WriteJSONSuccess(w, http.StatusOK, result)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, result)
}

// VerifyPaymentRequest is the request body for POST /payments/verify.
type VerifyPaymentRequest struct {
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

// Validate implements helpers.Validator.
func (req *VerifyPaymentRequest) Validate() []string {
	var errs []string
	if strings.TrimSpace(req.GatewayOrderID) == "" {
		errs = append(errs, "gateway_order_id is required")
	}
	if strings.TrimSpace(req.GatewayPaymentID) == "" {
		errs = append(errs, "gateway_payment_id is required")
	}
	if strings.TrimSpace(req.Signature) == "" {
		errs = append(errs, "signature is required")
	}
	return errs
}

// VerifyPayment godoc
// @Summary Apply a client-supplied payment proof
// @Description Validates the checkout signature and confirms the registration exactly once; re-delivery of an applied proof returns already_verified.
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body controllers.VerifyPaymentRequest true "Gateway checkout proof"
// @Success 200 {object} helpers.APIResponse "data: VerificationResult"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request (signature mismatch)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /payments/verify [post]
func (c *PaymentController) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.ClaimsFromContext(r.Context()); !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	var req VerifyPaymentRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	result, err := c.Verifier.VerifyCheckout(r.Context(), req.GatewayOrderID, req.GatewayPaymentID, req.Signature)
	if err != nil {
		writeServiceError(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, result)
}

// VerifyOfflinePaymentRequest is the request body for POST /registrations/{registrationID}/offline-payment.
type VerifyOfflinePaymentRequest struct {
	Amount int64  `json:"amount"`
	Note   string `json:"note,omitempty"`
}

// Validate implements helpers.Validator.
func (req *VerifyOfflinePaymentRequest) Validate() []string {
	if req.Amount <= 0 {
		return []string{"amount must be positive"}
	}
	return nil
}

// VerifyOfflinePayment godoc
// @Summary Record an offline payment and confirm the registration (admin)
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param registrationID path string true "Registration ID (UUID)"
// @Param body body controllers.VerifyOfflinePaymentRequest true "Amount and note"
// @Success 200 {object} helpers.APIResponse "data: Payment"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict"
// @Router /registrations/{registrationID}/offline-payment [post]
func (c *PaymentController) VerifyOfflinePayment(w http.ResponseWriter, r *http.Request) {
	id, claims, ok := c.pathIDAndClaims(w, r, "registrationID")
	if !ok {
		return
	}
	var req VerifyOfflinePaymentRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	payment, err := c.Verifier.VerifyOffline(r.Context(), id, req.Amount, strings.TrimSpace(req.Note), claims.UserID)
	if err != nil {
		writeServiceError(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, payment)
}

// RefundRequest is the request body for POST /payments/{paymentID}/refund.
type RefundRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

// Validate implements helpers.Validator.
func (req *RefundRequest) Validate() []string {
	if req.Amount <= 0 {
		return []string{"amount must be positive"}
	}
	return nil
}

// ProcessRefund godoc
// @Summary Apply a partial or full refund against a captured payment (admin)
// @Description Rejected when the amount exceeds the remaining refundable balance; concurrent refunds resolve to one success and one conflict.
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param paymentID path string true "Payment ID (UUID)"
// @Param body body controllers.RefundRequest true "Amount and reason"
// @Success 200 {object} helpers.APIResponse "data: Payment"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request (exceeds refundable amount)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict"
// @Failure 502 {object} helpers.APIResponse "error.code: bad_gateway"
// @Router /payments/{paymentID}/refund [post]
func (c *PaymentController) ProcessRefund(w http.ResponseWriter, r *http.Request) {
	id, claims, ok := c.pathIDAndClaims(w, r, "paymentID")
	if !ok {
		return
	}
	var req RefundRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	payment, err := c.Refunds.ProcessRefund(r.Context(), id, req.Amount, strings.TrimSpace(req.Reason), claims.UserID)
	if err != nil {
		writeServiceError(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, payment)
}

func (c *PaymentController) pathIDAndClaims(w http.ResponseWriter, r *http.Request, segment string) (string, *domain.AuthClaims, bool) {
	id := r.PathValue(segment)
	if id == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing "+segment)
		return "", nil, false
	}
	if !uuidRegex.MatchString(id) {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "invalid "+segment)
		return "", nil, false
	}
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return "", nil, false
	}
	return id, claims, true
}
