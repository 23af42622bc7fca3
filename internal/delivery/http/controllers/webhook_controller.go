package controllers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"festreg/internal/delivery/http/helpers"
	"festreg/internal/domain"
)

// webhookSignatureHeader carries the gateway's HMAC over the raw body.
const webhookSignatureHeader = "X-Razorpay-Signature"

// maxWebhookBody caps how much of a webhook body is read.
const maxWebhookBody = 1 << 20

type WebhookController struct {
	Logger   *slog.Logger
	Verifier domain.PaymentVerificationService
}

func NewWebhookController(logger *slog.Logger, verifier domain.PaymentVerificationService) *WebhookController {
	return &WebhookController{
		Logger:   logger,
		Verifier: verifier,
	}
}

// HandleGatewayWebhook godoc
// @Summary Receive asynchronous payment gateway events
// @Description Applies payment.captured, payment.failed and refund.processed events idempotently. Signature failures return 400 (terminal); processing failures return a non-2xx status so the gateway retries.
// @Tags webhooks
// @Accept json
// @Produce json
// @Param X-Razorpay-Signature header string true "HMAC-SHA256 of the raw body"
// @Success 200 {object} helpers.APIResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request (invalid signature)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found (unknown order)"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error (gateway will retry)"
// @Router /webhooks/gateway [post]
func (c *WebhookController) HandleGatewayWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "unreadable body")
		return
	}
	signature := r.Header.Get(webhookSignatureHeader)
	if signature == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing signature header")
		return
	}

	if err := c.Verifier.HandleWebhook(r.Context(), body, signature); err != nil {
		// Signature mismatch is terminal: the gateway retrying the same
		// payload cannot succeed, so answer 4xx. Everything else answers
		// non-2xx to trigger the gateway's retry.
		if errors.Is(err, domain.ErrInvalidSignature) || errors.Is(err, domain.ErrInvalidInput) {
			helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, err.Error())
			return
		}
		if errors.Is(err, domain.ErrNotFound) {
			helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "unknown order or payment")
			return
		}
		c.Logger.ErrorContext(r.Context(), "webhook processing failed", "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, "processing failed")
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}
