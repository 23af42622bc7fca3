package controllers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"festreg/internal/delivery/http/helpers"
	"festreg/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePaymentOrderService implements domain.PaymentOrderService for handler tests.
type fakePaymentOrderService struct {
	result *domain.OrderResult
	err    error
}

func (f *fakePaymentOrderService) CreateOrder(ctx context.Context, registrationID, callerID string) (*domain.OrderResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeVerificationService implements domain.PaymentVerificationService for handler tests.
type fakeVerificationService struct {
	checkoutResult *domain.VerificationResult
	checkoutErr    error
	offlinePayment *domain.Payment
	offlineErr     error
	webhookErr     error

	lastOfflineAmount int64
	lastOfflineActor  string
}

func (f *fakeVerificationService) VerifyCheckout(ctx context.Context, orderID, gatewayPaymentID, signature string) (*domain.VerificationResult, error) {
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	return f.checkoutResult, nil
}

func (f *fakeVerificationService) VerifyOffline(ctx context.Context, registrationID string, amount int64, note, actorID string) (*domain.Payment, error) {
	f.lastOfflineAmount = amount
	f.lastOfflineActor = actorID
	if f.offlineErr != nil {
		return nil, f.offlineErr
	}
	return f.offlinePayment, nil
}

func (f *fakeVerificationService) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	return f.webhookErr
}

// fakeRefundService implements domain.RefundService for handler tests.
type fakeRefundService struct {
	payment *domain.Payment
	err     error

	lastAmount int64
	lastReason string
}

func (f *fakeRefundService) ProcessRefund(ctx context.Context, paymentID string, amount int64, reason, actorID string) (*domain.Payment, error) {
	f.lastAmount = amount
	f.lastReason = reason
	if f.err != nil {
		return nil, f.err
	}
	return f.payment, nil
}

func newPaymentController(orders domain.PaymentOrderService, verifier domain.PaymentVerificationService, refunds domain.RefundService) *PaymentController {
	if orders == nil {
		orders = &fakePaymentOrderService{}
	}
	if verifier == nil {
		verifier = &fakeVerificationService{}
	}
	if refunds == nil {
		refunds = &fakeRefundService{}
	}
	return NewPaymentController(testLogger, orders, verifier, refunds)
}

func TestPaymentController_CreatePaymentOrder(t *testing.T) {
	tests := []struct {
		name       string
		service    *fakePaymentOrderService
		wantStatus int
		wantCode   string
	}{
		{
			name:       "new order",
			service:    &fakePaymentOrderService{result: &domain.OrderResult{PaymentID: testPaymentID, GatewayOrderID: "order_1", Amount: 51000, Currency: "INR"}},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "retry reuses open order",
			service:    &fakePaymentOrderService{result: &domain.OrderResult{PaymentID: testPaymentID, GatewayOrderID: "order_1", Reused: true}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "not the owner",
			service:    &fakePaymentOrderService{err: domain.ErrForbidden},
			wantStatus: http.StatusForbidden,
			wantCode:   helpers.ErrCodeForbidden,
		},
		{
			name:       "already confirmed",
			service:    &fakePaymentOrderService{err: fmt.Errorf("%w: registration is confirmed", domain.ErrConflict)},
			wantStatus: http.StatusConflict,
			wantCode:   helpers.ErrCodeConflict,
		},
		{
			name:       "gateway down",
			service:    &fakePaymentOrderService{err: fmt.Errorf("%w: create order", domain.ErrExternalService)},
			wantStatus: http.StatusBadGateway,
			wantCode:   helpers.ErrCodeBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newPaymentController(tt.service, nil, nil)
			req := authedRequest(http.MethodPost, "/registrations/"+testRegistrationID+"/payment-order", nil, userClaims,
				map[string]string{"registrationID": testRegistrationID})
			rec := httptest.NewRecorder()
			c.CreatePaymentOrder(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeEnvelope(t, rec)
			if tt.wantCode != "" {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tt.wantCode, resp.Error.Code)
			}
		})
	}

	t.Run("invalid registration id", func(t *testing.T) {
		c := newPaymentController(nil, nil, nil)
		req := authedRequest(http.MethodPost, "/registrations/abc/payment-order", nil, userClaims,
			map[string]string{"registrationID": "abc"})
		rec := httptest.NewRecorder()
		c.CreatePaymentOrder(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPaymentController_VerifyPayment(t *testing.T) {
	validBody := []byte(`{"gateway_order_id":"order_1","gateway_payment_id":"gwpay_1","signature":"abc123"}`)

	t.Run("captured", func(t *testing.T) {
		svc := &fakeVerificationService{checkoutResult: &domain.VerificationResult{
			Payment: &domain.Payment{ID: testPaymentID, Status: domain.PaymentSuccess},
		}}
		c := newPaymentController(nil, svc, nil)
		req := authedRequest(http.MethodPost, "/payments/verify", validBody, userClaims, nil)
		rec := httptest.NewRecorder()
		c.VerifyPayment(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("already verified still succeeds", func(t *testing.T) {
		svc := &fakeVerificationService{checkoutResult: &domain.VerificationResult{
			Payment:         &domain.Payment{ID: testPaymentID, Status: domain.PaymentSuccess},
			AlreadyVerified: true,
		}}
		c := newPaymentController(nil, svc, nil)
		req := authedRequest(http.MethodPost, "/payments/verify", validBody, userClaims, nil)
		rec := httptest.NewRecorder()
		c.VerifyPayment(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("signature mismatch", func(t *testing.T) {
		svc := &fakeVerificationService{checkoutErr: fmt.Errorf("%w: checkout signature mismatch", domain.ErrInvalidSignature)}
		c := newPaymentController(nil, svc, nil)
		req := authedRequest(http.MethodPost, "/payments/verify", validBody, userClaims, nil)
		rec := httptest.NewRecorder()
		c.VerifyPayment(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		c := newPaymentController(nil, &fakeVerificationService{}, nil)
		req := authedRequest(http.MethodPost, "/payments/verify", []byte(`{"gateway_order_id":"order_1"}`), userClaims, nil)
		rec := httptest.NewRecorder()
		c.VerifyPayment(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("no claims", func(t *testing.T) {
		c := newPaymentController(nil, &fakeVerificationService{}, nil)
		req := authedRequest(http.MethodPost, "/payments/verify", validBody, nil, nil)
		rec := httptest.NewRecorder()
		c.VerifyPayment(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestPaymentController_VerifyOfflinePayment(t *testing.T) {
	t.Run("records and confirms", func(t *testing.T) {
		svc := &fakeVerificationService{offlinePayment: &domain.Payment{
			ID: testPaymentID, Status: domain.PaymentSuccess, Method: domain.PaymentMethodOffline,
		}}
		c := newPaymentController(nil, svc, nil)
		body := []byte(`{"amount":50000,"note":"cash at desk"}`)
		req := authedRequest(http.MethodPost, "/registrations/"+testRegistrationID+"/offline-payment", body, adminClaims,
			map[string]string{"registrationID": testRegistrationID})
		rec := httptest.NewRecorder()
		c.VerifyOfflinePayment(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int64(50000), svc.lastOfflineAmount)
		assert.Equal(t, "admin-1", svc.lastOfflineActor)
	})

	t.Run("non-positive amount rejected", func(t *testing.T) {
		c := newPaymentController(nil, &fakeVerificationService{}, nil)
		body := []byte(`{"amount":0}`)
		req := authedRequest(http.MethodPost, "/registrations/"+testRegistrationID+"/offline-payment", body, adminClaims,
			map[string]string{"registrationID": testRegistrationID})
		rec := httptest.NewRecorder()
		c.VerifyOfflinePayment(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("already confirmed conflicts", func(t *testing.T) {
		svc := &fakeVerificationService{offlineErr: fmt.Errorf("%w: registration is confirmed", domain.ErrConflict)}
		c := newPaymentController(nil, svc, nil)
		body := []byte(`{"amount":50000}`)
		req := authedRequest(http.MethodPost, "/registrations/"+testRegistrationID+"/offline-payment", body, adminClaims,
			map[string]string{"registrationID": testRegistrationID})
		rec := httptest.NewRecorder()
		c.VerifyOfflinePayment(rec, req)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestPaymentController_ProcessRefund(t *testing.T) {
	t.Run("partial refund", func(t *testing.T) {
		svc := &fakeRefundService{payment: &domain.Payment{
			ID: testPaymentID, Status: domain.PaymentPartiallyRefunded, RefundAmount: 20000,
		}}
		c := newPaymentController(nil, nil, svc)
		body := []byte(`{"amount":20000,"reason":"rainout"}`)
		req := authedRequest(http.MethodPost, "/payments/"+testPaymentID+"/refund", body, adminClaims,
			map[string]string{"paymentID": testPaymentID})
		rec := httptest.NewRecorder()
		c.ProcessRefund(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int64(20000), svc.lastAmount)
		assert.Equal(t, "rainout", svc.lastReason)
	})

	t.Run("overdraw rejected", func(t *testing.T) {
		svc := &fakeRefundService{err: fmt.Errorf("%w: amount exceeds refundable balance", domain.ErrInvalidInput)}
		c := newPaymentController(nil, nil, svc)
		body := []byte(`{"amount":99999999}`)
		req := authedRequest(http.MethodPost, "/payments/"+testPaymentID+"/refund", body, adminClaims,
			map[string]string{"paymentID": testPaymentID})
		rec := httptest.NewRecorder()
		c.ProcessRefund(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown payment", func(t *testing.T) {
		svc := &fakeRefundService{err: domain.ErrNotFound}
		c := newPaymentController(nil, nil, svc)
		body := []byte(`{"amount":100}`)
		req := authedRequest(http.MethodPost, "/payments/"+testPaymentID+"/refund", body, adminClaims,
			map[string]string{"paymentID": testPaymentID})
		rec := httptest.NewRecorder()
		c.ProcessRefund(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
