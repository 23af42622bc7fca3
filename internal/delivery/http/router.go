package http

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	"festreg/internal/delivery/http/controllers"
	"festreg/internal/delivery/http/middleware"
	"festreg/internal/domain"
)

// NewRouter initializes the HTTP router with all application routes
func NewRouter(
	verifier domain.TokenVerifier,
	eventController *controllers.EventController,
	registrationController *controllers.RegistrationController,
	paymentController *controllers.PaymentController,
	webhookController *controllers.WebhookController,
	notificationController *controllers.NotificationController,
) *http.ServeMux {
	mux := http.NewServeMux()

	authed := middleware.RequireAuth(verifier)
	admin := func(h http.HandlerFunc) http.HandlerFunc {
		return authed(middleware.RequireRole("admin")(h))
	}

	// Events
	mux.HandleFunc("GET /events", eventController.ListEvents)
	mux.HandleFunc("GET /events/{eventID}", eventController.GetEvent)
	mux.HandleFunc("GET /events/{eventID}/eligibility", authed(registrationController.CheckEligibility))
	mux.HandleFunc("GET /events/{eventID}/registrations", admin(registrationController.ListEventRegistrations))

	// Registrations
	mux.HandleFunc("POST /events/{eventID}/registrations", authed(registrationController.CreateRegistration))
	mux.HandleFunc("GET /registrations", authed(registrationController.ListMyRegistrations))
	mux.HandleFunc("GET /registrations/{registrationID}", authed(registrationController.GetRegistration))
	mux.HandleFunc("DELETE /registrations/{registrationID}", authed(registrationController.CancelRegistration))
	mux.HandleFunc("PUT /registrations/{registrationID}/team", authed(registrationController.UpdateTeam))

	// Payments
	mux.HandleFunc("POST /registrations/{registrationID}/payment-order", authed(paymentController.CreatePaymentOrder))
	mux.HandleFunc("POST /payments/verify", authed(paymentController.VerifyPayment))
	mux.HandleFunc("POST /registrations/{registrationID}/offline-payment", admin(paymentController.VerifyOfflinePayment))
	mux.HandleFunc("POST /payments/{paymentID}/refund", admin(paymentController.ProcessRefund))

	// Gateway callbacks, authenticated by body signature instead of a bearer token
	mux.HandleFunc("POST /webhooks/gateway", webhookController.HandleGatewayWebhook)

	// Notifications
	mux.HandleFunc("GET /notifications", authed(notificationController.ListMyNotifications))

	// Swagger
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	return mux
}
