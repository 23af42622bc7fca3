package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"festreg/config"
	"festreg/internal/adapters/auth"
	"festreg/internal/adapters/email"
	"festreg/internal/adapters/gateway"
	delivery "festreg/internal/delivery/http"
	"festreg/internal/delivery/http/controllers"
	"festreg/internal/delivery/http/middleware"
	"festreg/internal/repository/postgres"
	"festreg/internal/services"
)

// @title Festival Registration API
// @version 1.0
// @description Registration and payment lifecycle service for multi-sport festival events.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := config.NewLogger(cfg)

	db, err := sql.Open("postgres", cfg.DBUrl)
	if err != nil {
		logger.Error("failed to open database", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancelPing()
		logger.Error("failed to ping database", "err", err)
		os.Exit(1)
	}
	cancelPing()
	logger.Info("connected to database")

	// Repositories
	eventRepo := postgres.NewEventRepository(db)
	registrationRepo := postgres.NewRegistrationRepository(db)
	paymentRepo := postgres.NewPaymentRepository(db)
	participantRepo := postgres.NewParticipantRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)
	auditRepo := postgres.NewAuditRepository(db)

	// Adapters
	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	gatewayClient := gateway.NewClient(gateway.Config{
		BaseURL:       cfg.Gateway.BaseURL,
		KeyID:         cfg.Gateway.KeyID,
		KeySecret:     cfg.Gateway.KeySecret,
		WebhookSecret: cfg.Gateway.WebhookSecret,
		Timeout:       cfg.Gateway.Timeout,
	}, nil)
	mailer, err := email.NewMailer(email.MailerConfig{
		Provider:    cfg.Email.Provider,
		FromAddress: cfg.Email.FromAddress,
		FromName:    cfg.Email.FromName,
		SES: email.SESConfig{
			Region:          cfg.Email.SESRegion,
			AccessKeyID:     cfg.Email.SESAccessKeyID,
			SecretAccessKey: cfg.Email.SESSecretAccessKey,
		},
	})
	if err != nil {
		logger.Error("failed to create mailer", "err", err)
		os.Exit(1)
	}

	// Services
	emailService := services.NewEmailService(mailer, email.NewTemplateRenderer())
	dispatcher := services.NewDispatcher(logger, 256, 4)
	effects := services.NewSideEffects(dispatcher, notificationRepo, auditRepo, participantRepo, eventRepo, emailService)

	eligibilityService := services.NewEligibilityService(eventRepo, registrationRepo)
	registrationService := services.NewRegistrationService(eligibilityService, eventRepo, registrationRepo, paymentRepo, effects)
	orderService := services.NewPaymentOrderService(registrationRepo, eventRepo, paymentRepo, gatewayClient, effects, "", cfg.ConvenienceFeePercent)
	verifyService := services.NewPaymentVerifyService(registrationRepo, paymentRepo, gatewayClient, effects)
	refundService := services.NewRefundService(registrationRepo, paymentRepo, gatewayClient, effects)

	// Controllers
	eventController := controllers.NewEventController(logger, eventRepo)
	registrationController := controllers.NewRegistrationController(logger, eligibilityService, registrationService)
	paymentController := controllers.NewPaymentController(logger, orderService, verifyService, refundService)
	webhookController := controllers.NewWebhookController(logger, verifyService)
	notificationController := controllers.NewNotificationController(logger, notificationRepo)

	mux := delivery.NewRouter(
		verifier,
		eventController,
		registrationController,
		paymentController,
		webhookController,
		notificationController,
	)

	var handler http.Handler = mux
	handler = middleware.RequestLogging(logger, handler)
	handler = middleware.CORS(cfg.CORSAllowedOrigins, handler)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
	dispatcher.Close()
	logger.Info("server stopped")
}
