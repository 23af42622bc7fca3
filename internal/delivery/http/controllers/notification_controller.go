package controllers

import (
	"log/slog"
	"net/http"

	"festreg/internal/delivery/http/helpers"
	"festreg/internal/delivery/http/middleware"
	"festreg/internal/domain"
)

type NotificationController struct {
	Logger        *slog.Logger
	Notifications domain.NotificationRepository
}

func NewNotificationController(logger *slog.Logger, notifications domain.NotificationRepository) *NotificationController {
	return &NotificationController{
		Logger:        logger,
		Notifications: notifications,
	}
}

// ListMyNotifications godoc
// @Summary List the caller's notifications
// @Description Returns notifications for the authenticated participant, newest first.
// @Tags notifications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} helpers.APIResponse{data=[]domain.Notification}
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Router /notifications [get]
func (c *NotificationController) ListMyNotifications(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "authentication required")
		return
	}
	notifications, err := c.Notifications.ListByRecipient(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, notifications)
}
