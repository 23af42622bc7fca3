package controllers

import (
	"log/slog"
	"net/http"

	"festreg/internal/delivery/http/helpers"
	"festreg/internal/domain"
)

type EventController struct {
	Logger *slog.Logger
	Events domain.EventRepository
}

func NewEventController(logger *slog.Logger, events domain.EventRepository) *EventController {
	return &EventController{
		Logger: logger,
		Events: events,
	}
}

// ListEvents godoc
// @Summary List festival events
// @Tags events
// @Produce json
// @Success 200 {object} helpers.APIResponse{data=[]domain.Event}
// @Router /events [get]
func (c *EventController) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := c.Events.List(r.Context())
	if err != nil {
		writeServiceError(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, events)
}

// GetEvent godoc
// @Summary Get a single event
// @Tags events
// @Produce json
// @Param eventID path string true "Event ID"
// @Success 200 {object} helpers.APIResponse{data=domain.Event}
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID} [get]
func (c *EventController) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("eventID")
	if !uuidRegex.MatchString(id) {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "invalid event id")
		return
	}
	event, err := c.Events.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, event)
}
