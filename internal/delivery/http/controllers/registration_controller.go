package controllers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"festreg/internal/delivery/http/helpers"
	"festreg/internal/delivery/http/middleware"
	"festreg/internal/domain"
)

type RegistrationController struct {
	Logger      *slog.Logger
	Eligibility domain.EligibilityService
	Service     domain.RegistrationService
}

func NewRegistrationController(logger *slog.Logger, eligibility domain.EligibilityService, svc domain.RegistrationService) *RegistrationController {
	return &RegistrationController{
		Logger:      logger,
		Eligibility: eligibility,
		Service:     svc,
	}
}

// CheckEligibility godoc
// @Summary Check whether the caller can register for an event
// @Description Returns can_register, a reason, and whether the caller would be waitlisted. No side effects.
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Success 200 {object} helpers.APIResponse "data: EligibilityResult"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID}/eligibility [get]
func (c *RegistrationController) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	eventID, claims, ok := c.pathIDAndClaims(w, r, "eventID")
	if !ok {
		return
	}
	result, err := c.Eligibility.Check(r.Context(), eventID, claims.UserID)
	if err != nil {
		writeServiceError(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, result)
}

// TeamMemberRequest is one roster entry in registration requests.
type TeamMemberRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	IsCaptain bool   `json:"is_captain"`
}

// CreateRegistrationRequest is the request body for POST /events/{eventID}/registrations.
type CreateRegistrationRequest struct {
	TeamName string              `json:"team_name,omitempty"`
	Members  []TeamMemberRequest `json:"members,omitempty"`
}

// Validate implements helpers.Validator.
func (req *CreateRegistrationRequest) Validate() []string {
	var errs []string
	if len(req.Members) > 0 && strings.TrimSpace(req.TeamName) == "" {
		errs = append(errs, "team_name is required when members are provided")
	}
	for i, m := range req.Members {
		if strings.TrimSpace(m.Name) == "" {
			errs = append(errs, "members["+strconv.Itoa(i)+"].name is required")
		}
	}
	return errs
}

func (req *CreateRegistrationRequest) teamInfo() *domain.TeamInfo {
	if len(req.Members) == 0 {
		return nil
	}
	members := make([]*domain.TeamMember, 0, len(req.Members))
	for _, m := range req.Members {
		members = append(members, &domain.TeamMember{
			Name:      strings.TrimSpace(m.Name),
			Email:     strings.TrimSpace(m.Email),
			Phone:     strings.TrimSpace(m.Phone),
			IsCaptain: m.IsCaptain,
		})
	}
	return &domain.TeamInfo{TeamName: strings.TrimSpace(req.TeamName), Members: members}
}

// CreateRegistration godoc
// @Summary Register the caller for an event
// @Description Creates a registration; when the event is full and waitlisting is enabled the caller is waitlisted with a position instead of admitted.
// @Tags registrations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param body body controllers.CreateRegistrationRequest false "Team roster (team events only)"
// @Success 201 {object} helpers.APIResponse "data: Registration"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 422 {object} helpers.APIResponse "error.code: not_eligible"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/registrations [post]
func (c *RegistrationController) CreateRegistration(w http.ResponseWriter, r *http.Request) {
	eventID, claims, ok := c.pathIDAndClaims(w, r, "eventID")
	if !ok {
		return
	}
	var req CreateRegistrationRequest
	if r.ContentLength > 0 {
		if !helpers.DecodeAndValidate(w, r, &req) {
			return
		}
	}
	reg, err := c.Service.Create(r.Context(), eventID, claims.UserID, req.teamInfo())
	if err != nil {
		writeServiceError(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, reg)
}

// GetRegistration godoc
// @Summary Fetch one registration with its roster
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Param registrationID path string true "Registration ID (UUID)"
// @Success 200 {object} helpers.APIResponse "data: RegistrationWithPosition"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /registrations/{registrationID} [get]
func (c *RegistrationController) GetRegistration(w http.ResponseWriter, r *http.Request) {
	id, claims, ok := c.pathIDAndClaims(w, r, "registrationID")
	if !ok {
		return
	}
	result, err := c.Service.Get(r.Context(), id, claims.UserID, claims.IsAdmin())
	if err != nil {
		writeServiceError(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, result)
}

// ListMyRegistrations godoc
// @Summary List the caller's registrations
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Success 200 {object} helpers.APIResponse "data: []Registration"
// @Router /registrations [get]
func (c *RegistrationController) ListMyRegistrations(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	regs, err := c.Service.ListMine(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, regs)
}

// ListEventRegistrations godoc
// @Summary List all registrations for an event (admin)
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Success 200 {object} helpers.APIResponse "data: []Registration"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID}/registrations [get]
func (c *RegistrationController) ListEventRegistrations(w http.ResponseWriter, r *http.Request) {
	eventID, _, ok := c.pathIDAndClaims(w, r, "eventID")
	if !ok {
		return
	}
	regs, err := c.Service.ListByEvent(r.Context(), eventID)
	if err != nil {
		writeServiceError(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, regs)
}

// CancelRegistrationRequest is the optional request body for DELETE /registrations/{registrationID}.
type CancelRegistrationRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CancelRegistration godoc
// @Summary Cancel or withdraw a registration
// @Description Owners withdraw their own registration; admins cancel any. Terminating a slot-holding registration promotes the next waitlisted one.
// @Tags registrations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param registrationID path string true "Registration ID (UUID)"
// @Param body body controllers.CancelRegistrationRequest false "Optional reason"
// @Success 200 {object} helpers.APIResponse "data: Registration"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict (already cancelled)"
// @Router /registrations/{registrationID} [delete]
func (c *RegistrationController) CancelRegistration(w http.ResponseWriter, r *http.Request) {
	id, claims, ok := c.pathIDAndClaims(w, r, "registrationID")
	if !ok {
		return
	}
	var req CancelRegistrationRequest
	if r.ContentLength > 0 {
		if !helpers.DecodeAndValidate(w, r, &req) {
			return
		}
	}
	reg, err := c.Service.Cancel(r.Context(), id, claims.UserID, claims.IsAdmin(), strings.TrimSpace(req.Reason))
	if err != nil {
		writeServiceError(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, reg)
}

// UpdateTeamRequest is the request body for PUT /registrations/{registrationID}/team.
type UpdateTeamRequest struct {
	TeamName string              `json:"team_name"`
	Members  []TeamMemberRequest `json:"members"`
}

// Validate implements helpers.Validator.
func (req *UpdateTeamRequest) Validate() []string {
	var errs []string
	if strings.TrimSpace(req.TeamName) == "" {
		errs = append(errs, "team_name is required")
	}
	if len(req.Members) == 0 {
		errs = append(errs, "members are required")
	}
	for i, m := range req.Members {
		if strings.TrimSpace(m.Name) == "" {
			errs = append(errs, "members["+strconv.Itoa(i)+"].name is required")
		}
	}
	return errs
}

// UpdateTeam godoc
// @Summary Replace a registration's team roster
// @Description Allowed only before a successful payment exists for the registration.
// @Tags registrations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param registrationID path string true "Registration ID (UUID)"
// @Param body body controllers.UpdateTeamRequest true "New roster"
// @Success 200 {object} helpers.APIResponse "data: Registration"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict (roster locked)"
// @Router /registrations/{registrationID}/team [put]
func (c *RegistrationController) UpdateTeam(w http.ResponseWriter, r *http.Request) {
	id, claims, ok := c.pathIDAndClaims(w, r, "registrationID")
	if !ok {
		return
	}
	var req UpdateTeamRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	members := make([]*domain.TeamMember, 0, len(req.Members))
	for _, m := range req.Members {
		members = append(members, &domain.TeamMember{
			Name:      strings.TrimSpace(m.Name),
			Email:     strings.TrimSpace(m.Email),
			Phone:     strings.TrimSpace(m.Phone),
			IsCaptain: m.IsCaptain,
		})
	}
	reg, err := c.Service.UpdateTeam(r.Context(), id, claims.UserID, &domain.TeamInfo{
		TeamName: strings.TrimSpace(req.TeamName),
		Members:  members,
	})
	if err != nil {
		writeServiceError(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, reg)
}

// pathIDAndClaims validates the named UUID path segment and extracts the
// caller's claims, writing the error response itself on failure.
func (c *RegistrationController) pathIDAndClaims(w http.ResponseWriter, r *http.Request, segment string) (string, *domain.AuthClaims, bool) {
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
