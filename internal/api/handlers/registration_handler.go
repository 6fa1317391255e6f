package handlers

import (
	"net/http"
	"strconv"

	"lab-registration/internal/api/middleware"
	serviceInterfaces "lab-registration/internal/interfaces/service"
	"lab-registration/internal/service"
	"lab-registration/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RegistrationHandler handles registration-related HTTP requests
type RegistrationHandler struct {
	registrationService serviceInterfaces.RegistrationService
	idempotencyService  *service.IdempotencyService
}

// NewRegistrationHandler creates a new registration handler. idempotencyService may be nil.
func NewRegistrationHandler(registrationService serviceInterfaces.RegistrationService, idempotencyService *service.IdempotencyService) *RegistrationHandler {
	return &RegistrationHandler{
		registrationService: registrationService,
		idempotencyService:  idempotencyService,
	}
}

// Register handles POST /api/v1/registrations
func (h *RegistrationHandler) Register(c *gin.Context) {
	var req serviceInterfaces.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	principal := middleware.CurrentPrincipal(c)
	key := middleware.IdempotencyKey(c)

	if h.idempotencyService != nil && key != "" {
		record, duplicate, err := h.idempotencyService.CheckDuplicateRequest(c.Request.Context(), key, principal.ID, req)
		if err != nil {
			respondError(c, err, "Idempotency check failed")
			return
		}
		if duplicate {
			c.Header("Idempotent-Replayed", "true")
			c.Data(record.StatusCode, "application/json; charset=utf-8", []byte(record.ResponseBody))
			return
		}
	}

	result, err := h.registrationService.Register(c.Request.Context(), principal, &req)
	if err != nil {
		respondError(c, err, "Registration failed")
		return
	}

	response := APIResponse{
		Success: true,
		Message: result.Message,
		Data:    result.Registration,
	}

	if h.idempotencyService != nil && key != "" {
		if err := h.idempotencyService.StoreProcessedRequest(c.Request.Context(), key, principal.ID, req, response, http.StatusCreated); err != nil {
			logger.Warn("Registration succeeded but idempotency key %s was not stored: %v", key, err)
		}
	}

	c.JSON(http.StatusCreated, response)
}

// Cancel handles POST /api/v1/registrations/:id/cancel
func (h *RegistrationHandler) Cancel(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	reg, err := h.registrationService.Cancel(c.Request.Context(), id, middleware.CurrentPrincipal(c))
	if err != nil {
		respondError(c, err, "Failed to cancel registration")
		return
	}

	respondOK(c, http.StatusOK, "Registration cancelled successfully", reg)
}

// ChangeSlot handles PATCH /api/v1/registrations/:id/slot
func (h *RegistrationHandler) ChangeSlot(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req serviceInterfaces.ChangeSlotRequest
	if !bindJSON(c, &req) {
		return
	}

	reg, err := h.registrationService.ChangeSlot(c.Request.Context(), id, req.GroupNumber)
	if err != nil {
		respondError(c, err, "Failed to change time slot")
		return
	}

	respondOK(c, http.StatusOK, "Time slot changed successfully", reg)
}

// UpdateStatus handles PATCH /api/v1/registrations/:id/status
func (h *RegistrationHandler) UpdateStatus(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req serviceInterfaces.UpdateStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	reg, err := h.registrationService.UpdateStatus(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err, "Failed to update registration status")
		return
	}

	respondOK(c, http.StatusOK, "Registration status updated", reg)
}

// MyRegistrations handles GET /api/v1/me/registrations?active=true
func (h *RegistrationHandler) MyRegistrations(c *gin.Context) {
	activeOnly := false
	if raw := c.Query("active"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, APIResponse{
				Success: false,
				Message: "Invalid active flag",
			})
			return
		}
		activeOnly = parsed
	}

	regs, err := h.registrationService.ListByStudent(c.Request.Context(), middleware.CurrentPrincipal(c).ID, activeOnly)
	if err != nil {
		respondError(c, err, "Failed to list registrations")
		return
	}

	respondOK(c, http.StatusOK, "", regs)
}

// SessionRegistrations handles GET /api/v1/sessions/:id/registrations
func (h *RegistrationHandler) SessionRegistrations(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	regs, err := h.registrationService.ListBySession(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to list registrations")
		return
	}

	respondOK(c, http.StatusOK, "", regs)
}

// Waitlist handles GET /api/v1/sessions/:id/waitlist
func (h *RegistrationHandler) Waitlist(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	regs, err := h.registrationService.Waitlist(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to read waitlist")
		return
	}

	respondOK(c, http.StatusOK, "", regs)
}
