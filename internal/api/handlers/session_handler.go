package handlers

import (
	"net/http"

	"lab-registration/internal/api/middleware"
	domain "lab-registration/internal/domain/registration"
	serviceInterfaces "lab-registration/internal/interfaces/service"

	"github.com/gin-gonic/gin"
)

type SessionStatusRequest struct {
	Status domain.SessionStatus `json:"status" validate:"required,oneof=DRAFT OPEN CLOSED CANCELLED COMPLETED"`
}

type SlotActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// LabSessionHandler handles lab session and time slot requests
type LabSessionHandler struct {
	sessionService serviceInterfaces.LabSessionService
}

func NewLabSessionHandler(sessionService serviceInterfaces.LabSessionService) *LabSessionHandler {
	return &LabSessionHandler{sessionService: sessionService}
}

// CreateSession handles POST /api/v1/sessions
func (h *LabSessionHandler) CreateSession(c *gin.Context) {
	var req serviceInterfaces.CreateSessionRequest
	if !bindJSON(c, &req) {
		return
	}

	detail, err := h.sessionService.CreateSession(c.Request.Context(), middleware.CurrentPrincipal(c), &req)
	if err != nil {
		respondError(c, err, "Failed to create lab session")
		return
	}

	respondOK(c, http.StatusCreated, "Lab session created successfully", detail)
}

// UpdateSession handles PUT /api/v1/sessions/:id
func (h *LabSessionHandler) UpdateSession(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req serviceInterfaces.UpdateSessionRequest
	if !bindJSON(c, &req) {
		return
	}

	detail, err := h.sessionService.UpdateSession(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err, "Failed to update lab session")
		return
	}

	respondOK(c, http.StatusOK, "Lab session updated successfully", detail)
}

// UpdateStatus handles PATCH /api/v1/sessions/:id/status
func (h *LabSessionHandler) UpdateStatus(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req SessionStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	session, err := h.sessionService.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		respondError(c, err, "Failed to update lab session status")
		return
	}

	respondOK(c, http.StatusOK, "Lab session status updated", session)
}

// DeleteSession handles DELETE /api/v1/sessions/:id
func (h *LabSessionHandler) DeleteSession(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.sessionService.DeleteSession(c.Request.Context(), id); err != nil {
		respondError(c, err, "Failed to delete lab session")
		return
	}

	respondOK(c, http.StatusOK, "Lab session deleted successfully", nil)
}

// GetSession handles GET /api/v1/sessions/:id
func (h *LabSessionHandler) GetSession(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	detail, err := h.sessionService.GetSession(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to get lab session")
		return
	}

	respondOK(c, http.StatusOK, "", detail)
}

// ListSessions handles GET /api/v1/sessions?status=OPEN
func (h *LabSessionHandler) ListSessions(c *gin.Context) {
	var status *domain.SessionStatus
	if raw := c.Query("status"); raw != "" {
		s := domain.SessionStatus(raw)
		if !s.Valid() {
			c.JSON(http.StatusBadRequest, APIResponse{
				Success: false,
				Message: "Invalid status filter",
			})
			return
		}
		status = &s
	}

	sessions, err := h.sessionService.ListSessions(c.Request.Context(), status)
	if err != nil {
		respondError(c, err, "Failed to list lab sessions")
		return
	}

	respondOK(c, http.StatusOK, "", sessions)
}

// ListAvailable handles GET /api/v1/sessions/available
func (h *LabSessionHandler) ListAvailable(c *gin.Context) {
	courseID, ok := uuidQuery(c, "course_id")
	if !ok {
		return
	}
	programID, ok := uuidQuery(c, "program_id")
	if !ok {
		return
	}

	sessions, err := h.sessionService.ListAvailable(c.Request.Context(), courseID, programID)
	if err != nil {
		respondError(c, err, "Failed to list available lab sessions")
		return
	}

	respondOK(c, http.StatusOK, "", sessions)
}

// ListSlots handles GET /api/v1/sessions/:id/slots
func (h *LabSessionHandler) ListSlots(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	slots, err := h.sessionService.ListSlots(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to list time slots")
		return
	}

	respondOK(c, http.StatusOK, "", slots)
}

// ListAvailableSlots handles GET /api/v1/sessions/:id/slots/available
func (h *LabSessionHandler) ListAvailableSlots(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	slots, err := h.sessionService.ListAvailableSlots(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to list available time slots")
		return
	}

	respondOK(c, http.StatusOK, "", slots)
}

// SlotSummary handles GET /api/v1/sessions/:id/summary
func (h *LabSessionHandler) SlotSummary(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	summary, err := h.sessionService.SlotSummary(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to summarize time slots")
		return
	}

	respondOK(c, http.StatusOK, "", summary)
}

// Occupancy handles GET /api/v1/sessions/:id/occupancy
func (h *LabSessionHandler) Occupancy(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	rows, err := h.sessionService.Occupancy(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to read occupancy")
		return
	}

	respondOK(c, http.StatusOK, "", rows)
}

// SetSlotActive handles PATCH /api/v1/slots/:id/active
func (h *LabSessionHandler) SetSlotActive(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req SlotActiveRequest
	if !bindJSON(c, &req) {
		return
	}

	slot, err := h.sessionService.SetSlotActive(c.Request.Context(), id, *req.Active)
	if err != nil {
		respondError(c, err, "Failed to update time slot")
		return
	}

	respondOK(c, http.StatusOK, "Time slot updated", slot)
}

// DeleteSlot handles DELETE /api/v1/slots/:id
func (h *LabSessionHandler) DeleteSlot(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.sessionService.DeleteSlot(c.Request.Context(), id); err != nil {
		respondError(c, err, "Failed to delete time slot")
		return
	}

	respondOK(c, http.StatusOK, "Time slot deleted", nil)
}
