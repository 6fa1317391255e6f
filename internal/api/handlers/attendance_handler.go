package handlers

import (
	"net/http"
	"time"

	"lab-registration/internal/api/middleware"
	domain "lab-registration/internal/domain/registration"
	serviceInterfaces "lab-registration/internal/interfaces/service"

	"github.com/gin-gonic/gin"
)

// AttendanceHandler handles attendance HTTP requests
type AttendanceHandler struct {
	attendanceService serviceInterfaces.AttendanceService
}

func NewAttendanceHandler(attendanceService serviceInterfaces.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendanceService: attendanceService}
}

// Mark handles POST /api/v1/admin/attendance
func (h *AttendanceHandler) Mark(c *gin.Context) {
	var req serviceInterfaces.MarkAttendanceRequest
	if !bindJSON(c, &req) {
		return
	}

	records, err := h.attendanceService.MarkAttendance(c.Request.Context(), middleware.CurrentPrincipal(c), &req)
	if err != nil {
		respondError(c, err, "Failed to mark attendance")
		return
	}

	respondOK(c, http.StatusOK, "Attendance marked", records)
}

// ListBySession handles GET /api/v1/admin/sessions/:id/attendance?date=2024-01-15
func (h *AttendanceHandler) ListBySession(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var date *time.Time
	if raw := c.Query("date"); raw != "" {
		parsed, err := domain.ParseDate(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, APIResponse{
				Success: false,
				Message: "Invalid date filter",
			})
			return
		}
		date = &parsed
	}

	records, err := h.attendanceService.ListBySession(c.Request.Context(), id, date)
	if err != nil {
		respondError(c, err, "Failed to list attendance")
		return
	}

	respondOK(c, http.StatusOK, "", records)
}

// ListByRegistration handles GET /api/v1/registrations/:id/attendance
func (h *AttendanceHandler) ListByRegistration(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	records, err := h.attendanceService.ListByRegistration(c.Request.Context(), id, middleware.CurrentPrincipal(c))
	if err != nil {
		respondError(c, err, "Failed to list attendance")
		return
	}

	respondOK(c, http.StatusOK, "", records)
}
