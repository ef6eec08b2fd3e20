package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/martijn/pgvault/internal/api/dto"
	"github.com/martijn/pgvault/internal/core/domain"
	"github.com/martijn/pgvault/internal/core/service"
)

type ScheduleHandler struct {
	scheduleService *service.ScheduleService
}

func NewScheduleHandler(scheduleService *service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{
		scheduleService: scheduleService,
	}
}

// CreateSchedule handles POST /schedules
func (h *ScheduleHandler) CreateSchedule(c *gin.Context) {
	var req dto.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	schedule := domain.NewSchedule(req.DatabaseID, req.Name, req.CronExpr, req.LocalOnly, req.Enabled)

	if err := h.scheduleService.CreateSchedule(c.Request.Context(), schedule); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, h.toScheduleResponse(schedule))
}

// GetSchedule handles GET /schedules/:id
func (h *ScheduleHandler) GetSchedule(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondBadRequest(c, "Invalid schedule ID")
		return
	}

	schedule, err := h.scheduleService.GetSchedule(c.Request.Context(), id)
	if err != nil {
		respondNotFound(c, fmt.Sprintf("Schedule not found: %d", id))
		return
	}

	c.JSON(http.StatusOK, h.toScheduleResponse(schedule))
}

// ListSchedules handles GET /schedules
func (h *ScheduleHandler) ListSchedules(c *gin.Context) {
	schedules, err := h.scheduleService.ListSchedules(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	response := dto.ScheduleListResponse{
		Items: make([]dto.ScheduleResponse, len(schedules)),
	}
	for i, schedule := range schedules {
		response.Items[i] = h.toScheduleResponse(schedule)
	}

	c.JSON(http.StatusOK, response)
}

// UpdateSchedule handles PUT /schedules/:id
func (h *ScheduleHandler) UpdateSchedule(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondBadRequest(c, "Invalid schedule ID")
		return
	}

	var req dto.UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	schedule, err := h.scheduleService.GetSchedule(c.Request.Context(), id)
	if err != nil {
		respondNotFound(c, fmt.Sprintf("Schedule not found: %d", id))
		return
	}

	if req.Name != nil {
		schedule.Name = *req.Name
	}
	if req.CronExpr != nil {
		schedule.CronExpr = *req.CronExpr
	}
	if req.LocalOnly != nil {
		schedule.LocalOnly = *req.LocalOnly
	}
	if req.Enabled != nil {
		schedule.Enabled = *req.Enabled
	}

	if err := h.scheduleService.UpdateSchedule(c.Request.Context(), schedule); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.toScheduleResponse(schedule))
}

// DeleteSchedule handles DELETE /schedules/:id
func (h *ScheduleHandler) DeleteSchedule(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondBadRequest(c, "Invalid schedule ID")
		return
	}

	if err := h.scheduleService.DeleteSchedule(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusNoContent, nil)
}

// PauseSchedule handles POST /schedules/:id/pause
func (h *ScheduleHandler) PauseSchedule(c *gin.Context) {
	h.setEnabled(c, false)
}

// ResumeSchedule handles POST /schedules/:id/resume
func (h *ScheduleHandler) ResumeSchedule(c *gin.Context) {
	h.setEnabled(c, true)
}

func (h *ScheduleHandler) setEnabled(c *gin.Context, enabled bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondBadRequest(c, "Invalid schedule ID")
		return
	}

	var schedule *domain.Schedule
	if enabled {
		schedule, err = h.scheduleService.ResumeSchedule(c.Request.Context(), id)
	} else {
		schedule, err = h.scheduleService.PauseSchedule(c.Request.Context(), id)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.toScheduleResponse(schedule))
}

// RunSchedule handles POST /schedules/:id/run. The backup starts in the
// background; the schedule's last run timestamp is already updated.
func (h *ScheduleHandler) RunSchedule(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondBadRequest(c, "Invalid schedule ID")
		return
	}

	backup, err := h.scheduleService.RunNow(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	link := fmt.Sprintf("/backups/%s", backup.ID)
	c.JSON(http.StatusAccepted, dto.AsyncResponse{
		Status:     string(backup.Status),
		Link:       &link,
		ResourceID: &backup.ID,
	})
}

func (h *ScheduleHandler) toScheduleResponse(schedule *domain.Schedule) dto.ScheduleResponse {
	return dto.ScheduleResponse{
		ID:         schedule.ID,
		DatabaseID: schedule.DatabaseID,
		Name:       schedule.Name,
		CronExpr:   schedule.CronExpr,
		LocalOnly:  schedule.LocalOnly,
		Enabled:    schedule.Enabled,
		LastRunAt:  schedule.LastRunAt,
		NextRunAt:  h.scheduleService.NextRun(schedule.ID),
		CreatedAt:  schedule.CreatedAt,
		UpdatedAt:  schedule.UpdatedAt,
	}
}
