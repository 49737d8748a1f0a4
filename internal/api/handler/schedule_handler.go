package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/semmidev/snapkeep/internal/api/dto"
	"github.com/semmidev/snapkeep/internal/domain"
	"github.com/semmidev/snapkeep/internal/usecase"
)

type ScheduleHandler struct {
	scheduleService *usecase.ScheduleService
}

func NewScheduleHandler(scheduleService *usecase.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{
		scheduleService: scheduleService,
	}
}

// CreateSchedule handles POST /schedules
func (h *ScheduleHandler) CreateSchedule(c *gin.Context) {
	var req dto.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	schedule, err := h.scheduleService.Create(c.Request.Context(), req.ToDomain())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, h.toResponse(schedule))
}

// GetSchedule handles GET /schedules/:id
func (h *ScheduleHandler) GetSchedule(c *gin.Context) {
	schedule, err := h.scheduleService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.toResponse(schedule))
}

// ListSchedules handles GET /schedules
func (h *ScheduleHandler) ListSchedules(c *gin.Context) {
	limit, offset := pagination(c)
	filter := domain.ScheduleFilter{Limit: limit, Offset: offset}

	if enabled := c.Query("enabled"); enabled != "" {
		e := enabled == "true"
		filter.Enabled = &e
	}

	schedules, err := h.scheduleService.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	response := dto.ScheduleListResponse{
		Items: make([]dto.ScheduleResponse, len(schedules)),
		Pagination: dto.PaginationInfo{
			Limit:  limit,
			Offset: offset,
			Count:  len(schedules),
		},
	}
	for i, schedule := range schedules {
		response.Items[i] = h.toResponse(schedule)
	}

	c.JSON(http.StatusOK, response)
}

// UpdateSchedule handles PUT /schedules/:id
func (h *ScheduleHandler) UpdateSchedule(c *gin.Context) {
	var req dto.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	schedule, err := h.scheduleService.Update(c.Request.Context(), c.Param("id"), req.ToDomain())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.toResponse(schedule))
}

// DeleteSchedule handles DELETE /schedules/:id. Backups of the schedule are kept.
func (h *ScheduleHandler) DeleteSchedule(c *gin.Context) {
	if err := h.scheduleService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *ScheduleHandler) toResponse(schedule *domain.BackupSchedule) dto.ScheduleResponse {
	return dto.ScheduleResponse{
		BackupSchedule: schedule,
		Description:    h.scheduleService.Describe(schedule),
	}
}
