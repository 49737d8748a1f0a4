package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/semmidev/snapkeep/internal/api/dto"
	"github.com/semmidev/snapkeep/internal/domain"
	"github.com/semmidev/snapkeep/internal/usecase"
)

type BackupHandler struct {
	runner          *usecase.Runner
	scheduleService *usecase.ScheduleService
	backupRepo      domain.BackupRepository
}

func NewBackupHandler(runner *usecase.Runner, scheduleService *usecase.ScheduleService, backupRepo domain.BackupRepository) *BackupHandler {
	return &BackupHandler{
		runner:          runner,
		scheduleService: scheduleService,
		backupRepo:      backupRepo,
	}
}

// CreateBackup handles POST /backups. The run continues in the background;
// the response carries the pending record.
func (h *BackupHandler) CreateBackup(c *gin.Context) {
	var req dto.CreateBackupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	runReq := usecase.Request{
		Type:        domain.BackupType(req.Type),
		Collections: req.Collections,
		Compression: domain.Compression(req.Compression),
		Providers:   req.Providers,
	}

	if req.ScheduleID != "" {
		schedule, err := h.scheduleService.Get(c.Request.Context(), req.ScheduleID)
		if err != nil {
			respondError(c, err)
			return
		}
		runReq = usecase.Request{
			ScheduleID:  schedule.ID,
			Type:        schedule.BackupType,
			Collections: schedule.Collections,
			Compression: schedule.Compression,
			Providers:   schedule.StorageProviders,
		}
	}

	if err := h.runner.Check(runReq); err != nil {
		respondError(c, err)
		return
	}

	backup, err := h.runner.Start(c.Request.Context(), runReq)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, h.toResponse(backup))
}

// GetBackup handles GET /backups/:id
func (h *BackupHandler) GetBackup(c *gin.Context) {
	backup, err := h.backupRepo.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.toResponse(backup))
}

// ListBackups handles GET /backups
func (h *BackupHandler) ListBackups(c *gin.Context) {
	limit, offset := pagination(c)
	filter := domain.BackupFilter{Limit: limit, Offset: offset}

	if scheduleID := c.Query("scheduleId"); scheduleID != "" {
		filter.ScheduleID = &scheduleID
	}
	if status := c.Query("status"); status != "" {
		s := domain.BackupStatus(status)
		filter.Status = &s
	}

	backups, err := h.backupRepo.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	response := dto.BackupListResponse{
		Items: make([]dto.BackupResponse, len(backups)),
		Pagination: dto.PaginationInfo{
			Limit:  limit,
			Offset: offset,
			Count:  len(backups),
		},
	}
	for i, backup := range backups {
		response.Items[i] = h.toResponse(backup)
	}

	c.JSON(http.StatusOK, response)
}

// DeleteBackup handles DELETE /backups/:id
func (h *BackupHandler) DeleteBackup(c *gin.Context) {
	if err := h.runner.DeleteBackup(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *BackupHandler) toResponse(backup *domain.BackupMetadata) dto.BackupResponse {
	resp := dto.BackupResponse{BackupMetadata: backup}
	if done, ok := h.runner.Progress(backup.ID); ok {
		if done > backup.Progress {
			backup.Progress = done
		}
		resp.Running = true
	}
	return resp
}
