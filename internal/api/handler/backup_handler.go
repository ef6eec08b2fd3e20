package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/martijn/pgvault/internal/api/dto"
	"github.com/martijn/pgvault/internal/api/util"
	"github.com/martijn/pgvault/internal/core/domain"
	"github.com/martijn/pgvault/internal/core/repository"
	"github.com/martijn/pgvault/internal/core/service"
)

// Allowed fields for backup queries and ordering
var (
	backupQueryFields = []string{"id", "database_id", "database_name", "schedule_id", "status", "encrypted", "start_time", "end_time"}
	backupOrderFields = []string{"id", "database_name", "status", "start_time", "end_time", "size"}
)

type BackupHandler struct {
	backupService *service.BackupService
}

func NewBackupHandler(backupService *service.BackupService) *BackupHandler {
	return &BackupHandler{
		backupService: backupService,
	}
}

// CreateBackup handles POST /backups
func (h *BackupHandler) CreateBackup(c *gin.Context) {
	var req dto.CreateBackupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	backup, err := h.backupService.StartBackup(c.Request.Context(), service.RunParams{
		DatabaseID: req.DatabaseID,
		Name:       req.Name,
		LocalOnly:  req.LocalOnly,
	})
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

// GetBackup handles GET /backups/:id
func (h *BackupHandler) GetBackup(c *gin.Context) {
	id := c.Param("id")

	backup, err := h.backupService.GetBackup(c.Request.Context(), id)
	if err != nil {
		respondNotFound(c, fmt.Sprintf("Backup not found: %s", id))
		return
	}

	c.JSON(http.StatusOK, toBackupResponse(backup))
}

// ListBackups handles GET /backups
func (h *BackupHandler) ListBackups(c *gin.Context) {
	// Parse pagination parameters
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "25"))

	filter := repository.BackupFilter{
		ListFilter: util.ListFilter{
			Page:    page,
			PerPage: perPage,
		},
	}

	// Parse query filters
	if queryStr := c.Query("query"); queryStr != "" {
		filters, err := util.ParseQueryString(queryStr)
		if err != nil {
			respondBadRequest(c, err.Error())
			return
		}

		// Validate field names
		if err := util.ValidateFilterFields(filters, backupQueryFields); err != nil {
			respondBadRequest(c, err.Error())
			return
		}

		filter.Filters = filters
	}

	// Parse order
	if orderStr := c.Query("order"); orderStr != "" {
		orders, err := util.ParseOrderString(orderStr)
		if err != nil {
			respondBadRequest(c, err.Error())
			return
		}

		// Validate field names
		if err := util.ValidateOrderFields(orders, backupOrderFields); err != nil {
			respondBadRequest(c, err.Error())
			return
		}

		filter.Order = orders
	}

	backups, err := h.backupService.ListBackups(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	count, _ := h.backupService.CountBackups(c.Request.Context(), filter)

	// Calculate pagination info
	totalPages := 0
	if perPage > 0 {
		totalPages = (count + perPage - 1) / perPage
	}

	response := dto.BackupListResponse{
		Items: make([]dto.BackupResponse, len(backups)),
		Pagination: dto.PaginationInfo{
			Total:      count,
			Page:       page,
			PerPage:    perPage,
			TotalPages: totalPages,
		},
	}

	for i, backup := range backups {
		response.Items[i] = toBackupResponse(backup)
	}

	c.JSON(http.StatusOK, response)
}

// DeleteBackup handles DELETE /backups/:id
func (h *BackupHandler) DeleteBackup(c *gin.Context) {
	id := c.Param("id")

	if err := h.backupService.DeleteBackup(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusNoContent, nil)
}

// DownloadBackup handles GET /backups/:id/download
func (h *BackupHandler) DownloadBackup(c *gin.Context) {
	id := c.Param("id")

	backup, path, err := h.backupService.ArtifactPath(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.FileAttachment(path, backup.FileName)
}

// UploadBackup handles POST /backups/:id/upload
func (h *BackupHandler) UploadBackup(c *gin.Context) {
	id := c.Param("id")

	backup, err := h.backupService.UploadBackup(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toBackupResponse(backup))
}

func toBackupResponse(backup *domain.Backup) dto.BackupResponse {
	return dto.BackupResponse{
		ID:           backup.ID,
		DatabaseID:   backup.DatabaseID,
		DatabaseName: backup.DatabaseName,
		ScheduleID:   backup.ScheduleID,
		FileName:     backup.FileName,
		Size:         backup.Size,
		Encrypted:    backup.Encrypted,
		RemoteKey:    backup.RemoteKey,
		Status:       string(backup.Status),
		Error:        backup.Error,
		StartTime:    backup.StartTime,
		EndTime:      backup.EndTime,
	}
}
