package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/martijn/pgvault/internal/api/dto"
	"github.com/martijn/pgvault/internal/api/util"
	"github.com/martijn/pgvault/internal/adapter/pgtool"
	"github.com/martijn/pgvault/internal/core/domain"
	"github.com/martijn/pgvault/internal/core/repository"
	"github.com/martijn/pgvault/internal/core/service"
)

// Allowed fields for restore queries and ordering
var (
	restoreQueryFields = []string{"id", "backup_id", "remote_key", "status", "source_environment", "target_environment", "target_database_id", "start_time", "end_time"}
	restoreOrderFields = []string{"id", "status", "start_time", "end_time", "duration_ms"}
)

type RestoreHandler struct {
	restoreService *service.RestoreService
}

func NewRestoreHandler(restoreService *service.RestoreService) *RestoreHandler {
	return &RestoreHandler{
		restoreService: restoreService,
	}
}

// Authorize handles POST /restores/authorize. It evaluates the environment
// policy for a prospective restore without starting anything.
func (h *RestoreHandler) Authorize(c *gin.Context) {
	var req dto.CreateRestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	decision, err := h.restoreService.Preview(c.Request.Context(), toRestoreRequest(req))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toDecisionResponse(decision))
}

// CreateRestore handles POST /restores. A started job answers 202 with the
// persisted record; a refused request answers with the decision instead,
// 403 for blocked and 409 when confirmation is still missing.
func (h *RestoreHandler) CreateRestore(c *gin.Context) {
	var req dto.CreateRestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	restore, decision, err := h.restoreService.Submit(c.Request.Context(), toRestoreRequest(req))
	if err != nil {
		respondError(c, err)
		return
	}

	if restore == nil {
		status := http.StatusConflict
		if decision.Outcome == domain.OutcomeBlocked {
			status = http.StatusForbidden
		}
		c.JSON(status, toDecisionResponse(decision))
		return
	}

	c.JSON(http.StatusAccepted, dto.RestoreAcceptedResponse{
		Restore:  toRestoreResponse(restore),
		Decision: toDecisionResponse(decision),
		Link:     fmt.Sprintf("/restores/%s", restore.ID),
	})
}

// GetRestore handles GET /restores/:id
func (h *RestoreHandler) GetRestore(c *gin.Context) {
	id := c.Param("id")

	restore, err := h.restoreService.GetRestore(c.Request.Context(), id)
	if err != nil {
		respondNotFound(c, fmt.Sprintf("Restore not found: %s", id))
		return
	}

	c.JSON(http.StatusOK, toRestoreResponse(restore))
}

// ListRestores handles GET /restores
func (h *RestoreHandler) ListRestores(c *gin.Context) {
	// Parse pagination parameters
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "25"))

	filter := repository.RestoreFilter{
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
		if err := util.ValidateFilterFields(filters, restoreQueryFields); err != nil {
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
		if err := util.ValidateOrderFields(orders, restoreOrderFields); err != nil {
			respondBadRequest(c, err.Error())
			return
		}

		filter.Order = orders
	}

	restores, err := h.restoreService.ListRestores(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	count, _ := h.restoreService.CountRestores(c.Request.Context(), filter)

	// Calculate pagination info
	totalPages := 0
	if perPage > 0 {
		totalPages = (count + perPage - 1) / perPage
	}

	response := dto.RestoreListResponse{
		Items: make([]dto.RestoreResponse, len(restores)),
		Pagination: dto.PaginationInfo{
			Total:      count,
			Page:       page,
			PerPage:    perPage,
			TotalPages: totalPages,
		},
	}

	for i, restore := range restores {
		response.Items[i] = toRestoreResponse(restore)
	}

	c.JSON(http.StatusOK, response)
}

func toRestoreRequest(req dto.CreateRestoreRequest) service.RestoreRequest {
	out := service.RestoreRequest{
		BackupID:          req.BackupID,
		RemoteKey:         req.RemoteKey,
		SourceEnvironment: req.SourceEnvironment,
		TargetDatabaseID:  req.TargetDatabaseID,
		TargetEnvironment: req.TargetEnvironment,
		Passphrase:        req.Passphrase,
		Confirmed:         req.Confirmed,
	}

	if req.Target != nil {
		params := pgtool.ConnectionParams{
			Host:     req.Target.Host,
			Port:     req.Target.Port,
			DBName:   req.Target.DBName,
			Username: req.Target.Username,
			Password: req.Target.Password,
			SSLMode:  req.Target.SSLMode,
		}
		if req.Target.Schema != nil {
			params.Schema = *req.Target.Schema
		}
		out.Target = &params
	}

	return out
}

func toDecisionResponse(decision domain.RestoreDecision) dto.RestoreDecisionResponse {
	response := dto.RestoreDecisionResponse{
		Outcome: string(decision.Outcome),
		Reason:  decision.Reason,
	}
	for _, mode := range decision.CredentialModes {
		response.CredentialModes = append(response.CredentialModes, string(mode))
	}
	return response
}

func toRestoreResponse(restore *domain.Restore) dto.RestoreResponse {
	return dto.RestoreResponse{
		ID:                restore.ID,
		BackupID:          restore.BackupID,
		RemoteKey:         restore.RemoteKey,
		SourceEnvironment: string(restore.SourceEnvironment),
		TargetEnvironment: string(restore.TargetEnvironment),
		TargetDatabaseID:  restore.TargetDatabaseID,
		TargetSummary:     restore.TargetSummary,
		Status:            string(restore.Status),
		Error:             restore.Error,
		StartTime:         restore.StartTime,
		EndTime:           restore.EndTime,
		DurationMs:        restore.DurationMs,
	}
}
