package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/martijn/pgvault/internal/api/dto"
	"github.com/martijn/pgvault/internal/core/service"
)

type CleanupHandler struct {
	retentionService *service.RetentionService
}

func NewCleanupHandler(retentionService *service.RetentionService) *CleanupHandler {
	return &CleanupHandler{
		retentionService: retentionService,
	}
}

// Cleanup handles POST /cleanup. Without a database_id it sweeps every
// database that has completed backups.
func (h *CleanupHandler) Cleanup(c *gin.Context) {
	var req dto.CleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// An empty body means cleanup everything
		req.DatabaseID = nil
	}

	var deleted int
	var err error

	if req.DatabaseID != nil && *req.DatabaseID > 0 {
		deleted, err = h.retentionService.CleanupDatabase(c.Request.Context(), *req.DatabaseID)
	} else {
		deleted, err = h.retentionService.CleanupAll(c.Request.Context())
	}

	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.CleanupResponse{Deleted: deleted})
}
