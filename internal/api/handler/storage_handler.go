package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/martijn/pgvault/internal/api/dto"
	"github.com/martijn/pgvault/internal/core/service"
)

type StorageHandler struct {
	backupService *service.BackupService
}

func NewStorageHandler(backupService *service.BackupService) *StorageHandler {
	return &StorageHandler{
		backupService: backupService,
	}
}

// ListObjects handles GET /storage/objects
func (h *StorageHandler) ListObjects(c *gin.Context) {
	objects, err := h.backupService.ListRemoteObjects(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	response := dto.StorageObjectListResponse{
		Items: make([]dto.StorageObjectResponse, len(objects)),
	}
	for i, obj := range objects {
		response.Items[i] = dto.StorageObjectResponse{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		}
	}

	c.JSON(http.StatusOK, response)
}
