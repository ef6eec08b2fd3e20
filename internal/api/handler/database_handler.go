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

type DatabaseHandler struct {
	databaseService *service.DatabaseService
}

func NewDatabaseHandler(databaseService *service.DatabaseService) *DatabaseHandler {
	return &DatabaseHandler{
		databaseService: databaseService,
	}
}

// CreateDatabase handles POST /databases
func (h *DatabaseHandler) CreateDatabase(c *gin.Context) {
	var req dto.CreateDatabaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	database := domain.NewDatabase(req.Name, req.Host, req.Port, req.DBName,
		req.Username, "", domain.Environment(req.Environment))
	database.Schema = req.Schema
	if req.SSLMode != "" {
		database.SSLMode = req.SSLMode
	}

	if err := h.databaseService.RegisterDatabase(c.Request.Context(), database, req.Password); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toDatabaseResponse(database))
}

// GetDatabase handles GET /databases/:id
func (h *DatabaseHandler) GetDatabase(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondBadRequest(c, "Invalid database ID")
		return
	}

	database, err := h.databaseService.GetDatabase(c.Request.Context(), id)
	if err != nil {
		respondNotFound(c, fmt.Sprintf("Database not found: %d", id))
		return
	}

	c.JSON(http.StatusOK, toDatabaseResponse(database))
}

// ListDatabases handles GET /databases
func (h *DatabaseHandler) ListDatabases(c *gin.Context) {
	databases, err := h.databaseService.ListDatabases(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	response := dto.DatabaseListResponse{
		Items: make([]dto.DatabaseResponse, len(databases)),
	}
	for i, database := range databases {
		response.Items[i] = toDatabaseResponse(database)
	}

	c.JSON(http.StatusOK, response)
}

// UpdateDatabase handles PUT /databases/:id
func (h *DatabaseHandler) UpdateDatabase(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondBadRequest(c, "Invalid database ID")
		return
	}

	var req dto.UpdateDatabaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	database, err := h.databaseService.GetDatabase(c.Request.Context(), id)
	if err != nil {
		respondNotFound(c, fmt.Sprintf("Database not found: %d", id))
		return
	}

	if req.Host != nil {
		database.Host = *req.Host
	}
	if req.Port != nil {
		database.Port = *req.Port
	}
	if req.DBName != nil {
		database.DBName = *req.DBName
	}
	if req.Username != nil {
		database.Username = *req.Username
	}
	if req.Schema != nil {
		database.Schema = req.Schema
	}
	if req.SSLMode != nil {
		database.SSLMode = *req.SSLMode
	}
	if req.Environment != nil {
		database.Environment = domain.Environment(*req.Environment)
	}

	password := ""
	if req.Password != nil {
		password = *req.Password
	}

	if err := h.databaseService.UpdateDatabase(c.Request.Context(), database, password); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toDatabaseResponse(database))
}

// DeleteDatabase handles DELETE /databases/:id
func (h *DatabaseHandler) DeleteDatabase(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondBadRequest(c, "Invalid database ID")
		return
	}

	if err := h.databaseService.DeleteDatabase(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusNoContent, nil)
}

// TestConnection handles POST /databases/:id/test
func (h *DatabaseHandler) TestConnection(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondBadRequest(c, "Invalid database ID")
		return
	}

	info, err := h.databaseService.TestConnection(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	response := dto.ConnectionTestResponse{
		Version: info.Version,
		Tables:  make([]dto.TableInfo, len(info.Tables)),
	}
	for i, t := range info.Tables {
		response.Tables[i] = dto.TableInfo{Schema: t.Schema, Table: t.Table}
	}

	c.JSON(http.StatusOK, response)
}

func toDatabaseResponse(database *domain.Database) dto.DatabaseResponse {
	return dto.DatabaseResponse{
		ID:          database.ID,
		Name:        database.Name,
		Host:        database.Host,
		Port:        database.Port,
		DBName:      database.DBName,
		Username:    database.Username,
		Password:    service.MaskedPassword,
		Schema:      database.Schema,
		SSLMode:     database.SSLMode,
		Environment: string(database.Environment),
		CreatedAt:   database.CreatedAt,
		UpdatedAt:   database.UpdatedAt,
	}
}
