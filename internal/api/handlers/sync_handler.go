package handlers

import (
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/fasttrack/services/delivery/internal/columns"
	"example.com/fasttrack/services/delivery/internal/models"
	"example.com/fasttrack/services/delivery/internal/services"
	"example.com/fasttrack/services/delivery/internal/tracing"
)

// SyncHandler handles reconciliation-related HTTP requests
type SyncHandler struct {
	syncService *services.SyncService
	registry    *columns.Registry
	tracer      tracing.Tracer
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(syncService *services.SyncService, registry *columns.Registry, tracer tracing.Tracer) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
		registry:    registry,
		tracer:      tracer,
	}
}

// SyncResponse summarizes one reconciliation run for API clients
type SyncResponse struct {
	RunID   string `json:"run_id"`
	Status  string `json:"status"`
	Synced  int    `json:"synced"`
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Ignored int    `json:"ignored"`
	Skipped int    `json:"skipped"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func syncResponse(run *models.SyncRun) SyncResponse {
	resp := SyncResponse{
		RunID:   run.ID.String(),
		Status:  run.Status,
		Synced:  run.SyncedCount,
		Created: run.CreatedCount,
		Updated: run.UpdatedCount,
		Ignored: run.IgnoredCount,
		Skipped: run.SkippedCount,
	}
	if run.Message != nil {
		resp.Message = *run.Message
	}
	if run.ErrorMessage != nil {
		resp.Error = *run.ErrorMessage
	}
	return resp
}

// TriggerSync runs a reconciliation pass on demand
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-trigger-sync")
	defer h.tracer.EndTransaction(txn)

	run, err := h.syncService.Sync(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Manual reconciliation trigger failed")
		h.tracer.RecordError(txn, err)
		if run != nil {
			c.JSON(http.StatusInternalServerError, syncResponse(run))
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, syncResponse(run))
}

// LatestRun returns the most recent run record
func (h *SyncHandler) LatestRun(c *gin.Context) {
	run, err := h.syncService.LatestRun(c.Request.Context())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no reconciliation run recorded yet"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

// RunHistory lists recent run records, newest first
func (h *SyncHandler) RunHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 200 {
		limit = 20
	}

	runs, err := h.syncService.RunHistory(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// LogFile serves the flat sync log artifact
func (h *SyncHandler) LogFile(c *gin.Context) {
	path := h.syncService.LogFilePath()
	if path == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "sync log file not configured"})
		return
	}
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "sync log file not found"})
		return
	}
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.File(path)
}

// AddColumnsRequest registers dynamic delivery-note columns
type AddColumnsRequest struct {
	Names []string          `json:"names" binding:"required"`
	Kind  models.ColumnKind `json:"kind"`
}

// AddColumns extends the dynamic column registry
func (h *SyncHandler) AddColumns(c *gin.Context) {
	var req AddColumnsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	added, err := h.registry.Extend(c.Request.Context(), req.Names, req.Kind)
	if err != nil {
		log.Error().Err(err).Msg("Failed to register dynamic columns")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"added": added})
}

// RegisterRoutes registers the handler's routes
func (h *SyncHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/api/dn/sync", h.TriggerSync)
	router.GET("/api/dn/sync/log/latest", h.LatestRun)
	router.GET("/api/dn/sync/log/history", h.RunHistory)
	router.GET("/api/dn/sync/log/file", h.LogFile)
	router.POST("/api/dn/columns", h.AddColumns)
}
