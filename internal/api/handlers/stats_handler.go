package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"example.com/fasttrack/services/delivery/internal/cache"
	"example.com/fasttrack/services/delivery/internal/localtime"
	"example.com/fasttrack/services/delivery/internal/repositories"
	"example.com/fasttrack/services/delivery/internal/search"
	"example.com/fasttrack/services/delivery/internal/services"
	"example.com/fasttrack/services/delivery/internal/tracing"
)

// statsCacheTTL bounds how stale the cached status distribution may get
// between reconciliation passes.
const statsCacheTTL = 5 * time.Minute

// snapshotCacheTTL bounds staleness of the cached snapshot listing; the
// tables only change on the hourly capture.
const snapshotCacheTTL = 5 * time.Minute

// defaultListLimit is the default page size for listing endpoints.
const defaultListLimit = 200

// StatsHandler handles delivery statistics HTTP requests
type StatsHandler struct {
	notes     *repositories.DeliveryNoteRepository
	snapshots *services.SnapshotService
	search    *search.ElasticClient
	cache     *cache.RedisCache
	tracer    tracing.Tracer
}

// NewStatsHandler creates a new stats handler. searchClient may be nil
// when search is disabled.
func NewStatsHandler(
	notes *repositories.DeliveryNoteRepository,
	snapshots *services.SnapshotService,
	searchClient *search.ElasticClient,
	redisCache *cache.RedisCache,
	tracer tracing.Tracer,
) *StatsHandler {
	return &StatsHandler{
		notes:     notes,
		snapshots: snapshots,
		search:    searchClient,
		cache:     redisCache,
		tracer:    tracer,
	}
}

// StatusStats returns the live distribution of delivery statuses
func (h *StatsHandler) StatusStats(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-status-stats")
	defer h.tracer.EndTransaction(txn)

	ctx := c.Request.Context()

	if h.cache != nil {
		var cached []repositories.StatusCount
		if err := h.cache.Get(ctx, cache.StatsCacheKey, &cached); err == nil {
			c.JSON(http.StatusOK, gin.H{"stats": cached, "cached": true})
			return
		}
	}

	stats, err := h.notes.StatusDeliveryStats(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to compute status delivery stats")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, cache.StatsCacheKey, stats, statsCacheTTL); err != nil {
			log.Warn().Err(err).Msg("Failed to cache status delivery stats")
		}
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats, "cached": false})
}

// LspSummaryRecords returns both snapshot variants, optionally filtered
func (h *StatsHandler) LspSummaryRecords(c *gin.Context) {
	ctx := c.Request.Context()
	lsp := c.Query("lsp")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))

	// Only the default page is cached; the key is per partner and local day.
	key := cache.SnapshotCacheKey(lsp, localtime.DayKey(localtime.Now()))
	if h.cache != nil && limit == defaultListLimit {
		var cached services.SnapshotListing
		if err := h.cache.Get(ctx, key, &cached); err == nil {
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	listing, err := h.snapshots.List(ctx, lsp, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list snapshots")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if h.cache != nil && limit == defaultListLimit {
		if err := h.cache.Set(ctx, key, listing, snapshotCacheTTL); err != nil {
			log.Warn().Err(err).Msg("Failed to cache snapshot listing")
		}
	}
	c.JSON(http.StatusOK, listing)
}

// SearchNotes runs a free-text search over the indexed delivery notes
func (h *StatsHandler) SearchNotes(c *gin.Context) {
	if h.search == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search is disabled"})
		return
	}

	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
		return
	}

	query := map[string]interface{}{
		"size": defaultListLimit,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  q,
				"fields": []string{"dn_number", "du_id", "lsp", "status_delivery", "area", "region"},
			},
		},
	}

	docs, err := h.search.SearchNotes(c.Request.Context(), query)
	if err != nil {
		log.Error().Err(err).Msg("Delivery note search failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": docs})
}

// CaptureSnapshots triggers a snapshot pass on demand
func (h *StatsHandler) CaptureSnapshots(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-capture-snapshots")
	defer h.tracer.EndTransaction(txn)

	if err := h.snapshots.Capture(c.Request.Context()); err != nil {
		log.Error().Err(err).Msg("Manual snapshot capture failed")
		h.tracer.RecordError(txn, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "captured"})
}

// RegisterRoutes registers the handler's routes
func (h *StatsHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/api/dn/status-delivery/stats", h.StatusStats)
	router.GET("/api/dn/status-delivery/lsp-summary-records", h.LspSummaryRecords)
	router.GET("/api/dn/search", h.SearchNotes)
	router.POST("/api/dn/snapshots/capture", h.CaptureSnapshots)
}
