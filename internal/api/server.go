package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/fasttrack/services/delivery/config"
	"example.com/fasttrack/services/delivery/internal/api/handlers"
	"example.com/fasttrack/services/delivery/internal/cache"
	"example.com/fasttrack/services/delivery/internal/columns"
	"example.com/fasttrack/services/delivery/internal/repositories"
	"example.com/fasttrack/services/delivery/internal/search"
	"example.com/fasttrack/services/delivery/internal/services"
	"example.com/fasttrack/services/delivery/internal/tracing"
)

// Server represents the HTTP server
type Server struct {
	config          config.Config
	router          *gin.Engine
	httpServer      *http.Server
	syncService     *services.SyncService
	snapshotService *services.SnapshotService
	notes           *repositories.DeliveryNoteRepository
	registry        *columns.Registry
	search          *search.ElasticClient
	cache           *cache.RedisCache
	tracer          tracing.Tracer
}

// NewServer creates a new HTTP server. searchClient may be nil when
// search is disabled.
func NewServer(
	cfg config.Config,
	syncService *services.SyncService,
	snapshotService *services.SnapshotService,
	notes *repositories.DeliveryNoteRepository,
	registry *columns.Registry,
	searchClient *search.ElasticClient,
	redisCache *cache.RedisCache,
	tracer tracing.Tracer,
) *Server {
	server := &Server{
		config:          cfg,
		syncService:     syncService,
		snapshotService: snapshotService,
		notes:           notes,
		registry:        registry,
		search:          searchClient,
		cache:           redisCache,
		tracer:          tracer,
	}

	router := server.setupRouter()
	server.router = router

	httpServer := &http.Server{
		Addr:    cfg.ServerAddress,
		Handler: router,
	}
	server.httpServer = httpServer

	return server
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	if s.config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// Recovery middleware
	router.Use(gin.Recovery())

	// Register handlers
	syncHandler := handlers.NewSyncHandler(s.syncService, s.registry, s.tracer)
	syncHandler.RegisterRoutes(router)

	statsHandler := handlers.NewStatsHandler(s.notes, s.snapshotService, s.search, s.cache, s.tracer)
	statsHandler.RegisterRoutes(router)

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.ServerAddress).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	// Create a timeout context for shutdown
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
