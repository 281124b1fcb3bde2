// Package api exposes the recommendation engine over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/monigenomi/openpgx/internal/domain"
	"github.com/monigenomi/openpgx/internal/middleware"
	"github.com/monigenomi/openpgx/internal/service"
)

// Server represents the HTTP server
type Server struct {
	cfg    *domain.Config
	core   *service.RecommendationService
	engine *service.CachedEngine
	store  domain.SnapshotStore
	log    *logrus.Logger
	router *gin.Engine
	server *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(cfg *domain.Config, core *service.RecommendationService, engine *service.CachedEngine, store domain.SnapshotStore, logger *logrus.Logger) *Server {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.AuditLogger())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst))

	server := &Server{
		cfg:    cfg,
		core:   core,
		engine: engine,
		store:  store,
		log:    logger,
		router: router,
	}
	server.setupRoutes()

	return server
}

// Router exposes the underlying handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("starting server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/recommendations", s.handleRecommendations)
		v1.POST("/phenotype", s.handlePhenotype)
		v1.GET("/drugs", s.handleDrugs)
		v1.GET("/sources", s.handleSources)
		v1.POST("/reload", s.handleReload)
	}
}

// genotypesRequest is the request body for recommendation and phenotype
// calls: gene symbol to raw genotype string.
type genotypesRequest struct {
	Genotypes map[string]string `json:"genotypes" binding:"required"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"drugs":     len(s.core.Drugs()),
	})
}

// handleRecommendations evaluates a patient's genotypes against every
// known drug and returns per-drug, per-source recommendations.
func (s *Server) handleRecommendations(c *gin.Context) {
	var req genotypesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Request body must contain a genotypes object", err)
		return
	}

	result, err := s.engine.GetRecommendations(c.Request.Context(), req.Genotypes)
	if err != nil {
		s.log.WithError(err).Error("Failed to evaluate recommendations")
		c.JSON(http.StatusInternalServerError, domain.NewAPIError(
			domain.ErrCodeInternalServer, "Failed to evaluate recommendations", "", c.GetString("correlation_id")))
		return
	}

	c.JSON(http.StatusOK, gin.H{"recommendations": result})
}

// handlePhenotype converts genotypes to per-gene factors without matching
// drug rules, useful for inspecting the phenotyping step alone.
func (s *Server) handlePhenotype(c *gin.Context) {
	var req genotypesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Request body must contain a genotypes object", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"factors": s.engine.Phenotype(req.Genotypes)})
}

func (s *Server) handleDrugs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"drugs": s.engine.Drugs()})
}

func (s *Server) handleSources(c *gin.Context) {
	sources := make([]string, 0, len(domain.Sources))
	for _, src := range s.core.Database().SourceList() {
		sources = append(sources, string(src.Source()))
	}
	c.JSON(http.StatusOK, gin.H{"sources": sources})
}

// handleReload re-reads the snapshot from the store, swaps it into the
// running engine, and purges the cache. In-flight requests keep the
// snapshot they started with.
func (s *Server) handleReload(c *gin.Context) {
	db, err := s.store.Load(c.Request.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to reload snapshot")
		c.JSON(http.StatusInternalServerError, domain.NewAPIError(
			domain.ErrCodeSnapshot, "Failed to reload snapshot", err.Error(), c.GetString("correlation_id")))
		return
	}

	s.core.Swap(db)
	s.engine.Purge(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"status": "reloaded",
		"drugs":  len(db.Drugs()),
	})
}

func (s *Server) badRequest(c *gin.Context, message string, err error) {
	c.JSON(http.StatusBadRequest, domain.NewAPIError(
		domain.ErrCodeInvalidInput, message, err.Error(), c.GetString("correlation_id")))
}
