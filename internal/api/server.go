// Package api exposes classification sessions over HTTP.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cnv-acmg-classifier/internal/domain"
	"github.com/cnv-acmg-classifier/internal/feedback"
	"github.com/cnv-acmg-classifier/internal/middleware"
	"github.com/cnv-acmg-classifier/internal/service"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Server represents the HTTP server
type Server struct {
	config   domain.ServerConfig
	sessions *service.Registry
	catalogs *service.CatalogService
	verdicts feedback.Store
	logger   *logrus.Logger
	router   *gin.Engine
	server   *http.Server
}

// NewServer creates a new HTTP server instance. verdicts may be nil, in
// which case the feedback routes answer 503.
func NewServer(config domain.ServerConfig, sessions *service.Registry, catalogs *service.CatalogService, verdicts feedback.Store, logger *logrus.Logger) *Server {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.RequestTimeout(config.RequestTimeout))

	server := &Server{
		config:   config,
		sessions: sessions,
		catalogs: catalogs,
		verdicts: verdicts,
		logger:   logger,
		router:   router,
	}

	server.setupRoutes()

	return server
}

// Handler returns the routed gin engine
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
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
		v1.POST("/sessions", s.handleCreateSession)
		v1.GET("/sessions/:id", s.handleGetSession)
		v1.DELETE("/sessions/:id", s.handleDeleteSession)
		v1.POST("/sessions/:id/submit", s.handleSubmit)
		v1.PUT("/sessions/:id/picks/:section", s.handleSetPick)
		v1.DELETE("/sessions/:id/picks", s.handleClearPicks)
		v1.PUT("/sessions/:id/strategy", s.handleSetStrategy)
		v1.POST("/sessions/:id/feedback", s.handleRecordVerdict)

		v1.GET("/catalog/:kind", s.handleCatalog)

		v1.GET("/feedback", s.handleListVerdicts)
		v1.GET("/feedback/export", s.handleExportVerdicts)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   Version,
		"sessions":  s.sessions.Count(),
		"catalog":   s.catalogs.Stats(),
	})
}

func (s *Server) handleCreateSession(c *gin.Context) {
	session := s.sessions.Create()
	s.respondView(c, http.StatusCreated, session)
}

func (s *Server) handleGetSession(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	s.respondView(c, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	s.sessions.Delete(c.Param("id"))
	c.Status(http.StatusNoContent)
}

type submitRequest struct {
	Chromosome  string `json:"chromosome" binding:"required"`
	Start       int64  `json:"start"`
	End         int64  `json:"end" binding:"required"`
	VariantKind string `json:"variant_kind" binding:"required"`
}

func (s *Server) handleSubmit(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}

	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind, err := domain.ParseVariantKind(req.VariantKind)
	if err != nil {
		s.respondError(c, err)
		return
	}
	locus := domain.Locus{
		Chromosome:  req.Chromosome,
		Start:       req.Start,
		End:         req.End,
		VariantKind: kind,
	}

	if _, err := session.Submit(c.Request.Context(), locus); err != nil {
		var vErr *domain.ValidationError
		if errors.As(err, &vErr) || errors.Is(err, domain.ErrSuperseded) {
			s.respondError(c, err)
			return
		}

		// The previous snapshot is still the session's state.
		view, viewErr := session.View(c.Request.Context())
		body := gin.H{"error": err.Error()}
		if viewErr == nil {
			body["view"] = view
		}
		var subErr *domain.SubmissionError
		if errors.As(err, &subErr) {
			body["calls"] = subErr.Calls
		}
		c.JSON(http.StatusBadGateway, body)
		return
	}

	s.respondView(c, http.StatusOK, session)
}

type pickRequest struct {
	Label string `json:"label"`
}

func (s *Server) handleSetPick(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}

	section, err := strconv.Atoi(c.Param("section"))
	if err != nil {
		s.respondError(c, domain.NewValidationError("section", "must be a number", c.Param("section")))
		return
	}

	var req pickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := session.SetPick(c.Request.Context(), section, req.Label); err != nil {
		s.respondError(c, err)
		return
	}
	s.respondView(c, http.StatusOK, session)
}

func (s *Server) handleClearPicks(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	session.ClearPicks()
	s.respondView(c, http.StatusOK, session)
}

type strategyRequest struct {
	// Strategy is a name ("balanced") or a weight (1.1)
	Strategy interface{} `json:"strategy"`
}

func (s *Server) handleSetStrategy(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}

	var req strategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Strategy == nil {
		s.respondError(c, domain.NewValidationError("strategy", "is required", nil))
		return
	}

	strategy, err := domain.ParseStrategy(fmt.Sprint(req.Strategy))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if err := session.SetStrategy(strategy); err != nil {
		s.respondError(c, err)
		return
	}
	s.respondView(c, http.StatusOK, session)
}

type verdictRequest struct {
	UserLabel domain.SeverityLabel `json:"user_label" binding:"required"`
	Notes     string               `json:"notes"`
}

func (s *Server) handleRecordVerdict(c *gin.Context) {
	if s.verdicts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "feedback store is not configured"})
		return
	}
	session, ok := s.session(c)
	if !ok {
		return
	}

	var req verdictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := session.View(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	if view.Locus == nil {
		s.respondError(c, domain.ErrNoSnapshot)
		return
	}

	verdict := &feedback.Verdict{
		Region:          view.Locus.Region(),
		VariantKind:     view.Locus.VariantKind,
		ACMGScore:       view.ACMG.TotalScore,
		ACMGLabel:       view.ACMG.Severity.Label,
		RiskProbability: view.Risk.OverallRisk,
		Strategy:        view.Strategy.Weight,
		CombinedScore:   view.Combined.CombinedScore,
		CombinedLabel:   view.Combined.Severity.Label,
		Overridden:      view.ACMG.Overridden,
		UserLabel:       req.UserLabel,
		UserAgreed:      req.UserLabel == view.Combined.Severity.Label,
		Notes:           req.Notes,
	}
	if err := s.verdicts.Save(c.Request.Context(), verdict); err != nil {
		s.respondError(c, err)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"session": session.ID(),
		"region":  verdict.Region,
		"agreed":  verdict.UserAgreed,
	}).Info("Verdict recorded")

	c.JSON(http.StatusCreated, verdict)
}

func (s *Server) handleCatalog(c *gin.Context) {
	kind, err := domain.ParseVariantKind(c.Param("kind"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	catalog, err := s.catalogs.Options(c.Request.Context(), kind)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"variant_kind": kind,
		"sections":     catalog,
	})
}

func (s *Server) handleListVerdicts(c *gin.Context) {
	if s.verdicts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "feedback store is not configured"})
		return
	}

	limit := queryInt(c, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	ctx := c.Request.Context()
	verdicts, err := s.verdicts.List(ctx, limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}
	total, err := s.verdicts.Count(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if verdicts == nil {
		verdicts = []*feedback.Verdict{}
	}

	c.JSON(http.StatusOK, gin.H{
		"verdicts": verdicts,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

func (s *Server) handleExportVerdicts(c *gin.Context) {
	if s.verdicts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "feedback store is not configured"})
		return
	}

	var buf bytes.Buffer
	if err := s.verdicts.ExportJSON(c.Request.Context(), &buf); err != nil {
		s.respondError(c, err)
		return
	}

	filename := fmt.Sprintf("verdicts-%s.json", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/json", buf.Bytes())
}

// session resolves the :id parameter, answering 404 when it is unknown
func (s *Server) session(c *gin.Context) (*service.Session, bool) {
	session, ok := s.sessions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	return session, true
}

func (s *Server) respondView(c *gin.Context, status int, session *service.Session) {
	view, err := session.View(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(status, view)
}

// respondError maps domain errors onto HTTP statuses
func (s *Server) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	var vErr *domain.ValidationError
	var callErr *domain.CallError
	var subErr *domain.SubmissionError
	switch {
	case errors.As(err, &vErr), errors.Is(err, domain.ErrUnknownOption):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNoSnapshot), errors.Is(err, domain.ErrSuperseded):
		status = http.StatusConflict
	case errors.As(err, &callErr), errors.As(err, &subErr):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
