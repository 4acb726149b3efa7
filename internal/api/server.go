// Package api exposes the local HTTP surface: config entry management
// (the integration's setup/edit/remove flow) and per-entry diagnostics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"populartimes/internal/config"
	"populartimes/internal/registry"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server serves the config and diagnostics API.
type Server struct {
	registry *registry.Registry
	logger   *zap.Logger
	server   *http.Server
}

// entryRequest is the body of entry create/update calls.
type entryRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// NewServer creates the API server on the given port.
func NewServer(reg *registry.Registry, logger *zap.Logger, port int) *Server {
	s := &Server{
		registry: reg,
		logger:   logger.Named("api"),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)
	router.GET("/api/entries", s.handleListEntries)
	router.POST("/api/entries", s.handleAddEntry)
	router.PUT("/api/entries/:id", s.handleUpdateEntry)
	router.DELETE("/api/entries/:id", s.handleRemoveEntry)
	router.GET("/api/diagnostics/:id", s.handleDiagnostics)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving HTTP requests
func (s *Server) Start() {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListEntries(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"entries": s.registry.Entries()})
}

func (s *Server) handleAddEntry(c *gin.Context) {
	var req entryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	entry, err := s.registry.Add(req.Name, req.Address)
	if err != nil {
		s.writeEntryError(c, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

func (s *Server) handleUpdateEntry(c *gin.Context) {
	var req entryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	entry, err := s.registry.Update(c.Param("id"), req.Name, req.Address)
	if err != nil {
		s.writeEntryError(c, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

func (s *Server) handleRemoveEntry(c *gin.Context) {
	if err := s.registry.Remove(c.Param("id")); err != nil {
		s.writeEntryError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleDiagnostics returns entry metadata with a redacted address plus the
// latest published snapshot.
func (s *Server) handleDiagnostics(c *gin.Context) {
	id := c.Param("id")

	entry, ok := s.registry.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}

	diag := gin.H{
		"entry": gin.H{
			"id":         entry.ID,
			"name":       entry.Name,
			"source":     entry.Source,
			"created_at": entry.CreatedAt,
		},
		"config": gin.H{
			"address_redacted": redactAddress(entry.Address),
		},
	}

	if snapshot, ok := s.registry.Snapshot(id); ok {
		diag["snapshot"] = snapshot
	}

	c.JSON(http.StatusOK, diag)
}

// writeEntryError maps entry errors to HTTP statuses.
func (s *Server) writeEntryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, config.ErrConfigInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, config.ErrAlreadyConfigured):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, config.ErrEntryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		s.logger.Error("Entry operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// redactAddress hides the street segment of an address, keeping the
// city/state/country hints useful for support.
func redactAddress(address string) string {
	parts := strings.Split(address, ",")
	if len(parts) == 0 {
		return address
	}
	parts[0] = "***"
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.Join(parts, ", ")
}
