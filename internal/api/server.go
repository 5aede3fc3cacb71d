// Package api provides the REST façade over the knowledge graph store.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/wagnerlima/graph-memory/internal/models"
	"github.com/wagnerlima/graph-memory/internal/storage"
)

// Server hosts the REST endpoints and any additionally mounted handlers.
type Server struct {
	echo   *echo.Echo
	store  *storage.Store
	logger *zap.Logger
	config *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Addr string
}

// NewServer creates the REST server over the given store.
func NewServer(store *storage.Store, logger *zap.Logger, cfg *Config) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg == nil {
		cfg = &Config{Addr: ":8080"}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORS())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:   e,
		store:  store,
		logger: logger,
		config: cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	api := s.echo.Group("/api")
	api.GET("/entities", s.handleListEntities)
	api.GET("/entities/:name", s.handleGetEntity)
	api.POST("/entities", s.handleCreateEntity)
	api.POST("/entities/:name/observations", s.handleAddObservations)
	api.DELETE("/entities/:name", s.handleDeleteEntity)
	api.GET("/relations", s.handleListRelations)
	api.POST("/relations", s.handleCreateRelation)
	api.DELETE("/relations", s.handleDeleteRelation)
	api.GET("/search", s.handleSearch)
	api.GET("/graph", s.handleGraph)
	api.POST("/import", s.handleImport)
}

// Mount attaches an extra handler (the MCP transports) under the given path.
func (s *Server) Mount(path string, h http.Handler) {
	s.echo.Any(path, echo.WrapHandler(h))
	s.echo.Any(path+"/*", echo.WrapHandler(h))
}

// --- Request/response types ---

type createEntityRequest struct {
	Name         string   `json:"name"`
	EntityType   string   `json:"entityType"`
	Observations []string `json:"observations"`
}

type addObservationsRequest struct {
	Contents []string `json:"contents"`
}

type relationRequest struct {
	From         string `json:"from"`
	To           string `json:"to"`
	RelationType string `json:"relationType"`
}

type importRequest struct {
	Entities  []models.Entity   `json:"entities"`
	Relations []models.Relation `json:"relations"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// --- Handlers ---

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListEntities(c echo.Context) error {
	entities, err := s.store.ListEntities(c.Request().Context())
	if err != nil {
		return s.storeError(c, err)
	}
	if entities == nil {
		entities = []models.Entity{}
	}
	return c.JSON(http.StatusOK, entities)
}

func (s *Server) handleGetEntity(c echo.Context) error {
	entity, err := s.store.GetEntity(c.Request().Context(), c.Param("name"))
	if errors.Is(err, storage.ErrEntityNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "Entity not found"})
	}
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(http.StatusOK, entity)
}

func (s *Server) handleCreateEntity(c echo.Context) error {
	var req createEntityRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if req.Name == "" || req.EntityType == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "name and entityType are required"})
	}

	ctx := c.Request().Context()
	_, err := s.store.CreateEntities(ctx, []models.EntityInput{{
		Name:         req.Name,
		EntityType:   req.EntityType,
		Observations: req.Observations,
	}})
	if err != nil {
		s.logger.Warn("create entity failed", zap.String("name", req.Name), zap.Error(err))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	entity, err := s.store.GetEntity(ctx, req.Name)
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "id": entity.ID})
}

func (s *Server) handleAddObservations(c echo.Context) error {
	var req addObservationsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if req.Contents == nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "contents array is required"})
	}

	added, err := s.store.AddObservations(c.Request().Context(), c.Param("name"), req.Contents)
	if errors.Is(err, storage.ErrEntityNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "Entity not found"})
	}
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "added": added})
}

func (s *Server) handleDeleteEntity(c echo.Context) error {
	name := c.Param("name")
	deleted, err := s.store.DeleteEntity(c.Request().Context(), name)
	if err != nil {
		return s.storeError(c, err)
	}
	if !deleted {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "Entity not found"})
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "deleted": name})
}

func (s *Server) handleListRelations(c echo.Context) error {
	relations, err := s.store.ListRelations(c.Request().Context())
	if err != nil {
		return s.storeError(c, err)
	}
	if relations == nil {
		relations = []models.Relation{}
	}
	return c.JSON(http.StatusOK, relations)
}

func (s *Server) handleCreateRelation(c echo.Context) error {
	var req relationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if req.From == "" || req.To == "" || req.RelationType == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "from, to and relationType are required"})
	}

	ctx := c.Request().Context()
	// Unlike the batch tool surface, the REST surface reports a missing
	// endpoint explicitly.
	for _, name := range []string{req.From, req.To} {
		if _, err := s.store.GetEntity(ctx, name); errors.Is(err, storage.ErrEntityNotFound) {
			return c.JSON(http.StatusNotFound, errorResponse{Error: "Entity not found"})
		} else if err != nil {
			return s.storeError(c, err)
		}
	}

	_, err := s.store.CreateRelations(ctx, []models.Relation{{
		From: req.From, To: req.To, RelationType: req.RelationType,
	}})
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleDeleteRelation(c echo.Context) error {
	var req relationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if req.From == "" || req.To == "" || req.RelationType == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "from, to and relationType are required"})
	}

	deleted, err := s.store.DeleteRelation(c.Request().Context(), req.From, req.To, req.RelationType)
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "deleted": deleted})
}

func (s *Server) handleSearch(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "query parameter 'q' is required"})
	}

	result, err := s.store.Search(c.Request().Context(), query)
	if err != nil {
		return s.storeError(c, err)
	}
	if result.Entities == nil {
		result.Entities = []models.Entity{}
	}
	if result.Observations == nil {
		result.Observations = []models.ObservationMatch{}
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleGraph(c echo.Context) error {
	graph, err := s.store.ReadGraph(c.Request().Context())
	if err != nil {
		return s.storeError(c, err)
	}
	if graph.Entities == nil {
		graph.Entities = []models.Entity{}
	}
	if graph.Relations == nil {
		graph.Relations = []models.Relation{}
	}
	return c.JSON(http.StatusOK, graph)
}

func (s *Server) handleImport(c echo.Context) error {
	var req importRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	nEntities, nRelations, err := s.store.ImportGraph(c.Request().Context(), &models.KnowledgeGraph{
		Entities:  req.Entities,
		Relations: req.Relations,
	})
	if err != nil {
		s.logger.Warn("import failed", zap.Error(err))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"imported": map[string]int{
			"entities":  nEntities,
			"relations": nRelations,
		},
	})
}

func (s *Server) storeError(c echo.Context, err error) error {
	s.logger.Error("storage error", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.config.Addr))
	return s.echo.Start(s.config.Addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
