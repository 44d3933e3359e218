// Package api provides the HTTP surface of ArchiFlow: the deployment ledger
// JSON API, the editor views and the live events endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/artpar/archiflow/internal/core/auth"
	"github.com/artpar/archiflow/internal/core/domain"
	"github.com/artpar/archiflow/internal/core/plugin"
	apimw "github.com/artpar/archiflow/internal/shell/api/middleware"
	"github.com/artpar/archiflow/internal/shell/api/openapi"
	"github.com/artpar/archiflow/internal/shell/ledger"
	"github.com/artpar/archiflow/internal/shell/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// =============================================================================
// Handler
// =============================================================================

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the dependencies of the API handler.
type Config struct {
	Ledger *ledger.Service
	DB     Pinger

	// Events serves /ws/deployments; nil disables the endpoint.
	Events http.Handler

	// Metrics instruments requests and serves MetricsPath; nil disables both.
	Metrics     *metrics.Collector
	MetricsPath string

	Settings plugin.Settings
	Auth     apimw.AuthConfig

	// RequireAuth rejects unauthenticated API and view requests with 401.
	RequireAuth bool

	Logger *slog.Logger
}

// Handler provides HTTP handlers for the API and views.
type Handler struct {
	ledger      *ledger.Service
	db          Pinger
	events      http.Handler
	metrics     *metrics.Collector
	metricsPath string
	settings    plugin.Settings
	authMW      *apimw.AuthMiddleware
	requireAuth bool
	openapi     *openapi.Generator
	logger      *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.Settings == (plugin.Settings{}) {
		cfg.Settings = plugin.DefaultSettings()
	}
	cfg.Auth.Logger = cfg.Logger

	return &Handler{
		ledger:      cfg.Ledger,
		db:          cfg.DB,
		events:      cfg.Events,
		metrics:     cfg.Metrics,
		metricsPath: cfg.MetricsPath,
		settings:    cfg.Settings,
		authMW:      apimw.NewAuthMiddleware(cfg.Auth),
		requireAuth: cfg.RequireAuth,
		openapi:     newOpenAPI(),
		logger:      cfg.Logger.With("component", "api"),
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestIDHeader)
	if h.metrics != nil {
		r.Use(h.metrics.Middleware)
	}

	// Unauthenticated endpoints
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)
	r.Get("/api/openapi.json", h.openapi.Handler())
	if h.metrics != nil {
		r.Handle(h.metricsPath, h.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(h.authMW.Handler)
		if h.requireAuth {
			r.Use(apimw.RequireAuth(h.logger))
		}

		// JSON API
		r.Route("/api", func(r chi.Router) {
			r.Use(h.jsonContentType)

			r.Post("/diagrams", h.handleCreateDiagram)
			r.Post("/diagrams/{diagramID}/clone", h.handleCloneDiagram)
			r.Post("/deploy/{diagramID}", h.handleDeploy)
			r.Get("/deployment-status", h.handleSiteStatus)
			r.Get("/deployment-status/{diagramID}", h.handleDiagramStatus)
			r.Post("/rollback/{siteID}", h.handleRollback)
			r.Get("/deployment-history", h.handleHistory)

			r.Get("/sites", h.handleListSites)
			r.Post("/sites/sync", h.handleSyncSites)

			r.Get("/plugin", h.handlePlugin)
		})

		// Live events
		if h.events != nil {
			r.Handle("/ws/deployments", h.events)
		}

		// Views
		r.Get(plugin.Path(plugin.RouteDiagramList), h.handleDiagramList)
		r.Get(plugin.Path(plugin.RouteDiagramEditor), h.handleDiagramEditor)
		r.Get(plugin.Path(plugin.RouteDiagramEditor)+"{pk}/", h.handleDiagramEditor)
		r.Get(plugin.Path(plugin.RouteDiagramCreate), h.handleDiagramCreate)
		r.Get(plugin.Path(plugin.RouteDiagnostic), h.handleDiagnostic)
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	checks := make(map[string]string)

	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			h.logger.Warn("readiness check failed", "check", "database", "error", err)
			checks["database"] = "failed"
			h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
				Status: "not_ready",
				Checks: checks,
			})
			return
		}
	}
	checks["database"] = "ok"

	h.writeJSON(w, http.StatusOK, ReadyResponse{
		Status: "ready",
		Checks: checks,
	})
}

// =============================================================================
// Deployment Handlers
// =============================================================================

func (h *Handler) handleCreateDiagram(w http.ResponseWriter, r *http.Request) {
	var req CreateDiagramRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	var siteID int64
	if req.SiteID != nil {
		siteID = *req.SiteID
	}

	d, err := h.ledger.CreateDraft(r.Context(), ledger.CreateDraftRequest{
		SiteID:    siteID,
		DiagramID: req.DiagramID,
		Metadata: domain.DiagramMetadata{
			Version:         req.Version,
			Title:           req.Title,
			Description:     req.Description,
			DeviceCount:     req.DeviceCount,
			ConnectionCount: req.ConnectionCount,
		},
		Actor: auth.FromContext(r.Context()).Actor(),
	})
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, DiagramCreatedResponse{
		Success: true,
		Message: fmt.Sprintf("Diagram %s created", d.ID),
		Diagram: diagramToResponse(*d),
	})
}

func (h *Handler) handleCloneDiagram(w http.ResponseWriter, r *http.Request) {
	var req CloneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	d, err := h.ledger.CloneVersion(r.Context(), ledger.CloneRequest{
		SourceID:  chi.URLParam(r, "diagramID"),
		DiagramID: req.DiagramID,
		Version:   req.Version,
		Actor:     auth.FromContext(r.Context()).Actor(),
	})
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, DiagramCreatedResponse{
		Success: true,
		Message: fmt.Sprintf("Diagram %s cloned to %s", d.ParentID, d.ID),
		Diagram: diagramToResponse(*d),
	})
}

func (h *Handler) handleDeploy(w http.ResponseWriter, r *http.Request) {
	// An empty body fails validation on site_id instead of parsing
	var req DeployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	var siteID int64
	if req.SiteID != nil {
		siteID = *req.SiteID
	}

	result, err := h.ledger.Deploy(r.Context(), ledger.DeployRequest{
		SiteID:    siteID,
		DiagramID: chi.URLParam(r, "diagramID"),
		Metadata: domain.DiagramMetadata{
			Version:         req.Version,
			Title:           req.Title,
			Description:     req.Description,
			DeviceCount:     req.DeviceCount,
			ConnectionCount: req.ConnectionCount,
		},
		Actor: auth.FromContext(r.Context()).Actor(),
		Notes: req.Notes,
	})
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	d := result.Diagram
	h.writeJSON(w, http.StatusOK, DeployResponse{
		Success: true,
		Message: fmt.Sprintf("Diagram %s deployed successfully", d.ID),
		Diagram: DeployedDiagram{
			ID:         d.ID,
			Version:    d.Version,
			Title:      d.Title,
			IsLive:     d.IsLive,
			DeployedAt: d.DeployedAt,
			DeployedBy: d.DeployedBy,
		},
	})
}

func (h *Handler) handleRollback(w http.ResponseWriter, r *http.Request) {
	siteID, err := strconv.ParseInt(chi.URLParam(r, "siteID"), 10, 64)
	if err != nil || siteID <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid site_id", "validation_error")
		return
	}

	// The body is optional
	var req RollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	result, err := h.ledger.Rollback(r.Context(), ledger.RollbackRequest{
		SiteID: siteID,
		Actor:  auth.FromContext(r.Context()).Actor(),
		Notes:  req.Notes,
	})
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	d := result.Diagram
	h.writeJSON(w, http.StatusOK, RollbackResponse{
		Success: true,
		Message: fmt.Sprintf("Rolled back to diagram %s", d.ID),
		Diagram: RolledBackDiagram{
			ID:      d.ID,
			Version: d.Version,
			Title:   d.Title,
		},
	})
}

func (h *Handler) handleDiagramStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.ledger.GetDiagramStatus(r.Context(), chi.URLParam(r, "diagramID"))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, DiagramStatusResponse{
		Diagram: diagramToResponse(status.Diagram),
		History: recordsToResponse(status.History),
	})
}

func (h *Handler) handleSiteStatus(w http.ResponseWriter, r *http.Request) {
	siteID, ok := h.siteIDQuery(w, r)
	if !ok {
		return
	}

	status, err := h.ledger.GetSiteStatus(r.Context(), siteID)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	resp := SiteStatusResponse{
		Site:     siteToResponse(status.Site),
		Diagrams: make([]DiagramResponse, 0, len(status.Diagrams)),
		Summary:  status.Summary,
		History:  recordsToResponse(status.History),
	}
	for _, d := range status.Diagrams {
		resp.Diagrams = append(resp.Diagrams, diagramToResponse(d))
	}
	if status.Live != nil {
		live := diagramToResponse(*status.Live)
		resp.Live = &live
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	siteID, ok := h.siteIDQuery(w, r)
	if !ok {
		return
	}

	limit := ledger.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		l, err := strconv.Atoi(raw)
		if err != nil || l <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer", "validation_error")
			return
		}
		limit = min(l, ledger.MaxHistoryLimit)
	}

	records, err := h.ledger.SiteHistory(r.Context(), siteID, limit)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, HistoryResponse{
		SiteID:  siteID,
		Limit:   limit,
		Records: recordsToResponse(records),
	})
}

// =============================================================================
// Site Handlers
// =============================================================================

func (h *Handler) handleListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := h.ledger.ListSites(r.Context())
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	resp := make([]SiteResponse, 0, len(sites))
	for _, s := range sites {
		resp = append(resp, siteToResponse(s))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSyncSites(w http.ResponseWriter, r *http.Request) {
	var req []SiteSyncItem
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	sites := make([]domain.Site, 0, len(req))
	for _, item := range req {
		sites = append(sites, domain.Site{
			ID:          item.ID,
			Name:        item.Name,
			Slug:        item.Slug,
			Status:      item.Status,
			Description: item.Description,
		})
	}

	n, err := h.ledger.SyncSites(r.Context(), sites)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, SyncResponse{Success: true, Synced: n})
}

// =============================================================================
// Plugin Handlers
// =============================================================================

func (h *Handler) handlePlugin(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, PluginResponse{
		Plugin: plugin.Info(),
		Settings: PluginSettingsResponse{
			Settings:         h.settings,
			AutoSaveInterval: h.settings.AutoSaveSeconds(),
		},
		Menu: plugin.MenuItems(),
	})
}

// =============================================================================
// Helpers
// =============================================================================

// siteIDQuery parses the required site_id query parameter, writing a 400 on failure.
func (h *Handler) siteIDQuery(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("site_id")
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, "site_id is required", "validation_error")
		return 0, false
	}
	siteID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || siteID <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid site_id", "validation_error")
		return 0, false
	}
	return siteID, true
}

// writeLedgerError maps ledger errors to HTTP status codes.
func (h *Handler) writeLedgerError(w http.ResponseWriter, err error) {
	var vErr *domain.ValidationError
	var nfErr *domain.NotFoundError
	var cfErr *domain.ConflictError

	switch {
	case errors.As(err, &vErr):
		h.writeError(w, http.StatusBadRequest, vErr.Message, "validation_error")
	case errors.As(err, &nfErr):
		code := strings.ReplaceAll(nfErr.Entity, " ", "_") + "_not_found"
		h.writeError(w, http.StatusNotFound, nfErr.Error(), code)
	case errors.As(err, &cfErr):
		h.writeError(w, http.StatusConflict, cfErr.Error(), "already_exists")
	case errors.Is(err, domain.ErrInvalidTransition):
		h.writeError(w, http.StatusConflict, err.Error(), "invalid_transition")
	default:
		h.logger.Error("ledger operation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, err.Error(), "internal_error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// =============================================================================
// OpenAPI
// =============================================================================

func newOpenAPI() *openapi.Generator {
	info := plugin.Info()
	g := openapi.NewGenerator(
		openapi.WithTitle(info.VerboseName+" API"),
		openapi.WithVersion(info.Version),
		openapi.WithDescription(info.Description),
	)

	diagramID := openapi.Param{Name: "diagram_id", In: "path", Description: "External diagram identifier"}
	siteIDQuery := openapi.Param{Name: "site_id", In: "query", Type: "integer", Required: true}

	g.Register(openapi.Endpoint{
		Method: http.MethodPost, Path: "/api/diagrams",
		OperationID: "createDiagram", Summary: "Create a draft diagram under a site", Tag: "Diagrams",
		Request: CreateDiagramRequest{}, Response: DiagramCreatedResponse{},
		Status: http.StatusCreated,
		Errors: []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	})
	g.Register(openapi.Endpoint{
		Method: http.MethodPost, Path: "/api/diagrams/{diagram_id}/clone",
		OperationID: "cloneDiagram", Summary: "Copy a diagram into a new draft version", Tag: "Diagrams",
		Params:  []openapi.Param{diagramID},
		Request: CloneRequest{}, Response: DiagramCreatedResponse{},
		Status: http.StatusCreated,
		Errors: []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	})
	g.Register(openapi.Endpoint{
		Method: http.MethodPost, Path: "/api/deploy/{diagram_id}",
		OperationID: "deployDiagram", Summary: "Make a diagram the live version of its site", Tag: "Deployments",
		Params:  []openapi.Param{diagramID},
		Request: DeployRequest{}, Response: DeployResponse{},
		Errors: []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	})
	g.Register(openapi.Endpoint{
		Method: http.MethodGet, Path: "/api/deployment-status/{diagram_id}",
		OperationID: "getDiagramStatus", Summary: "Diagram summary and deployment history", Tag: "Deployments",
		Params:   []openapi.Param{diagramID},
		Response: DiagramStatusResponse{},
		Errors:   []int{http.StatusNotFound},
	})
	g.Register(openapi.Endpoint{
		Method: http.MethodGet, Path: "/api/deployment-status",
		OperationID: "getSiteStatus", Summary: "Deployment state of a site with its full history", Tag: "Deployments",
		Params:   []openapi.Param{siteIDQuery},
		Response: SiteStatusResponse{},
		Errors:   []int{http.StatusBadRequest, http.StatusNotFound},
	})
	g.Register(openapi.Endpoint{
		Method: http.MethodPost, Path: "/api/rollback/{site_id}",
		OperationID: "rollbackSite", Summary: "Restore the previously live diagram", Tag: "Deployments",
		Params:  []openapi.Param{{Name: "site_id", In: "path", Type: "integer"}},
		Request: RollbackRequest{}, Response: RollbackResponse{},
		Errors: []int{http.StatusBadRequest, http.StatusNotFound},
	})
	g.Register(openapi.Endpoint{
		Method: http.MethodGet, Path: "/api/deployment-history",
		OperationID: "getSiteHistory", Summary: "Site deployment history, newest first", Tag: "Deployments",
		Params:   []openapi.Param{siteIDQuery, {Name: "limit", In: "query", Type: "integer"}},
		Response: HistoryResponse{},
		Errors:   []int{http.StatusBadRequest, http.StatusNotFound},
	})
	g.Register(openapi.Endpoint{
		Method: http.MethodGet, Path: "/api/sites",
		OperationID: "listSites", Summary: "List inventory sites", Tag: "Sites",
		Response: []SiteResponse{},
	})
	g.Register(openapi.Endpoint{
		Method: http.MethodPost, Path: "/api/sites/sync",
		OperationID: "syncSites", Summary: "Upsert sites from the host", Tag: "Sites",
		Request: []SiteSyncItem{}, Response: SyncResponse{},
		Errors: []int{http.StatusBadRequest},
	})
	g.Register(openapi.Endpoint{
		Method: http.MethodGet, Path: "/api/plugin",
		OperationID: "getPlugin", Summary: "Plugin metadata, settings and menu", Tag: "Plugin",
		Response: PluginResponse{},
	})

	return g
}
