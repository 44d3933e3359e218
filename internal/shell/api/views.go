package api

import (
	"embed"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/artpar/archiflow/internal/core/auth"
	"github.com/artpar/archiflow/internal/core/domain"
	"github.com/artpar/archiflow/internal/core/plugin"
	"github.com/artpar/archiflow/internal/shell/ledger"
	"github.com/go-chi/chi/v5"
)

//go:embed templates/*.html
var templatesFS embed.FS

var viewTemplates = template.Must(template.New("views").Funcs(template.FuncMap{
	"editorPath": plugin.EditorPath,
	"createPath": func() string { return plugin.Path(plugin.RouteDiagramCreate) },
}).ParseFS(templatesFS, "templates/*.html"))

// loaderPage is the draw.io page that boots the ArchiFlow plugin inside the editor.
const loaderPage = "/archiflow-loader.html?splash=0&modified=0&chrome=0"

// =============================================================================
// View Models
// =============================================================================

// pageData is shared by every view.
type pageData struct {
	Title    string
	Plugin   plugin.Metadata
	Menu     []plugin.MenuItem
	Settings plugin.Settings
	User     auth.Context
}

type listPage struct {
	pageData
	Sites []ledger.SiteStatus
}

type editorPage struct {
	pageData
	DiagramID string
	LoaderURL string
	Config    editorConfig
}

type diagnosticPage struct {
	pageData
	LoaderURL string
}

// editorConfig is handed to the editor's JavaScript as window.ARCHIFLOW_CONFIG.
type editorConfig struct {
	DrawioURL           string         `json:"drawioUrl"`
	WebsocketURL        string         `json:"websocketUrl"`
	EventsURL           string         `json:"eventsUrl"`
	DiagramID           string         `json:"diagramId,omitempty"`
	EnableAutoSave      bool           `json:"enableAutoSave"`
	AutoSaveInterval    int            `json:"autoSaveInterval"`
	EnableRealtime      bool           `json:"enableRealtime"`
	EnableCollaboration bool           `json:"enableCollaboration"`
	Theme               string         `json:"theme"`
	NetboxContext       netboxIdentity `json:"netboxContext"`
}

type netboxIdentity struct {
	UserID      int    `json:"user_id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	IsSuperuser bool   `json:"is_superuser"`
}

func (h *Handler) page(r *http.Request, title string) pageData {
	return pageData{
		Title:    title,
		Plugin:   plugin.Info(),
		Menu:     plugin.MenuItems(),
		Settings: h.settings,
		User:     auth.FromContext(r.Context()),
	}
}

func (h *Handler) loaderURL() string {
	return strings.TrimRight(h.settings.DrawioURL, "/") + loaderPage
}

// =============================================================================
// View Handlers
// =============================================================================

func (h *Handler) handleDiagramList(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.ledger.ListSiteStatuses(r.Context())
	if err != nil {
		h.renderError(w, err)
		return
	}

	h.render(w, "diagram_list.html", listPage{
		pageData: h.page(r, "Network Diagrams"),
		Sites:    statuses,
	})
}

func (h *Handler) handleDiagramEditor(w http.ResponseWriter, r *http.Request) {
	diagramID := chi.URLParam(r, "pk")
	user := auth.FromContext(r.Context())

	h.render(w, "editor.html", editorPage{
		pageData:  h.page(r, "Diagram Editor"),
		DiagramID: diagramID,
		LoaderURL: h.loaderURL(),
		Config: editorConfig{
			DrawioURL:           h.settings.DrawioURL,
			WebsocketURL:        h.settings.WebsocketURL,
			EventsURL:           "/ws/deployments",
			DiagramID:           diagramID,
			EnableAutoSave:      h.settings.EnableAutoSave,
			AutoSaveInterval:    h.settings.AutoSaveSeconds(),
			EnableRealtime:      h.settings.EnableRealtime,
			EnableCollaboration: h.settings.EnableCollaboration,
			Theme:               h.settings.DefaultTheme,
			NetboxContext: netboxIdentity{
				UserID:      user.UserID,
				Username:    user.Username,
				Email:       user.Email,
				IsSuperuser: user.IsSuperuser,
			},
		},
	})
}

// handleDiagramCreate opens a blank editor, or with ?site_id= first stores
// a draft under that site and opens it.
func (h *Handler) handleDiagramCreate(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("site_id")
	if raw == "" {
		http.Redirect(w, r, plugin.EditorPath(""), http.StatusFound)
		return
	}

	siteID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || siteID <= 0 {
		http.Error(w, "invalid site_id", http.StatusBadRequest)
		return
	}

	d, err := h.ledger.CreateDraft(r.Context(), ledger.CreateDraftRequest{
		SiteID: siteID,
		Actor:  auth.FromContext(r.Context()).Actor(),
	})
	switch {
	case domain.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		h.renderError(w, err)
		return
	}

	http.Redirect(w, r, plugin.EditorPath(d.ID), http.StatusFound)
}

func (h *Handler) handleDiagnostic(w http.ResponseWriter, r *http.Request) {
	h.render(w, "editor_diagnostic.html", diagnosticPage{
		pageData:  h.page(r, "Editor Diagnostics"),
		LoaderURL: h.loaderURL(),
	})
}

// =============================================================================
// Rendering
// =============================================================================

func (h *Handler) render(w http.ResponseWriter, name string, data any) {
	var buf strings.Builder
	if err := viewTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		h.logger.Error("failed to execute view template", "template", name, "error", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(buf.String()))
}

func (h *Handler) renderError(w http.ResponseWriter, err error) {
	h.logger.Error("view failed", "error", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
