// Package plugin describes the ArchiFlow plugin as the host sees it:
// its metadata, its settings and the navigation entries it contributes.
// This is part of the Functional Core - all functions are pure with no I/O.
package plugin

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// =============================================================================
// Metadata
// =============================================================================

// Metadata identifies the plugin to the host.
type Metadata struct {
	Name        string `json:"name"`
	VerboseName string `json:"verbose_name"`
	Description string `json:"description"`
	Version     string `json:"version"`
	Author      string `json:"author"`
	BaseURL     string `json:"base_url"`
	MinVersion  string `json:"min_version"`
}

// Info returns the plugin metadata.
func Info() Metadata {
	return Metadata{
		Name:        "netbox_archiflow",
		VerboseName: "ArchiFlow Network Diagrams",
		Description: "Integration with Draw.io-based network diagram tool",
		Version:     "0.1.0",
		Author:      "ArchiFlow Team",
		BaseURL:     "archiflow",
		MinVersion:  "4.0.0",
	}
}

// =============================================================================
// Settings
// =============================================================================

// Settings configures the embedded diagram editor.
type Settings struct {
	DrawioURL           string        `json:"drawio_url" mapstructure:"drawio_url" yaml:"drawio_url"`
	WebsocketURL        string        `json:"websocket_url" mapstructure:"websocket_url" yaml:"websocket_url"`
	EnableAutoSave      bool          `json:"enable_auto_save" mapstructure:"enable_auto_save" yaml:"enable_auto_save"`
	AutoSaveInterval    time.Duration `json:"-" mapstructure:"auto_save_interval" yaml:"auto_save_interval"`
	EnableRealtime      bool          `json:"enable_realtime" mapstructure:"enable_realtime" yaml:"enable_realtime"`
	EnableCollaboration bool          `json:"enable_collaboration" mapstructure:"enable_collaboration" yaml:"enable_collaboration"`
	DefaultTheme        string        `json:"default_theme" mapstructure:"default_theme" yaml:"default_theme"`
}

// DefaultSettings returns the settings used when the host configures nothing.
func DefaultSettings() Settings {
	return Settings{
		DrawioURL:           "http://localhost:8081",
		WebsocketURL:        "ws://localhost:3333",
		EnableAutoSave:      true,
		AutoSaveInterval:    30 * time.Second,
		EnableRealtime:      true,
		EnableCollaboration: true,
		DefaultTheme:        "atlas",
	}
}

// AutoSaveSeconds is the auto-save interval in whole seconds, as the editor expects it.
func (s Settings) AutoSaveSeconds() int {
	return int(s.AutoSaveInterval / time.Second)
}

// Validate checks that the editor URLs are absolute with the expected schemes.
func (s Settings) Validate() error {
	if err := checkURL("drawio_url", s.DrawioURL, "http", "https"); err != nil {
		return err
	}
	if err := checkURL("websocket_url", s.WebsocketURL, "ws", "wss"); err != nil {
		return err
	}
	if s.EnableAutoSave && s.AutoSaveInterval < time.Second {
		return fmt.Errorf("auto_save_interval must be at least 1s, got %s", s.AutoSaveInterval)
	}
	return nil
}

func checkURL(field, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", field, raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s must use one of %s, got %q", field, strings.Join(schemes, "/"), u.Scheme)
}

// =============================================================================
// Navigation
// =============================================================================

// Route names. Paths are relative to the plugin's mount point.
const (
	RouteDiagramList   = "diagram_list"
	RouteDiagramEditor = "diagram_editor"
	RouteDiagramCreate = "diagram_create"
	RouteDiagnostic    = "diagram_diagnostic"
	RouteSitesAPI      = "sites_api"
)

var routePaths = map[string]string{
	RouteDiagramList:   "/",
	RouteDiagramEditor: "/editor/",
	RouteDiagramCreate: "/create/",
	RouteDiagnostic:    "/diagnostic/",
	RouteSitesAPI:      "/api/sites",
}

// Path returns the path registered for a route name, or "" if unknown.
func Path(route string) string {
	return routePaths[route]
}

// EditorPath returns the editor path for a diagram, or the blank editor for "".
func EditorPath(diagramID string) string {
	if diagramID == "" {
		return routePaths[RouteDiagramEditor]
	}
	return routePaths[RouteDiagramEditor] + url.PathEscape(diagramID) + "/"
}

// MenuButton is an action button rendered next to a menu item.
type MenuButton struct {
	Link      string `json:"link"`
	Title     string `json:"title"`
	IconClass string `json:"icon_class"`
	Color     string `json:"color"`
}

// MenuItem is one entry in the host's navigation menu.
type MenuItem struct {
	Link     string       `json:"link"`
	LinkText string       `json:"link_text"`
	Path     string       `json:"path"`
	Buttons  []MenuButton `json:"buttons,omitempty"`
}

// MenuItems returns the navigation entries contributed to the host.
func MenuItems() []MenuItem {
	return []MenuItem{
		{
			Link:     qualify(RouteDiagramList),
			LinkText: "Network Diagrams",
			Path:     Path(RouteDiagramList),
			Buttons: []MenuButton{{
				Link:      qualify(RouteDiagramCreate),
				Title:     "New Diagram",
				IconClass: "mdi mdi-plus",
				Color:     "green",
			}},
		},
		{
			Link:     qualify(RouteDiagramEditor),
			LinkText: "Diagram Editor",
			Path:     Path(RouteDiagramEditor),
		},
	}
}

// qualify returns the host's fully qualified name for a plugin route.
func qualify(route string) string {
	return "plugins:" + Info().Name + ":" + route
}
