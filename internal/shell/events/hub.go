// Package events streams deployment ledger events to WebSocket clients.
//
// Clients subscribe to one site or, with no site, to every site. Delivery
// is best-effort: a client whose buffer is full is disconnected so that
// publishing never blocks the ledger.
package events

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/artpar/archiflow/internal/core/domain"
	"github.com/gorilla/websocket"
)

// allSites is the subscription key for clients that did not pick a site.
const allSites int64 = 0

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Event is the JSON message sent to subscribers for each ledger record.
type Event struct {
	Type           string                  `json:"type"`
	Seq            int64                   `json:"seq"`
	SiteID         int64                   `json:"site_id"`
	DiagramID      string                  `json:"diagram_id"`
	Action         domain.DeploymentAction `json:"action"`
	PreviousLiveID *string                 `json:"previous_live_id"`
	PerformedBy    string                  `json:"performed_by"`
	Notes          string                  `json:"notes,omitempty"`
	Timestamp      time.Time               `json:"timestamp"`
}

// EventFromRecord converts a ledger record to its wire event.
func EventFromRecord(rec domain.DeploymentRecord) Event {
	return Event{
		Type:           "deployment",
		Seq:            rec.Seq,
		SiteID:         rec.SiteID,
		DiagramID:      rec.DiagramID,
		Action:         rec.Action,
		PreviousLiveID: rec.PreviousLiveID,
		PerformedBy:    rec.PerformedBy,
		Notes:          rec.Notes,
		Timestamp:      rec.Timestamp,
	}
}

// HubConfig configures the event hub.
type HubConfig struct {
	// BufferSize is the per-subscriber event buffer.
	// Default: 64.
	BufferSize int

	// AllowedOrigins lists origins permitted to open a socket, "*" for any.
	// Empty means same-origin only.
	AllowedOrigins []string
}

type subscriber struct {
	ch   chan Event
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// Hub fans ledger records out to subscribers.
type Hub struct {
	mu          sync.Mutex
	subscribers map[int64]map[*subscriber]struct{}
	closed      bool

	bufferSize int
	upgrader   websocket.Upgrader
	active     atomic.Int64
	logger     *slog.Logger
}

// NewHub creates a new event hub.
func NewHub(config HubConfig, logger *slog.Logger) *Hub {
	if config.BufferSize <= 0 {
		config.BufferSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}

	h := &Hub{
		subscribers: make(map[int64]map[*subscriber]struct{}),
		bufferSize:  config.BufferSize,
		logger:      logger.With("component", "events"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(config.AllowedOrigins),
	}
	return h
}

// originChecker returns nil (gorilla's same-origin check) when no origins are listed.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			set[u.Scheme+"://"+u.Host] = true
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return set[u.Scheme+"://"+u.Host] || u.Host == r.Host
	}
}

// =============================================================================
// Pub/Sub
// =============================================================================

// Subscribe registers a subscriber for a site (0 for all sites).
// The returned channel is closed by the unsubscribe function, when the
// subscriber falls behind, or when the hub closes.
func (h *Hub) Subscribe(siteID int64) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, h.bufferSize)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.close()
		return sub.ch, func() {}
	}
	if h.subscribers[siteID] == nil {
		h.subscribers[siteID] = make(map[*subscriber]struct{})
	}
	h.subscribers[siteID][sub] = struct{}{}
	h.mu.Unlock()

	h.active.Add(1)

	return sub.ch, func() {
		h.mu.Lock()
		h.removeLocked(siteID, sub)
		h.mu.Unlock()
	}
}

// removeLocked drops a subscriber and closes its channel. Caller holds h.mu.
func (h *Hub) removeLocked(siteID int64, sub *subscriber) {
	subs := h.subscribers[siteID]
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.subscribers, siteID)
	}
	sub.close()
	h.active.Add(-1)
}

// Publish delivers a ledger record to the record's site subscribers and to
// all-site subscribers. It never blocks.
func (h *Hub) Publish(rec domain.DeploymentRecord) {
	event := EventFromRecord(rec)

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, key := range []int64{rec.SiteID, allSites} {
		for sub := range h.subscribers[key] {
			select {
			case sub.ch <- event:
			default:
				h.logger.Warn("dropping slow subscriber", "site_id", key, "seq", rec.Seq)
				h.removeLocked(key, sub)
			}
		}
	}
}

// ActiveSubscribers returns the number of connected subscribers.
func (h *Hub) ActiveSubscribers() int {
	return int(h.active.Load())
}

// Close disconnects every subscriber. Later subscriptions are closed at once.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for siteID, subs := range h.subscribers {
		for sub := range subs {
			h.removeLocked(siteID, sub)
		}
	}
}

// =============================================================================
// WebSocket Handler
// =============================================================================

// ServeHTTP upgrades the request to a WebSocket and streams events.
// The optional site_id query parameter selects one site.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	siteID := allSites
	if raw := r.URL.Query().Get("site_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, `{"error":"invalid site_id","code":"validation_error"}`, http.StatusBadRequest)
			return
		}
		siteID = id
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := h.Subscribe(siteID)
	defer unsubscribe()

	h.logger.Info("subscriber connected", "site_id", siteID, "remote_addr", r.RemoteAddr)

	// Reader: handles pongs and notices client disconnects
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			h.logger.Info("subscriber disconnected", "site_id", siteID, "remote_addr", r.RemoteAddr)
			return
		case event, ok := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "subscription closed"))
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
