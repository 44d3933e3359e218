// Package netbox provides a client for reading inventory sites from the
// NetBox REST API.
package netbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/archiflow/internal/core/domain"
)

// ErrNotConfigured is returned when no NetBox URL is set.
var ErrNotConfigured = errors.New("netbox url not configured")

// Client reads sites from NetBox.
type Client struct {
	baseURL    string
	token      string
	pageSize   int
	httpClient *http.Client
	logger     *slog.Logger
}

// Config holds NetBox client configuration.
type Config struct {
	BaseURL  string // NetBox base URL, e.g., "http://netbox:8080"
	Token    string // API token, sent as "Authorization: Token <token>"
	PageSize int
	Timeout  time.Duration
}

// NewClient creates a new NetBox client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.Token,
		pageSize: pageSize,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// =============================================================================
// Wire Types
// =============================================================================

// choice is NetBox's representation of an enumerated field.
type choice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type siteResult struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Status      *choice `json:"status"`
	Description string  `json:"description"`
}

type sitePage struct {
	Count   int          `json:"count"`
	Next    *string      `json:"next"`
	Results []siteResult `json:"results"`
}

// =============================================================================
// Site Operations
// =============================================================================

// ListSites returns every site, following NetBox pagination.
func (c *Client) ListSites(ctx context.Context) ([]domain.Site, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.pageSize))
	q.Set("offset", "0")
	next := c.baseURL + "/api/dcim/sites/?" + q.Encode()

	var sites []domain.Site
	for pages := 0; next != ""; pages++ {
		page, err := c.fetchPage(ctx, next)
		if err != nil {
			return nil, err
		}

		for _, r := range page.Results {
			s := domain.Site{
				ID:          r.ID,
				Name:        r.Name,
				Slug:        r.Slug,
				Description: r.Description,
			}
			if r.Status != nil {
				s.Status = r.Status.Value
			}
			sites = append(sites, s)
		}

		next = ""
		if page.Next != nil && len(page.Results) > 0 {
			next = *page.Next
		}
		c.logger.Debug("fetched site page", "page", pages, "results", len(page.Results), "count", page.Count)
	}

	return sites, nil
}

func (c *Client) fetchPage(ctx context.Context, pageURL string) (*sitePage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var page sitePage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &page, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}
}
