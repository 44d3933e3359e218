package domain

import (
	"strings"
	"time"
)

// Site is the host's inventory site, referenced by its host ID.
// The ledger reads sites but never creates them while deploying.
type Site struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	Status      string     `json:"status"`
	Description string     `json:"description"`
	LastSynced  *time.Time `json:"last_synced,omitempty"`
}

// NormalizeSite validates a site received from the host and fills in
// a slug derived from the name when the host sent none.
func NormalizeSite(s Site) (Site, error) {
	if s.ID <= 0 {
		return Site{}, NewValidationError("id", "site id must be positive")
	}
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return Site{}, NewValidationError("name", "site name is required")
	}
	if s.Slug == "" {
		s.Slug = Slugify(s.Name)
	}
	if s.Status == "" {
		s.Status = "active"
	}
	return s, nil
}
