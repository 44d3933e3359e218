package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/archiflow/internal/core/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
//
// Write transactions take the database lock at BEGIN (_txlock=immediate),
// so a ledger transaction's reads and writes are never interleaved with
// another writer.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", withPragmas(dsn))
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	// One connection: SQLite has a single writer, and :memory: databases
	// are per-connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

func withPragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on&_txlock=immediate&_busy_timeout=5000"
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return NewStoreError("Ping", "", "", err.Error(), ErrConnectionFailed)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Row Types
// =============================================================================

type siteRow struct {
	ID          int64   `db:"id"`
	Name        string  `db:"name"`
	Slug        string  `db:"slug"`
	Status      string  `db:"status"`
	Description string  `db:"description"`
	LastSynced  *string `db:"last_synced"`
}

type diagramRow struct {
	ID              string  `db:"id"`
	SiteID          int64   `db:"site_id"`
	Version         string  `db:"version"`
	Title           string  `db:"title"`
	Description     string  `db:"description"`
	DeviceCount     int     `db:"device_count"`
	ConnectionCount int     `db:"connection_count"`
	Status          string  `db:"status"`
	IsLive          bool    `db:"is_live"`
	CreatedAt       string  `db:"created_at"`
	CreatedBy       string  `db:"created_by"`
	UpdatedAt       string  `db:"updated_at"`
	DeployedAt      *string `db:"deployed_at"`
	DeployedBy      string  `db:"deployed_by"`
	ParentID        *string `db:"parent_id"`
}

type recordRow struct {
	Seq            int64   `db:"seq"`
	ID             string  `db:"id"`
	DiagramID      string  `db:"diagram_id"`
	SiteID         int64   `db:"site_id"`
	Action         string  `db:"action"`
	Timestamp      string  `db:"timestamp"`
	PerformedBy    string  `db:"performed_by"`
	Notes          string  `db:"notes"`
	PreviousLiveID *string `db:"previous_live_id"`
}

// =============================================================================
// SQLiteStore Operations
// =============================================================================

func (s *SQLiteStore) UpsertSite(ctx context.Context, site *domain.Site) error {
	return upsertSite(ctx, s.db, site)
}

func (s *SQLiteStore) GetSite(ctx context.Context, id int64) (*domain.Site, error) {
	return getSite(ctx, s.db, id)
}

func (s *SQLiteStore) ListSites(ctx context.Context, opts ListOptions) ([]domain.Site, error) {
	return listSites(ctx, s.db, opts)
}

func (s *SQLiteStore) CreateDiagram(ctx context.Context, diagram *domain.Diagram) error {
	return createDiagram(ctx, s.db, diagram)
}

func (s *SQLiteStore) GetDiagram(ctx context.Context, id string) (*domain.Diagram, error) {
	return getDiagram(ctx, s.db, id)
}

func (s *SQLiteStore) UpdateDiagram(ctx context.Context, diagram *domain.Diagram) error {
	return updateDiagram(ctx, s.db, diagram)
}

func (s *SQLiteStore) ListDiagramsBySite(ctx context.Context, siteID int64) ([]domain.Diagram, error) {
	return listDiagramsBySite(ctx, s.db, siteID)
}

func (s *SQLiteStore) ListDiagrams(ctx context.Context) ([]domain.Diagram, error) {
	return listDiagrams(ctx, s.db)
}

func (s *SQLiteStore) GetLiveDiagram(ctx context.Context, siteID int64, excludeID string) (*domain.Diagram, error) {
	return getLiveDiagram(ctx, s.db, siteID, excludeID)
}

func (s *SQLiteStore) AppendRecord(ctx context.Context, record *domain.DeploymentRecord) error {
	return appendRecord(ctx, s.db, record)
}

func (s *SQLiteStore) ListRecordsByDiagram(ctx context.Context, diagramID string) ([]domain.DeploymentRecord, error) {
	return listRecordsByDiagram(ctx, s.db, diagramID)
}

func (s *SQLiteStore) ListRecordsBySite(ctx context.Context, siteID int64, filter RecordFilter) ([]domain.DeploymentRecord, error) {
	return listRecordsBySite(ctx, s.db, siteID, filter)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) ListSiteHistory(ctx context.Context, siteID int64) ([]domain.DeploymentRecord, error) {
	return listSiteHistory(ctx, s.db, siteID)
}

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// =============================================================================
// Transaction Store
// =============================================================================

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) UpsertSite(ctx context.Context, site *domain.Site) error {
	return upsertSite(ctx, s.tx, site)
}

func (s *txSQLiteStore) GetSite(ctx context.Context, id int64) (*domain.Site, error) {
	return getSite(ctx, s.tx, id)
}

func (s *txSQLiteStore) ListSites(ctx context.Context, opts ListOptions) ([]domain.Site, error) {
	return listSites(ctx, s.tx, opts)
}

func (s *txSQLiteStore) CreateDiagram(ctx context.Context, diagram *domain.Diagram) error {
	return createDiagram(ctx, s.tx, diagram)
}

func (s *txSQLiteStore) GetDiagram(ctx context.Context, id string) (*domain.Diagram, error) {
	return getDiagram(ctx, s.tx, id)
}

func (s *txSQLiteStore) UpdateDiagram(ctx context.Context, diagram *domain.Diagram) error {
	return updateDiagram(ctx, s.tx, diagram)
}

func (s *txSQLiteStore) ListDiagramsBySite(ctx context.Context, siteID int64) ([]domain.Diagram, error) {
	return listDiagramsBySite(ctx, s.tx, siteID)
}

func (s *txSQLiteStore) ListDiagrams(ctx context.Context) ([]domain.Diagram, error) {
	return listDiagrams(ctx, s.tx)
}

func (s *txSQLiteStore) GetLiveDiagram(ctx context.Context, siteID int64, excludeID string) (*domain.Diagram, error) {
	return getLiveDiagram(ctx, s.tx, siteID, excludeID)
}

func (s *txSQLiteStore) AppendRecord(ctx context.Context, record *domain.DeploymentRecord) error {
	return appendRecord(ctx, s.tx, record)
}

func (s *txSQLiteStore) ListRecordsByDiagram(ctx context.Context, diagramID string) ([]domain.DeploymentRecord, error) {
	return listRecordsByDiagram(ctx, s.tx, diagramID)
}

func (s *txSQLiteStore) ListRecordsBySite(ctx context.Context, siteID int64, filter RecordFilter) ([]domain.DeploymentRecord, error) {
	return listRecordsBySite(ctx, s.tx, siteID, filter)
}

func (s *txSQLiteStore) ListSiteHistory(ctx context.Context, siteID int64) ([]domain.DeploymentRecord, error) {
	return listSiteHistory(ctx, s.tx, siteID)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just run the function
	return fn(s)
}

func (s *txSQLiteStore) Ping(ctx context.Context) error {
	return nil
}

func (s *txSQLiteStore) Close() error {
	// No-op for tx store
	return nil
}

// =============================================================================
// Shared Implementation Functions - Sites
// =============================================================================

func upsertSite(ctx context.Context, exec executor, site *domain.Site) error {
	query := `
		INSERT INTO sites (id, name, slug, status, description, last_synced)
		VALUES (:id, :name, :slug, :status, :description, :last_synced)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			slug = excluded.slug,
			status = excluded.status,
			description = excluded.description,
			last_synced = excluded.last_synced`

	row := map[string]any{
		"id":          site.ID,
		"name":        site.Name,
		"slug":        site.Slug,
		"status":      site.Status,
		"description": site.Description,
		"last_synced": formatTimePtr(site.LastSynced),
	}

	if _, err := exec.NamedExecContext(ctx, query, row); err != nil {
		return NewStoreError("UpsertSite", "site", idString(site.ID), err.Error(), classify(err))
	}
	return nil
}

func getSite(ctx context.Context, exec executor, id int64) (*domain.Site, error) {
	var row siteRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM sites WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetSite", "site", idString(id), "site not found", ErrNotFound)
		}
		return nil, NewStoreError("GetSite", "site", idString(id), err.Error(), err)
	}
	return rowToSite(&row)
}

func listSites(ctx context.Context, exec executor, opts ListOptions) ([]domain.Site, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM sites ORDER BY name COLLATE NOCASE, id LIMIT ? OFFSET ?`

	var rows []siteRow
	if err := exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListSites", "site", "", err.Error(), err)
	}

	sites := make([]domain.Site, 0, len(rows))
	for i := range rows {
		s, err := rowToSite(&rows[i])
		if err != nil {
			return nil, err
		}
		sites = append(sites, *s)
	}
	return sites, nil
}

func rowToSite(row *siteRow) (*domain.Site, error) {
	lastSynced, err := parseTimePtr(row.LastSynced)
	if err != nil {
		return nil, NewStoreError("rowToSite", "site", idString(row.ID), "invalid last_synced", ErrInvalidData)
	}
	return &domain.Site{
		ID:          row.ID,
		Name:        row.Name,
		Slug:        row.Slug,
		Status:      row.Status,
		Description: row.Description,
		LastSynced:  lastSynced,
	}, nil
}

// =============================================================================
// Shared Implementation Functions - Diagrams
// =============================================================================

func diagramParams(d *domain.Diagram) map[string]any {
	return map[string]any{
		"id":               d.ID,
		"site_id":          d.SiteID,
		"version":          d.Version,
		"title":            d.Title,
		"description":      d.Description,
		"device_count":     d.DeviceCount,
		"connection_count": d.ConnectionCount,
		"status":           string(d.Status),
		"is_live":          d.IsLive,
		"created_at":       formatTime(d.CreatedAt),
		"created_by":       d.CreatedBy,
		"updated_at":       formatTime(d.UpdatedAt),
		"deployed_at":      formatTimePtr(d.DeployedAt),
		"deployed_by":      d.DeployedBy,
		"parent_id":        nullString(d.ParentID),
	}
}

func createDiagram(ctx context.Context, exec executor, d *domain.Diagram) error {
	query := `
		INSERT INTO diagrams (
			id, site_id, version, title, description, device_count,
			connection_count, status, is_live, created_at, created_by,
			updated_at, deployed_at, deployed_by, parent_id
		) VALUES (
			:id, :site_id, :version, :title, :description, :device_count,
			:connection_count, :status, :is_live, :created_at, :created_by,
			:updated_at, :deployed_at, :deployed_by, :parent_id
		)`

	if _, err := exec.NamedExecContext(ctx, query, diagramParams(d)); err != nil {
		cause := classify(err)
		switch {
		case errors.Is(cause, ErrDuplicateID):
			return NewStoreError("CreateDiagram", "diagram", d.ID, "diagram with this ID already exists", ErrDuplicateID)
		case errors.Is(cause, ErrForeignKey):
			return NewStoreError("CreateDiagram", "diagram", d.ID, "site does not exist", ErrForeignKey)
		}
		return NewStoreError("CreateDiagram", "diagram", d.ID, err.Error(), cause)
	}
	return nil
}

func getDiagram(ctx context.Context, exec executor, id string) (*domain.Diagram, error) {
	var row diagramRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM diagrams WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetDiagram", "diagram", id, "diagram not found", ErrNotFound)
		}
		return nil, NewStoreError("GetDiagram", "diagram", id, err.Error(), err)
	}
	return rowToDiagram(&row)
}

func updateDiagram(ctx context.Context, exec executor, d *domain.Diagram) error {
	query := `
		UPDATE diagrams SET
			version = :version,
			title = :title,
			description = :description,
			device_count = :device_count,
			connection_count = :connection_count,
			status = :status,
			is_live = :is_live,
			updated_at = :updated_at,
			deployed_at = :deployed_at,
			deployed_by = :deployed_by
		WHERE id = :id AND site_id = :site_id`

	result, err := exec.NamedExecContext(ctx, query, diagramParams(d))
	if err != nil {
		cause := classify(err)
		if errors.Is(cause, ErrLiveConflict) {
			return NewStoreError("UpdateDiagram", "diagram", d.ID, "another diagram of the site is live", ErrLiveConflict)
		}
		return NewStoreError("UpdateDiagram", "diagram", d.ID, err.Error(), cause)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return NewStoreError("UpdateDiagram", "diagram", d.ID, err.Error(), err)
	}
	if n == 0 {
		return NewStoreError("UpdateDiagram", "diagram", d.ID, "diagram not found", ErrNotFound)
	}
	return nil
}

func listDiagramsBySite(ctx context.Context, exec executor, siteID int64) ([]domain.Diagram, error) {
	query := `SELECT * FROM diagrams WHERE site_id = ? ORDER BY created_at DESC, rowid DESC`

	var rows []diagramRow
	if err := exec.SelectContext(ctx, &rows, query, siteID); err != nil {
		return nil, NewStoreError("ListDiagramsBySite", "diagram", "", err.Error(), err)
	}
	return rowsToDiagrams(rows)
}

// listDiagrams returns every diagram grouped by site, newest first within a site.
func listDiagrams(ctx context.Context, exec executor) ([]domain.Diagram, error) {
	query := `SELECT * FROM diagrams ORDER BY site_id ASC, created_at DESC, rowid DESC`

	var rows []diagramRow
	if err := exec.SelectContext(ctx, &rows, query); err != nil {
		return nil, NewStoreError("ListDiagrams", "diagram", "", err.Error(), err)
	}
	return rowsToDiagrams(rows)
}

func getLiveDiagram(ctx context.Context, exec executor, siteID int64, excludeID string) (*domain.Diagram, error) {
	query := `SELECT * FROM diagrams WHERE site_id = ? AND is_live = 1 AND id != ? LIMIT 1`

	var row diagramRow
	err := exec.GetContext(ctx, &row, query, siteID, excludeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, NewStoreError("GetLiveDiagram", "diagram", "", err.Error(), err)
	}
	return rowToDiagram(&row)
}

func rowsToDiagrams(rows []diagramRow) ([]domain.Diagram, error) {
	diagrams := make([]domain.Diagram, 0, len(rows))
	for i := range rows {
		d, err := rowToDiagram(&rows[i])
		if err != nil {
			return nil, err
		}
		diagrams = append(diagrams, *d)
	}
	return diagrams, nil
}

func rowToDiagram(row *diagramRow) (*domain.Diagram, error) {
	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return nil, NewStoreError("rowToDiagram", "diagram", row.ID, "invalid created_at", ErrInvalidData)
	}
	updatedAt, err := parseTime(row.UpdatedAt)
	if err != nil {
		return nil, NewStoreError("rowToDiagram", "diagram", row.ID, "invalid updated_at", ErrInvalidData)
	}
	deployedAt, err := parseTimePtr(row.DeployedAt)
	if err != nil {
		return nil, NewStoreError("rowToDiagram", "diagram", row.ID, "invalid deployed_at", ErrInvalidData)
	}

	return &domain.Diagram{
		ID:              row.ID,
		SiteID:          row.SiteID,
		Version:         row.Version,
		Title:           row.Title,
		Description:     row.Description,
		DeviceCount:     row.DeviceCount,
		ConnectionCount: row.ConnectionCount,
		Status:          domain.DiagramStatus(row.Status),
		IsLive:          row.IsLive,
		CreatedAt:       createdAt,
		CreatedBy:       row.CreatedBy,
		UpdatedAt:       updatedAt,
		DeployedAt:      deployedAt,
		DeployedBy:      row.DeployedBy,
		ParentID:        derefString(row.ParentID),
	}, nil
}

// =============================================================================
// Shared Implementation Functions - Deployment Records
// =============================================================================

func appendRecord(ctx context.Context, exec executor, rec *domain.DeploymentRecord) error {
	if !rec.Action.IsValid() {
		return NewStoreError("AppendRecord", "deployment_record", rec.ID, fmt.Sprintf("unknown action %q", rec.Action), ErrInvalidData)
	}

	query := `
		INSERT INTO deployment_records (
			id, diagram_id, site_id, action, timestamp, performed_by, notes, previous_live_id
		) VALUES (
			:id, :diagram_id, :site_id, :action, :timestamp, :performed_by, :notes, :previous_live_id
		)`

	row := map[string]any{
		"id":               rec.ID,
		"diagram_id":       rec.DiagramID,
		"site_id":          rec.SiteID,
		"action":           string(rec.Action),
		"timestamp":        formatTime(rec.Timestamp),
		"performed_by":     rec.PerformedBy,
		"notes":            rec.Notes,
		"previous_live_id": rec.PreviousLiveID,
	}

	result, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("AppendRecord", "deployment_record", rec.ID, err.Error(), classify(err))
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return NewStoreError("AppendRecord", "deployment_record", rec.ID, err.Error(), err)
	}
	rec.Seq = seq
	return nil
}

func listRecordsByDiagram(ctx context.Context, exec executor, diagramID string) ([]domain.DeploymentRecord, error) {
	query := `SELECT * FROM deployment_records WHERE diagram_id = ? ORDER BY seq ASC`

	var rows []recordRow
	if err := exec.SelectContext(ctx, &rows, query, diagramID); err != nil {
		return nil, NewStoreError("ListRecordsByDiagram", "deployment_record", "", err.Error(), err)
	}
	return rowsToRecords(rows)
}

func listRecordsBySite(ctx context.Context, exec executor, siteID int64, filter RecordFilter) ([]domain.DeploymentRecord, error) {
	opts := filter.ListOptions.Normalize()

	query := `SELECT * FROM deployment_records WHERE site_id = ?`
	args := []any{siteID}
	if filter.Action != "" {
		query += ` AND action = ?`
		args = append(args, string(filter.Action))
	}
	if filter.ExcludeDiagramID != "" {
		query += ` AND diagram_id != ?`
		args = append(args, filter.ExcludeDiagramID)
	}
	query += ` ORDER BY seq DESC LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	var rows []recordRow
	if err := exec.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, NewStoreError("ListRecordsBySite", "deployment_record", "", err.Error(), err)
	}
	return rowsToRecords(rows)
}

func listSiteHistory(ctx context.Context, exec executor, siteID int64) ([]domain.DeploymentRecord, error) {
	query := `SELECT * FROM deployment_records WHERE site_id = ? ORDER BY seq ASC`

	var rows []recordRow
	if err := exec.SelectContext(ctx, &rows, query, siteID); err != nil {
		return nil, NewStoreError("ListSiteHistory", "deployment_record", "", err.Error(), err)
	}
	return rowsToRecords(rows)
}

func rowsToRecords(rows []recordRow) ([]domain.DeploymentRecord, error) {
	records := make([]domain.DeploymentRecord, 0, len(rows))
	for i := range rows {
		ts, err := parseTime(rows[i].Timestamp)
		if err != nil {
			return nil, NewStoreError("rowToRecord", "deployment_record", rows[i].ID, "invalid timestamp", ErrInvalidData)
		}
		records = append(records, domain.DeploymentRecord{
			ID:             rows[i].ID,
			Seq:            rows[i].Seq,
			DiagramID:      rows[i].DiagramID,
			SiteID:         rows[i].SiteID,
			Action:         domain.DeploymentAction(rows[i].Action),
			Timestamp:      ts,
			PerformedBy:    rows[i].PerformedBy,
			Notes:          rows[i].Notes,
			PreviousLiveID: rows[i].PreviousLiveID,
		})
	}
	return records, nil
}

// =============================================================================
// Helpers
// =============================================================================

// timeLayout is RFC 3339 with fixed-width nanoseconds so stored values
// sort lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseTimePtr(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
