package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/portal-tracker/internal/model"
)

// Settings keys shared between reader and writer.
const (
	SettingLastParseDate = "lastParseDate"
	SettingMailFolder    = "mailFolder"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// GetSubmissions retrieves submissions matching the provided filter.
func (s *SQLiteStore) GetSubmissions(
	ctx context.Context,
	filter SubmissionFilter,
) ([]model.PortalSubmission, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, *filter.Status)
	}
	if filter.Query != nil && *filter.Query != "" {
		conditions = append(conditions, "name LIKE ?")
		args = append(args, "%"+*filter.Query+"%")
	}

	query := "SELECT portal_id, name, status, date_submitted, date_responded FROM submissions"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	sortBy := "date_submitted"
	allowedSorts := map[string]bool{
		"name":           true,
		"date_submitted": true,
		"date_responded": true,
	}
	if allowedSorts[filter.SortBy] {
		sortBy = filter.SortBy
	}

	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", sortBy, direction)

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying submissions: %w", err)
	}
	defer rows.Close()

	var subs []model.PortalSubmission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}

// GetSubmissionByID retrieves a single submission by its canonical
// portal ID. Returns ErrNotFound when no record exists.
func (s *SQLiteStore) GetSubmissionByID(
	ctx context.Context,
	portalID string,
) (*model.PortalSubmission, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT portal_id, name, status, date_submitted, date_responded FROM submissions WHERE portal_id = ?",
		portalID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying submission %s: %w", portalID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("querying submission %s: %w", portalID, err)
		}
		return nil, fmt.Errorf("submission %s: %w", portalID, ErrNotFound)
	}

	sub, err := scanSubmission(rows)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// SubmissionMap loads all submissions keyed by portal ID, the form the
// reconciliation engine consumes.
func (s *SQLiteStore) SubmissionMap(
	ctx context.Context,
) (map[string]model.PortalSubmission, error) {
	subs, err := s.GetSubmissions(ctx, SubmissionFilter{})
	if err != nil {
		return nil, err
	}

	records := make(map[string]model.PortalSubmission, len(subs))
	for _, sub := range subs {
		records[sub.PortalID] = sub
	}
	return records, nil
}

// ReplaceSubmissions upserts the reconciled records and the new sync
// state in one transaction. A partially applied run is never visible.
func (s *SQLiteStore) ReplaceSubmissions(
	ctx context.Context,
	records map[string]model.PortalSubmission,
	state model.SyncState,
) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const upsert = `
		INSERT OR REPLACE INTO submissions (
			portal_id, name, status, date_submitted, date_responded
		) VALUES (?, ?, ?, ?, ?)`

	stmt, err := tx.PreparexContext(ctx, upsert)
	if err != nil {
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		var responded interface{}
		if !rec.DateResponded.IsZero() {
			responded = rec.DateResponded.UTC()
		}

		_, err = stmt.ExecContext(ctx,
			rec.PortalID, rec.Name, string(rec.Status),
			rec.DateSubmitted.UTC(), responded,
		)
		if err != nil {
			return fmt.Errorf("upserting submission %s: %w", rec.PortalID, err)
		}
	}

	if err := setSettingTx(ctx, tx, SettingLastParseDate,
		model.FormatStateDate(state.LastParseDate)); err != nil {
		return err
	}
	if state.MailFolder != "" {
		if err := setSettingTx(ctx, tx, SettingMailFolder, state.MailFolder); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SyncState reads the persisted sync cursor. Missing settings yield
// zero values, which the model maps to first-run defaults.
func (s *SQLiteStore) SyncState(ctx context.Context) (model.SyncState, error) {
	state := model.SyncState{}

	dateStr, err := s.GetSetting(ctx, SettingLastParseDate)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return state, err
	}
	state.LastParseDate = model.ParseStateDate(dateStr)

	folder, err := s.GetSetting(ctx, SettingMailFolder)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return state, err
	}
	state.MailFolder = folder

	return state, nil
}

// GetSetting retrieves a settings value by key. Returns ErrNotFound
// when the key has never been written.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value,
		"SELECT value FROM settings WHERE key = ?", key,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("setting %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("getting setting %q: %w", key, err)
	}
	return value, nil
}

// SetSetting stores a settings value by key.
func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("setting %q: %w", key, err)
	}
	return nil
}

// RecordDiagnostic inserts a skipped-message diagnostic.
// If the diagnostic has no ID, a new UUID is generated.
func (s *SQLiteStore) RecordDiagnostic(ctx context.Context, d Diagnostic) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO diagnostics (id, message_uid, subject, reason, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.MessageUID, d.Subject, d.Reason, d.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording diagnostic: %w", err)
	}
	return nil
}

// GetDiagnostics retrieves the most recent diagnostics.
func (s *SQLiteStore) GetDiagnostics(
	ctx context.Context, limit int,
) ([]Diagnostic, error) {
	query := "SELECT id, message_uid, subject, reason, created_at FROM diagnostics ORDER BY created_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	var diags []Diagnostic
	if err := s.db.SelectContext(ctx, &diags, query); err != nil {
		return nil, fmt.Errorf("querying diagnostics: %w", err)
	}
	return diags, nil
}

// setSettingTx writes a settings key inside an open transaction.
func setSettingTx(ctx context.Context, tx *sqlx.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("setting %q: %w", key, err)
	}
	return nil
}

// scanSubmission scans a submission row from a sqlx.Rows result set.
func scanSubmission(rows *sqlx.Rows) (model.PortalSubmission, error) {
	var (
		sub       model.PortalSubmission
		status    string
		responded sql.NullTime
	)

	err := rows.Scan(
		&sub.PortalID, &sub.Name, &status,
		&sub.DateSubmitted, &responded,
	)
	if err != nil {
		return model.PortalSubmission{}, fmt.Errorf("scanning submission row: %w", err)
	}

	sub.Status = model.Status(status)
	if responded.Valid {
		sub.DateResponded = responded.Time
	}

	return sub, nil
}
