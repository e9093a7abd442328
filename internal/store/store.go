package store

import (
	"context"
	"time"

	"github.com/nhle/portal-tracker/internal/model"
)

// SubmissionFilter controls filtering, sorting, and pagination for
// submission queries.
type SubmissionFilter struct {
	Status   *string // "pending", "accepted", "rejected", or nil (all)
	Query    *string // name substring match
	SortBy   string  // "name", "date_submitted", "date_responded"
	SortDesc bool
	Limit    int
	Offset   int
}

// Diagnostic records a message that matched the mailbox search but
// could not be turned into an event, so skips are auditable.
type Diagnostic struct {
	ID         string    `db:"id"`
	MessageUID uint32    `db:"message_uid"`
	Subject    string    `db:"subject"`
	Reason     string    `db:"reason"`
	CreatedAt  time.Time `db:"created_at"`
}

// Store defines the persistence interface for portal submission
// records, the sync cursor, and extraction diagnostics.
type Store interface {
	// === Submissions ===

	GetSubmissions(ctx context.Context, filter SubmissionFilter) ([]model.PortalSubmission, error)
	GetSubmissionByID(ctx context.Context, portalID string) (*model.PortalSubmission, error)
	SubmissionMap(ctx context.Context) (map[string]model.PortalSubmission, error)

	// ReplaceSubmissions upserts the given full-replacement records and
	// the new sync state in a single transaction, so a run either
	// commits a coherent (records, cursor) pair or changes nothing.
	ReplaceSubmissions(ctx context.Context, records map[string]model.PortalSubmission, state model.SyncState) error

	// === Sync state ===

	SyncState(ctx context.Context) (model.SyncState, error)
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// === Diagnostics ===

	RecordDiagnostic(ctx context.Context, d Diagnostic) error
	GetDiagnostics(ctx context.Context, limit int) ([]Diagnostic, error)
}
