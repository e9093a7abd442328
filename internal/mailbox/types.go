package mailbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/portal-tracker/internal/mailparse"
)

// AuthError indicates that the mailbox server rejected the account's
// credential. It is surfaced to the caller and never retried
// automatically; the caller must re-authenticate and re-invoke.
type AuthError struct {
	Account string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Account, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an
// AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// FetchError indicates a transport or protocol failure during folder
// listing, selection, search, or bulk fetch. It aborts the run before
// reconciliation, leaving prior state untouched.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("mailbox %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsFetchError reports whether err (or any error in its chain) is a
// FetchError.
func IsFetchError(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr)
}

// Message is one fetched mail with the metadata the pipeline needs:
// envelope fields plus the decoded plain-text body.
type Message struct {
	UID      uint32
	Subject  string
	From     string
	Received time.Time
	TextBody string
}

// Mailbox is the narrow capability the sync pipeline needs from an
// authenticated mail connection. Implementations are connection-bound
// handles; the pipeline itself stays deterministic and testable
// against fakes.
type Mailbox interface {
	// ListFolders returns the full names of all folders.
	ListFolders(ctx context.Context) ([]string, error)

	// SelectFolder opens the named folder, read-only when readOnly.
	SelectFolder(ctx context.Context, name string, readOnly bool) error

	// Search runs the query against the selected folder and returns
	// matching message UIDs. No matches is an empty slice, not an
	// error.
	Search(ctx context.Context, q mailparse.Query) ([]uint32, error)

	// Fetch bulk-retrieves envelope and body content for the given
	// UIDs in one round trip.
	Fetch(ctx context.Context, uids []uint32) ([]Message, error)

	// Close releases the connection.
	Close() error
}

// FolderPicker chooses a folder when no remembered folder is usable.
// The interactive implementation lives in the host process; tests
// supply fakes.
type FolderPicker interface {
	Choose(candidates []string) (string, error)
}
