// Package syncer orchestrates one incremental mail-to-record sync run:
// query building, fetch, classification/extraction, reconciliation,
// and the atomic commit of the result.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nhle/portal-tracker/internal/mailbox"
	"github.com/nhle/portal-tracker/internal/mailparse"
	"github.com/nhle/portal-tracker/internal/model"
	"github.com/nhle/portal-tracker/internal/pool"
	"github.com/nhle/portal-tracker/internal/reconcile"
	"github.com/nhle/portal-tracker/internal/store"
)

// ErrSyncInProgress is returned when a run is requested while another
// run for the same account is still in flight. Concurrent runs would
// race on the sync cursor and the record set, so they are rejected,
// never interleaved.
var ErrSyncInProgress = errors.New("sync already in progress")

// ErrNoFolder is returned when no folder is remembered and no picker
// is available to choose one.
var ErrNoFolder = errors.New("no mail folder selected")

// MailboxFactory opens an authenticated mailbox for a run. Each run
// gets a fresh connection.
type MailboxFactory func(ctx context.Context) (mailbox.Mailbox, error)

// Options tunes a single run.
type Options struct {
	// AnySource disables the sender allow-list for a broader manual
	// re-scan.
	AnySource bool

	// Folder overrides the remembered mail folder for this run.
	Folder string
}

// Result is the outcome of a completed run.
type Result struct {
	// Records is the full updated record set keyed by portal ID.
	Records map[string]model.PortalSubmission

	// State is the committed sync state, including the new
	// high-water-mark parse date and the folder used.
	State model.SyncState

	// Fetched is the number of messages the search returned.
	Fetched int

	// Folded is the number of events merged into the record set.
	Folded int

	// Skipped is the number of matched messages that could not be
	// extracted and were recorded as diagnostics.
	Skipped int
}

// Runner executes sync runs. Only one run may be in flight at a time.
type Runner struct {
	openMailbox MailboxFactory
	store       store.Store
	picker      mailbox.FolderPicker
	logger      *zap.Logger
	workers     int

	mu       sync.Mutex
	inFlight bool
}

// New creates a Runner. picker may be nil when the caller guarantees a
// remembered folder; workers bounds the parallel classification stage.
func New(
	open MailboxFactory,
	s store.Store,
	picker mailbox.FolderPicker,
	logger *zap.Logger,
	workers int,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		openMailbox: open,
		store:       s,
		picker:      picker,
		logger:      logger,
		workers:     workers,
	}
}

// Run performs one sync run. Run-level failures (auth, transport)
// abort before reconciliation and leave the previous records and
// cursor fully intact; per-message extraction failures are recorded
// and skipped. On success the updated record set and new parse date
// are committed atomically.
func (r *Runner) Run(ctx context.Context, opts Options) (*Result, error) {
	r.mu.Lock()
	if r.inFlight {
		r.mu.Unlock()
		return nil, ErrSyncInProgress
	}
	r.inFlight = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inFlight = false
		r.mu.Unlock()
	}()

	state, err := r.store.SyncState(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading sync state: %w", err)
	}
	if opts.Folder != "" {
		state.MailFolder = opts.Folder
	}

	mb, err := r.openMailbox(ctx)
	if err != nil {
		return nil, err
	}
	defer mb.Close()

	folder, err := r.selectFolder(ctx, mb, state.MailFolder)
	if err != nil {
		return nil, err
	}
	state.MailFolder = folder

	lastParse := state.EffectiveParseDate()
	query := mailparse.BuildQuery(lastParse, opts.AnySource)

	r.logger.Info("searching mailbox",
		zap.String("folder", folder),
		zap.Time("last_parse_date", lastParse),
		zap.Bool("any_source", opts.AnySource),
	)

	uids, err := mb.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	messages, err := mb.Fetch(ctx, uids)
	if err != nil {
		return nil, err
	}

	// Cancellation checkpoint: once past here the fold runs to
	// completion, so a partial record set is never committed.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	events, skipped := r.parseMessages(ctx, messages)

	for _, d := range skipped {
		if err := r.store.RecordDiagnostic(ctx, d); err != nil {
			r.logger.Warn("recording diagnostic", zap.Error(err))
		}
	}

	existing, err := r.store.SubmissionMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading existing records: %w", err)
	}

	records, newParseDate := reconcile.Reconcile(existing, events, lastParse)
	state.LastParseDate = newParseDate

	if err := r.store.ReplaceSubmissions(ctx, records, state); err != nil {
		return nil, fmt.Errorf("committing sync result: %w", err)
	}

	r.logger.Info("sync complete",
		zap.Int("fetched", len(messages)),
		zap.Int("folded", len(events)),
		zap.Int("skipped", len(skipped)),
		zap.Time("new_parse_date", newParseDate),
	)

	return &Result{
		Records: records,
		State:   state,
		Fetched: len(messages),
		Folded:  len(events),
		Skipped: len(skipped),
	}, nil
}

// selectFolder picks the folder for this run: the remembered name when
// it still exists on the server, otherwise whatever the picker
// chooses. The returned name is persisted with the run's sync state.
func (r *Runner) selectFolder(
	ctx context.Context,
	mb mailbox.Mailbox,
	remembered string,
) (string, error) {
	folders, err := mb.ListFolders(ctx)
	if err != nil {
		return "", err
	}

	name := ""
	if remembered != "" && containsFolder(folders, remembered) {
		name = remembered
	} else {
		if r.picker == nil {
			return "", ErrNoFolder
		}
		name, err = r.picker.Choose(folders)
		if err != nil {
			return "", fmt.Errorf("choosing folder: %w", err)
		}
		r.logger.Info("folder chosen", zap.String("folder", name))
	}

	if err := mb.SelectFolder(ctx, name, true); err != nil {
		return "", err
	}
	return name, nil
}

// parseMessages classifies and extracts events from fetched messages.
// Each message is independent, so the work fans out across the worker
// pool; the subsequent reconciliation fold stays single-threaded.
// Unrecognized subjects are silently dropped; extraction failures come
// back as diagnostics.
func (r *Runner) parseMessages(
	ctx context.Context,
	messages []mailbox.Message,
) ([]model.MailEvent, []store.Diagnostic) {
	type outcome struct {
		event model.MailEvent
		diag  store.Diagnostic
		kind  int // 0 dropped, 1 event, 2 diagnostic
	}

	outcomes := make([]outcome, len(messages))

	workers := pool.New(r.workers, len(messages))
	workers.Start(ctx)
	for i := range messages {
		i := i
		msg := messages[i]
		workers.Submit(func() {
			c := mailparse.Classify(msg.Subject)
			if c == mailparse.ClassIgnore {
				return
			}

			ev, err := mailparse.Extract(msg.Subject, msg.TextBody, msg.Received, c)
			if err != nil {
				outcomes[i] = outcome{
					kind: 2,
					diag: store.Diagnostic{
						MessageUID: msg.UID,
						Subject:    msg.Subject,
						Reason:     err.Error(),
					},
				}
				return
			}
			outcomes[i] = outcome{kind: 1, event: ev}
		})
	}
	workers.Stop()

	var events []model.MailEvent
	var skipped []store.Diagnostic
	for _, out := range outcomes {
		switch out.kind {
		case 1:
			events = append(events, out.event)
		case 2:
			r.logger.Warn("skipping message",
				zap.Uint32("uid", out.diag.MessageUID),
				zap.String("subject", out.diag.Subject),
				zap.String("reason", out.diag.Reason),
			)
			skipped = append(skipped, out.diag)
		}
	}
	return events, skipped
}

func containsFolder(folders []string, name string) bool {
	for _, f := range folders {
		if f == name {
			return true
		}
	}
	return false
}
