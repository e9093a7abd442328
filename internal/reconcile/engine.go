// Package reconcile folds classified mail events into the per-portal
// record set. The fold is pure: it never touches the mailbox or the
// store, so repeated runs over overlapping mailbox windows are safe and
// the merge rules can be tested exhaustively.
package reconcile

import (
	"sort"
	"time"

	"github.com/nhle/portal-tracker/internal/model"
)

// Reconcile folds events into existing records and returns the updated
// record set together with the new high-water-mark date for the next
// incremental sync. The input map is not mutated.
//
// Events are folded in ascending timestamp order, submissions before
// responses on ties, because a submission logically precedes its own
// response. The merge rules are idempotent: reconciling the same event
// sequence against its own output changes nothing.
func Reconcile(
	existing map[string]model.PortalSubmission,
	events []model.MailEvent,
	lastParseDate time.Time,
) (map[string]model.PortalSubmission, time.Time) {
	updated := make(map[string]model.PortalSubmission, len(existing)+len(events))
	for id, rec := range existing {
		updated[id] = rec
	}

	sorted := make([]model.MailEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.Kind == model.EventSubmission && b.Kind != model.EventSubmission
	})

	newParseDate := lastParseDate
	for _, ev := range sorted {
		fold(updated, ev)
		if ev.Timestamp.After(newParseDate) {
			newParseDate = ev.Timestamp
		}
	}

	return updated, newParseDate
}

// fold applies a single event to the record set.
func fold(records map[string]model.PortalSubmission, ev model.MailEvent) {
	rec, exists := records[ev.PortalID]

	if ev.Kind == model.EventSubmission {
		records[ev.PortalID] = foldSubmission(rec, exists, ev)
		return
	}
	records[ev.PortalID] = foldResponse(rec, exists, ev)
}

// foldSubmission merges a nomination-received event.
func foldSubmission(
	rec model.PortalSubmission, exists bool, ev model.MailEvent,
) model.PortalSubmission {
	if !exists {
		return model.PortalSubmission{
			PortalID:      ev.PortalID,
			Name:          ev.PortalName,
			Status:        model.StatusPending,
			DateSubmitted: ev.Timestamp,
		}
	}

	if rec.Status == model.StatusPending {
		// Re-delivery of the same confirmation must not move the date
		// later.
		if ev.Timestamp.Before(rec.DateSubmitted) {
			rec.DateSubmitted = ev.Timestamp
		}
		return rec
	}

	// A submission newer than the recorded outcome is a resubmission:
	// the record reopens as pending. Older submission events are
	// stragglers for the already-settled round.
	if ev.Timestamp.After(rec.DateResponded) {
		rec.Status = model.StatusPending
		rec.DateSubmitted = ev.Timestamp
		rec.DateResponded = time.Time{}
	}
	return rec
}

// foldResponse merges a review-outcome event.
func foldResponse(
	rec model.PortalSubmission, exists bool, ev model.MailEvent,
) model.PortalSubmission {
	status := model.StatusAccepted
	if ev.Kind == model.EventRejected {
		status = model.StatusRejected
	}

	if !exists {
		// No submission email was seen; fall back to the response
		// timestamp for the submission date.
		return model.PortalSubmission{
			PortalID:      ev.PortalID,
			Name:          ev.PortalName,
			Status:        status,
			DateSubmitted: ev.Timestamp,
			DateResponded: ev.Timestamp,
		}
	}

	if rec.Status == model.StatusPending {
		rec.Status = status
		rec.DateResponded = ev.Timestamp
		return rec
	}

	if rec.Status == status {
		// Duplicate notification.
		return rec
	}

	// Conflicting terminal outcomes: last writer by timestamp wins,
	// since a resubmitted portal can legitimately get a different
	// outcome later.
	if ev.Timestamp.After(rec.DateResponded) {
		rec.Status = status
		rec.DateResponded = ev.Timestamp
	}
	return rec
}
