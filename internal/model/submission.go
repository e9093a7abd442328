package model

import (
	"strings"
	"time"
)

// Status identifies the review outcome of a portal submission.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// PortalSubmission is the durable record for one nominated portal.
// Exactly one record exists per PortalID; the reconciliation engine is
// the only writer that may change Status.
type PortalSubmission struct {
	// PortalID is the canonical merge key derived from the portal name.
	PortalID string `json:"portal_id" db:"portal_id"`

	// Name is the display form of the portal name (first-seen casing).
	Name string `json:"name" db:"name"`

	// Status is the current review state (use Status* constants).
	Status Status `json:"status" db:"status"`

	// DateSubmitted is when the nomination was received for review.
	DateSubmitted time.Time `json:"date_submitted" db:"date_submitted"`

	// DateResponded is when the review outcome arrived.
	// Zero while the submission is still pending.
	DateResponded time.Time `json:"date_responded" db:"date_responded"`
}

// Responded reports whether the submission has a terminal outcome.
func (p PortalSubmission) Responded() bool {
	return p.Status != StatusPending
}

// DaysSincePending returns the number of whole days the submission has
// been waiting for a response, measured from now. Zero once responded.
func (p PortalSubmission) DaysSincePending(now time.Time) int {
	if p.Responded() {
		return 0
	}
	return daysBetween(p.DateSubmitted, now)
}

// DaysSinceResponse returns the number of whole days since the review
// outcome arrived. Zero while pending.
func (p PortalSubmission) DaysSinceResponse(now time.Time) int {
	if !p.Responded() {
		return 0
	}
	return daysBetween(p.DateResponded, now)
}

func daysBetween(from, to time.Time) int {
	d := int(to.Sub(from).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// CanonicalID normalizes a portal display name into a stable merge key:
// leading/trailing whitespace is trimmed, internal runs of whitespace
// collapse to a single space, and the result is case-folded. Formatting
// drift across emails referring to the same venue therefore maps to one
// record.
func CanonicalID(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
