package model

import "time"

// EventKind identifies what a notification email reported.
type EventKind int

const (
	// EventSubmission is a confirmation that a nomination was received.
	EventSubmission EventKind = iota

	// EventAccepted is a review outcome accepting the portal.
	EventAccepted

	// EventRejected is a review outcome rejecting the portal.
	EventRejected
)

// String returns the lowercase name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventSubmission:
		return "submission"
	case EventAccepted:
		return "accepted"
	case EventRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// MailEvent is one classified and extracted notification email. Events
// are transient: produced per matching message and consumed immediately
// by the reconciliation fold, never persisted.
type MailEvent struct {
	// PortalID is the canonical merge key (see CanonicalID).
	PortalID string

	// PortalName is the display form of the portal name.
	PortalName string

	// Kind is what the email reported.
	Kind EventKind

	// Timestamp is the mailbox-provided received date of the message.
	// Dates are never parsed out of free text.
	Timestamp time.Time
}
