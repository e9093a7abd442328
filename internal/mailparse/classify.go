package mailparse

import (
	"strings"

	"github.com/nhle/portal-tracker/internal/model"
)

// Classification is the result of inspecting a message subject.
type Classification int

const (
	// ClassIgnore marks a message that is not a portal notification.
	// Not an error; the message is silently dropped.
	ClassIgnore Classification = iota

	// ClassSubmission marks a nomination-received confirmation.
	ClassSubmission

	// ClassAccepted marks an accepting review outcome.
	ClassAccepted

	// ClassRejected marks a rejecting review outcome.
	ClassRejected
)

// String returns the lowercase name of the classification.
func (c Classification) String() string {
	switch c {
	case ClassSubmission:
		return "submission"
	case ClassAccepted:
		return "accepted"
	case ClassRejected:
		return "rejected"
	default:
		return "ignore"
	}
}

// EventKind maps a classification to its event kind. Only valid for
// non-Ignore classifications.
func (c Classification) EventKind() model.EventKind {
	switch c {
	case ClassAccepted:
		return model.EventAccepted
	case ClassRejected:
		return model.EventRejected
	default:
		return model.EventSubmission
	}
}

// Phrases indicating a rejection outcome. Checked before acceptance and
// submission phrases: response emails sometimes retain the original
// "submission" subject line, so outcome wording has to win.
var rejectionPhrases = []string{
	"rejected",
	"not been accepted",
	"we were unable to accept",
	"does not meet the criteria",
}

// Phrases indicating an acceptance outcome.
var acceptancePhrases = []string{
	"accepted",
	"approved",
	"now a live portal",
	"congratulations",
}

// Generic nomination-received phrases, checked last.
var submissionPhrases = []string{
	"portal submitted",
	"portal submission",
	"ingress portal",
	"submission received",
}

// Classify inspects a message subject and decides whether it is a
// submission event, a response event (and which outcome), or noise.
// Exclusion terms force Ignore even when a phrase would match, so edit
// and photo notifications never become events.
func Classify(subject string) Classification {
	s := strings.ToLower(subject)

	for _, term := range exclusionTerms {
		if strings.Contains(s, term) {
			return ClassIgnore
		}
	}

	for _, phrase := range rejectionPhrases {
		if strings.Contains(s, phrase) {
			return ClassRejected
		}
	}
	for _, phrase := range acceptancePhrases {
		if strings.Contains(s, phrase) {
			return ClassAccepted
		}
	}
	for _, phrase := range submissionPhrases {
		if strings.Contains(s, phrase) {
			return ClassSubmission
		}
	}

	return ClassIgnore
}
