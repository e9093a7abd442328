package mailparse

import (
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
)

// Subject phrases matched by the mailbox search. Every notification the
// tracker cares about carries one of these, case-insensitively.
var subjectPhrases = []string{
	"ingress portal",
	"portal review",
	"portal submission",
	"portal submitted",
}

// Subject terms that disqualify a message even when a phrase matches:
// edit and photo notifications reuse the submission wording but do not
// describe a nomination.
var exclusionTerms = []string{
	"invalid",
	"edit",
	"edits",
	"photo",
}

// Known notification senders. The allow-list is skipped when a query is
// built with anySource, for diagnostic re-scans of oddly routed mail.
var knownSenders = []string{
	"super-ops@google.com",
	"ingress-support@google.com",
	"ingress-support@nianticlabs.com",
}

// Query is the mailbox search predicate for one incremental sync run.
// It is pure data: Criteria renders it for the IMAP server and Matches
// evaluates the same semantics locally.
type Query struct {
	// SubjectAny holds phrases of which at least one must appear in
	// the subject.
	SubjectAny []string

	// SubjectNone holds terms that must not appear in the subject.
	SubjectNone []string

	// FromAny restricts the sender address; empty means any sender.
	FromAny []string

	// After is the exclusive lower bound on the received date, at day
	// granularity.
	After time.Time
}

// BuildQuery constructs the search predicate for messages received
// strictly after lastParseDate. When anySource is false the sender
// allow-list is applied.
func BuildQuery(lastParseDate time.Time, anySource bool) Query {
	q := Query{
		SubjectAny:  subjectPhrases,
		SubjectNone: exclusionTerms,
		After:       lastParseDate,
	}
	if !anySource {
		q.FromAny = knownSenders
	}
	return q
}

// Criteria renders the query as go-imap search criteria.
func (q Query) Criteria() *imap.SearchCriteria {
	criteria := &imap.SearchCriteria{
		// SINCE is inclusive at day granularity, so start the day
		// after the last parse date.
		Since: startOfDay(q.After).AddDate(0, 0, 1),
	}

	if len(q.SubjectAny) > 0 {
		criteria.And(anyOf(subjectCriteria(q.SubjectAny)))
	}

	for _, term := range q.SubjectNone {
		criteria.Not = append(criteria.Not, imap.SearchCriteria{
			Header: []imap.SearchCriteriaHeaderField{
				{Key: "Subject", Value: term},
			},
		})
	}

	if len(q.FromAny) > 0 {
		var senders []imap.SearchCriteria
		for _, from := range q.FromAny {
			senders = append(senders, imap.SearchCriteria{
				Header: []imap.SearchCriteriaHeaderField{
					{Key: "From", Value: from},
				},
			})
		}
		criteria.And(anyOf(senders))
	}

	return criteria
}

// Matches reports whether a message with the given subject, sender
// address, and received date satisfies the predicate. Substring
// comparisons are case-insensitive, mirroring IMAP HEADER search
// semantics.
func (q Query) Matches(subject, from string, received time.Time) bool {
	if !startOfDay(received).After(startOfDay(q.After)) {
		return false
	}

	subject = strings.ToLower(subject)

	anySubject := false
	for _, phrase := range q.SubjectAny {
		if strings.Contains(subject, phrase) {
			anySubject = true
			break
		}
	}
	if !anySubject {
		return false
	}

	for _, term := range q.SubjectNone {
		if strings.Contains(subject, term) {
			return false
		}
	}

	if len(q.FromAny) == 0 {
		return true
	}
	from = strings.ToLower(from)
	for _, sender := range q.FromAny {
		if strings.Contains(from, sender) {
			return true
		}
	}
	return false
}

// subjectCriteria maps phrases to single-header search criteria.
func subjectCriteria(phrases []string) []imap.SearchCriteria {
	var out []imap.SearchCriteria
	for _, phrase := range phrases {
		out = append(out, imap.SearchCriteria{
			Header: []imap.SearchCriteriaHeaderField{
				{Key: "Subject", Value: phrase},
			},
		})
	}
	return out
}

// anyOf folds a list of criteria into a nested OR.
func anyOf(criteria []imap.SearchCriteria) *imap.SearchCriteria {
	result := criteria[0]
	for _, c := range criteria[1:] {
		result = imap.SearchCriteria{
			Or: [][2]imap.SearchCriteria{{result, c}},
		}
	}
	return &result
}

func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
