package mailparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var lastParse = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func TestBuildQueryRestrictsSenders(t *testing.T) {
	q := BuildQuery(lastParse, false)
	assert.Equal(t, knownSenders, q.FromAny)

	broad := BuildQuery(lastParse, true)
	assert.Empty(t, broad.FromAny)
}

func TestQueryMatchesSubjectPhrases(t *testing.T) {
	q := BuildQuery(lastParse, true)
	received := time.Date(2020, 2, 1, 9, 0, 0, 0, time.UTC)

	for _, subject := range []string{
		"Ingress Portal Submitted: Lighthouse",
		"Portal Review Complete: Old Mill",
		"Your Portal Submission",
		"INGRESS PORTAL SUBMITTED: shouting",
	} {
		assert.True(t, q.Matches(subject, "anyone@example.com", received),
			"subject %q should match", subject)
	}

	assert.False(t, q.Matches("Weekly newsletter", "anyone@example.com", received))
}

func TestQueryExcludesEditAndPhotoMail(t *testing.T) {
	q := BuildQuery(lastParse, true)
	received := time.Date(2020, 2, 5, 9, 0, 0, 0, time.UTC)

	for _, subject := range []string{
		"Portal Submission - invalid",
		"Portal Submission - edit",
		"Ingress Portal Edits Accepted",
		"Portal photo submission received",
	} {
		assert.False(t, q.Matches(subject, "anyone@example.com", received),
			"subject %q should be excluded", subject)
	}
}

func TestQueryDateBoundIsStrict(t *testing.T) {
	q := BuildQuery(lastParse, true)
	subject := "Ingress Portal Submitted: Lighthouse"

	// Same day as the cursor does not match; the next day does.
	sameDay := time.Date(2020, 1, 1, 23, 0, 0, 0, time.UTC)
	assert.False(t, q.Matches(subject, "a@example.com", sameDay))

	nextDay := time.Date(2020, 1, 2, 0, 30, 0, 0, time.UTC)
	assert.True(t, q.Matches(subject, "a@example.com", nextDay))

	before := time.Date(2019, 12, 31, 9, 0, 0, 0, time.UTC)
	assert.False(t, q.Matches(subject, "a@example.com", before))
}

func TestQuerySenderAllowList(t *testing.T) {
	q := BuildQuery(lastParse, false)
	subject := "Ingress Portal Submitted: Lighthouse"
	received := time.Date(2020, 2, 1, 9, 0, 0, 0, time.UTC)

	assert.True(t, q.Matches(subject, "ingress-support@google.com", received))
	assert.True(t, q.Matches(subject, "super-ops@google.com", received))
	assert.True(t, q.Matches(subject, "INGRESS-SUPPORT@NIANTICLABS.COM", received))
	assert.False(t, q.Matches(subject, "random@example.com", received))
}

func TestCriteriaRendersAllTerms(t *testing.T) {
	q := BuildQuery(lastParse, false)
	criteria := q.Criteria()

	// SINCE starts strictly after the cursor day.
	assert.Equal(t, time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC), criteria.Since)

	// One NOT per exclusion term.
	assert.Len(t, criteria.Not, len(exclusionTerms))
}
