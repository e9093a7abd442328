package model

import "time"

// DateFormat is the stable text form used when persisting dates.
// Reader and writer must agree on it, so it never changes.
const DateFormat = "2006-01-02"

// defaultParseDate is the epoch used when no prior sync has run:
// the day Ingress launched, so a first run captures all history.
var defaultParseDate = time.Date(2012, time.October, 15, 0, 0, 0, 0, time.UTC)

// SyncState is the per-account incremental sync cursor. It is read
// before building the mailbox query and written back after a run
// completes; the store owns persistence, the engine only computes the
// next value.
type SyncState struct {
	// LastParseDate is the high-water mark: the newest message
	// timestamp folded by the previous run.
	LastParseDate time.Time

	// MailFolder is the remembered mailbox folder containing portal
	// emails. Empty until the user has picked one.
	MailFolder string
}

// EffectiveParseDate returns LastParseDate, or the historical default
// epoch when no prior state exists.
func (s SyncState) EffectiveParseDate() time.Time {
	if s.LastParseDate.IsZero() {
		return defaultParseDate
	}
	return s.LastParseDate
}

// DefaultParseDate returns the fixed first-run epoch.
func DefaultParseDate() time.Time {
	return defaultParseDate
}

// ParseStateDate parses a persisted date string. Unparseable or empty
// input yields the zero time, which EffectiveParseDate maps to the
// default epoch.
func ParseStateDate(s string) time.Time {
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// FormatStateDate renders a date in the persisted text form.
func FormatStateDate(t time.Time) string {
	return t.Format(DateFormat)
}
