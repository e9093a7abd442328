package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalID(t *testing.T) {
	// Case and whitespace drift across emails referring to the same
	// venue must map to one key.
	variants := []string{
		"Old Mill",
		" old   mill ",
		"OLD MILL",
		"old\tmill",
	}
	for _, v := range variants {
		assert.Equal(t, "old mill", CanonicalID(v), "input %q", v)
	}

	assert.Equal(t, "lighthouse", CanonicalID("Lighthouse"))
	assert.Equal(t, "", CanonicalID("   "))
}

func TestDaysSincePending(t *testing.T) {
	now := time.Date(2020, 3, 1, 12, 0, 0, 0, time.UTC)

	pending := PortalSubmission{
		PortalID:      "lighthouse",
		Name:          "Lighthouse",
		Status:        StatusPending,
		DateSubmitted: time.Date(2020, 2, 1, 12, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, 29, pending.DaysSincePending(now))
	assert.Equal(t, 0, pending.DaysSinceResponse(now))
	assert.False(t, pending.Responded())
}

func TestDaysSinceResponse(t *testing.T) {
	now := time.Date(2020, 3, 1, 12, 0, 0, 0, time.UTC)

	accepted := PortalSubmission{
		PortalID:      "lighthouse",
		Name:          "Lighthouse",
		Status:        StatusAccepted,
		DateSubmitted: time.Date(2020, 2, 1, 12, 0, 0, 0, time.UTC),
		DateResponded: time.Date(2020, 2, 10, 12, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, 20, accepted.DaysSinceResponse(now))
	assert.Equal(t, 0, accepted.DaysSincePending(now))
	assert.True(t, accepted.Responded())
}

func TestEffectiveParseDate(t *testing.T) {
	var state SyncState
	assert.Equal(t, DefaultParseDate(), state.EffectiveParseDate())

	parsed := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	state.LastParseDate = parsed
	assert.Equal(t, parsed, state.EffectiveParseDate())
}

func TestStateDateRoundTrip(t *testing.T) {
	d := time.Date(2020, 2, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2020-02-10", FormatStateDate(d))
	assert.Equal(t, d, ParseStateDate("2020-02-10"))

	assert.True(t, ParseStateDate("not a date").IsZero())
	assert.True(t, ParseStateDate("").IsZero())
}
