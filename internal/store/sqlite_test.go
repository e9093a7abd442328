package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/portal-tracker/internal/model"
	"github.com/nhle/portal-tracker/internal/store"
	"github.com/nhle/portal-tracker/tests/testutil"
)

var (
	subDate  = time.Date(2020, 2, 1, 9, 0, 0, 0, time.UTC)
	respDate = time.Date(2020, 2, 10, 9, 0, 0, 0, time.UTC)
)

func sampleRecords() map[string]model.PortalSubmission {
	return map[string]model.PortalSubmission{
		"lighthouse": {
			PortalID:      "lighthouse",
			Name:          "Lighthouse",
			Status:        model.StatusAccepted,
			DateSubmitted: subDate,
			DateResponded: respDate,
		},
		"old mill": {
			PortalID:      "old mill",
			Name:          "Old Mill",
			Status:        model.StatusPending,
			DateSubmitted: respDate,
		},
	}
}

func TestReplaceSubmissionsRoundTrip(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	state := model.SyncState{
		LastParseDate: respDate,
		MailFolder:    "INBOX",
	}
	require.NoError(t, s.ReplaceSubmissions(ctx, sampleRecords(), state))

	records, err := s.SubmissionMap(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	lighthouse := records["lighthouse"]
	assert.Equal(t, model.StatusAccepted, lighthouse.Status)
	assert.WithinDuration(t, subDate, lighthouse.DateSubmitted, time.Second)
	assert.WithinDuration(t, respDate, lighthouse.DateResponded, time.Second)

	mill := records["old mill"]
	assert.Equal(t, model.StatusPending, mill.Status)
	assert.True(t, mill.DateResponded.IsZero())

	loaded, err := s.SyncState(ctx)
	require.NoError(t, err)
	assert.Equal(t, "INBOX", loaded.MailFolder)
	// The cursor is persisted at day granularity.
	assert.True(t, loaded.LastParseDate.Equal(time.Date(2020, 2, 10, 0, 0, 0, 0, time.UTC)))
}

func TestReplaceSubmissionsTransitionsStatus(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	pending := map[string]model.PortalSubmission{
		"lighthouse": {
			PortalID:      "lighthouse",
			Name:          "Lighthouse",
			Status:        model.StatusPending,
			DateSubmitted: subDate,
		},
	}
	require.NoError(t, s.ReplaceSubmissions(ctx, pending, model.SyncState{LastParseDate: subDate}))

	// A later run replaces the record with its terminal variant; at
	// most one row per portal exists.
	accepted := sampleRecords()
	delete(accepted, "old mill")
	require.NoError(t, s.ReplaceSubmissions(ctx, accepted, model.SyncState{LastParseDate: respDate}))

	subs, err := s.GetSubmissions(ctx, store.SubmissionFilter{})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, model.StatusAccepted, subs[0].Status)
}

func TestGetSubmissionsFilterAndSort(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceSubmissions(ctx, sampleRecords(), model.SyncState{
		LastParseDate: respDate,
	}))

	pending := string(model.StatusPending)
	subs, err := s.GetSubmissions(ctx, store.SubmissionFilter{Status: &pending})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "Old Mill", subs[0].Name)

	query := "light"
	subs, err = s.GetSubmissions(ctx, store.SubmissionFilter{Query: &query})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "Lighthouse", subs[0].Name)

	subs, err = s.GetSubmissions(ctx, store.SubmissionFilter{SortBy: "name"})
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "Lighthouse", subs[0].Name)

	subs, err = s.GetSubmissions(ctx, store.SubmissionFilter{SortBy: "name", SortDesc: true})
	require.NoError(t, err)
	assert.Equal(t, "Old Mill", subs[0].Name)
}

func TestGetSubmissionByID(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceSubmissions(ctx, sampleRecords(), model.SyncState{
		LastParseDate: respDate,
	}))

	sub, err := s.GetSubmissionByID(ctx, "lighthouse")
	require.NoError(t, err)
	assert.Equal(t, "Lighthouse", sub.Name)

	_, err = s.GetSubmissionByID(ctx, "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestSyncStateDefaults(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	state, err := s.SyncState(ctx)
	require.NoError(t, err)
	assert.True(t, state.LastParseDate.IsZero())
	assert.Empty(t, state.MailFolder)
	assert.Equal(t, model.DefaultParseDate(), state.EffectiveParseDate())
}

func TestSettings(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	_, err := s.GetSetting(ctx, store.SettingMailFolder)
	assert.True(t, errors.Is(err, store.ErrNotFound))

	require.NoError(t, s.SetSetting(ctx, store.SettingMailFolder, "INBOX/Niantic"))
	value, err := s.GetSetting(ctx, store.SettingMailFolder)
	require.NoError(t, err)
	assert.Equal(t, "INBOX/Niantic", value)

	// Overwrite.
	require.NoError(t, s.SetSetting(ctx, store.SettingMailFolder, "INBOX"))
	value, err = s.GetSetting(ctx, store.SettingMailFolder)
	require.NoError(t, err)
	assert.Equal(t, "INBOX", value)
}

func TestDiagnostics(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordDiagnostic(ctx, store.Diagnostic{
		MessageUID: 42,
		Subject:    "Portal Submitted",
		Reason:     "portal name not found in subject or body",
	}))

	diags, err := s.GetDiagnostics(ctx, 10)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.NotEmpty(t, diags[0].ID)
	assert.Equal(t, uint32(42), diags[0].MessageUID)
	assert.False(t, diags[0].CreatedAt.IsZero())
}
