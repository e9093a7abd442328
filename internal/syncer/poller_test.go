package syncer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/portal-tracker/internal/mailbox"
	"github.com/nhle/portal-tracker/internal/model"
	"github.com/nhle/portal-tracker/internal/syncer"
	"github.com/nhle/portal-tracker/tests/testutil"
)

func TestPollerDeliversResults(t *testing.T) {
	s := testutil.NewTestStore(t)

	seedState(t, s, model.SyncState{
		LastParseDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		MailFolder:    "INBOX",
	})

	fake := &fakeMailbox{
		folders: []string{"INBOX"},
		messages: []mailbox.Message{
			{
				UID:      1,
				Subject:  "Ingress Portal Submitted: Old Mill",
				From:     "super-ops@google.com",
				Received: time.Date(2020, 2, 1, 9, 0, 0, 0, time.UTC),
			},
		},
	}

	runner := syncer.New(openFake(fake), s, nil, nil, 1)
	poller := syncer.NewPoller(runner, syncer.Options{}, time.Hour, nil)

	poller.Start()
	defer poller.Stop()

	// The initial run fires immediately on Start.
	st := awaitResult(t, poller)
	require.NoError(t, st.Err)
	require.NotNil(t, st.Result)
	assert.Equal(t, 1, st.Result.Folded)
	assert.Equal(t, syncer.PollIdle, st.State)
	assert.False(t, st.LastSync.IsZero())

	// An on-demand trigger produces another run well before the tick.
	poller.Trigger()
	st = awaitResult(t, poller)
	require.NoError(t, st.Err)
	assert.Equal(t, syncer.PollIdle, poller.Status().State)
}

func TestPollerReportsRunFailure(t *testing.T) {
	s := testutil.NewTestStore(t)

	open := func(_ context.Context) (mailbox.Mailbox, error) {
		return nil, &mailbox.AuthError{
			Account: "agent@example.com",
			Message: "authentication failed",
		}
	}

	runner := syncer.New(open, s, nil, nil, 1)
	poller := syncer.NewPoller(runner, syncer.Options{}, time.Hour, nil)

	poller.Start()
	defer poller.Stop()

	st := awaitResult(t, poller)
	require.Error(t, st.Err)
	assert.True(t, mailbox.IsAuthError(st.Err))
	assert.Equal(t, syncer.PollError, poller.Status().State)
}

func TestPollerSkipsWhenRunInFlight(t *testing.T) {
	s := testutil.NewTestStore(t)

	seedState(t, s, model.SyncState{MailFolder: "INBOX"})

	started := make(chan struct{}, 1)
	release := make(chan struct{})

	fake := &fakeMailbox{folders: []string{"INBOX"}}
	open := func(_ context.Context) (mailbox.Mailbox, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return fake, nil
	}

	runner := syncer.New(open, s, nil, nil, 1)

	// Occupy the runner directly, then start the poller.
	done := make(chan error, 1)
	go func() {
		_, err := runner.Run(context.Background(), syncer.Options{})
		done <- err
	}()
	<-started

	poller := syncer.NewPoller(runner, syncer.Options{}, time.Hour, nil)
	poller.Start()
	defer poller.Stop()

	// The initial poll collides with the in-flight run: it is skipped
	// without a result, and the status settles back instead of
	// sticking at running.
	select {
	case st := <-poller.Results():
		t.Fatalf("unexpected result from a skipped run: %+v", st)
	case <-time.After(200 * time.Millisecond):
	}
	require.Eventually(t, func() bool {
		return poller.Status().State != syncer.PollRunning
	}, 2*time.Second, 10*time.Millisecond)

	// Once the direct run finishes, a trigger goes through.
	close(release)
	require.NoError(t, <-done)

	poller.Trigger()
	st := awaitResult(t, poller)
	require.NoError(t, st.Err)
	assert.Equal(t, syncer.PollIdle, st.State)
}

func awaitResult(t *testing.T, p *syncer.Poller) syncer.PollStatus {
	t.Helper()
	select {
	case st := <-p.Results():
		return st
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a poll result")
		return syncer.PollStatus{}
	}
}
