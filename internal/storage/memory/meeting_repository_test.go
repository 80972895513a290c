package memory

import (
	"context"
	"testing"
	"time"

	"studylink/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGet(t *testing.T) {
	repo := NewMeetingRepository()
	ctx := context.Background()

	session := &domain.MeetingSession{ID: "m1", HostID: "host", Phase: domain.PhaseScheduled}
	require.NoError(t, repo.Create(ctx, session))

	got, err := repo.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.MeetingID("m1"), got.ID)
	assert.Equal(t, domain.UserID("host"), got.HostID)
	assert.False(t, got.CreatedAt.IsZero(), "create must stamp the creation time")
}

func TestCreateDuplicateFails(t *testing.T) {
	repo := NewMeetingRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.MeetingSession{ID: "m1"}))
	err := repo.Create(ctx, &domain.MeetingSession{ID: "m1"})
	assert.ErrorIs(t, err, domain.ErrMeetingExists)
}

func TestGetUnknownMeeting(t *testing.T) {
	repo := NewMeetingRepository()

	_, err := repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrMeetingNotFound)
}

func TestSetPhaseStampsStart(t *testing.T) {
	repo := NewMeetingRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &domain.MeetingSession{ID: "m1", Phase: domain.PhaseScheduled}))

	require.NoError(t, repo.SetPhase(ctx, "m1", domain.PhaseActive))
	got, err := repo.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseActive, got.Phase)
	started := got.StartedAt
	assert.False(t, started.IsZero())

	// A second activation keeps the original start time.
	require.NoError(t, repo.SetPhase(ctx, "m1", domain.PhaseActive))
	got, _ = repo.Get(ctx, "m1")
	assert.Equal(t, started, got.StartedAt)

	require.NoError(t, repo.SetPhase(ctx, "m1", domain.PhaseEnded))
	got, _ = repo.Get(ctx, "m1")
	assert.Equal(t, domain.PhaseEnded, got.Phase)

	assert.ErrorIs(t, repo.SetPhase(ctx, "nope", domain.PhaseActive), domain.ErrMeetingNotFound)
}

func TestRejoinKeepsOriginalSeat(t *testing.T) {
	repo := NewMeetingRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &domain.MeetingSession{ID: "m1"}))

	first := time.Now().Add(-time.Minute)
	require.NoError(t, repo.AddParticipant(ctx, "m1", domain.Participant{
		UserID: "u1", Username: "Ann", JoinedAt: first,
	}))
	require.NoError(t, repo.AddParticipant(ctx, "m1", domain.Participant{
		UserID: "u1", Username: "Ann again", JoinedAt: time.Now(),
	}))

	list, err := repo.ListParticipants(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Ann again", list[0].Username)
	assert.Equal(t, first, list[0].JoinedAt, "rejoin must keep the original join time")
}

func TestListParticipantsOrderedByJoin(t *testing.T) {
	repo := NewMeetingRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &domain.MeetingSession{ID: "m1"}))

	base := time.Now()
	require.NoError(t, repo.AddParticipant(ctx, "m1", domain.Participant{UserID: "second", JoinedAt: base.Add(time.Second)}))
	require.NoError(t, repo.AddParticipant(ctx, "m1", domain.Participant{UserID: "first", JoinedAt: base}))
	require.NoError(t, repo.AddParticipant(ctx, "m1", domain.Participant{UserID: "third", JoinedAt: base.Add(2 * time.Second)}))

	list, err := repo.ListParticipants(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, domain.UserID("first"), list[0].UserID)
	assert.Equal(t, domain.UserID("second"), list[1].UserID)
	assert.Equal(t, domain.UserID("third"), list[2].UserID)
}

func TestRemoveParticipant(t *testing.T) {
	repo := NewMeetingRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &domain.MeetingSession{ID: "m1"}))
	require.NoError(t, repo.AddParticipant(ctx, "m1", domain.Participant{UserID: "u1"}))

	require.NoError(t, repo.RemoveParticipant(ctx, "m1", "u1"))
	list, err := repo.ListParticipants(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, list)

	// Removing an absent participant is not an error.
	require.NoError(t, repo.RemoveParticipant(ctx, "m1", "u1"))
	assert.ErrorIs(t, repo.RemoveParticipant(ctx, "nope", "u1"), domain.ErrMeetingNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	repo := NewMeetingRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &domain.MeetingSession{ID: "m1", Phase: domain.PhaseScheduled}))

	got, err := repo.Get(ctx, "m1")
	require.NoError(t, err)
	got.Phase = domain.PhaseEnded

	again, err := repo.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseScheduled, again.Phase, "callers must not mutate stored state")
}
