package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRoomStatusTransitions(t *testing.T) {
	all := []RoomStatus{RoomStatusDraft, RoomStatusScheduled, RoomStatusLive, RoomStatusEnded}
	allowed := map[RoomStatus][]RoomStatus{
		RoomStatusDraft:     {RoomStatusScheduled, RoomStatusLive, RoomStatusEnded},
		RoomStatusScheduled: {RoomStatusScheduled, RoomStatusLive, RoomStatusEnded},
		RoomStatusLive:      {RoomStatusEnded},
		RoomStatusEnded:     nil,
	}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			assert.Equalf(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
	assert.True(t, RoomStatusEnded.Terminal())
	assert.False(t, RoomStatusLive.Terminal())
}

func TestRecordingOutcomeStatus(t *testing.T) {
	assert.Equal(t, RecordingStatusCompleted, RecordingOutcome{JobID: "EG_1", Location: "s3://b/k.mp4"}.Status())
	assert.Equal(t, RecordingStatusFailed, RecordingOutcome{JobID: "EG_1"}.Status())
	assert.True(t, RecordingStatusFailed.Terminal())
	assert.False(t, RecordingStatusProcessing.Terminal())
}

func TestRoomHelpers(t *testing.T) {
	owner := uuid.New()
	r := &Room{OwnerID: owner}
	assert.True(t, r.IsOwner(owner))
	assert.False(t, r.IsOwner(uuid.New()))
	assert.False(t, r.HasActiveJob())
	empty := ""
	r.ActiveJobID = &empty
	assert.False(t, r.HasActiveJob())
	job := "EG_abc"
	r.ActiveJobID = &job
	assert.True(t, r.HasActiveJob())
}

func TestRoles(t *testing.T) {
	assert.True(t, RoleTeacher.SelfRegistrable())
	assert.True(t, RoleStudent.SelfRegistrable())
	assert.False(t, RoleAdmin.SelfRegistrable())
	assert.False(t, Role("owner").SelfRegistrable())
}
