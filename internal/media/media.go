// Package media defines the remote media-control plane the classroom core drives:
// room provisioning and server-side recording jobs.
package media

import (
	"context"
	"errors"
)

var (
	// ErrRoomExists is returned by CreateRoom when the remote room is already provisioned.
	ErrRoomExists = errors.New("media: room already exists")
	// ErrRoomNotFound is returned by DeleteRoom when the remote room is gone.
	ErrRoomNotFound = errors.New("media: room not found")
)

// JobState is the remote lifecycle state of a recording job.
type JobState string

const (
	JobStarting     JobState = "STARTING"
	JobActive       JobState = "ACTIVE"
	JobEnding       JobState = "ENDING"
	JobComplete     JobState = "COMPLETE"
	JobFailed       JobState = "FAILED"
	JobAborted      JobState = "ABORTED"
	JobLimitReached JobState = "LIMIT_REACHED"
)

// Terminal reports whether the job can no longer produce or change output.
// ENDING is still running: the file is being finalized.
func (s JobState) Terminal() bool {
	switch s {
	case JobComplete, JobFailed, JobAborted, JobLimitReached:
		return true
	default:
		return false
	}
}

// JobStatus is one recording job as reported by the remote plane.
type JobStatus struct {
	JobID    string
	RoomName string
	State    JobState
}

// S3Sink is an S3-compatible destination the remote plane uploads into.
type S3Sink struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	Secret         string
	ForcePathStyle bool
}

// OutputSpec describes where a recording job writes its single MP4 file.
type OutputSpec struct {
	FilePath string
	Sink     S3Sink
}

// Client is the media-control plane. Implementations bound every call with their own timeout.
type Client interface {
	// CreateRoom provisions a remote room. Returns ErrRoomExists when it is already there.
	CreateRoom(ctx context.Context, name string, emptyTimeoutSec uint32, maxParticipants uint32) error
	// DeleteRoom disposes of a remote room. Returns ErrRoomNotFound when it is already gone.
	DeleteRoom(ctx context.Context, name string) error
	// ListJobs returns the recording jobs known for a room, in any state.
	ListJobs(ctx context.Context, roomName string) ([]JobStatus, error)
	// StartRecordingJob submits a composite recording of the room and returns the job id.
	StartRecordingJob(ctx context.Context, roomName string, out OutputSpec, layout string) (string, error)
}
