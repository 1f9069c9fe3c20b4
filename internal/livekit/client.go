// Package livekit implements the media-control plane and credential minting on LiveKit.
package livekit

import (
	"context"
	"errors"
	"fmt"
	"time"

	lkproto "github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/twitchtv/twirp"
	"go.uber.org/zap"

	"github.com/aura-classroom/backend/internal/media"
)

const defaultCallTimeout = 10 * time.Second

// Client talks to the LiveKit RoomService and Egress APIs.
type Client struct {
	rooms   *lksdk.RoomServiceClient
	egress  *lksdk.EgressClient
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient builds the RoomService and Egress clients for url. callTimeout bounds every call.
func NewClient(url, apiKey, apiSecret string, callTimeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	return &Client{
		rooms:   lksdk.NewRoomServiceClient(url, apiKey, apiSecret),
		egress:  lksdk.NewEgressClient(url, apiKey, apiSecret),
		timeout: callTimeout,
		logger:  logger,
	}
}

var _ media.Client = (*Client)(nil)

// CreateRoom creates the LiveKit room.
func (c *Client) CreateRoom(ctx context.Context, name string, emptyTimeoutSec, maxParticipants uint32) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	_, err := c.rooms.CreateRoom(ctx, &lkproto.CreateRoomRequest{
		Name:            name,
		EmptyTimeout:    emptyTimeoutSec,
		MaxParticipants: maxParticipants,
	})
	if err != nil {
		if twirpCode(err) == twirp.AlreadyExists {
			return media.ErrRoomExists
		}
		return fmt.Errorf("livekit create room %q: %w", name, err)
	}
	c.logger.Debug("livekit room created", zap.String("room", name))
	return nil
}

// DeleteRoom deletes the LiveKit room.
func (c *Client) DeleteRoom(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if _, err := c.rooms.DeleteRoom(ctx, &lkproto.DeleteRoomRequest{Room: name}); err != nil {
		if twirpCode(err) == twirp.NotFound {
			return media.ErrRoomNotFound
		}
		return fmt.Errorf("livekit delete room %q: %w", name, err)
	}
	return nil
}

// ListJobs lists egress jobs for the room.
func (c *Client) ListJobs(ctx context.Context, roomName string) ([]media.JobStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	res, err := c.egress.ListEgress(ctx, &lkproto.ListEgressRequest{RoomName: roomName})
	if err != nil {
		return nil, fmt.Errorf("livekit list egress %q: %w", roomName, err)
	}
	jobs := make([]media.JobStatus, 0, len(res.GetItems()))
	for _, info := range res.GetItems() {
		jobs = append(jobs, media.JobStatus{
			JobID:    info.GetEgressId(),
			RoomName: info.GetRoomName(),
			State:    StateFromEgress(info.GetStatus()),
		})
	}
	return jobs, nil
}

// StartRecordingJob starts a room composite egress writing one MP4 file to S3.
func (c *Client) StartRecordingJob(ctx context.Context, roomName string, out media.OutputSpec, layout string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req := &lkproto.RoomCompositeEgressRequest{
		RoomName: roomName,
		Layout:   layout,
		FileOutputs: []*lkproto.EncodedFileOutput{{
			FileType: lkproto.EncodedFileType_MP4,
			Filepath: out.FilePath,
			Output: &lkproto.EncodedFileOutput_S3{S3: &lkproto.S3Upload{
				AccessKey:      out.Sink.AccessKey,
				Secret:         out.Sink.Secret,
				Region:         out.Sink.Region,
				Endpoint:       out.Sink.Endpoint,
				Bucket:         out.Sink.Bucket,
				ForcePathStyle: out.Sink.ForcePathStyle,
			}},
		}},
	}
	info, err := c.egress.StartRoomCompositeEgress(ctx, req)
	if err != nil {
		return "", fmt.Errorf("livekit start egress %q: %w", roomName, err)
	}
	if info.GetEgressId() == "" {
		return "", fmt.Errorf("livekit start egress %q: empty egress id", roomName)
	}
	c.logger.Info("livekit egress started",
		zap.String("room", roomName),
		zap.String("egress_id", info.GetEgressId()),
		zap.String("filepath", out.FilePath))
	return info.GetEgressId(), nil
}

// StateFromEgress maps a LiveKit egress status to a media job state.
func StateFromEgress(s lkproto.EgressStatus) media.JobState {
	switch s {
	case lkproto.EgressStatus_EGRESS_STARTING:
		return media.JobStarting
	case lkproto.EgressStatus_EGRESS_ACTIVE:
		return media.JobActive
	case lkproto.EgressStatus_EGRESS_ENDING:
		return media.JobEnding
	case lkproto.EgressStatus_EGRESS_COMPLETE:
		return media.JobComplete
	case lkproto.EgressStatus_EGRESS_FAILED:
		return media.JobFailed
	case lkproto.EgressStatus_EGRESS_ABORTED:
		return media.JobAborted
	case lkproto.EgressStatus_EGRESS_LIMIT_REACHED:
		return media.JobLimitReached
	default:
		// unknown future states are treated as still running
		return media.JobActive
	}
}

func twirpCode(err error) twirp.ErrorCode {
	var terr twirp.Error
	if errors.As(err, &terr) {
		return terr.Code()
	}
	return ""
}
