package webhook

import (
	"fmt"

	lkproto "github.com/livekit/protocol/livekit"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/aura-classroom/backend/internal/livekit"
	"github.com/aura-classroom/backend/internal/media"
	"github.com/aura-classroom/backend/pkg/errs"
)

// KindEgressEnded is the only callback type that changes room state.
const KindEgressEnded = "egress_ended"

// Event is a parsed callback: RecordingFinished or Ignored.
type Event interface {
	Kind() string
}

// RecordingFinished reports the end of a recording job.
type RecordingFinished struct {
	JobID    string
	RoomName string
	Location string
	Failed   bool
}

func (RecordingFinished) Kind() string { return KindEgressEnded }

// Ignored is any callback type the reconciler does not act on.
type Ignored struct {
	Type string
}

func (e Ignored) Kind() string { return e.Type }

var unmarshal = protojson.UnmarshalOptions{DiscardUnknown: true}

// ParseEvent decodes a callback body. Undecodable bodies, and egress_ended events
// without a job id, are errs.ErrMalformedEvent.
func ParseEvent(body []byte) (Event, error) {
	var ev lkproto.WebhookEvent
	if err := unmarshal.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrMalformedEvent, err)
	}
	if ev.GetEvent() == "" {
		return nil, fmt.Errorf("%w: missing event type", errs.ErrMalformedEvent)
	}
	if ev.GetEvent() != KindEgressEnded {
		return Ignored{Type: ev.GetEvent()}, nil
	}
	info := ev.GetEgressInfo()
	if info.GetEgressId() == "" {
		return nil, fmt.Errorf("%w: egress_ended without egress id", errs.ErrMalformedEvent)
	}
	out := RecordingFinished{JobID: info.GetEgressId(), RoomName: info.GetRoomName()}
	for _, f := range info.GetFileResults() {
		if f.GetLocation() != "" {
			out.Location = f.GetLocation()
			break
		}
	}
	switch livekit.StateFromEgress(info.GetStatus()) {
	case media.JobFailed, media.JobAborted:
		out.Failed = true
	}
	if out.Location == "" {
		out.Failed = true
	}
	if out.Failed {
		out.Location = ""
	}
	return out, nil
}
