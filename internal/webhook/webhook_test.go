package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-classroom/backend/internal/egress"
	"github.com/aura-classroom/backend/internal/models"
	"github.com/aura-classroom/backend/internal/rooms"
	"github.com/aura-classroom/backend/internal/testsupport"
	"github.com/aura-classroom/backend/pkg/errs"
	"github.com/aura-classroom/backend/pkg/queue"
)

const secret = "webhook-secret"

func egressEnded(jobID, status, location string) []byte {
	files := "[]"
	if location != "" {
		files = fmt.Sprintf(`[{"filename":"out.mp4","location":%q,"size":"1024"}]`, location)
	}
	return []byte(fmt.Sprintf(`{"event":"egress_ended","id":"EV_%s","createdAt":"1767225600",
		"egressInfo":{"egressId":%q,"roomName":"maths-1a2b3c4d","status":%q,"fileResults":%s,"someFutureField":1}}`,
		jobID, jobID, status, files))
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []queue.ArtifactPayload
}

func (q *fakeQueue) EnqueueArtifact(_ context.Context, p queue.ArtifactPayload) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, p)
	return nil
}

func TestVerify(t *testing.T) {
	now := time.Unix(1_767_225_600, 0)
	v := NewVerifier(secret, 0)
	v.now = func() time.Time { return now }
	body := []byte(`{"event":"room_started"}`)

	cases := []struct {
		name   string
		header string
		ok     bool
	}{
		{"valid", Header(secret, now, body), true},
		{"valid within window", Header(secret, now.Add(-299*time.Second), body), true},
		{"stale", Header(secret, now.Add(-301*time.Second), body), false},
		{"future", Header(secret, now.Add(10*time.Minute), body), false},
		{"wrong secret", Header("other", now, body), false},
		{"wrong body", Header(secret, now, []byte(`{}`)), false},
		{"unquoted", fmt.Sprintf("t=%d,s=%s", now.Unix(), Sign(secret, now.Unix(), body)), true},
		{"missing s", fmt.Sprintf(`t="%d"`, now.Unix()), false},
		{"missing t", fmt.Sprintf(`s="%s"`, Sign(secret, now.Unix(), body)), false},
		{"not hex", fmt.Sprintf(`t="%d", s="zz"`, now.Unix()), false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Verify(body, tc.header)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, errs.ErrUnauthenticated)
			}
		})
	}
}

func TestVerifyWithoutSecretRejects(t *testing.T) {
	v := NewVerifier("", 0)
	body := []byte(`{}`)
	assert.ErrorIs(t, v.Verify(body, Header("", time.Now(), body)), errs.ErrUnauthenticated)
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent(egressEnded("EG_1", "EGRESS_COMPLETE", "s3://rec/x.mp4"))
	require.NoError(t, err)
	assert.Equal(t, RecordingFinished{JobID: "EG_1", RoomName: "maths-1a2b3c4d", Location: "s3://rec/x.mp4"}, ev)

	ev, err = ParseEvent(egressEnded("EG_2", "EGRESS_FAILED", "s3://rec/partial.mp4"))
	require.NoError(t, err)
	assert.Equal(t, RecordingFinished{JobID: "EG_2", RoomName: "maths-1a2b3c4d", Failed: true}, ev)

	ev, err = ParseEvent(egressEnded("EG_3", "EGRESS_COMPLETE", ""))
	require.NoError(t, err)
	assert.True(t, ev.(RecordingFinished).Failed)

	ev, err = ParseEvent([]byte(`{"event":"participant_joined","room":{"name":"x"}}`))
	require.NoError(t, err)
	assert.Equal(t, Ignored{Type: "participant_joined"}, ev)

	for _, bad := range []string{`not json`, `{}`, `{"event":"egress_ended","egressInfo":{}}`} {
		_, err = ParseEvent([]byte(bad))
		assert.ErrorIs(t, err, errs.ErrMalformedEvent, bad)
	}
}

type scenario struct {
	svc        *rooms.Service
	orch       *egress.Orchestrator
	store      *testsupport.RoomStore
	notifier   *testsupport.Notifier
	queue      *fakeQueue
	reconciler *Reconciler
	owner      uuid.UUID
	room       *models.Room
}

func newScenario(t *testing.T) *scenario {
	t.Helper()
	store := testsupport.NewRoomStore()
	mc := testsupport.NewMedia()
	n := &testsupport.Notifier{}
	q := &fakeQueue{}
	owner := uuid.New()
	orch := egress.NewOrchestrator(mc, store, egress.Config{}, nil)
	return &scenario{
		svc:        rooms.NewService(store, mc, orch, n, rooms.Config{}, nil),
		orch:       orch,
		store:      store,
		notifier:   n,
		queue:      q,
		reconciler: NewReconciler(NewVerifier(secret, 0), store, q, n, nil),
		owner:      owner,
		room:       store.Put(&models.Room{Title: "Maths", OwnerID: owner, Status: models.RoomStatusScheduled, RecordingEnabled: true}),
	}
}

func (s *scenario) deliver(body []byte) (Outcome, error) {
	return s.reconciler.Handle(context.Background(), body, Header(secret, time.Now(), body))
}

func TestStartWebhookRedelivery(t *testing.T) {
	s := newScenario(t)
	res, err := s.svc.Start(context.Background(), s.room.ID, s.owner)
	require.NoError(t, err)
	require.NotEmpty(t, res.RecordingJobID)
	jobID := res.RecordingJobID
	assert.Equal(t, models.RecordingStatusRecording, s.store.Snapshot(s.room.ID).RecordingStatus)

	body := egressEnded(jobID, "EGRESS_COMPLETE", "s3://rec/recordings/maths.mp4")
	outcome, err := s.deliver(body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	first := s.store.Snapshot(s.room.ID)
	assert.Equal(t, models.RoomStatusEnded, first.Status)
	assert.Equal(t, models.RecordingStatusCompleted, first.RecordingStatus)
	require.NotNil(t, first.ArtifactLocation)
	assert.Equal(t, "s3://rec/recordings/maths.mp4", *first.ArtifactLocation)
	assert.Nil(t, first.ActiveJobID)
	require.NotNil(t, first.CompletedJobID)
	assert.Equal(t, jobID, *first.CompletedJobID)
	assert.NotNil(t, first.EndedAt)
	require.Len(t, s.queue.jobs, 1)
	assert.Equal(t, s.room.ID, s.queue.jobs[0].RoomID)

	// redelivery leaves the state untouched
	outcome, err = s.deliver(body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknownJob, outcome)
	assert.Equal(t, first, s.store.Snapshot(s.room.ID))
	assert.Len(t, s.queue.jobs, 1)
	assert.Equal(t, []string{rooms.EventRoomLive, EventRecordingCompleted}, s.notifier.Names())
}

func TestEndThenWebhookCompletes(t *testing.T) {
	s := newScenario(t)
	res, err := s.svc.Start(context.Background(), s.room.ID, s.owner)
	require.NoError(t, err)
	ended, err := s.svc.End(context.Background(), s.room.ID, s.owner)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusProcessing, ended.RecordingStatus)
	endedAt := *ended.EndedAt

	_, err = s.deliver(egressEnded(res.RecordingJobID, "EGRESS_COMPLETE", "s3://rec/r.mp4"))
	require.NoError(t, err)
	got := s.store.Snapshot(s.room.ID)
	assert.Equal(t, models.RecordingStatusCompleted, got.RecordingStatus)
	assert.Equal(t, endedAt, *got.EndedAt)
}

func TestRetriedStartAfterStoreFailureCompletes(t *testing.T) {
	s := newScenario(t)
	ctx := context.Background()

	s.store.Fail = errors.New("connection reset")
	_, err := s.orch.StartRecording(ctx, s.room)
	require.Error(t, err)
	s.store.Fail = nil

	res, err := s.svc.Start(ctx, s.room.ID, s.owner)
	require.NoError(t, err)
	require.NoError(t, res.RecordingErr)
	require.NotNil(t, res.Room.ActiveJobID)
	assert.Equal(t, res.RecordingJobID, *res.Room.ActiveJobID)
	assert.Equal(t, models.RecordingStatusRecording, res.Room.RecordingStatus)

	ended, err := s.svc.End(ctx, s.room.ID, s.owner)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusProcessing, ended.RecordingStatus)

	outcome, err := s.deliver(egressEnded(res.RecordingJobID, "EGRESS_COMPLETE", "s3://rec/r.mp4"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	got := s.store.Snapshot(s.room.ID)
	assert.Equal(t, models.RecordingStatusCompleted, got.RecordingStatus)
	require.NotNil(t, got.ArtifactLocation)
	assert.Equal(t, "s3://rec/r.mp4", *got.ArtifactLocation)
}

func TestFailedRecording(t *testing.T) {
	s := newScenario(t)
	res, err := s.svc.Start(context.Background(), s.room.ID, s.owner)
	require.NoError(t, err)

	outcome, err := s.deliver(egressEnded(res.RecordingJobID, "EGRESS_ABORTED", ""))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	got := s.store.Snapshot(s.room.ID)
	assert.Equal(t, models.RecordingStatusFailed, got.RecordingStatus)
	assert.Equal(t, models.RoomStatusEnded, got.Status)
	assert.Nil(t, got.ArtifactLocation)
	assert.Empty(t, s.queue.jobs)
	assert.Contains(t, s.notifier.Names(), EventRecordingFailed)
}

func TestUnknownJobIsNoOp(t *testing.T) {
	s := newScenario(t)
	before := s.store.Snapshot(s.room.ID)
	writes := s.store.Writes

	outcome, err := s.deliver(egressEnded("EG_unknown", "EGRESS_COMPLETE", "s3://rec/x.mp4"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknownJob, outcome)
	assert.Equal(t, before, s.store.Snapshot(s.room.ID))
	assert.Equal(t, writes, s.store.Writes)
}

func TestIgnoredAndMalformed(t *testing.T) {
	s := newScenario(t)
	outcome, err := s.deliver([]byte(`{"event":"room_finished"}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)

	outcome, err = s.deliver([]byte(`{{`))
	assert.ErrorIs(t, err, errs.ErrMalformedEvent)
	assert.Equal(t, OutcomeMalformed, outcome)
}

func TestBadSignatureTouchesNothing(t *testing.T) {
	s := newScenario(t)
	res, err := s.svc.Start(context.Background(), s.room.ID, s.owner)
	require.NoError(t, err)
	body := egressEnded(res.RecordingJobID, "EGRESS_COMPLETE", "s3://rec/x.mp4")

	outcome, err := s.reconciler.Handle(context.Background(), body, Header("wrong", time.Now(), body))
	assert.ErrorIs(t, err, errs.ErrUnauthenticated)
	assert.Equal(t, OutcomeRejected, outcome)
	assert.Equal(t, models.RecordingStatusRecording, s.store.Snapshot(s.room.ID).RecordingStatus)
}

func TestHandlerStatusCodes(t *testing.T) {
	s := newScenario(t)
	res, err := s.svc.Start(context.Background(), s.room.ID, s.owner)
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/livekit", NewHandler(s.reconciler, nil).Receive)
	post := func(body []byte, header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/livekit", bytes.NewReader(body))
		req.Header.Set(HeaderAuthorization, header)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	body := egressEnded(res.RecordingJobID, "EGRESS_COMPLETE", "s3://rec/x.mp4")
	assert.Equal(t, http.StatusUnauthorized, post(body, Header("nope", time.Now(), body)).Code)

	w := post(body, Header(secret, time.Now(), body))
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, string(OutcomeApplied), got.Data["outcome"])

	junk := []byte(`garbage`)
	assert.Equal(t, http.StatusOK, post(junk, Header(secret, time.Now(), junk)).Code)

	huge := bytes.Repeat([]byte("x"), maxBodyBytes+1)
	w = post(huge, Header(secret, time.Now(), huge))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, string(OutcomeMalformed), got.Data["outcome"])

	s.store.Fail = errors.Join(errs.ErrUpstream, errors.New("db down"))
	assert.Equal(t, http.StatusInternalServerError, post(body, Header(secret, time.Now(), body)).Code)
}
