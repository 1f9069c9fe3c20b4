package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-classroom/backend/internal/middleware"
	"github.com/aura-classroom/backend/internal/models"
	"github.com/aura-classroom/backend/internal/testsupport"
	"github.com/aura-classroom/backend/pkg/errs"
)

type recordingMinter struct {
	grants []models.Grant
	err    error
}

func (m *recordingMinter) Mint(g models.Grant) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.grants = append(m.grants, g)
	return "tok-" + g.Subject, nil
}

type issuerFixture struct {
	issuer       *Issuer
	rooms        *testsupport.RoomStore
	users        *testsupport.Users
	participants *testsupport.Participants
	minter       *recordingMinter
	notifier     *testsupport.Notifier
	owner        *models.User
	student      *models.User
}

func newIssuerFixture(t *testing.T) *issuerFixture {
	t.Helper()
	f := &issuerFixture{
		rooms:    testsupport.NewRoomStore(),
		users:    testsupport.NewUsers(),
		minter:   &recordingMinter{},
		notifier: &testsupport.Notifier{},
	}
	f.participants = testsupport.NewParticipants(f.rooms)
	f.owner = f.users.Add("Mme Martin", models.RoleTeacher)
	f.student = f.users.Add("Léa", models.RoleStudent)
	f.issuer = NewIssuer(f.rooms, f.users, f.participants, f.minter, f.notifier, "wss://media.example.com", 0, nil)
	return f
}

func TestGrantTable(t *testing.T) {
	owner := &models.User{ID: uuid.New(), FullName: "Owner"}
	student := &models.User{ID: uuid.New(), Email: "s@example.com"}
	for _, open := range []bool{false, true} {
		room := &models.Room{OwnerID: owner.ID, ExternalName: "r", OpenPublish: open}

		g := GrantFor(room, owner, time.Hour)
		assert.True(t, g.CanPublish)
		assert.True(t, g.CanSubscribe)
		assert.True(t, g.CanPublishData)
		assert.True(t, g.RoomAdmin)

		g = GrantFor(room, student, time.Hour)
		assert.Equal(t, open, g.CanPublish)
		assert.True(t, g.CanSubscribe)
		assert.True(t, g.CanPublishData)
		assert.False(t, g.RoomAdmin)
		assert.Equal(t, "s@example.com", g.Name)
	}
}

func TestIssueOwnerIsAdminAndNotRecorded(t *testing.T) {
	f := newIssuerFixture(t)
	room := f.rooms.Put(&models.Room{OwnerID: f.owner.ID, Status: models.RoomStatusLive})

	cred, err := f.issuer.Issue(context.Background(), room.ID, f.owner.ID)
	require.NoError(t, err)
	assert.True(t, cred.IsOwner)
	assert.Equal(t, "wss://media.example.com", cred.URL)
	assert.Equal(t, room.ExternalName, cred.RoomName)
	assert.Equal(t, models.RoomStatusLive, cred.RoomStatus)
	assert.Nil(t, cred.RecordingArtifactLocation)
	assert.Zero(t, f.participants.Count(room.ID))
	require.Len(t, f.minter.grants, 1)
	assert.True(t, f.minter.grants[0].RoomAdmin)
	assert.Equal(t, time.Hour, f.minter.grants[0].TTL)
}

func TestIssueParticipantTwiceRecordsOneRow(t *testing.T) {
	f := newIssuerFixture(t)
	room := f.rooms.Put(&models.Room{OwnerID: f.owner.ID, Status: models.RoomStatusLive})

	for i := 0; i < 2; i++ {
		cred, err := f.issuer.Issue(context.Background(), room.ID, f.student.ID)
		require.NoError(t, err)
		assert.False(t, cred.IsOwner)
	}
	assert.Equal(t, 1, f.participants.Count(room.ID))
	assert.Equal(t, []string{EventParticipantJoined}, f.notifier.Names())
	assert.False(t, f.minter.grants[0].RoomAdmin)
	assert.False(t, f.minter.grants[0].CanPublish)
}

func TestIssueExposesCompletedArtifact(t *testing.T) {
	f := newIssuerFixture(t)
	loc := "s3://rec/recordings/x.mp4"
	room := f.rooms.Put(&models.Room{OwnerID: f.owner.ID, Status: models.RoomStatusEnded,
		RecordingStatus: models.RecordingStatusCompleted, ArtifactLocation: &loc})

	cred, err := f.issuer.Issue(context.Background(), room.ID, f.student.ID)
	require.NoError(t, err)
	require.NotNil(t, cred.RecordingArtifactLocation)
	assert.Equal(t, loc, *cred.RecordingArtifactLocation)
}

func TestIssueNotFound(t *testing.T) {
	f := newIssuerFixture(t)
	room := f.rooms.Put(&models.Room{OwnerID: f.owner.ID})

	_, err := f.issuer.Issue(context.Background(), uuid.New(), f.student.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, err = f.issuer.Issue(context.Background(), room.ID, uuid.New())
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.Empty(t, f.minter.grants)
}

func TestIssueMintFailure(t *testing.T) {
	f := newIssuerFixture(t)
	room := f.rooms.Put(&models.Room{OwnerID: f.owner.ID})
	f.minter.err = errors.New("bad key")
	_, err := f.issuer.Issue(context.Background(), room.ID, f.owner.ID)
	assert.Error(t, err)

	_, err = f.issuer.Issue(context.Background(), room.ID, f.student.ID)
	assert.Error(t, err)
	assert.Zero(t, f.participants.Count(room.ID))
	assert.Empty(t, f.notifier.Names())
}

func TestClampTTL(t *testing.T) {
	assert.Equal(t, time.Hour, ClampTTL(0))
	assert.Equal(t, time.Minute, ClampTTL(time.Second))
	assert.Equal(t, time.Hour, ClampTTL(3*time.Hour))
	assert.Equal(t, 30*time.Minute, ClampTTL(30*time.Minute))
}

func TestHandlerIssue(t *testing.T) {
	f := newIssuerFixture(t)
	room := f.rooms.Put(&models.Room{OwnerID: f.owner.ID, Status: models.RoomStatusScheduled})
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.ContextUserID, f.student.ID); c.Next() })
	r.GET("/rooms/:id/token", NewHandler(f.issuer, nil).Issue)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms/"+room.ID.String()+"/token", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "tok-"+f.student.ID.String(), body.Data["token"])
	assert.Equal(t, false, body.Data["is_owner"])
	assert.Equal(t, "SCHEDULED", body.Data["room_status"])
	_, hasArtifact := body.Data["recording_artifact_location"]
	assert.False(t, hasArtifact)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms/"+uuid.NewString()+"/token", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
