package participants

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-classroom/backend/internal/middleware"
	"github.com/aura-classroom/backend/internal/models"
	"github.com/aura-classroom/backend/internal/testsupport"
)

func router(h *Handler, as uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.ContextUserID, as); c.Next() })
	r.POST("/rooms/:id/registration", h.Register)
	r.DELETE("/rooms/:id/registration", h.Unregister)
	r.GET("/rooms/:id/registration", h.Status)
	r.GET("/rooms/:id/participants", h.List)
	return r
}

func call(r http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestRegistrationFlow(t *testing.T) {
	rooms := testsupport.NewRoomStore()
	store := testsupport.NewParticipants(rooms)
	owner := uuid.New()
	room := rooms.Put(&models.Room{OwnerID: owner, Status: models.RoomStatusScheduled})
	h := NewHandler(store, rooms, nil)
	student := uuid.New()
	r := router(h, student)
	base := "/rooms/" + room.ID.String()

	assert.Equal(t, http.StatusCreated, call(r, http.MethodPost, base+"/registration").Code)
	assert.Equal(t, http.StatusOK, call(r, http.MethodPost, base+"/registration").Code)
	assert.Equal(t, 1, store.Count(room.ID))

	w := call(r, http.MethodGet, base+"/registration")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data map[string]bool `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Data["registered"])

	assert.Equal(t, http.StatusForbidden, call(r, http.MethodGet, base+"/participants").Code)
	assert.Equal(t, http.StatusOK, call(router(h, owner), http.MethodGet, base+"/participants").Code)

	assert.Equal(t, http.StatusNoContent, call(r, http.MethodDelete, base+"/registration").Code)
	assert.Equal(t, http.StatusNotFound, call(r, http.MethodDelete, base+"/registration").Code)
}

func TestRegistrationCapacityAndEnded(t *testing.T) {
	rooms := testsupport.NewRoomStore()
	store := testsupport.NewParticipants(rooms)
	small := rooms.Put(&models.Room{OwnerID: uuid.New(), MaxParticipants: 1})
	ended := rooms.Put(&models.Room{OwnerID: uuid.New(), Status: models.RoomStatusEnded})
	h := NewHandler(store, rooms, nil)

	assert.Equal(t, http.StatusCreated, call(router(h, uuid.New()), http.MethodPost, "/rooms/"+small.ID.String()+"/registration").Code)
	assert.Equal(t, http.StatusConflict, call(router(h, uuid.New()), http.MethodPost, "/rooms/"+small.ID.String()+"/registration").Code)
	assert.Equal(t, http.StatusConflict, call(router(h, uuid.New()), http.MethodPost, "/rooms/"+ended.ID.String()+"/registration").Code)
	assert.Equal(t, http.StatusNotFound, call(router(h, uuid.New()), http.MethodPost, "/rooms/"+uuid.NewString()+"/registration").Code)
}
