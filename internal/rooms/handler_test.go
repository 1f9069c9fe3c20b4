package rooms

import (
	"bytes"
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
)

func newTestRouter(f *fixture, as uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(f.svc, nil)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserID, as)
		c.Next()
	})
	r.POST("/rooms", h.Create)
	r.GET("/rooms", h.List)
	r.GET("/rooms/:id", h.Get)
	r.POST("/rooms/:id/start", h.Start)
	r.POST("/rooms/:id/end", h.End)
	return r
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandlerStartStatusCodes(t *testing.T) {
	f := newFixture(t)
	room := f.room(models.RoomStatusScheduled, true)

	w := do(newTestRouter(f, uuid.New()), http.MethodPost, "/rooms/"+room.ID.String()+"/start", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(newTestRouter(f, f.owner), http.MethodPost, "/rooms/"+uuid.NewString()+"/start", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(newTestRouter(f, f.owner), http.MethodPost, "/rooms/not-a-uuid/start", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(newTestRouter(f, f.owner), http.MethodPost, "/rooms/"+room.ID.String()+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Success bool          `json:"success"`
		Data    StartResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, models.RoomStatusLive, body.Data.Room.Status)
	assert.NotEmpty(t, body.Data.RecordingJobID)

	w = do(newTestRouter(f, f.owner), http.MethodPost, "/rooms/"+room.ID.String()+"/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandlerStartReportsRecordingError(t *testing.T) {
	f := newFixture(t)
	room := f.room(models.RoomStatusScheduled, true)
	f.media.StartErr = assert.AnError

	w := do(newTestRouter(f, f.owner), http.MethodPost, "/rooms/"+room.ID.String()+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data StartResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Data.RecordingError)
	assert.Equal(t, models.RoomStatusLive, body.Data.Room.Status)
}

func TestHandlerCreateAndList(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f, f.owner)

	w := do(r, http.MethodPost, "/rooms", CreateRequest{Title: "Histoire"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(r, http.MethodPost, "/rooms", map[string]any{"description": "no title"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/rooms?mine=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []models.Room `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "Histoire", body.Data[0].Title)

	w = do(r, http.MethodGet, "/rooms", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
