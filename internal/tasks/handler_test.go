package tasks

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"reforest-portal/portal-backend/pkg/storage"
)

func newTestRouter(t *testing.T) (*gin.Engine, *MockRepository, *storage.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := new(MockRepository)
	store := storage.NewMemoryStore("http://files")
	handler := NewHandler(newTestService(repo, store), zap.NewNop(), 1024)

	router := gin.New()
	handler.RegisterRoutes(router.Group("/api/tasks"))
	handler.RegisterTreeRoutes(router.Group("/api/trees"))
	return router, repo, store
}

func statusForm(t *testing.T, fields map[string]string, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if data != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="taskImage"; filename="`+filename+`"`)
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestHandlerCreateTask(t *testing.T) {
	router, repo, _ := newTestRouter(t)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(`{"title":"Plant seedlings","priority":"High"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var task Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	assert.Equal(t, "High", task.Priority)
	assert.Equal(t, StatusPending, task.Status)
}

func TestHandlerCreateTaskMissingTitle(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(`{"description":"x"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerGetTaskNotFound(t *testing.T) {
	router, repo, _ := newTestRouter(t)
	id := uuid.New()
	repo.On("Get", mock.Anything, id).Return(nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks/"+id.String(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerAssignedEmpty(t *testing.T) {
	router, repo, _ := newTestRouter(t)
	userID := uuid.New()
	repo.On("ListAssigned", mock.Anything, userID).Return([]Task{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks/assigned/"+userID.String(), nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerUpdateStatus(t *testing.T) {
	router, repo, store := newTestRouter(t)
	id := uuid.New()
	repo.On("Get", mock.Anything, id).Return(&Task{ID: id, Status: StatusPending}, nil)
	repo.On("UpdateProgress", mock.Anything, mock.MatchedBy(func(u ProgressUpdate) bool {
		return u.Latitude != nil && *u.Latitude == -1.5
	})).Return(&Task{ID: id, Status: StatusInProgress}, nil)

	body, contentType := statusForm(t, map[string]string{
		"status":        StatusInProgress,
		"user_location": "Block C",
		"latitude":      "-1.5",
		"longitude":     "29.6",
	}, "photo.jpg", "image/jpeg", []byte("\xff\xd8\xff\xe0jpeg"))

	req := httptest.NewRequest(http.MethodPut, "/api/tasks/"+id.String()+"/status", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, store.Len())
}

func TestHandlerUpdateStatusWithoutImage(t *testing.T) {
	router, _, _ := newTestRouter(t)
	body, contentType := statusForm(t, map[string]string{
		"status":        StatusCompleted,
		"user_location": "Block C",
	}, "", "", nil)

	req := httptest.NewRequest(http.MethodPut, "/api/tasks/"+uuid.NewString()+"/status", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerUpdateStatusImageTooLarge(t *testing.T) {
	router, _, store := newTestRouter(t)
	body, contentType := statusForm(t, map[string]string{
		"status":        StatusCompleted,
		"user_location": "Block C",
	}, "big.png", "image/png", bytes.Repeat([]byte{1}, 4096))

	req := httptest.NewRequest(http.MethodPut, "/api/tasks/"+uuid.NewString()+"/status", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, store.Len())
}

func TestHandlerNearbyTrees(t *testing.T) {
	router, repo, _ := newTestRouter(t)
	repo.On("PlantedTrees", mock.Anything, TreeFilter{}).Return(sampleTrees(), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/trees/nearby?latitude=-1.9441&longitude=30.0619&radius=10", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var trees []PlantedTree
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trees))
	assert.Len(t, trees, 2)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/trees/nearby?latitude=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerTreesGeoJSON(t *testing.T) {
	router, repo, _ := newTestRouter(t)
	repo.On("PlantedTrees", mock.Anything, TreeFilter{}).Return(sampleTrees(), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/trees/geojson", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "FeatureCollection", out["type"])
	assert.Len(t, out["features"], 3)
}
