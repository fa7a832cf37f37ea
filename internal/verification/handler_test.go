package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"civitas/citizen-portal/citizen-portal-backend/pkg/storage"
)

type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) VerifyPhoto(ctx context.Context, photoPath string, req *Request) (*Result, error) {
	args := m.Called(ctx, photoPath, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Result), args.Error(1)
}

func (m *MockEngine) VerifyPhotos(ctx context.Context, photoPaths []string, req *Request) (*BatchResult, error) {
	args := m.Called(ctx, photoPaths, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*BatchResult), args.Error(1)
}

func (m *MockEngine) ExtractMetadata(ctx context.Context, photoPath string) (map[string]interface{}, error) {
	args := m.Called(ctx, photoPath)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}

func (m *MockEngine) CheckHealth(ctx context.Context) (map[string]interface{}, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}

func setupHandler(t *testing.T, engine Engine) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tempDir := t.TempDir()
	temp, err := NewTempStore(tempDir, zap.NewNop())
	require.NoError(t, err)

	handler := NewHandler(engine, temp, storage.NewNoopS3Client(), "", 10<<20, 5, zap.NewNop())
	router := gin.New()
	handler.RegisterRoutes(router.Group("/api"))
	return router, tempDir
}

type uploadForm struct {
	buf    bytes.Buffer
	writer *multipart.Writer
}

func newUploadForm() *uploadForm {
	f := &uploadForm{}
	f.writer = multipart.NewWriter(&f.buf)
	return f
}

func (f *uploadForm) addPhoto(t *testing.T, field, filename, contentType string) {
	t.Helper()
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := f.writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte("photo bytes"))
	require.NoError(t, err)
}

func (f *uploadForm) addFields(t *testing.T, fields map[string]string) {
	t.Helper()
	for key, value := range fields {
		require.NoError(t, f.writer.WriteField(key, value))
	}
}

func (f *uploadForm) request(t *testing.T, path string) *http.Request {
	t.Helper()
	require.NoError(t, f.writer.Close())
	req := httptest.NewRequest(http.MethodPost, path, &f.buf)
	req.Header.Set("Content-Type", f.writer.FormDataContentType())
	return req
}

func validFields() map[string]string {
	now := time.Now()
	return map[string]string{
		"taskType":      "tree_planting",
		"locationLat":   "28.6139",
		"locationLng":   "77.209",
		"deadlineStart": now.Add(-time.Hour).Format(time.RFC3339),
		"deadlineEnd":   now.Add(time.Hour).Format(time.RFC3339),
		"userId":        "citizen-42",
	}
}

func TestVerifyPhotoEndpointSuccess(t *testing.T) {
	engine := new(MockEngine)
	engine.On("VerifyPhoto", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("*verification.Request")).
		Return(&Result{Filename: "plant.jpg", IsValid: true, Score: 92}, nil)

	router, _ := setupHandler(t, engine)

	form := newUploadForm()
	form.addPhoto(t, "photo", "plant.jpg", "image/jpeg")
	form.addFields(t, validFields())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, form.request(t, "/api/verify-photo"))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Success  bool   `json:"success"`
		Data     Result `json:"data"`
		Filename string `json:"filename"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 92.0, resp.Data.Score)
	assert.Equal(t, "plant.jpg", resp.Filename)
	assert.False(t, resp.Data.Degraded)
	engine.AssertExpectations(t)
}

func TestVerifyPhotoEndpointMissingPhoto(t *testing.T) {
	router, _ := setupHandler(t, new(MockEngine))

	form := newUploadForm()
	form.addFields(t, validFields())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, form.request(t, "/api/verify-photo"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "No photo uploaded")
}

func TestVerifyPhotoEndpointRejectsNonImage(t *testing.T) {
	router, _ := setupHandler(t, new(MockEngine))

	form := newUploadForm()
	form.addPhoto(t, "photo", "notes.pdf", "application/pdf")
	form.addFields(t, validFields())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, form.request(t, "/api/verify-photo"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Only image files are allowed")
}

func TestVerifyPhotoEndpointMissingFields(t *testing.T) {
	router, _ := setupHandler(t, new(MockEngine))

	form := newUploadForm()
	form.addPhoto(t, "photo", "plant.jpg", "image/jpeg")
	form.addFields(t, map[string]string{"taskType": "tree_planting"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, form.request(t, "/api/verify-photo"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Missing required fields: taskType, locationLat, locationLng, deadlineStart, deadlineEnd, userId")
}

func TestVerifyPhotoEndpointDegradesWhenEngineAnswersUnhealthy(t *testing.T) {
	engine := new(MockEngine)
	engine.On("VerifyPhoto", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &EngineStatusError{StatusCode: 503, Body: "overloaded"})

	router, tempDir := setupHandler(t, engine)

	form := newUploadForm()
	form.addPhoto(t, "photo", "plant.jpg", "image/jpeg")
	form.addFields(t, validFields())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, form.request(t, "/api/verify-photo"))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Success bool   `json:"success"`
		Data    Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.True(t, resp.Data.IsValid)
	assert.True(t, resp.Data.Degraded)
	assert.Equal(t, 75.0, resp.Data.Score)
	assert.Contains(t, resp.Data.Issues, "Photo verification service unavailable - approved with warning")

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp file should be removed after a degraded response")
}

func TestVerifyPhotoEndpointDegradesWhenEngineUnreachable(t *testing.T) {
	engine := new(MockEngine)
	engine.On("VerifyPhoto", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("engine request failed: connection refused"))

	router, tempDir := setupHandler(t, engine)

	form := newUploadForm()
	form.addPhoto(t, "photo", "plant.jpg", "image/jpeg")
	form.addFields(t, validFields())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, form.request(t, "/api/verify-photo"))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Data.Degraded)
	assert.Equal(t, 80.0, resp.Data.Score)
	assert.Contains(t, resp.Data.Issues, "Photo verification network error - approved with warning")

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp file should be removed after a degraded response")
}

func TestVerifyPhotoEndpointRejectedRequestDoesNotDegrade(t *testing.T) {
	engine := new(MockEngine)
	engine.On("VerifyPhoto", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &ValidationError{Missing: []string{"location"}})

	router, _ := setupHandler(t, engine)

	// 0,0 coordinates pass the presence check but fail request validation
	fields := validFields()
	fields["locationLat"] = "0"
	fields["locationLng"] = "0"

	form := newUploadForm()
	form.addPhoto(t, "photo", "plant.jpg", "image/jpeg")
	form.addFields(t, fields)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, form.request(t, "/api/verify-photo"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "missing required fields")
	assert.NotContains(t, w.Body.String(), "approved with warning")
}

func TestVerifyPhotoEndpointCleansUpTempFile(t *testing.T) {
	engine := new(MockEngine)
	engine.On("VerifyPhoto", mock.Anything, mock.Anything, mock.Anything).
		Return(&Result{IsValid: true, Score: 90}, nil)

	router, tempDir := setupHandler(t, engine)

	form := newUploadForm()
	form.addPhoto(t, "photo", "plant.jpg", "image/jpeg")
	form.addFields(t, validFields())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, form.request(t, "/api/verify-photo"))
	require.Equal(t, http.StatusOK, w.Code)

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp file should be removed after the request")
}

func TestVerifyMultiplePhotosEndpoint(t *testing.T) {
	engine := new(MockEngine)
	engine.On("VerifyPhotos", mock.Anything, mock.AnythingOfType("[]string"), mock.Anything).
		Return(&BatchResult{OverallValid: true, OverallScore: 85, TotalPhotos: 2, ValidPhotos: 2}, nil)

	router, _ := setupHandler(t, engine)

	form := newUploadForm()
	form.addPhoto(t, "photos", "a.jpg", "image/jpeg")
	form.addPhoto(t, "photos", "b.jpg", "image/png")
	form.addFields(t, validFields())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, form.request(t, "/api/verify-multiple-photos"))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Success    bool        `json:"success"`
		Data       BatchResult `json:"data"`
		TotalFiles int         `json:"totalFiles"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.TotalFiles)
	assert.True(t, resp.Data.OverallValid)
}

func TestVerifyMultiplePhotosEndpointCapsBatchSize(t *testing.T) {
	router, _ := setupHandler(t, new(MockEngine))

	form := newUploadForm()
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg", "f.jpg"} {
		form.addPhoto(t, "photos", name, "image/jpeg")
	}
	form.addFields(t, validFields())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, form.request(t, "/api/verify-multiple-photos"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Maximum 5 photos allowed")
}

func TestVerifyMultiplePhotosEndpointNoFallback(t *testing.T) {
	engine := new(MockEngine)
	engine.On("VerifyPhotos", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("engine request failed: timeout"))

	router, _ := setupHandler(t, engine)

	form := newUploadForm()
	form.addPhoto(t, "photos", "a.jpg", "image/jpeg")
	form.addFields(t, validFields())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, form.request(t, "/api/verify-multiple-photos"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Multiple photo verification failed")
}

func TestHealthEndpointProxiesEngine(t *testing.T) {
	engine := new(MockEngine)
	engine.On("CheckHealth", mock.Anything).
		Return(map[string]interface{}{"status": "healthy"}, nil)

	router, _ := setupHandler(t, engine)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/verification-health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestHealthEndpointEngineDown(t *testing.T) {
	engine := new(MockEngine)
	engine.On("CheckHealth", mock.Anything).
		Return(nil, errors.New("engine request failed: connection refused"))

	router, _ := setupHandler(t, engine)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/verification-health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "Photo verification service is not responding")
}

func TestProcessResultsEndpoint(t *testing.T) {
	router, _ := setupHandler(t, new(MockEngine))

	payload := map[string]interface{}{
		"results": []map[string]interface{}{
			{"success": true, "data": map[string]interface{}{"filename": "a.jpg", "is_valid": true, "score": 90}},
			{"success": true, "data": map[string]interface{}{"filename": "b.jpg", "is_valid": true, "score": 80}},
		},
		"taskDetails": map[string]interface{}{"taskId": "task-1", "taskType": "tree_planting"},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/process-verification-results", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Success bool    `json:"success"`
		Summary Summary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.Summary.TotalPhotos)
	assert.Equal(t, 85.0, resp.Summary.AverageScore)
	assert.True(t, resp.Summary.OverallValid)
}

func TestProcessResultsEndpointMissingFields(t *testing.T) {
	router, _ := setupHandler(t, new(MockEngine))

	req := httptest.NewRequest(http.MethodPost, "/api/process-verification-results", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Missing required fields: results, taskDetails")
}
