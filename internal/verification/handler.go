package verification

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"civitas/citizen-portal/citizen-portal-backend/pkg/storage"
)

// Engine is the surface of the external verification engine the handler needs
type Engine interface {
	VerifyPhoto(ctx context.Context, photoPath string, req *Request) (*Result, error)
	VerifyPhotos(ctx context.Context, photoPaths []string, req *Request) (*BatchResult, error)
	ExtractMetadata(ctx context.Context, photoPath string) (map[string]interface{}, error)
	CheckHealth(ctx context.Context) (map[string]interface{}, error)
}

// Degraded fallback scores. Fixed constants: downstream aggregation and UI
// copy key off these exact values, so they are part of the contract.
const (
	fallbackScoreEngineDown  = 75.0
	fallbackScoreNetworkFail = 80.0
)

type Handler struct {
	engine        Engine
	temp          *TempStore
	archive       storage.S3Client
	archiveBucket string
	maxFileSize   int64
	maxFiles      int
	logger        *zap.Logger
}

func NewHandler(engine Engine, temp *TempStore, archive storage.S3Client, archiveBucket string, maxFileSize int64, maxFiles int, logger *zap.Logger) *Handler {
	if maxFileSize <= 0 {
		maxFileSize = 10 << 20
	}
	if maxFiles <= 0 {
		maxFiles = 5
	}
	return &Handler{
		engine:        engine,
		temp:          temp,
		archive:       archive,
		archiveBucket: archiveBucket,
		maxFileSize:   maxFileSize,
		maxFiles:      maxFiles,
		logger:        logger,
	}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/verify-photo", h.VerifyPhoto)
	rg.POST("/verify-multiple-photos", h.VerifyMultiplePhotos)
	rg.POST("/extract-metadata", h.ExtractMetadata)
	rg.GET("/verification-health", h.Health)
	rg.POST("/process-verification-results", h.ProcessResults)
}

// VerifyPhoto verifies one uploaded photo against its task requirements.
// Engine unavailability never surfaces to the caller: the response is a 200
// with a degraded result so a broken engine cannot block a citizen's
// submission. 500 means temp-file handling itself failed.
func (h *Handler) VerifyPhoto(c *gin.Context) {
	file, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No photo uploaded"})
		return
	}
	if !h.acceptUpload(c, file) {
		return
	}

	req, ok := h.parseRequest(c, true)
	if !ok {
		return
	}

	path, err := h.temp.Save(file)
	if err != nil {
		h.logger.Error("failed to store upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
		return
	}
	defer h.temp.Remove(path)

	result, err := h.engine.VerifyPhoto(c.Request.Context(), path, req)
	if err != nil {
		// A rejected request is the caller's mistake, not engine trouble
		if IsValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Warn("engine verification failed, returning degraded result",
			zap.String("filename", file.Filename),
			zap.Error(err))
		result = h.degradedResult(file.Filename, req, err)
	}

	h.archivePhoto(c.Request.Context(), path, file.Filename, req)

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"data":     result,
		"filename": file.Filename,
	})
}

// VerifyMultiplePhotos verifies a batch in one engine call. Unlike the
// single-photo endpoint there is no degraded fallback here: a transport
// failure is a genuine error.
func (h *Handler) VerifyMultiplePhotos(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	files := form.File["photos"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No photos uploaded"})
		return
	}
	if len(files) > h.maxFiles {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Maximum %d photos allowed", h.maxFiles)})
		return
	}
	for _, file := range files {
		if !h.acceptUpload(c, file) {
			return
		}
	}

	req, ok := h.parseRequest(c, false)
	if !ok {
		return
	}

	paths := make([]string, 0, len(files))
	defer func() {
		for _, p := range paths {
			h.temp.Remove(p)
		}
	}()
	for _, file := range files {
		path, err := h.temp.Save(file)
		if err != nil {
			h.logger.Error("failed to store upload", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
			return
		}
		paths = append(paths, path)
	}

	result, err := h.engine.VerifyPhotos(c.Request.Context(), paths, req)
	if err != nil {
		if IsValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("batch verification failed", zap.Int("files", len(files)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Multiple photo verification failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       result,
		"totalFiles": len(files),
	})
}

// ExtractMetadata returns EXIF-level facts about one photo. Genuine errors
// surface here, same as the batch endpoint.
func (h *Handler) ExtractMetadata(c *gin.Context) {
	file, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No photo uploaded"})
		return
	}
	if !h.acceptUpload(c, file) {
		return
	}

	path, err := h.temp.Save(file)
	if err != nil {
		h.logger.Error("failed to store upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
		return
	}
	defer h.temp.Remove(path)

	metadata, err := h.engine.ExtractMetadata(c.Request.Context(), path)
	if err != nil {
		h.logger.Error("metadata extraction failed", zap.String("filename", file.Filename), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Metadata extraction failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"data":     metadata,
		"filename": file.Filename,
	})
}

// Health proxies the engine health check
func (h *Handler) Health(c *gin.Context) {
	status, err := h.engine.CheckHealth(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error":   "Photo verification service is not responding",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    status,
		"service": "Photo Verification Service",
	})
}

type processResultsRequest struct {
	Results     []PhotoOutcome `json:"results"`
	TaskDetails *TaskDetails   `json:"taskDetails"`
}

// ProcessResults aggregates per-photo results into a summary and report
func (h *Handler) ProcessResults(c *gin.Context) {
	var req processResultsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Results == nil || req.TaskDetails == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields: results, taskDetails"})
		return
	}

	summary := ProcessResults(req.Results)
	report := GenerateReport(summary, *req.TaskDetails)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"summary": summary,
		"report":  report,
	})
}

// acceptUpload enforces the MIME and size limits before anything touches disk
func (h *Handler) acceptUpload(c *gin.Context, file *multipart.FileHeader) bool {
	if !strings.HasPrefix(file.Header.Get("Content-Type"), "image/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only image files are allowed"})
		return false
	}
	if file.Size > h.maxFileSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("File exceeds %dMB limit", h.maxFileSize>>20)})
		return false
	}
	return true
}

// parseRequest validates and converts the metadata form fields. Responds 400
// and returns ok=false when mandatory fields are absent or malformed.
func (h *Handler) parseRequest(c *gin.Context, includeVideo bool) (*Request, bool) {
	taskType := c.PostForm("taskType")
	latStr := c.PostForm("locationLat")
	lngStr := c.PostForm("locationLng")
	deadlineStart := c.PostForm("deadlineStart")
	deadlineEnd := c.PostForm("deadlineEnd")
	userID := c.PostForm("userId")

	if taskType == "" || latStr == "" || lngStr == "" || deadlineStart == "" || deadlineEnd == "" || userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Missing required fields: taskType, locationLat, locationLng, deadlineStart, deadlineEnd, userId",
		})
		return nil, false
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "locationLat must be a number"})
		return nil, false
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "locationLng must be a number"})
		return nil, false
	}

	radius := DefaultLocationRadiusMeters
	if radiusStr := c.PostForm("locationRadius"); radiusStr != "" {
		if r, err := strconv.ParseFloat(radiusStr, 64); err == nil && r > 0 {
			radius = r
		}
	}

	start, err := time.Parse(time.RFC3339, deadlineStart)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deadlineStart must be an ISO timestamp"})
		return nil, false
	}
	end, err := time.Parse(time.RFC3339, deadlineEnd)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deadlineEnd must be an ISO timestamp"})
		return nil, false
	}

	req := &Request{
		TaskType:       TaskType(taskType),
		Location:       Location{Lat: lat, Lng: lng},
		LocationRadius: radius,
		Deadline:       DeadlineWindow{Start: start, End: end},
		UserID:         userID,
	}
	if includeVideo {
		req.RequiresVideo = c.PostForm("requiresVideo") == "true"
	}
	return req, true
}

// degradedResult synthesizes an approval when the engine could not give a
// verdict. Score 75 means the engine answered but unhealthily; 80 means it
// was unreachable. Metadata and checks echo the request itself — there is
// nothing else to echo.
func (h *Handler) degradedResult(filename string, req *Request, err error) *Result {
	score := fallbackScoreNetworkFail
	issue := "Photo verification network error - approved with warning"
	rec := "Photo approved but network connection needs attention"
	if IsEngineStatusError(err) {
		score = fallbackScoreEngineDown
		issue = "Photo verification service unavailable - approved with warning"
		rec = "Photo approved but verification service needs attention"
	}

	return &Result{
		Filename:        filename,
		IsValid:         true,
		Score:           score,
		Issues:          []string{issue},
		Recommendations: []string{rec},
		Metadata: map[string]interface{}{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"gps": map[string]interface{}{
				"lat": req.Location.Lat,
				"lng": req.Location.Lng,
			},
			"source": "fallback",
		},
		AIChecks: map[string]interface{}{
			"engine_reachable": false,
		},
		Degraded: true,
	}
}

// archivePhoto copies a verified upload to the audit bucket. Best effort:
// archive failures are logged, never surfaced.
func (h *Handler) archivePhoto(ctx context.Context, path, filename string, req *Request) {
	if h.archive == nil || h.archiveBucket == "" {
		return
	}
	f, err := os.Open(path)
	if err != nil {
		h.logger.Error("failed to open photo for archival", zap.String("path", path), zap.Error(err))
		return
	}
	defer f.Close()

	key := storage.GenerateArchiveKey(req.UserID, string(req.TaskType), filepath.Base(filename))
	if err := h.archive.Upload(ctx, h.archiveBucket, key, f); err != nil {
		h.logger.Error("failed to archive photo", zap.String("key", key), zap.Error(err))
	}
}
