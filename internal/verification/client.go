package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"civitas/citizen-portal/citizen-portal-backend/internal/config"
)

// EngineStatusError is returned when the engine answered but with a non-2xx
// status on the final retry attempt. Transport failures (timeout, connection
// refused) are returned as plain wrapped errors instead; callers use the
// distinction to pick a degradation class.
type EngineStatusError struct {
	StatusCode int
	Body       string
}

func (e *EngineStatusError) Error() string {
	return fmt.Sprintf("engine returned status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the external photo verification engine. Every call is
// retried with exponential backoff; exhausting the retries surfaces the last
// error to the caller. The client never fabricates a success — graceful
// degradation is an endpoint-layer decision.
type Client struct {
	baseURL     string
	timeout     time.Duration
	maxRetries  int
	httpClient  *http.Client
	logger      *zap.Logger
	backoffUnit time.Duration
}

// NewClient creates an engine client from configuration
func NewClient(cfg config.EngineConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		timeout:     timeout,
		maxRetries:  maxRetries,
		httpClient:  &http.Client{},
		logger:      logger,
		backoffUnit: time.Second,
	}
}

// VerifyPhoto sends a single photo to the engine for verification
func (c *Client) VerifyPhoto(ctx context.Context, photoPath string, req *Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	body, contentType, err := c.buildForm([]formFile{{field: "file", path: photoPath}}, engineFields(req, true))
	if err != nil {
		return nil, fmt.Errorf("failed to build verification request: %w", err)
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/verify-photo", contentType, body)
	if err != nil {
		return nil, err
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode verification result: %w", err)
	}
	result.Filename = filepath.Base(photoPath)
	return &result, nil
}

// VerifyPhotos sends a batch of photos in one call; aggregation happens
// engine-side rather than by combining per-photo calls
func (c *Client) VerifyPhotos(ctx context.Context, photoPaths []string, req *Request) (*BatchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	files := make([]formFile, 0, len(photoPaths))
	for _, p := range photoPaths {
		files = append(files, formFile{field: "files", path: p})
	}

	body, contentType, err := c.buildForm(files, engineFields(req, false))
	if err != nil {
		return nil, fmt.Errorf("failed to build batch verification request: %w", err)
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/verify-multiple-photos", contentType, body)
	if err != nil {
		return nil, err
	}

	var result BatchResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode batch result: %w", err)
	}
	return &result, nil
}

// ExtractMetadata asks the engine for EXIF-level facts about a photo
func (c *Client) ExtractMetadata(ctx context.Context, photoPath string) (map[string]interface{}, error) {
	body, contentType, err := c.buildForm([]formFile{{field: "file", path: photoPath}}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build metadata request: %w", err)
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/extract-metadata", contentType, body)
	if err != nil {
		return nil, err
	}

	var metadata map[string]interface{}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return metadata, nil
}

// CheckHealth probes the engine; any 2xx with a JSON body counts as healthy
func (c *Client) CheckHealth(ctx context.Context) (map[string]interface{}, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/health", "", nil)
	if err != nil {
		return nil, err
	}

	var status map[string]interface{}
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	return status, nil
}

type formFile struct {
	field string
	path  string
}

func engineFields(req *Request, includeVideo bool) map[string]string {
	radius := req.LocationRadius
	if radius <= 0 {
		radius = DefaultLocationRadiusMeters
	}
	fields := map[string]string{
		"task_type":       string(req.TaskType),
		"location_lat":    strconv.FormatFloat(req.Location.Lat, 'f', -1, 64),
		"location_lng":    strconv.FormatFloat(req.Location.Lng, 'f', -1, 64),
		"location_radius": strconv.FormatFloat(radius, 'f', -1, 64),
		"deadline_start":  req.Deadline.Start.Format(time.RFC3339),
		"deadline_end":    req.Deadline.End.Format(time.RFC3339),
		"user_id":         req.UserID,
	}
	if includeVideo {
		fields["requires_video"] = strconv.FormatBool(req.RequiresVideo)
	}
	return fields
}

// buildForm assembles a multipart body in memory so retries can replay it
func (c *Client) buildForm(files []formFile, fields map[string]string) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, file := range files {
		f, err := os.Open(file.path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open %s: %w", file.path, err)
		}
		part, err := writer.CreateFormFile(file.field, filepath.Base(file.path))
		if err != nil {
			f.Close()
			return nil, "", err
		}
		if _, err := io.Copy(part, f); err != nil {
			f.Close()
			return nil, "", fmt.Errorf("failed to read %s: %w", file.path, err)
		}
		f.Close()
	}

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

// doRequest performs an engine call with retry and exponential backoff.
// Attempt N failing waits 2^N seconds before attempt N+1; each attempt has
// its own request timeout independent of the backoff schedule.
func (c *Client) doRequest(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		data, err := c.attempt(ctx, method, path, contentType, body)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if attempt < c.maxRetries {
			delay := (1 << uint(attempt)) * c.backoffUnit
			c.logger.Warn("engine request failed, retrying",
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("engine request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read engine response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &EngineStatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// IsEngineStatusError reports whether err is the engine answering non-2xx,
// as opposed to the engine being unreachable
func IsEngineStatusError(err error) bool {
	var statusErr *EngineStatusError
	return errors.As(err, &statusErr)
}
