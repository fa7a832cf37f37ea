package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"civitas/citizen-portal/citizen-portal-backend/internal/verification"
)

// APIVerifier calls the portal's per-photo verification endpoint
type APIVerifier struct {
	baseURL    string
	httpClient *http.Client
}

func NewAPIVerifier(baseURL string) *APIVerifier {
	return &APIVerifier{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

type verifyResponse struct {
	Success bool                 `json:"success"`
	Data    *verification.Result `json:"data"`
}

// VerifyPhoto uploads one photo with its task metadata. Errors are typed so
// the session can pick the right degradation class: *StatusError for non-2xx,
// ErrIncomplete for a 200 without a result, plain errors for network failures.
func (v *APIVerifier) VerifyPhoto(ctx context.Context, photoPath string, req *verification.Request) (*verification.Result, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	f, err := os.Open(photoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open photo: %w", err)
	}
	part, err := createImagePart(writer, filepath.Base(photoPath))
	if err != nil {
		f.Close()
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read photo: %w", err)
	}
	f.Close()

	fields := map[string]string{
		"taskType":       string(req.TaskType),
		"locationLat":    strconv.FormatFloat(req.Location.Lat, 'f', -1, 64),
		"locationLng":    strconv.FormatFloat(req.Location.Lng, 'f', -1, 64),
		"locationRadius": strconv.FormatFloat(req.LocationRadius, 'f', -1, 64),
		"deadlineStart":  req.Deadline.Start.Format(time.RFC3339),
		"deadlineEnd":    req.Deadline.End.Format(time.RFC3339),
		"userId":         req.UserID,
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/verify-photo", &buf)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := v.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("verification request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read verification response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var decoded verifyResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode verification response: %w", err)
	}
	if !decoded.Success || decoded.Data == nil {
		return nil, ErrIncomplete
	}
	return decoded.Data, nil
}

// createImagePart builds the photo form part with an image content type so
// the endpoint's MIME filter accepts camera captures
func createImagePart(writer *multipart.Writer, filename string) (io.Writer, error) {
	contentType := "image/jpeg"
	switch filepath.Ext(filename) {
	case ".png":
		contentType = "image/png"
	case ".webp":
		contentType = "image/webp"
	case ".heic":
		contentType = "image/heic"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="photo"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)
	return writer.CreatePart(header)
}
