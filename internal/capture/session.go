// Package capture drives the citizen-side photo capture flow: photos are
// collected from camera or file picker, verified one at a time against the
// portal's per-photo endpoint, and the submit action is gated locally on
// the accumulated results.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"civitas/citizen-portal/citizen-portal-backend/internal/verification"
)

// StatusError reports a non-2xx answer from the verification endpoint
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("verification endpoint returned status %d", e.Code)
}

// ErrIncomplete means the endpoint answered 200 but without a usable result
var ErrIncomplete = errors.New("verification response missing result data")

// Degradation scores applied by the capture layer itself. This is a third,
// independent degradation point on top of the endpoint's: a client-network
// hiccup must not block the citizen either.
const (
	scoreEndpointDown = 75.0
	scoreIncomplete   = 70.0
	scoreNetworkError = 80.0
)

// Verifier is the per-photo verification surface the session drives
type Verifier interface {
	VerifyPhoto(ctx context.Context, photoPath string, req *verification.Request) (*verification.Result, error)
}

// Photo is one captured or picked image
type Photo struct {
	Name string
	Path string
	MIME string
}

// Form is the submission form state the gate inspects
type Form struct {
	Description string
	Location    string
	Consent     bool
}

// Session accumulates photos for one task attempt and verifies them
// strictly sequentially. The ordering is user-visible (a progress bar
// advances only after each photo resolves) and must not be parallelized.
type Session struct {
	verifier  Verifier
	taskType  verification.TaskType
	location  verification.Location
	userID    string
	maxPhotos int
	photos    []Photo
	results   []verification.Result
	progress  func(percent float64)
	logger    *zap.Logger
}

const DefaultMaxPhotos = 5

func NewSession(verifier Verifier, taskType verification.TaskType, location verification.Location, userID string, logger *zap.Logger) *Session {
	return &Session{
		verifier:  verifier,
		taskType:  taskType,
		location:  location,
		userID:    userID,
		maxPhotos: DefaultMaxPhotos,
		logger:    logger,
	}
}

// OnProgress registers a callback fired after each photo's verification
// resolves, with the percentage of photos completed
func (s *Session) OnProgress(fn func(percent float64)) {
	s.progress = fn
}

// AddPhoto registers a capture. Non-image files and photos beyond the cap
// are rejected before any verification happens.
func (s *Session) AddPhoto(photo Photo) error {
	if !strings.HasPrefix(photo.MIME, "image/") {
		return fmt.Errorf("only image files are allowed")
	}
	if len(s.photos) >= s.maxPhotos {
		return fmt.Errorf("maximum %d photos allowed", s.maxPhotos)
	}
	s.photos = append(s.photos, photo)
	return nil
}

// Photos returns the captured photos in order
func (s *Session) Photos() []Photo {
	return s.photos
}

// Results returns the accumulated verification results
func (s *Session) Results() []verification.Result {
	return s.results
}

// VerifyAll verifies each photo in capture order, one call at a time.
// A failure at any layer is converted into a synthetic approved-with-warning
// result rather than aborting the run; the score encodes the failure class.
func (s *Session) VerifyAll(ctx context.Context) ([]verification.Result, error) {
	if len(s.photos) == 0 {
		return nil, fmt.Errorf("please capture or upload at least one photo")
	}

	// The deadline window is anchored to the verification run itself
	now := time.Now().UTC()
	req := &verification.Request{
		TaskType:       s.taskType,
		Location:       s.location,
		LocationRadius: verification.DefaultLocationRadiusMeters,
		Deadline: verification.DeadlineWindow{
			Start: now.Add(-4 * time.Hour),
			End:   now.Add(24 * time.Hour),
		},
		UserID: s.userID,
	}

	s.results = make([]verification.Result, 0, len(s.photos))
	for i, photo := range s.photos {
		result, err := s.verifier.VerifyPhoto(ctx, photo.Path, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("photo verification degraded",
				zap.Int("photo", i+1),
				zap.String("name", photo.Name),
				zap.Error(err))
			result = degradedResult(photo.Name, i+1, err)
		}
		s.results = append(s.results, *result)

		if s.progress != nil {
			s.progress(float64(i+1) / float64(len(s.photos)) * 100)
		}
	}
	return s.results, nil
}

func degradedResult(filename string, photoNum int, err error) *verification.Result {
	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr):
		return &verification.Result{
			Filename:        filename,
			IsValid:         true,
			Score:           scoreEndpointDown,
			Issues:          []string{fmt.Sprintf("Photo %d verification service unavailable - approved with warning", photoNum)},
			Recommendations: []string{"Photo approved but verification service needs attention"},
			Degraded:        true,
		}
	case errors.Is(err, ErrIncomplete):
		return &verification.Result{
			Filename:        filename,
			IsValid:         true,
			Score:           scoreIncomplete,
			Issues:          []string{fmt.Sprintf("Photo %d verification incomplete - approved with warning", photoNum)},
			Recommendations: []string{"Photo approved but verification needs attention"},
			Degraded:        true,
		}
	default:
		return &verification.Result{
			Filename:        filename,
			IsValid:         true,
			Score:           scoreNetworkError,
			Issues:          []string{fmt.Sprintf("Photo %d network error - approved with warning", photoNum)},
			Recommendations: []string{"Photo approved but network connection needs attention"},
			Degraded:        true,
		}
	}
}

// OverallScore is the simple mean of the accumulated result scores
func (s *Session) OverallScore() float64 {
	if len(s.results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range s.results {
		sum += r.Score
	}
	return sum / float64(len(s.results))
}

// CanSubmit applies the local preflight gate. Returns the blocking reasons
// when the gate is closed; an empty slice means submit is enabled.
// Intentionally looser than the admin aggregate verdict: the mean score bar
// here is ClientPreflightThreshold, not AdminApprovalThreshold.
func (s *Session) CanSubmit(form Form) (bool, []string) {
	var reasons []string

	if len(strings.TrimSpace(form.Description)) < 20 {
		reasons = append(reasons, "description must be at least 20 characters")
	}
	if len(s.photos) == 0 {
		reasons = append(reasons, "at least one photo is required")
	}
	if len(s.results) == 0 {
		reasons = append(reasons, "photos have not been verified")
	} else {
		allValid := true
		for _, r := range s.results {
			if !r.IsValid {
				allValid = false
				break
			}
		}
		if !allValid {
			reasons = append(reasons, "one or more photos failed verification")
		}
		if s.OverallScore() < verification.ClientPreflightThreshold {
			reasons = append(reasons, fmt.Sprintf("verification score below %.0f", verification.ClientPreflightThreshold))
		}
	}
	if strings.TrimSpace(form.Location) == "" {
		reasons = append(reasons, "location is required")
	}
	if !form.Consent {
		reasons = append(reasons, "consent must be given")
	}

	return len(reasons) == 0, reasons
}
