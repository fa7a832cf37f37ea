package verification

import (
	"errors"
	"fmt"
	"time"
)

// TaskType identifies the civic task a photo is evidence for
type TaskType string

const (
	TaskTreePlanting     TaskType = "tree_planting"
	TaskPollutionReport  TaskType = "pollution_report"
	TaskCorruptionReport TaskType = "corruption_report"
	TaskCleanlinessDrive TaskType = "cleanliness_drive"
)

// Validity thresholds. The client-side preflight gate is intentionally
// looser than the admin-facing aggregate verdict.
const (
	AdminApprovalThreshold   = 70.0
	ClientPreflightThreshold = 50.0
)

const DefaultLocationRadiusMeters = 100.0

// Location is a WGS84 coordinate pair
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DeadlineWindow bounds the acceptable capture time for a submission
type DeadlineWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Request carries everything the engine needs to verify a photo against
// a task. One Request is built per photo (or per batch).
type Request struct {
	TaskType       TaskType       `json:"task_type"`
	Location       Location       `json:"location"`
	LocationRadius float64        `json:"location_radius"`
	Deadline       DeadlineWindow `json:"deadline"`
	UserID         string         `json:"user_id"`
	RequiresVideo  bool           `json:"requires_video"`
}

// ValidationError lists the request fields that are absent or unusable.
// It is a caller error, distinct from engine and transport failures, and
// must never be converted into a degraded approval.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required fields: %v", e.Missing)
}

// IsValidationError reports whether err is a rejected request rather than
// an engine or transport failure
func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

// Validate rejects a request before any network call is made
func (r *Request) Validate() error {
	var missing []string
	if r.TaskType == "" {
		missing = append(missing, "taskType")
	}
	if r.Location.Lat == 0 && r.Location.Lng == 0 {
		missing = append(missing, "location")
	}
	if r.Deadline.Start.IsZero() {
		missing = append(missing, "deadlineStart")
	}
	if r.Deadline.End.IsZero() {
		missing = append(missing, "deadlineEnd")
	}
	if r.UserID == "" {
		missing = append(missing, "userId")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// Result is the engine's verdict for a single photo. On transport failure
// the endpoint layer synthesizes one with Degraded set; the fixed score
// constants and marker strings in Issues are part of the contract because
// downstream aggregation and UI copy depend on them.
type Result struct {
	Filename        string                 `json:"filename,omitempty"`
	IsValid         bool                   `json:"is_valid"`
	Score           float64                `json:"score"`
	Issues          []string               `json:"issues"`
	Recommendations []string               `json:"recommendations"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	AIChecks        map[string]interface{} `json:"ai_checks,omitempty"`
	Degraded        bool                   `json:"degraded,omitempty"`
}

// BatchResult is the engine's aggregate verdict for a multi-photo call
type BatchResult struct {
	OverallValid bool     `json:"overall_valid"`
	OverallScore float64  `json:"overall_score"`
	TotalPhotos  int      `json:"total_photos"`
	ValidPhotos  int      `json:"valid_photos"`
	Results      []Result `json:"results"`
}

// PhotoOutcome pairs a per-photo call outcome with its result payload.
// Success false with a nil Data still counts toward aggregate totals.
type PhotoOutcome struct {
	Success  bool    `json:"success"`
	Data     *Result `json:"data,omitempty"`
	Error    string  `json:"error,omitempty"`
	Filename string  `json:"filename,omitempty"`
}

// Summary reduces a set of per-photo outcomes into one verdict
type Summary struct {
	TotalPhotos     int      `json:"totalPhotos"`
	ValidPhotos     int      `json:"validPhotos"`
	InvalidPhotos   int      `json:"invalidPhotos"`
	AverageScore    float64  `json:"averageScore"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
	OverallValid    bool     `json:"overallValid"`
}

// TaskDetails names the task a report is generated for
type TaskDetails struct {
	TaskID   string   `json:"taskId"`
	TaskType TaskType `json:"taskType"`
}

// Report is the human-readable verification report returned alongside a Summary
type Report struct {
	Timestamp       time.Time    `json:"timestamp"`
	TaskID          string       `json:"taskId"`
	TaskType        TaskType     `json:"taskType"`
	OverallResult   string       `json:"overallResult"`
	Score           float64      `json:"score"`
	Summary         ReportCounts `json:"summary"`
	Issues          []string     `json:"issues"`
	Recommendations []string     `json:"recommendations"`
	NextSteps       []string     `json:"nextSteps"`
}

// ReportCounts is the photo tally embedded in a Report
type ReportCounts struct {
	TotalPhotos   int `json:"totalPhotos"`
	ValidPhotos   int `json:"validPhotos"`
	InvalidPhotos int `json:"invalidPhotos"`
}
