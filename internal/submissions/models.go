package submissions

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"civitas/citizen-portal/citizen-portal-backend/internal/verification"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Point awards by task type
const (
	PointsTreePlanting = 50
	PointsDefault      = 25
)

// PointsFor returns the award for approving a submission of the given task type
func PointsFor(taskType verification.TaskType) int {
	if taskType == verification.TaskTreePlanting {
		return PointsTreePlanting
	}
	return PointsDefault
}

// Coordinates is the reported capture position
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Location is where the citizen says the task was performed
type Location struct {
	Address     string      `json:"address"`
	Coordinates Coordinates `json:"coordinates"`
}

// FormData is the free-text part of the submission form
type FormData struct {
	Description     string `json:"description"`
	AdditionalNotes string `json:"additionalNotes"`
}

// AdminReview records the review decision
type AdminReview struct {
	ReviewedBy string    `json:"reviewedBy"`
	ReviewedAt time.Time `json:"reviewedAt"`
	Comments   string    `json:"comments"`
}

// NullAdminReview is AdminReview with a null state for unreviewed submissions
type NullAdminReview struct {
	AdminReview
	Valid bool
}

// ResultList stores the raw per-photo verification results as JSONB
type ResultList []verification.Result

// Submission is one user's evidence package for one task attempt. It is the
// permanent audit record: created once at submit time, mutated only by the
// review decision, never deleted by this subsystem.
type Submission struct {
	ID                  uuid.UUID             `json:"id" db:"id"`
	UserID              string                `json:"user_id" db:"user_id"`
	TaskID              string                `json:"task_id" db:"task_id"`
	TaskType            verification.TaskType `json:"task_type" db:"task_type"`
	Photos              pq.StringArray        `json:"photos" db:"photos"`
	VerificationResults ResultList            `json:"verification_results" db:"verification_results"`
	Location            Location              `json:"location" db:"location"`
	FormData            FormData              `json:"form_data" db:"form_data"`
	AIVerificationScore float64               `json:"ai_verification_score" db:"ai_verification_score"`
	Status              Status                `json:"status" db:"status"`
	SubmittedAt         time.Time             `json:"submitted_at" db:"submitted_at"`
	AdminReview         NullAdminReview       `json:"admin_review" db:"admin_review"`
}

func (l ResultList) Value() (driver.Value, error) {
	return json.Marshal(l)
}

func (l *ResultList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

func (loc Location) Value() (driver.Value, error) {
	return json.Marshal(loc)
}

func (loc *Location) Scan(src interface{}) error {
	return scanJSON(src, loc)
}

func (f FormData) Value() (driver.Value, error) {
	return json.Marshal(f)
}

func (f *FormData) Scan(src interface{}) error {
	return scanJSON(src, f)
}

func (r NullAdminReview) Value() (driver.Value, error) {
	if !r.Valid {
		return nil, nil
	}
	return json.Marshal(r.AdminReview)
}

func (r *NullAdminReview) Scan(src interface{}) error {
	if src == nil {
		r.Valid = false
		return nil
	}
	r.Valid = true
	return scanJSON(src, &r.AdminReview)
}

func (r NullAdminReview) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(r.AdminReview)
}

func (r *NullAdminReview) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		r.Valid = false
		return nil
	}
	r.Valid = true
	return json.Unmarshal(data, &r.AdminReview)
}

func scanJSON(src, dst interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	case nil:
		return nil
	default:
		return fmt.Errorf("unsupported JSONB source type %T", src)
	}
}
