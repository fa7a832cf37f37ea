package profiles

import "time"

// Profile is the citizen's point ledger. The review approval side effect is
// the only writer of Points and TasksCompleted in this subsystem.
type Profile struct {
	UserID         string    `json:"user_id" db:"user_id"`
	Points         int       `json:"points" db:"points"`
	TasksCompleted int       `json:"tasks_completed" db:"tasks_completed"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}
