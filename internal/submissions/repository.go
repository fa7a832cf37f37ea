package submissions

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type Repository interface {
	CreateSubmission(ctx context.Context, sub *Submission) error
	GetSubmissionByID(ctx context.Context, id uuid.UUID) (*Submission, error)
	ListSubmissions(ctx context.Context, status *Status, userID *string) ([]Submission, error)

	// TransitionStatus performs the guarded transition in one statement and
	// reports whether it actually happened. A false return means the row was
	// no longer in the expected source state.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status, review AdminReview) (bool, error)
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateSubmission(ctx context.Context, sub *Submission) error {
	query := `
		INSERT INTO submissions (
			id, user_id, task_id, task_type, photos, verification_results,
			location, form_data, ai_verification_score, status, submitted_at
		) VALUES (
			:id, :user_id, :task_id, :task_type, :photos, :verification_results,
			:location, :form_data, :ai_verification_score, :status, :submitted_at
		)`
	_, err := r.db.NamedExecContext(ctx, query, sub)
	return err
}

func (r *postgresRepository) GetSubmissionByID(ctx context.Context, id uuid.UUID) (*Submission, error) {
	var sub Submission
	err := r.db.GetContext(ctx, &sub, "SELECT * FROM submissions WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &sub, err
}

func (r *postgresRepository) ListSubmissions(ctx context.Context, status *Status, userID *string) ([]Submission, error) {
	subs := []Submission{}
	query := "SELECT * FROM submissions WHERE 1=1"
	var args []interface{}
	argCount := 1

	if status != nil {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, *status)
		argCount++
	}
	if userID != nil {
		query += fmt.Sprintf(" AND user_id = $%d", argCount)
		args = append(args, *userID)
		argCount++
	}
	query += " ORDER BY submitted_at DESC"

	err := r.db.SelectContext(ctx, &subs, query, args...)
	return subs, err
}

func (r *postgresRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status, review AdminReview) (bool, error) {
	query := `
		UPDATE submissions SET
			status = $1,
			admin_review = $2
		WHERE id = $3 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, to, NullAdminReview{AdminReview: review, Valid: true}, id, from)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}
