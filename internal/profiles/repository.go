package profiles

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

type Repository interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	AwardPoints(ctx context.Context, userID string, points int) (*Profile, error)
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	var profile Profile
	err := r.db.GetContext(ctx, &profile, "SELECT * FROM profiles WHERE user_id = $1", userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &profile, err
}

// AwardPoints increments points and the completed-task counter in one
// statement so concurrent awards never lose updates. The row is created on
// first award.
func (r *postgresRepository) AwardPoints(ctx context.Context, userID string, points int) (*Profile, error) {
	query := `
		INSERT INTO profiles (user_id, points, tasks_completed, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			points = profiles.points + $2,
			tasks_completed = profiles.tasks_completed + 1,
			updated_at = NOW()
		RETURNING *`
	var profile Profile
	if err := r.db.GetContext(ctx, &profile, query, userID, points); err != nil {
		return nil, err
	}
	return &profile, nil
}
