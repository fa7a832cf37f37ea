package submissions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"civitas/citizen-portal/citizen-portal-backend/internal/notifications"
	"civitas/citizen-portal/citizen-portal-backend/internal/profiles"
	"civitas/citizen-portal/citizen-portal-backend/internal/verification"
	"civitas/citizen-portal/citizen-portal-backend/pkg/workflows"
)

var (
	ErrNotFound        = errors.New("submission not found")
	ErrAlreadyReviewed = errors.New("submission has already been reviewed")
	ErrInvalidInput    = errors.New("invalid submission")
)

type Service interface {
	CreateSubmission(ctx context.Context, req CreateRequest) (*Submission, error)
	GetSubmission(ctx context.Context, id uuid.UUID) (*Submission, error)
	ListSubmissions(ctx context.Context, status *Status, userID *string) ([]Submission, error)

	Approve(ctx context.Context, id uuid.UUID, reviewedBy, comments string) (*Submission, error)
	Reject(ctx context.Context, id uuid.UUID, reviewedBy, comments string) (*Submission, error)
}

type CreateRequest struct {
	UserID              string
	TaskID              string
	TaskType            verification.TaskType
	Photos              []string
	VerificationResults []verification.Result
	Location            Location
	FormData            FormData
}

type submissionService struct {
	repo     Repository
	profiles profiles.Repository
	sm       *workflows.StateMachine
	notifier notifications.Notifier
	logger   *zap.Logger
}

func NewService(repo Repository, profileRepo profiles.Repository, notifier notifications.Notifier, logger *zap.Logger) Service {
	return &submissionService{
		repo:     repo,
		profiles: profileRepo,
		sm:       workflows.NewSubmissionStateMachine(),
		notifier: notifier,
		logger:   logger,
	}
}

// CreateSubmission records the evidence package. The derived score is the
// simple mean of the attached per-photo scores, frozen at creation time.
func (s *submissionService) CreateSubmission(ctx context.Context, req CreateRequest) (*Submission, error) {
	if req.UserID == "" || req.TaskID == "" || req.TaskType == "" {
		return nil, fmt.Errorf("%w: userId, taskId and taskType are required", ErrInvalidInput)
	}
	if len(req.Photos) == 0 {
		return nil, fmt.Errorf("%w: at least one photo is required", ErrInvalidInput)
	}

	var score float64
	if len(req.VerificationResults) > 0 {
		for _, r := range req.VerificationResults {
			score += r.Score
		}
		score /= float64(len(req.VerificationResults))
	}

	sub := &Submission{
		ID:                  uuid.New(),
		UserID:              req.UserID,
		TaskID:              req.TaskID,
		TaskType:            req.TaskType,
		Photos:              req.Photos,
		VerificationResults: req.VerificationResults,
		Location:            req.Location,
		FormData:            req.FormData,
		AIVerificationScore: score,
		Status:              StatusPending,
		SubmittedAt:         time.Now().UTC(),
	}

	if err := s.repo.CreateSubmission(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}

	s.logger.Info("submission created",
		zap.String("id", sub.ID.String()),
		zap.String("user_id", sub.UserID),
		zap.String("task_type", string(sub.TaskType)),
		zap.Float64("score", score))
	return sub, nil
}

func (s *submissionService) GetSubmission(ctx context.Context, id uuid.UUID) (*Submission, error) {
	return s.repo.GetSubmissionByID(ctx, id)
}

func (s *submissionService) ListSubmissions(ctx context.Context, status *Status, userID *string) ([]Submission, error) {
	return s.repo.ListSubmissions(ctx, status, userID)
}

// Approve transitions pending -> approved and awards points. The transition
// is compare-and-set on status, and the award fires only when this call won
// the transition, so a repeated approve cannot double-award.
func (s *submissionService) Approve(ctx context.Context, id uuid.UUID, reviewedBy, comments string) (*Submission, error) {
	sub, review, err := s.transition(ctx, id, StatusApproved, reviewedBy, comments)
	if err != nil {
		return nil, err
	}

	award := PointsFor(sub.TaskType)
	profile, err := s.profiles.AwardPoints(ctx, sub.UserID, award)
	if err != nil {
		// The submission is already approved; the award must not be retried
		// blindly or it could double-fire. Surface the failure for manual
		// reconciliation.
		s.logger.Error("point award failed after approval",
			zap.String("submission_id", id.String()),
			zap.String("user_id", sub.UserID),
			zap.Int("points", award),
			zap.Error(err))
		return sub, fmt.Errorf("submission approved but point award failed: %w", err)
	}

	s.logger.Info("submission approved",
		zap.String("submission_id", id.String()),
		zap.String("user_id", sub.UserID),
		zap.Int("points_awarded", award),
		zap.Int("total_points", profile.Points))

	s.notifier.Notify(notifications.ReviewEvent{
		Type:          "submission_approved",
		SubmissionID:  id.String(),
		UserID:        sub.UserID,
		TaskType:      string(sub.TaskType),
		PointsAwarded: award,
		Comments:      review.Comments,
		Timestamp:     review.ReviewedAt,
	})
	return sub, nil
}

// Reject transitions pending -> rejected with the reviewer's comments.
// No point award.
func (s *submissionService) Reject(ctx context.Context, id uuid.UUID, reviewedBy, comments string) (*Submission, error) {
	sub, review, err := s.transition(ctx, id, StatusRejected, reviewedBy, comments)
	if err != nil {
		return nil, err
	}

	s.logger.Info("submission rejected",
		zap.String("submission_id", id.String()),
		zap.String("user_id", sub.UserID))

	s.notifier.Notify(notifications.ReviewEvent{
		Type:         "submission_rejected",
		SubmissionID: id.String(),
		UserID:       sub.UserID,
		TaskType:     string(sub.TaskType),
		Comments:     review.Comments,
		Timestamp:    review.ReviewedAt,
	})
	return sub, nil
}

func (s *submissionService) transition(ctx context.Context, id uuid.UUID, to Status, reviewedBy, comments string) (*Submission, AdminReview, error) {
	sub, err := s.repo.GetSubmissionByID(ctx, id)
	if err != nil {
		return nil, AdminReview{}, err
	}
	if sub == nil {
		return nil, AdminReview{}, ErrNotFound
	}
	if !s.sm.CanTransition(string(sub.Status), string(to)) {
		return nil, AdminReview{}, ErrAlreadyReviewed
	}

	review := AdminReview{
		ReviewedBy: reviewedBy,
		ReviewedAt: time.Now().UTC(),
		Comments:   comments,
	}

	ok, err := s.repo.TransitionStatus(ctx, id, StatusPending, to, review)
	if err != nil {
		return nil, AdminReview{}, fmt.Errorf("failed to update submission status: %w", err)
	}
	if !ok {
		// Lost the race against a concurrent review of the same submission
		return nil, AdminReview{}, ErrAlreadyReviewed
	}

	sub.Status = to
	sub.AdminReview = NullAdminReview{AdminReview: review, Valid: true}
	return sub, review, nil
}
