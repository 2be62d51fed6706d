//go:generate mockery --name SubmissionRepository --output ./mocks --outpkg mocks --case=underscore
package repository

import (
	"context"
	"errors"
	"fmt"

	"go_4_curriculum_keep/internal/middleware"
	"go_4_curriculum_keep/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// SubmissionRepository インターフェース
type SubmissionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, submission *model.Submission) error
	FindByID(ctx context.Context, db *gorm.DB, submissionID uuid.UUID) (*model.Submission, error)
	FindByTaskAndLearner(ctx context.Context, db *gorm.DB, taskID string, learnerID uuid.UUID) ([]*model.Submission, error)
	MaxAttemptNumber(ctx context.Context, db *gorm.DB, taskID string, learnerID uuid.UUID) (int, error)
	CountByTaskAndLearner(ctx context.Context, db *gorm.DB, taskID string, learnerID uuid.UUID) (int64, error)
	DeleteByLearner(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) error
}

type gormSubmissionRepository struct{}

func NewGormSubmissionRepository() SubmissionRepository {
	return &gormSubmissionRepository{}
}

func (r *gormSubmissionRepository) Create(ctx context.Context, tx *gorm.DB, submission *model.Submission) error {
	logger := middleware.GetLogger(ctx)
	result := tx.WithContext(ctx).Create(submission)
	if result.Error != nil {
		var pgErr *pgconn.PgError
		if errors.As(result.Error, &pgErr) && pgErr.Code == "23505" {
			return model.ErrConflict
		}
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return model.ErrConflict
		}
		logger.Error("Error creating submission in DB",
			"error", result.Error,
			"task_id", submission.TaskID,
			"learner_id", submission.LearnerID.String(),
		)
		return fmt.Errorf("gormSubmissionRepository.Create: %w", result.Error)
	}
	return nil
}

func (r *gormSubmissionRepository) FindByID(ctx context.Context, db *gorm.DB, submissionID uuid.UUID) (*model.Submission, error) {
	logger := middleware.GetLogger(ctx)
	var submission model.Submission
	result := db.WithContext(ctx).Preload("Validations").
		Where("submission_id = ?", submissionID).First(&submission)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		logger.Error("Error finding submission by ID in DB",
			"error", result.Error,
			"submission_id", submissionID.String(),
		)
		return nil, fmt.Errorf("gormSubmissionRepository.FindByID: %w", result.Error)
	}
	return &submission, nil
}

func (r *gormSubmissionRepository) FindByTaskAndLearner(ctx context.Context, db *gorm.DB, taskID string, learnerID uuid.UUID) ([]*model.Submission, error) {
	logger := middleware.GetLogger(ctx)
	var submissions []*model.Submission
	result := db.WithContext(ctx).Preload("Validations").
		Where("task_id = ? AND learner_id = ?", taskID, learnerID).
		Order("attempt_number ASC").
		Find(&submissions)
	if result.Error != nil {
		logger.Error("Error finding submissions in DB",
			"error", result.Error,
			"task_id", taskID,
			"learner_id", learnerID.String(),
		)
		return nil, fmt.Errorf("gormSubmissionRepository.FindByTaskAndLearner: %w", result.Error)
	}
	return submissions, nil
}

// MaxAttemptNumber は過去の最大試行番号を返します。提出が無い場合は 0 です。
func (r *gormSubmissionRepository) MaxAttemptNumber(ctx context.Context, db *gorm.DB, taskID string, learnerID uuid.UUID) (int, error) {
	logger := middleware.GetLogger(ctx)
	var max int
	result := db.WithContext(ctx).Model(&model.Submission{}).
		Where("task_id = ? AND learner_id = ?", taskID, learnerID).
		Select("COALESCE(MAX(attempt_number), 0)").
		Scan(&max)
	if result.Error != nil {
		logger.Error("Error finding max attempt number in DB",
			"error", result.Error,
			"task_id", taskID,
			"learner_id", learnerID.String(),
		)
		return 0, fmt.Errorf("gormSubmissionRepository.MaxAttemptNumber: %w", result.Error)
	}
	return max, nil
}

func (r *gormSubmissionRepository) CountByTaskAndLearner(ctx context.Context, db *gorm.DB, taskID string, learnerID uuid.UUID) (int64, error) {
	logger := middleware.GetLogger(ctx)
	var count int64
	result := db.WithContext(ctx).Model(&model.Submission{}).
		Where("task_id = ? AND learner_id = ?", taskID, learnerID).
		Count(&count)
	if result.Error != nil {
		logger.Error("Error counting submissions in DB",
			"error", result.Error,
			"task_id", taskID,
			"learner_id", learnerID.String(),
		)
		return 0, fmt.Errorf("gormSubmissionRepository.CountByTaskAndLearner: %w", result.Error)
	}
	return count, nil
}

func (r *gormSubmissionRepository) DeleteByLearner(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) error {
	logger := middleware.GetLogger(ctx)
	result := tx.WithContext(ctx).Where("learner_id = ?", learnerID).Delete(&model.Submission{})
	if result.Error != nil {
		logger.Error("Error deleting submissions by learner in DB",
			"error", result.Error,
			"learner_id", learnerID.String(),
		)
		return fmt.Errorf("gormSubmissionRepository.DeleteByLearner: %w", result.Error)
	}
	return nil
}
