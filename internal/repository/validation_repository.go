//go:generate mockery --name ValidationRepository --output ./mocks --outpkg mocks --case=underscore
package repository

import (
	"context"
	"errors"
	"fmt"

	"go_4_curriculum_keep/internal/middleware"
	"go_4_curriculum_keep/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ValidationRepository インターフェース
type ValidationRepository interface {
	Create(ctx context.Context, tx *gorm.DB, validation *model.Validation) error
	FindLatestForTaskAndLearner(ctx context.Context, db *gorm.DB, taskID string, learnerID uuid.UUID) (*model.Validation, error)
	FindBySubmission(ctx context.Context, db *gorm.DB, submissionID uuid.UUID) ([]*model.Validation, error)
	FindPassedTaskIDs(ctx context.Context, db *gorm.DB, taskIDs []string, learnerID uuid.UUID) (map[string]bool, error)
	DeleteByLearner(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) error
}

type gormValidationRepository struct{}

func NewGormValidationRepository() ValidationRepository {
	return &gormValidationRepository{}
}

func (r *gormValidationRepository) Create(ctx context.Context, tx *gorm.DB, validation *model.Validation) error {
	logger := middleware.GetLogger(ctx)
	result := tx.WithContext(ctx).Create(validation)
	if result.Error != nil {
		logger.Error("Error creating validation in DB",
			"error", result.Error,
			"submission_id", validation.SubmissionID.String(),
			"task_id", validation.TaskID,
		)
		return fmt.Errorf("gormValidationRepository.Create: %w", result.Error)
	}
	return nil
}

// FindLatestForTaskAndLearner は学習者のタスクに対する最新の検証結果を返します。
// validated_at の降順、同時刻の場合は validation_id で決定的に並べます。
func (r *gormValidationRepository) FindLatestForTaskAndLearner(ctx context.Context, db *gorm.DB, taskID string, learnerID uuid.UUID) (*model.Validation, error) {
	logger := middleware.GetLogger(ctx)
	var validation model.Validation
	result := db.WithContext(ctx).
		Joins("JOIN submissions ON submissions.submission_id = validations.submission_id").
		Where("validations.task_id = ? AND submissions.learner_id = ?", taskID, learnerID).
		Order("validations.validated_at DESC, validations.validation_id DESC").
		First(&validation)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		logger.Error("Error finding latest validation in DB",
			"error", result.Error,
			"task_id", taskID,
			"learner_id", learnerID.String(),
		)
		return nil, fmt.Errorf("gormValidationRepository.FindLatestForTaskAndLearner: %w", result.Error)
	}
	return &validation, nil
}

func (r *gormValidationRepository) FindBySubmission(ctx context.Context, db *gorm.DB, submissionID uuid.UUID) ([]*model.Validation, error) {
	logger := middleware.GetLogger(ctx)
	var validations []*model.Validation
	result := db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("validated_at ASC").
		Find(&validations)
	if result.Error != nil {
		logger.Error("Error finding validations by submission in DB",
			"error", result.Error,
			"submission_id", submissionID.String(),
		)
		return nil, fmt.Errorf("gormValidationRepository.FindBySubmission: %w", result.Error)
	}
	return validations, nil
}

// FindPassedTaskIDs は合格検証が1件以上あるタスクIDの集合を返します。
func (r *gormValidationRepository) FindPassedTaskIDs(ctx context.Context, db *gorm.DB, taskIDs []string, learnerID uuid.UUID) (map[string]bool, error) {
	logger := middleware.GetLogger(ctx)
	passed := make(map[string]bool, len(taskIDs))
	if len(taskIDs) == 0 {
		return passed, nil
	}
	var ids []string
	result := db.WithContext(ctx).Model(&model.Validation{}).
		Joins("JOIN submissions ON submissions.submission_id = validations.submission_id").
		Where("validations.task_id IN ? AND submissions.learner_id = ? AND validations.passed = ?", taskIDs, learnerID, true).
		Distinct().
		Pluck("validations.task_id", &ids)
	if result.Error != nil {
		logger.Error("Error finding passed task IDs in DB",
			"error", result.Error,
			"learner_id", learnerID.String(),
		)
		return nil, fmt.Errorf("gormValidationRepository.FindPassedTaskIDs: %w", result.Error)
	}
	for _, id := range ids {
		passed[id] = true
	}
	return passed, nil
}

func (r *gormValidationRepository) DeleteByLearner(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) error {
	logger := middleware.GetLogger(ctx)
	result := tx.WithContext(ctx).
		Where("submission_id IN (?)", tx.Session(&gorm.Session{NewDB: true}).Model(&model.Submission{}).Select("submission_id").Where("learner_id = ?", learnerID)).
		Delete(&model.Validation{})
	if result.Error != nil {
		logger.Error("Error deleting validations by learner in DB",
			"error", result.Error,
			"learner_id", learnerID.String(),
		)
		return fmt.Errorf("gormValidationRepository.DeleteByLearner: %w", result.Error)
	}
	return nil
}
