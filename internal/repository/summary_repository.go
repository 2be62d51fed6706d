//go:generate mockery --name SummaryRepository --output ./mocks --outpkg mocks --case=underscore
package repository

import (
	"context"
	"fmt"

	"go_4_curriculum_keep/internal/middleware"
	"go_4_curriculum_keep/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SummaryRepository インターフェース
type SummaryRepository interface {
	Create(ctx context.Context, tx *gorm.DB, summary *model.StatusSummary) error
	MaxVersion(ctx context.Context, db *gorm.DB, taskID string, learnerID uuid.UUID) (int, error)
	FindByTaskAndLearner(ctx context.Context, db *gorm.DB, taskID string, learnerID uuid.UUID) ([]*model.StatusSummary, error)
	FindLatestByTasks(ctx context.Context, db *gorm.DB, taskIDs []string, learnerID uuid.UUID) (map[string]*model.StatusSummary, error)
	DeleteByLearner(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) error
}

type gormSummaryRepository struct{}

func NewGormSummaryRepository() SummaryRepository {
	return &gormSummaryRepository{}
}

func (r *gormSummaryRepository) Create(ctx context.Context, tx *gorm.DB, summary *model.StatusSummary) error {
	logger := middleware.GetLogger(ctx)
	result := tx.WithContext(ctx).Create(summary)
	if result.Error != nil {
		logger.Error("Error creating summary in DB",
			"error", result.Error,
			"task_id", summary.TaskID,
			"learner_id", summary.LearnerID.String(),
		)
		return fmt.Errorf("gormSummaryRepository.Create: %w", result.Error)
	}
	return nil
}

func (r *gormSummaryRepository) MaxVersion(ctx context.Context, db *gorm.DB, taskID string, learnerID uuid.UUID) (int, error) {
	logger := middleware.GetLogger(ctx)
	var max int
	result := db.WithContext(ctx).Model(&model.StatusSummary{}).
		Where("task_id = ? AND learner_id = ?", taskID, learnerID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&max)
	if result.Error != nil {
		logger.Error("Error finding max summary version in DB",
			"error", result.Error,
			"task_id", taskID,
			"learner_id", learnerID.String(),
		)
		return 0, fmt.Errorf("gormSummaryRepository.MaxVersion: %w", result.Error)
	}
	return max, nil
}

func (r *gormSummaryRepository) FindByTaskAndLearner(ctx context.Context, db *gorm.DB, taskID string, learnerID uuid.UUID) ([]*model.StatusSummary, error) {
	logger := middleware.GetLogger(ctx)
	var summaries []*model.StatusSummary
	result := db.WithContext(ctx).
		Where("task_id = ? AND learner_id = ?", taskID, learnerID).
		Order("version ASC").
		Find(&summaries)
	if result.Error != nil {
		logger.Error("Error finding summaries in DB",
			"error", result.Error,
			"task_id", taskID,
			"learner_id", learnerID.String(),
		)
		return nil, fmt.Errorf("gormSummaryRepository.FindByTaskAndLearner: %w", result.Error)
	}
	return summaries, nil
}

// FindLatestByTasks はタスク群それぞれの最新版サマリを task_id キーのマップで返します。
func (r *gormSummaryRepository) FindLatestByTasks(ctx context.Context, db *gorm.DB, taskIDs []string, learnerID uuid.UUID) (map[string]*model.StatusSummary, error) {
	logger := middleware.GetLogger(ctx)
	byTask := make(map[string]*model.StatusSummary, len(taskIDs))
	if len(taskIDs) == 0 {
		return byTask, nil
	}
	var rows []*model.StatusSummary
	result := db.WithContext(ctx).
		Where("task_id IN ? AND learner_id = ?", taskIDs, learnerID).
		Order("version ASC").
		Find(&rows)
	if result.Error != nil {
		logger.Error("Error finding latest summaries in DB",
			"error", result.Error,
			"learner_id", learnerID.String(),
		)
		return nil, fmt.Errorf("gormSummaryRepository.FindLatestByTasks: %w", result.Error)
	}
	// version 昇順で上書きしていくと最後に残るのが最新版
	for _, row := range rows {
		byTask[row.TaskID] = row
	}
	return byTask, nil
}

func (r *gormSummaryRepository) DeleteByLearner(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) error {
	logger := middleware.GetLogger(ctx)
	result := tx.WithContext(ctx).Where("learner_id = ?", learnerID).Delete(&model.StatusSummary{})
	if result.Error != nil {
		logger.Error("Error deleting summaries by learner in DB",
			"error", result.Error,
			"learner_id", learnerID.String(),
		)
		return fmt.Errorf("gormSummaryRepository.DeleteByLearner: %w", result.Error)
	}
	return nil
}
