//go:generate mockery --name ProgressRepository --output ./mocks --outpkg mocks --case=underscore
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

// ProgressRepository インターフェース
type ProgressRepository interface {
	Create(ctx context.Context, tx *gorm.DB, progress *model.LearnerTaskProgress) error
	Find(ctx context.Context, db *gorm.DB, taskID string, learnerID uuid.UUID) (*model.LearnerTaskProgress, error)
	FindByTasksForLearner(ctx context.Context, db *gorm.DB, taskIDs []string, learnerID uuid.UUID) (map[string]*model.LearnerTaskProgress, error)
	Update(ctx context.Context, tx *gorm.DB, progressID uuid.UUID, updates map[string]interface{}) error
	CountByTask(ctx context.Context, db *gorm.DB, taskID string) (int64, error)
	DeleteByLearner(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) error
}

type gormProgressRepository struct{}

func NewGormProgressRepository() ProgressRepository {
	return &gormProgressRepository{}
}

func (r *gormProgressRepository) Create(ctx context.Context, tx *gorm.DB, progress *model.LearnerTaskProgress) error {
	logger := middleware.GetLogger(ctx)
	result := tx.WithContext(ctx).Create(progress)
	if result.Error != nil {
		var pgErr *pgconn.PgError
		if errors.As(result.Error, &pgErr) && pgErr.Code == "23505" {
			return model.ErrConflict
		}
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return model.ErrConflict
		}
		logger.Error("Error creating progress in DB",
			"error", result.Error,
			"task_id", progress.TaskID,
			"learner_id", progress.LearnerID.String(),
		)
		return fmt.Errorf("gormProgressRepository.Create: %w", result.Error)
	}
	return nil
}

func (r *gormProgressRepository) Find(ctx context.Context, db *gorm.DB, taskID string, learnerID uuid.UUID) (*model.LearnerTaskProgress, error) {
	logger := middleware.GetLogger(ctx)
	var progress model.LearnerTaskProgress
	result := db.WithContext(ctx).
		Where("task_id = ? AND learner_id = ?", taskID, learnerID).
		First(&progress)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		logger.Error("Error finding progress in DB",
			"error", result.Error,
			"task_id", taskID,
			"learner_id", learnerID.String(),
		)
		return nil, fmt.Errorf("gormProgressRepository.Find: %w", result.Error)
	}
	return &progress, nil
}

// FindByTasksForLearner は指定タスク群の進捗を task_id をキーにしたマップで返します。
// 行が無いタスクは open 扱いなのでマップに含まれません。
func (r *gormProgressRepository) FindByTasksForLearner(ctx context.Context, db *gorm.DB, taskIDs []string, learnerID uuid.UUID) (map[string]*model.LearnerTaskProgress, error) {
	logger := middleware.GetLogger(ctx)
	byTask := make(map[string]*model.LearnerTaskProgress, len(taskIDs))
	if len(taskIDs) == 0 {
		return byTask, nil
	}
	var rows []*model.LearnerTaskProgress
	result := db.WithContext(ctx).
		Where("task_id IN ? AND learner_id = ?", taskIDs, learnerID).
		Find(&rows)
	if result.Error != nil {
		logger.Error("Error finding progress by tasks in DB",
			"error", result.Error,
			"learner_id", learnerID.String(),
		)
		return nil, fmt.Errorf("gormProgressRepository.FindByTasksForLearner: %w", result.Error)
	}
	for _, row := range rows {
		byTask[row.TaskID] = row
	}
	return byTask, nil
}

func (r *gormProgressRepository) Update(ctx context.Context, tx *gorm.DB, progressID uuid.UUID, updates map[string]interface{}) error {
	logger := middleware.GetLogger(ctx)
	if len(updates) == 0 {
		return nil
	}
	result := tx.WithContext(ctx).Model(&model.LearnerTaskProgress{}).
		Where("progress_id = ?", progressID).
		Updates(updates)
	if result.Error != nil {
		logger.Error("Error updating progress in DB",
			"error", result.Error,
			"progress_id", progressID.String(),
		)
		return fmt.Errorf("gormProgressRepository.Update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (r *gormProgressRepository) DeleteByLearner(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) error {
	logger := middleware.GetLogger(ctx)
	result := tx.WithContext(ctx).Where("learner_id = ?", learnerID).Delete(&model.LearnerTaskProgress{})
	if result.Error != nil {
		logger.Error("Error deleting progress by learner in DB",
			"error", result.Error,
			"learner_id", learnerID.String(),
		)
		return fmt.Errorf("gormProgressRepository.DeleteByLearner: %w", result.Error)
	}
	return nil
}

func (r *gormProgressRepository) CountByTask(ctx context.Context, db *gorm.DB, taskID string) (int64, error) {
	logger := middleware.GetLogger(ctx)
	var count int64
	result := db.WithContext(ctx).Model(&model.LearnerTaskProgress{}).Where("task_id = ?", taskID).Count(&count)
	if result.Error != nil {
		logger.Error("Error counting progress rows by task in DB",
			"error", result.Error,
			"task_id", taskID,
		)
		return 0, fmt.Errorf("gormProgressRepository.CountByTask: %w", result.Error)
	}
	return count, nil
}
