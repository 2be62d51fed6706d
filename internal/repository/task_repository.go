//go:generate mockery --name TaskRepository --output ./mocks --outpkg mocks --case=underscore
package repository

import (
	"context"
	"errors"
	"fmt"

	"go_4_curriculum_keep/internal/middleware"
	"go_4_curriculum_keep/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TaskRepository インターフェース
type TaskRepository interface {
	Create(ctx context.Context, tx *gorm.DB, task *model.Task) error
	FindByID(ctx context.Context, db *gorm.DB, taskID string) (*model.Task, error)
	FindByProject(ctx context.Context, db *gorm.DB, projectID string) ([]*model.Task, error)
	FindChildren(ctx context.Context, db *gorm.DB, parentID string) ([]*model.Task, error)
	Update(ctx context.Context, tx *gorm.DB, taskID string, updates map[string]interface{}) error
	UpdateParent(ctx context.Context, tx *gorm.DB, taskID string, newParentID *string) error
	ReplaceObjectives(ctx context.Context, tx *gorm.DB, taskID string, objectives []model.LearningObjective) error
	LockProject(ctx context.Context, tx *gorm.DB, projectID string) error
	CountByProject(ctx context.Context, db *gorm.DB, projectID string) (int64, error)
	Delete(ctx context.Context, tx *gorm.DB, taskID string) error
}

type gormTaskRepository struct{}

func NewGormTaskRepository() TaskRepository {
	return &gormTaskRepository{}
}

func (r *gormTaskRepository) Create(ctx context.Context, tx *gorm.DB, task *model.Task) error {
	logger := middleware.GetLogger(ctx)
	result := tx.WithContext(ctx).Create(task)
	if result.Error != nil {
		logger.Error("Error creating task in DB",
			"error", result.Error,
			"task_id", task.ID,
			"title", task.Title,
		)
		return fmt.Errorf("gormTaskRepository.Create: %w", result.Error)
	}
	return nil
}

func (r *gormTaskRepository) FindByID(ctx context.Context, db *gorm.DB, taskID string) (*model.Task, error) {
	logger := middleware.GetLogger(ctx)
	var task model.Task
	result := db.WithContext(ctx).Preload("Objectives").Where("id = ?", taskID).First(&task)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		logger.Error("Error finding task by ID in DB",
			"error", result.Error,
			"task_id", taskID,
		)
		return nil, fmt.Errorf("gormTaskRepository.FindByID: %w", result.Error)
	}
	return &task, nil
}

func (r *gormTaskRepository) FindByProject(ctx context.Context, db *gorm.DB, projectID string) ([]*model.Task, error) {
	logger := middleware.GetLogger(ctx)
	var tasks []*model.Task
	result := db.WithContext(ctx).Preload("Objectives").
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&tasks)
	if result.Error != nil {
		logger.Error("Error finding tasks by project in DB",
			"error", result.Error,
			"project_id", projectID,
		)
		return nil, fmt.Errorf("gormTaskRepository.FindByProject: %w", result.Error)
	}
	return tasks, nil
}

func (r *gormTaskRepository) FindChildren(ctx context.Context, db *gorm.DB, parentID string) ([]*model.Task, error) {
	logger := middleware.GetLogger(ctx)
	var tasks []*model.Task
	result := db.WithContext(ctx).Where("parent_id = ?", parentID).Order("id ASC").Find(&tasks)
	if result.Error != nil {
		logger.Error("Error finding child tasks in DB",
			"error", result.Error,
			"parent_id", parentID,
		)
		return nil, fmt.Errorf("gormTaskRepository.FindChildren: %w", result.Error)
	}
	return tasks, nil
}

func (r *gormTaskRepository) Update(ctx context.Context, tx *gorm.DB, taskID string, updates map[string]interface{}) error {
	logger := middleware.GetLogger(ctx)
	if len(updates) == 0 {
		return nil
	}
	result := tx.WithContext(ctx).Model(&model.Task{}).Where("id = ?", taskID).Updates(updates)
	if result.Error != nil {
		logger.Error("Error updating task in DB",
			"error", result.Error,
			"task_id", taskID,
		)
		return fmt.Errorf("gormTaskRepository.Update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (r *gormTaskRepository) UpdateParent(ctx context.Context, tx *gorm.DB, taskID string, newParentID *string) error {
	logger := middleware.GetLogger(ctx)
	result := tx.WithContext(ctx).Model(&model.Task{}).Where("id = ?", taskID).
		Update("parent_id", newParentID)
	if result.Error != nil {
		logger.Error("Error updating task parent in DB",
			"error", result.Error,
			"task_id", taskID,
		)
		return fmt.Errorf("gormTaskRepository.UpdateParent: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

// ReplaceObjectives はタスクの学習目標を入れ替えます。
func (r *gormTaskRepository) ReplaceObjectives(ctx context.Context, tx *gorm.DB, taskID string, objectives []model.LearningObjective) error {
	logger := middleware.GetLogger(ctx)
	if err := tx.WithContext(ctx).Where("task_id = ?", taskID).Delete(&model.LearningObjective{}).Error; err != nil {
		logger.Error("Error deleting objectives in DB", "error", err, "task_id", taskID)
		return fmt.Errorf("gormTaskRepository.ReplaceObjectives: %w", err)
	}
	if len(objectives) == 0 {
		return nil
	}
	for i := range objectives {
		objectives[i].TaskID = taskID
		objectives[i].ID = 0
	}
	if err := tx.WithContext(ctx).Create(&objectives).Error; err != nil {
		logger.Error("Error creating objectives in DB", "error", err, "task_id", taskID)
		return fmt.Errorf("gormTaskRepository.ReplaceObjectives: %w", err)
	}
	return nil
}

// LockProject はプロジェクトのルート行を FOR UPDATE でロックします。
// グラフ構造を変える操作の直列化に利用します (SQLiteでは行ロック句は無視される)。
func (r *gormTaskRepository) LockProject(ctx context.Context, tx *gorm.DB, projectID string) error {
	logger := middleware.GetLogger(ctx)
	var root model.Task
	result := tx.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", projectID).First(&root)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return model.ErrNotFound
		}
		logger.Error("Error locking project root in DB",
			"error", result.Error,
			"project_id", projectID,
		)
		return fmt.Errorf("gormTaskRepository.LockProject: %w", result.Error)
	}
	return nil
}

func (r *gormTaskRepository) CountByProject(ctx context.Context, db *gorm.DB, projectID string) (int64, error) {
	logger := middleware.GetLogger(ctx)
	var count int64
	result := db.WithContext(ctx).Model(&model.Task{}).Where("project_id = ?", projectID).Count(&count)
	if result.Error != nil {
		logger.Error("Error counting tasks by project in DB",
			"error", result.Error,
			"project_id", projectID,
		)
		return 0, fmt.Errorf("gormTaskRepository.CountByProject: %w", result.Error)
	}
	return count, nil
}

func (r *gormTaskRepository) Delete(ctx context.Context, tx *gorm.DB, taskID string) error {
	logger := middleware.GetLogger(ctx)
	result := tx.WithContext(ctx).Where("id = ?", taskID).Delete(&model.Task{})
	if result.Error != nil {
		logger.Error("Error deleting task in DB",
			"error", result.Error,
			"task_id", taskID,
		)
		return fmt.Errorf("gormTaskRepository.Delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}
