//go:generate mockery --name DependencyRepository --output ./mocks --outpkg mocks --case=underscore
package repository

import (
	"context"
	"errors"
	"fmt"

	"go_4_curriculum_keep/internal/middleware"
	"go_4_curriculum_keep/internal/model"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// DependencyRepository インターフェース
type DependencyRepository interface {
	Create(ctx context.Context, tx *gorm.DB, dep *model.Dependency) error
	Delete(ctx context.Context, tx *gorm.DB, taskID, dependsOnID string, depType model.DependencyType) error
	Exists(ctx context.Context, db *gorm.DB, taskID, dependsOnID string, depType model.DependencyType) (bool, error)
	FindByProject(ctx context.Context, db *gorm.DB, projectID string) ([]*model.Dependency, error)
	FindOutgoing(ctx context.Context, db *gorm.DB, taskID string) ([]*model.Dependency, error)
	FindIncoming(ctx context.Context, db *gorm.DB, dependsOnID string) ([]*model.Dependency, error)
	DeleteByTask(ctx context.Context, tx *gorm.DB, taskID string) error
}

type gormDependencyRepository struct{}

func NewGormDependencyRepository() DependencyRepository {
	return &gormDependencyRepository{}
}

func (r *gormDependencyRepository) Create(ctx context.Context, tx *gorm.DB, dep *model.Dependency) error {
	logger := middleware.GetLogger(ctx)
	result := tx.WithContext(ctx).Create(dep)
	if result.Error != nil {
		var pgErr *pgconn.PgError
		if errors.As(result.Error, &pgErr) && pgErr.Code == "23505" {
			return model.ErrConflict
		}
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return model.ErrConflict
		}
		logger.Error("Error creating dependency in DB",
			"error", result.Error,
			"task_id", dep.TaskID,
			"depends_on_id", dep.DependsOnID,
		)
		return fmt.Errorf("gormDependencyRepository.Create: %w", result.Error)
	}
	return nil
}

func (r *gormDependencyRepository) Delete(ctx context.Context, tx *gorm.DB, taskID, dependsOnID string, depType model.DependencyType) error {
	logger := middleware.GetLogger(ctx)
	result := tx.WithContext(ctx).
		Where("task_id = ? AND depends_on_id = ? AND dependency_type = ?", taskID, dependsOnID, depType).
		Delete(&model.Dependency{})
	if result.Error != nil {
		logger.Error("Error deleting dependency in DB",
			"error", result.Error,
			"task_id", taskID,
			"depends_on_id", dependsOnID,
		)
		return fmt.Errorf("gormDependencyRepository.Delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (r *gormDependencyRepository) Exists(ctx context.Context, db *gorm.DB, taskID, dependsOnID string, depType model.DependencyType) (bool, error) {
	logger := middleware.GetLogger(ctx)
	var count int64
	result := db.WithContext(ctx).Model(&model.Dependency{}).
		Where("task_id = ? AND depends_on_id = ? AND dependency_type = ?", taskID, dependsOnID, depType).
		Count(&count)
	if result.Error != nil {
		logger.Error("Error checking dependency existence in DB",
			"error", result.Error,
			"task_id", taskID,
			"depends_on_id", dependsOnID,
		)
		return false, fmt.Errorf("gormDependencyRepository.Exists: %w", result.Error)
	}
	return count > 0, nil
}

// FindByProject はプロジェクト内の全エッジを返します (両端ともプロジェクト内のタスク)。
func (r *gormDependencyRepository) FindByProject(ctx context.Context, db *gorm.DB, projectID string) ([]*model.Dependency, error) {
	logger := middleware.GetLogger(ctx)
	var deps []*model.Dependency
	result := db.WithContext(ctx).
		Where("task_id IN (?)", db.Session(&gorm.Session{NewDB: true}).Model(&model.Task{}).Select("id").Where("project_id = ?", projectID)).
		Find(&deps)
	if result.Error != nil {
		logger.Error("Error finding dependencies by project in DB",
			"error", result.Error,
			"project_id", projectID,
		)
		return nil, fmt.Errorf("gormDependencyRepository.FindByProject: %w", result.Error)
	}
	return deps, nil
}

func (r *gormDependencyRepository) FindOutgoing(ctx context.Context, db *gorm.DB, taskID string) ([]*model.Dependency, error) {
	logger := middleware.GetLogger(ctx)
	var deps []*model.Dependency
	result := db.WithContext(ctx).Where("task_id = ?", taskID).Find(&deps)
	if result.Error != nil {
		logger.Error("Error finding outgoing dependencies in DB",
			"error", result.Error,
			"task_id", taskID,
		)
		return nil, fmt.Errorf("gormDependencyRepository.FindOutgoing: %w", result.Error)
	}
	return deps, nil
}

func (r *gormDependencyRepository) FindIncoming(ctx context.Context, db *gorm.DB, dependsOnID string) ([]*model.Dependency, error) {
	logger := middleware.GetLogger(ctx)
	var deps []*model.Dependency
	result := db.WithContext(ctx).Where("depends_on_id = ?", dependsOnID).Find(&deps)
	if result.Error != nil {
		logger.Error("Error finding incoming dependencies in DB",
			"error", result.Error,
			"depends_on_id", dependsOnID,
		)
		return nil, fmt.Errorf("gormDependencyRepository.FindIncoming: %w", result.Error)
	}
	return deps, nil
}

func (r *gormDependencyRepository) DeleteByTask(ctx context.Context, tx *gorm.DB, taskID string) error {
	logger := middleware.GetLogger(ctx)
	result := tx.WithContext(ctx).
		Where("task_id = ? OR depends_on_id = ?", taskID, taskID).
		Delete(&model.Dependency{})
	if result.Error != nil {
		logger.Error("Error deleting dependencies by task in DB",
			"error", result.Error,
			"task_id", taskID,
		)
		return fmt.Errorf("gormDependencyRepository.DeleteByTask: %w", result.Error)
	}
	return nil
}
