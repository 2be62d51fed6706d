//go:generate mockery --name CounterRepository --output ./mocks --outpkg mocks --case=underscore
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

// CounterRepository インターフェース
type CounterRepository interface {
	NextNumber(ctx context.Context, tx *gorm.DB, parentID string) (int, error)
}

type gormCounterRepository struct{}

func NewGormCounterRepository() CounterRepository {
	return &gormCounterRepository{}
}

// NextNumber は親ID単位の連番カウンタをアトミックに払い出します。
// UPSERT でインクリメントしてから同一トランザクション内で読み戻します。
func (r *gormCounterRepository) NextNumber(ctx context.Context, tx *gorm.DB, parentID string) (int, error) {
	logger := middleware.GetLogger(ctx)

	result := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "parent_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"next_number": gorm.Expr("task_id_counters.next_number + 1")}),
	}).Create(&model.TaskIDCounter{ParentID: parentID, NextNumber: 1})
	if result.Error != nil {
		logger.Error("Error upserting task id counter in DB",
			"error", result.Error,
			"parent_id", parentID,
		)
		return 0, fmt.Errorf("gormCounterRepository.NextNumber: %w", result.Error)
	}

	var counter model.TaskIDCounter
	if err := tx.WithContext(ctx).Where("parent_id = ?", parentID).First(&counter).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, model.ErrNotFound
		}
		logger.Error("Error reading task id counter in DB",
			"error", err,
			"parent_id", parentID,
		)
		return 0, fmt.Errorf("gormCounterRepository.NextNumber: %w", err)
	}
	return counter.NextNumber, nil
}
