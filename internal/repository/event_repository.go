//go:generate mockery --name EventRepository --output ./mocks --outpkg mocks --case=underscore
package repository

import (
	"context"
	"fmt"

	"go_4_curriculum_keep/internal/middleware"
	"go_4_curriculum_keep/internal/model"

	"gorm.io/gorm"
)

// EventRepository インターフェース (追記専用)
type EventRepository interface {
	Append(ctx context.Context, tx *gorm.DB, event *model.Event) error
	FindByEntity(ctx context.Context, db *gorm.DB, entityType, entityID string) ([]*model.Event, error)
}

type gormEventRepository struct{}

func NewGormEventRepository() EventRepository {
	return &gormEventRepository{}
}

func (r *gormEventRepository) Append(ctx context.Context, tx *gorm.DB, event *model.Event) error {
	logger := middleware.GetLogger(ctx)
	result := tx.WithContext(ctx).Create(event)
	if result.Error != nil {
		logger.Error("Error appending event in DB",
			"error", result.Error,
			"entity_type", event.EntityType,
			"entity_id", event.EntityID,
			"action", event.Action,
		)
		return fmt.Errorf("gormEventRepository.Append: %w", result.Error)
	}
	return nil
}

func (r *gormEventRepository) FindByEntity(ctx context.Context, db *gorm.DB, entityType, entityID string) ([]*model.Event, error) {
	logger := middleware.GetLogger(ctx)
	var events []*model.Event
	result := db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("event_id ASC").
		Find(&events)
	if result.Error != nil {
		logger.Error("Error finding events by entity in DB",
			"error", result.Error,
			"entity_type", entityType,
			"entity_id", entityID,
		)
		return nil, fmt.Errorf("gormEventRepository.FindByEntity: %w", result.Error)
	}
	return events, nil
}
