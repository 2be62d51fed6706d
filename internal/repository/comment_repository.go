//go:generate mockery --name CommentRepository --output ./mocks --outpkg mocks --case=underscore
package repository

import (
	"context"
	"fmt"

	"go_4_curriculum_keep/internal/middleware"
	"go_4_curriculum_keep/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CommentRepository インターフェース
type CommentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, comment *model.Comment) error
	FindVisible(ctx context.Context, db *gorm.DB, taskID string, learnerID uuid.UUID) ([]*model.Comment, error)
	DeletePrivateByLearner(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) error
}

type gormCommentRepository struct{}

func NewGormCommentRepository() CommentRepository {
	return &gormCommentRepository{}
}

func (r *gormCommentRepository) Create(ctx context.Context, tx *gorm.DB, comment *model.Comment) error {
	logger := middleware.GetLogger(ctx)
	result := tx.WithContext(ctx).Create(comment)
	if result.Error != nil {
		logger.Error("Error creating comment in DB",
			"error", result.Error,
			"task_id", comment.TaskID,
		)
		return fmt.Errorf("gormCommentRepository.Create: %w", result.Error)
	}
	return nil
}

// FindVisible は共有コメントと本人のプライベートコメントを時系列で返します。
func (r *gormCommentRepository) FindVisible(ctx context.Context, db *gorm.DB, taskID string, learnerID uuid.UUID) ([]*model.Comment, error) {
	logger := middleware.GetLogger(ctx)
	var comments []*model.Comment
	result := db.WithContext(ctx).
		Where("task_id = ? AND (learner_id IS NULL OR learner_id = ?)", taskID, learnerID).
		Order("created_at ASC").
		Find(&comments)
	if result.Error != nil {
		logger.Error("Error finding comments in DB",
			"error", result.Error,
			"task_id", taskID,
			"learner_id", learnerID.String(),
		)
		return nil, fmt.Errorf("gormCommentRepository.FindVisible: %w", result.Error)
	}
	return comments, nil
}

func (r *gormCommentRepository) DeletePrivateByLearner(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) error {
	logger := middleware.GetLogger(ctx)
	result := tx.WithContext(ctx).Where("learner_id = ?", learnerID).Delete(&model.Comment{})
	if result.Error != nil {
		logger.Error("Error deleting private comments in DB",
			"error", result.Error,
			"learner_id", learnerID.String(),
		)
		return fmt.Errorf("gormCommentRepository.DeletePrivateByLearner: %w", result.Error)
	}
	return nil
}
