package service

import (
	"context"
	"log"
	"time"

	"go_4_curriculum_keep/internal/model"
	"go_4_curriculum_keep/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CommentService interface {
	PostComment(ctx context.Context, taskID string, learnerID uuid.UUID, req *model.PostCommentRequest) (*model.CommentResponse, error)
	ListComments(ctx context.Context, taskID string, learnerID uuid.UUID) ([]*model.CommentResponse, error)
}

type commentService struct {
	db          *gorm.DB
	taskRepo    repository.TaskRepository
	commentRepo repository.CommentRepository
}

func NewCommentService(db *gorm.DB, taskRepo repository.TaskRepository, commentRepo repository.CommentRepository) CommentService {
	return &commentService{
		db:          db,
		taskRepo:    taskRepo,
		commentRepo: commentRepo,
	}
}

// PostComment はコメントを投稿します。
// visibility=private のときだけ learner_id を埋めて投稿者専用にします。
func (s *commentService) PostComment(ctx context.Context, taskID string, learnerID uuid.UUID, req *model.PostCommentRequest) (*model.CommentResponse, error) {
	if _, err := s.taskRepo.FindByID(ctx, s.db, taskID); err != nil {
		return nil, err
	}

	author := req.Author
	if author == "" {
		author = learnerID.String()
	}
	comment := &model.Comment{
		CommentID: uuid.New(),
		TaskID:    taskID,
		Author:    author,
		Text:      req.Text,
		CreatedAt: time.Now(),
	}
	if req.Visibility == model.CommentVisibilityPrivate {
		id := learnerID
		comment.LearnerID = &id
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.commentRepo.Create(ctx, tx, comment)
	})
	if err != nil {
		log.Printf("Transaction failed for PostComment: %v", err)
		return nil, model.ErrInternalServer
	}

	return toCommentResponse(comment), nil
}

// ListComments は共有コメントと自分のプライベートコメントを返します。
// 他学習者のプライベートコメントは決して含まれません。
func (s *commentService) ListComments(ctx context.Context, taskID string, learnerID uuid.UUID) ([]*model.CommentResponse, error) {
	if _, err := s.taskRepo.FindByID(ctx, s.db, taskID); err != nil {
		return nil, err
	}
	comments, err := s.commentRepo.FindVisible(ctx, s.db, taskID, learnerID)
	if err != nil {
		log.Printf("Error listing comments: %v", err)
		return nil, model.ErrInternalServer
	}
	responses := make([]*model.CommentResponse, 0, len(comments))
	for _, c := range comments {
		responses = append(responses, toCommentResponse(c))
	}
	return responses, nil
}

func toCommentResponse(c *model.Comment) *model.CommentResponse {
	return &model.CommentResponse{
		CommentID:  c.CommentID,
		TaskID:     c.TaskID,
		Author:     c.Author,
		Text:       c.Text,
		Visibility: c.Visibility(),
		CreatedAt:  c.CreatedAt,
	}
}
