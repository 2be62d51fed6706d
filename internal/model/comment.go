// internal/model/comment.go
package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	CommentVisibilityShared  = "shared"
	CommentVisibilityPrivate = "private"
)

// Comment はタスクへのコメント。learner_id が NULL なら全学習者に見える共有コメント、
// 値があればその学習者だけの私的コメント。
type Comment struct {
	CommentID uuid.UUID  `gorm:"type:uuid;primaryKey" json:"comment_id"`
	TaskID    string     `gorm:"not null;index" json:"task_id"`
	Author    string     `gorm:"not null" json:"author"`
	Text      string     `gorm:"type:text;not null" json:"text"`
	LearnerID *uuid.UUID `gorm:"type:uuid;index" json:"-"`
	CreatedAt time.Time  `json:"created_at"`
}

func (Comment) TableName() string {
	return "comments"
}

// Visibility は nullable な learner_id をAPI境界でタグ付き値に変換します。
// 生のカラムを返すと他学習者の私的コメントを誤って晒しやすい。
func (c *Comment) Visibility() string {
	if c.LearnerID == nil {
		return CommentVisibilityShared
	}
	return CommentVisibilityPrivate
}

// コメント投稿リクエストDTO
type PostCommentRequest struct {
	Text       string `json:"text" validate:"required,min=1,max=4000"`
	Author     string `json:"author,omitempty" validate:"omitempty,max=100"`
	Visibility string `json:"visibility,omitempty" validate:"omitempty,oneof=shared private"`
}

// CommentResponse はコメントのレスポンスDTO
type CommentResponse struct {
	CommentID  uuid.UUID `json:"comment_id"`
	TaskID     string    `json:"task_id"`
	Author     string    `json:"author"`
	Text       string    `json:"text"`
	Visibility string    `json:"visibility"`
	CreatedAt  time.Time `json:"created_at"`
}
