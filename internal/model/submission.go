// internal/model/submission.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// 既定の提出種別。対応する検証器が未登録の種別はこれにフォールバックする。
const SubmissionTypeText = "text"

// Submission は学習者の提出物 (インスタンス層)。作成後は不変。
// attempt_number は (task, learner) ごとに1始まりの単調増加で、
// reopen/再closeをまたいでも決して巻き戻らない (履歴は削除されない)。
type Submission struct {
	SubmissionID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"submission_id"`
	TaskID         string    `gorm:"not null;index:idx_submission_attempt,unique" json:"task_id"`
	LearnerID      uuid.UUID `gorm:"type:uuid;not null;index:idx_submission_attempt,unique" json:"learner_id"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	SubmissionType string    `gorm:"type:varchar(50);not null" json:"submission_type"`
	AttemptNumber  int       `gorm:"not null;index:idx_submission_attempt,unique" json:"attempt_number"`
	SubmittedAt    time.Time `gorm:"not null" json:"submitted_at"`

	// 関連 (Preload用)
	Validations []Validation `gorm:"foreignKey:SubmissionID;references:SubmissionID" json:"validations,omitempty"`
}

func (Submission) TableName() string {
	return "submissions"
}

// Validation は提出物の合否判定結果。提出ごとに1件作られるが、
// 手動の再検証で同じ submission を参照する2件目以降が追加されうる。
type Validation struct {
	ValidationID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"validation_id"`
	SubmissionID  uuid.UUID `gorm:"type:uuid;not null;index" json:"submission_id"`
	TaskID        string    `gorm:"not null;index" json:"task_id"`
	Passed        bool      `gorm:"not null" json:"passed"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	ValidatorType string    `gorm:"type:varchar(50);not null" json:"validator_type"`
	ValidatedAt   time.Time `gorm:"not null;index" json:"validated_at"`
}

func (Validation) TableName() string {
	return "validations"
}

// 提出リクエストDTO
type SubmitRequest struct {
	Content        string `json:"content"`
	SubmissionType string `json:"submission_type,omitempty" validate:"omitempty,min=1,max=50"`
}

// 提出レスポンスDTO。validation_count はこの提出に対する検証の累計
// (再検証のたびに増える)。
type SubmitResponse struct {
	SubmissionID    uuid.UUID `json:"submission_id"`
	AttemptNumber   int       `json:"attempt_number"`
	Passed          bool      `json:"passed"`
	Message         string    `json:"message,omitempty"`
	ValidationCount int       `json:"validation_count"`
}
