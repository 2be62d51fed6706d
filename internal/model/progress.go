// internal/model/progress.go
package model

import (
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	StatusOpen       TaskStatus = "open"
	StatusInProgress TaskStatus = "in_progress"
	StatusBlocked    TaskStatus = "blocked"
	StatusClosed     TaskStatus = "closed"
)

// LearnerTaskProgress は (task, learner) ごとの進捗レコード (インスタンス層)。
// 行が存在しないことは status=open と等価 (遅延生成)。
// 生成は初回アクセス時のみ、更新はステートマシン経由のみ。
type LearnerTaskProgress struct {
	ProgressID  uuid.UUID  `gorm:"type:uuid;primaryKey" json:"progress_id"`
	TaskID      string     `gorm:"not null;index:idx_task_learner,unique" json:"task_id"`
	LearnerID   uuid.UUID  `gorm:"type:uuid;not null;index:idx_task_learner,unique" json:"learner_id"`
	Status      TaskStatus `gorm:"type:varchar(20);not null;default:open" json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CloseReason string     `json:"close_reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// 関連 (Preload用)
	Task *Task `gorm:"foreignKey:TaskID;references:ID" json:"-"`
}

func (LearnerTaskProgress) TableName() string {
	return "learner_task_progress"
}

// reopen (go_back) リクエストDTO。理由は監査のため必須。
type ReopenTaskRequest struct {
	Reason string `json:"reason" validate:"required,min=1,max=500"`
}

// close リクエストDTO
type CloseTaskRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// TransitionResponse は状態遷移の結果
type TransitionResponse struct {
	TaskID    string     `json:"task_id"`
	OldStatus TaskStatus `json:"old_status"`
	NewStatus TaskStatus `json:"new_status"`
}

// ProjectProgressResponse は学習者×プロジェクトの集計結果
type ProjectProgressResponse struct {
	ProjectID     string               `json:"project_id"`
	TotalTasks    int                  `json:"total_tasks"`
	StatusCounts  map[TaskStatus]int   `json:"status_counts"`
	PercentClosed float64              `json:"percent_closed"`
	Objectives    []BloomLevelProgress `json:"objectives"`
}

// BloomLevelProgress はBloomレベルごとの学習目標達成状況。
// achieved = その目標を持つタスクに合格Validationが存在する (導出値、保存しない)。
type BloomLevelProgress struct {
	BloomLevel BloomLevel `json:"bloom_level"`
	Total      int        `json:"total"`
	Achieved   int        `json:"achieved"`
}
