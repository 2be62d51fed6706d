// internal/model/task.go
package model

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TaskType string

const (
	TaskTypeProject TaskType = "project"
	TaskTypeEpic    TaskType = "epic"
	TaskTypeTask    TaskType = "task"
	TaskTypeSubtask TaskType = "subtask"
)

// Priority は 0〜4 (小さいほど緊急)
const (
	PriorityMin     = 0
	PriorityMax     = 4
	PriorityDefault = 2
)

// Task はカリキュラムのテンプレート層のタスクを表します。
// 全学習者で共有され、完了状態は一切持ちません (進捗は LearnerTaskProgress 側)。
// ID は階層ID ("proj-a1b2", "proj-a1b2.1", "proj-a1b2.1.3" ...)。
type Task struct {
	ID                 string         `gorm:"primaryKey" json:"id"`
	ParentID           *string        `gorm:"index" json:"parent_id,omitempty"`
	ProjectID          string         `gorm:"not null;index" json:"project_id"` // ルート(project)タスクのID
	Title              string         `gorm:"not null" json:"title"`
	Description        string         `json:"description"`
	Notes              string         `json:"notes"`
	TaskType           TaskType       `gorm:"type:varchar(20);not null;index" json:"task_type"`
	Priority           int            `gorm:"not null;default:2" json:"priority"`
	Content            string         `json:"content"`
	AcceptanceCriteria datatypes.JSON `json:"acceptance_criteria"` // []string をJSONで保持
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`

	// 関連 (Preload用)
	Objectives []LearningObjective `gorm:"foreignKey:TaskID;references:ID" json:"-"`
}

func (Task) TableName() string {
	return "tasks"
}

// Depth は階層IDの区切り数から階層の深さを返します (project = 0)。
func (t *Task) Depth() int {
	return strings.Count(t.ID, ".")
}

// CriteriaList は AcceptanceCriteria のJSONカラムを []string に展開します。
func (t *Task) CriteriaList() []string {
	if len(t.AcceptanceCriteria) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(t.AcceptanceCriteria, &list); err != nil {
		return nil
	}
	return list
}

// CriteriaJSON は []string を AcceptanceCriteria カラム値に変換します。
func CriteriaJSON(criteria []string) datatypes.JSON {
	if len(criteria) == 0 {
		return nil
	}
	b, err := json.Marshal(criteria)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

// ValidTaskType は task_type の入力値チェック
func ValidTaskType(t TaskType) bool {
	switch t {
	case TaskTypeProject, TaskTypeEpic, TaskTypeTask, TaskTypeSubtask:
		return true
	}
	return false
}

// タスク作成リクエストDTO (管理サーフェス用)
type CreateTaskRequest struct {
	ParentID           *string          `json:"parent_id,omitempty"`
	ProjectTag         string           `json:"project_tag,omitempty" validate:"omitempty,min=1,max=16"` // ルート作成時のIDプレフィックス
	Title              string           `json:"title" validate:"required,min=1,max=200"`
	Description        string           `json:"description,omitempty"`
	Notes              string           `json:"notes,omitempty"`
	TaskType           TaskType         `json:"task_type" validate:"required,oneof=project epic task subtask"`
	Priority           *int             `json:"priority,omitempty" validate:"omitempty,min=0,max=4"`
	Content            string           `json:"content,omitempty"`
	AcceptanceCriteria []string         `json:"acceptance_criteria,omitempty"`
	Objectives         []ObjectiveInput `json:"objectives,omitempty" validate:"omitempty,dive"`
}

// タスク更新（部分）リクエストDTO。ステータスは絶対に触らない (インスタンス層の管轄)。
type PatchTaskRequest struct {
	Title              *string           `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description        *string           `json:"description,omitempty"`
	Notes              *string           `json:"notes,omitempty"`
	Priority           *int              `json:"priority,omitempty" validate:"omitempty,min=0,max=4"`
	Content            *string           `json:"content,omitempty"`
	AcceptanceCriteria *[]string         `json:"acceptance_criteria,omitempty"`
	Objectives         *[]ObjectiveInput `json:"objectives,omitempty" validate:"omitempty,dive"`
}

// タスク移動リクエストDTO
type MoveTaskRequest struct {
	NewParentID string `json:"new_parent_id" validate:"required"`
}

// TaskSummary は get_ready などの一覧で返す要約
type TaskSummary struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	TaskType TaskType   `json:"task_type"`
	Priority int        `json:"priority"`
	Status   TaskStatus `json:"status"`
	Depth    int        `json:"depth"`
}

// TaskDetail は show_task のレスポンス (テンプレート + 学習者の状態)
type TaskDetail struct {
	Task               *Task               `json:"task"`
	AcceptanceCriteria []string            `json:"acceptance_criteria"`
	Objectives         []ObjectiveResponse `json:"objectives"`
	Status             TaskStatus          `json:"status"`
	StartedAt          *time.Time          `json:"started_at,omitempty"`
	CompletedAt        *time.Time          `json:"completed_at,omitempty"`
	Ancestors          []TaskSummary       `json:"ancestors"`
	BlockedBy          []TaskSummary       `json:"blocked_by"`        // 直接の未完了ブロッカー
	Related            []string            `json:"related,omitempty"` // relatedエッジの相手タスクID
	AttemptCount       int64               `json:"attempt_count"`
}
