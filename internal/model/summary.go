// internal/model/summary.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// StatusSummary は完了タスクの振り返りテキスト (インスタンス層)。
// (task, learner) ごとに version が単調増加する追記専用の履歴。上書きはしない。
type StatusSummary struct {
	SummaryID uuid.UUID `gorm:"type:uuid;primaryKey" json:"summary_id"`
	TaskID    string    `gorm:"not null;index:idx_summary_version,unique" json:"task_id"`
	LearnerID uuid.UUID `gorm:"type:uuid;not null;index:idx_summary_version,unique" json:"learner_id"`
	Summary   string    `gorm:"type:text;not null" json:"summary"`
	Version   int       `gorm:"not null;index:idx_summary_version,unique" json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

func (StatusSummary) TableName() string {
	return "status_summaries"
}
