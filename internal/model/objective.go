// internal/model/objective.go
package model

// BloomLevel は学習目標の認知レベル (Bloom taxonomy)
type BloomLevel string

const (
	BloomRemember   BloomLevel = "remember"
	BloomUnderstand BloomLevel = "understand"
	BloomApply      BloomLevel = "apply"
	BloomAnalyze    BloomLevel = "analyze"
	BloomEvaluate   BloomLevel = "evaluate"
	BloomCreate     BloomLevel = "create"
)

// BloomLevels は集計出力用の表示順
var BloomLevels = []BloomLevel{
	BloomRemember, BloomUnderstand, BloomApply, BloomAnalyze, BloomEvaluate, BloomCreate,
}

// LearningObjective はタスクに付随する学習目標 (テンプレート層)
type LearningObjective struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	TaskID     string     `gorm:"not null;index" json:"task_id"`
	BloomLevel BloomLevel `gorm:"type:varchar(20);not null" json:"bloom_level"`
	Text       string     `gorm:"not null" json:"text"`
}

func (LearningObjective) TableName() string {
	return "learning_objectives"
}

// ObjectiveInput は作成/更新リクエストでの学習目標DTO
type ObjectiveInput struct {
	BloomLevel BloomLevel `json:"bloom_level" yaml:"bloom_level" validate:"required,oneof=remember understand apply analyze evaluate create"`
	Text       string     `json:"text" yaml:"text" validate:"required,min=1"`
}

// ObjectiveResponse はレスポンスでの学習目標 (達成状況付き)
type ObjectiveResponse struct {
	BloomLevel BloomLevel `json:"bloom_level"`
	Text       string     `json:"text"`
	Achieved   bool       `json:"achieved"`
}
