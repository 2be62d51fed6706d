// internal/model/dependency.go
package model

import "time"

type DependencyType string

const (
	// DepBlocks: task_id は depends_on_id が閉じるまでブロックされる
	DepBlocks DependencyType = "blocks"
	// DepParentChild: タスクを親の下に作成した際に暗黙に張られるエッジ (task_id=子, depends_on_id=親)
	DepParentChild DependencyType = "parent_child"
	// DepRelated: 参考リンク。ブロックにも循環判定にも関与しない
	DepRelated DependencyType = "related"
)

// Dependency はテンプレート層の依存エッジ。(task_id, depends_on_id) が複合主キー。
// blocks / parent_child の誘導部分グラフは常に非巡回 (挿入前チェックで保証)。
type Dependency struct {
	TaskID         string         `gorm:"primaryKey" json:"task_id"`
	DependsOnID    string         `gorm:"primaryKey" json:"depends_on_id"`
	DependencyType DependencyType `gorm:"type:varchar(20);not null;index" json:"dependency_type"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (Dependency) TableName() string {
	return "dependencies"
}

// 依存エッジ追加リクエストDTO (blocks / related のみ。parent_child は暗黙作成専用)
type AddDependencyRequest struct {
	TaskID         string         `json:"task_id" validate:"required"`
	DependsOnID    string         `json:"depends_on_id" validate:"required"`
	DependencyType DependencyType `json:"dependency_type" validate:"required,oneof=blocks related"`
}

// 依存エッジ削除リクエストDTO
type RemoveDependencyRequest struct {
	TaskID         string         `json:"task_id" validate:"required"`
	DependsOnID    string         `json:"depends_on_id" validate:"required"`
	DependencyType DependencyType `json:"dependency_type" validate:"required,oneof=blocks related"`
}

// Cycle は detect_cycles が返す強連結成分 (サイズ2以上、または自己ループ)
type Cycle struct {
	TaskIDs []string `json:"task_ids"`
}

// CycleReport は診断用のグラフ検査結果
type CycleReport struct {
	ProjectID string  `json:"project_id"`
	Cycles    []Cycle `json:"cycles"`
	Acyclic   bool    `json:"acyclic"`
}
