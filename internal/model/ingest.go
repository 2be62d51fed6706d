// internal/model/ingest.go
package model

// ProjectTreeDocument は管理側の取り込みサーフェスが受け取る宣言的な
// カリキュラムツリー (project → epics → tasks → subtasks)。
// 依存関係はタイトルで参照し、取り込み時に生成済みIDへ解決します。
type ProjectTreeDocument struct {
	Project ProjectNode `yaml:"project" json:"project" validate:"required"`
}

type ProjectNode struct {
	Tag         string     `yaml:"tag" json:"tag" validate:"omitempty,min=1,max=16"`
	Title       string     `yaml:"title" json:"title" validate:"required,min=1,max=200"`
	Description string     `yaml:"description" json:"description"`
	Content     string     `yaml:"content" json:"content"`
	Epics       []TreeNode `yaml:"epics" json:"epics" validate:"omitempty,dive"`
}

// TreeNode はツリー内の epic/task/subtask ノード。タイプは深さで決まる
// (1段目=epic, 2段目=task, 3段目以降=subtask)。
type TreeNode struct {
	Title              string           `yaml:"title" json:"title" validate:"required,min=1,max=200"`
	Description        string           `yaml:"description" json:"description"`
	Notes              string           `yaml:"notes" json:"notes"`
	Content            string           `yaml:"content" json:"content"`
	Priority           *int             `yaml:"priority" json:"priority" validate:"omitempty,min=0,max=4"`
	AcceptanceCriteria []string         `yaml:"acceptance_criteria" json:"acceptance_criteria"`
	Objectives         []ObjectiveInput `yaml:"objectives" json:"objectives" validate:"omitempty,dive"`
	DependsOn          []string         `yaml:"depends_on" json:"depends_on"` // blocksエッジ、タイトル参照
	RelatedTo          []string         `yaml:"related_to" json:"related_to"` // relatedエッジ、タイトル参照
	Children           []TreeNode       `yaml:"children" json:"children" validate:"omitempty,dive"`
}

// IngestResult は取り込み結果
type IngestResult struct {
	ProjectID       string            `json:"project_id"`
	TaskCount       int               `json:"task_count"`
	DependencyCount int               `json:"dependency_count"`
	TaskIDsByTitle  map[string]string `json:"task_ids_by_title"`
}
