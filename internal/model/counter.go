// internal/model/counter.go
package model

// TaskIDCounter は親タスクごとの子ID採番カウンタ。
// 「既存の子を数える」方式は同時作成や削除で壊れるため、
// 専用行へのアトミックなインクリメントで採番します。
type TaskIDCounter struct {
	ParentID   string `gorm:"primaryKey" json:"parent_id"`
	NextNumber int    `gorm:"not null;default:0" json:"next_number"`
}

func (TaskIDCounter) TableName() string {
	return "task_id_counters"
}
