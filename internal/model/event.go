// internal/model/event.go
package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	EntityTask       = "task"
	EntityDependency = "dependency"
	EntityProgress   = "progress"
)

const (
	EventCreated           = "created"
	EventUpdated           = "updated"
	EventMoved             = "moved"
	EventDeleted           = "deleted"
	EventStatusChanged     = "status_changed"
	EventDependencyAdded   = "dependency_added"
	EventDependencyRemoved = "dependency_removed"
)

// Event は追記専用の監査レコード。ステータス・依存関係・テンプレートの
// 全変更を、変更を行ったトランザクション内で記録します。
type Event struct {
	EventID    uint           `gorm:"primaryKey" json:"event_id"`
	EntityType string         `gorm:"type:varchar(30);not null;index:idx_event_entity" json:"entity_type"`
	EntityID   string         `gorm:"not null;index:idx_event_entity" json:"entity_id"`
	Action     string         `gorm:"type:varchar(30);not null" json:"action"`
	Actor      string         `gorm:"not null" json:"actor"`
	OldValue   string         `json:"old_value,omitempty"`
	NewValue   string         `json:"new_value,omitempty"`
	Payload    datatypes.JSON `json:"payload,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (Event) TableName() string {
	return "events"
}
