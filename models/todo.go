package models

import "time"

// Todo is a personal task. CompletedAt is set when Done becomes true and
// cleared when it becomes false.
type Todo struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	OwnerID     uint       `gorm:"index;not null" json:"owner_id"`
	Title       string     `gorm:"size:120;not null" json:"title"`
	Done        bool       `gorm:"not null;default:false" json:"done"`
	DueAt       *time.Time `json:"due_at"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
