package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Post kinds.
const (
	PostKindText      = "text"
	PostKindChecklist = "checklist"
)

// ChecklistItem is one entry of a checklist post.
type ChecklistItem struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// Post is an entry in its author's personal feed.
type Post struct {
	ID             uint                               `gorm:"primaryKey" json:"id"`
	AuthorID       uint                               `gorm:"index;not null" json:"author_id"`
	Kind           string                             `gorm:"size:16;not null;default:text" json:"kind"`
	Content        string                             `gorm:"type:text;not null" json:"content"`
	Tags           string                             `gorm:"size:255" json:"tags"`
	Meta           datatypes.JSONMap                  `json:"meta"`
	ChecklistItems datatypes.JSONSlice[ChecklistItem] `json:"checklist_items"`
	CreatedAt      time.Time                          `gorm:"index" json:"created_at"`
	Author         User                               `gorm:"foreignKey:AuthorID" json:"-"`
	Attachments    []PostAttachment                   `gorm:"foreignKey:PostID" json:"-"`
}

// PostAttachment is a file uploaded together with a post. StorageKey
// locates the binary in the blob store and is never serialized.
type PostAttachment struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	PostID       uint      `gorm:"index;not null" json:"post_id"`
	StorageKey   string    `gorm:"size:512;not null" json:"-"`
	OriginalName string    `gorm:"size:255;not null" json:"original_name"`
	ContentType  string    `gorm:"size:128" json:"content_type"`
	Size         int64     `gorm:"not null" json:"size"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsImage is derived from the recorded content type.
func (a *PostAttachment) IsImage() bool {
	return strings.HasPrefix(a.ContentType, "image/")
}
