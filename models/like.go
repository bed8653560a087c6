package models

import "time"

// PostLike marks that a user liked a post. Rows are hard-deleted so the
// unique pair index always reflects live likes.
type PostLike struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"uniqueIndex:idx_post_like_pair;not null" json:"post_id"`
	UserID    uint      `gorm:"uniqueIndex:idx_post_like_pair;index;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
