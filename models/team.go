package models

import (
	"time"

	"gorm.io/datatypes"
)

// Team member roles.
const (
	TeamRoleAdmin  = "admin"
	TeamRoleMember = "member"
)

// Team groups accounts that share a feed. Members join with InviteCode.
type Team struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	InviteCode  string    `gorm:"size:16;not null;uniqueIndex" json:"invite_code"`
	OwnerID     uint      `gorm:"index;not null" json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	Owner       User      `gorm:"foreignKey:OwnerID" json:"-"`
}

// TeamMember is a (team, user) membership.
type TeamMember struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	TeamID   uint      `gorm:"uniqueIndex:idx_team_member_pair;not null" json:"team_id"`
	UserID   uint      `gorm:"uniqueIndex:idx_team_member_pair;index;not null" json:"user_id"`
	Role     string    `gorm:"size:16;not null;default:member" json:"role"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

// TeamPost is a post visible to every member of a team.
type TeamPost struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	TeamID    uint              `gorm:"index;not null" json:"team_id"`
	AuthorID  uint              `gorm:"index;not null" json:"author_id"`
	Title     string            `gorm:"size:200;not null" json:"title"`
	Content   string            `gorm:"type:text;not null" json:"content"`
	Meta      datatypes.JSONMap `json:"meta"`
	CreatedAt time.Time         `gorm:"index" json:"created_at"`
	Author    User              `gorm:"foreignKey:AuthorID" json:"-"`
}
