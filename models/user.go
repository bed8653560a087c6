package models

import (
	"time"

	"gorm.io/gorm"
)

// User is an account. Passwords are stored as bcrypt hashes only and the
// email is kept lower-cased so the unique index is case-insensitive.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:150;not null;uniqueIndex" json:"username"`
	Email        string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"size:255" json:"-"`
	Name         string    `gorm:"size:150" json:"name"`
	Bio          string    `gorm:"type:text" json:"bio"`
	Location     string    `gorm:"size:120" json:"location"`
	Gender       string    `gorm:"size:20" json:"gender"`
	Contact      string    `gorm:"size:120" json:"contact"`
	ThemeColor   string    `gorm:"size:20" json:"theme_color"`
	AvatarKey    string    `gorm:"size:512" json:"-"`
	AvatarType   string    `gorm:"size:128" json:"-"`
	CoverKey     string    `gorm:"size:512" json:"-"`
	CoverType    string    `gorm:"size:128" json:"-"`
	IsStaff      bool      `gorm:"not null;default:false" json:"is_staff"`
	IsSuperuser  bool      `gorm:"not null;default:false" json:"is_superuser"`
	CreatedAt    time.Time `json:"date_joined"`
	UpdatedAt    time.Time `json:"-"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}

// DisplayName prefers the profile name over the username.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// IsAdmin reports staff or superuser.
func (u *User) IsAdmin() bool {
	return u.IsStaff || u.IsSuperuser
}
