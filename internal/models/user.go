package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opencohort/outpost/internal/roles"
)

// User represents a platform user. Roles holds the user's global (unscoped)
// roles; project/org/backend grants live on the membership rows.
type User struct {
	ID           uuid.UUID      `gorm:"type:text;primary_key" json:"id"`
	Username     string         `gorm:"uniqueIndex;not null" json:"username"`
	FullName     string         `json:"full_name"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `gorm:"not null" json:"-"`
	Roles        roles.List     `gorm:"type:text" json:"roles"`
	IsStaff      bool           `gorm:"not null;default:false" json:"is_staff"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate hook to generate UUID
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// BeforeSave validates the global role assignments.
func (u *User) BeforeSave(tx *gorm.DB) error {
	return u.Roles.ValidateAssignment(roles.ScopeGlobal)
}

// Name returns the display name, falling back to the username.
func (u *User) Name() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}
