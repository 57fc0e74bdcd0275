package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Project groups workspaces under an org. UsesNewReleaseFlow gates the
// per-file release API for the project's workspaces.
type Project struct {
	ID                 uuid.UUID      `gorm:"type:text;primary_key" json:"id"`
	OrgID              uuid.UUID      `gorm:"type:text;not null;index" json:"org_id"`
	Org                Org            `gorm:"foreignKey:OrgID" json:"org,omitempty"`
	Name               string         `gorm:"not null" json:"name"`
	Slug               string         `gorm:"uniqueIndex;not null" json:"slug"`
	UsesNewReleaseFlow bool           `gorm:"not null;default:false" json:"uses_new_release_flow"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate hook to generate UUID
func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
