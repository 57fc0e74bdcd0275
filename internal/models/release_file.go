package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReleaseFile is one uploaded file within a release. Deletion removes the
// on-disk bytes but keeps this row, stamped with who deleted it and when, so
// the audit trail survives the bytes.
type ReleaseFile struct {
	ID          uuid.UUID  `gorm:"type:text;primary_key" json:"id"`
	ReleaseID   string     `gorm:"not null;index:idx_release_file,unique" json:"release_id"`
	Release     Release    `gorm:"foreignKey:ReleaseID" json:"release,omitempty"`
	Name        string     `gorm:"not null;index:idx_release_file,unique" json:"name"`
	FileHash    string     `gorm:"not null" json:"sha256"`
	Size        int64      `gorm:"not null" json:"size"`
	CreatedByID uuid.UUID  `gorm:"type:text;not null" json:"created_by_id"`
	CreatedBy   User       `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	DeletedByID *uuid.UUID `gorm:"type:text" json:"deleted_by_id,omitempty"`
}

// BeforeCreate hook to generate UUID
func (f *ReleaseFile) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// Deleted reports whether the file's bytes have been logically removed.
func (f *ReleaseFile) Deleted() bool {
	return f.DeletedAt != nil
}
