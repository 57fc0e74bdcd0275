package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Snapshot is an immutable selection of release files for a workspace,
// optionally published. FileSetHash is the digest of the sorted member file
// IDs; the unique index on (workspace_id, file_set_hash) is what makes the
// duplicate check safe under concurrent creation.
type Snapshot struct {
	ID            uuid.UUID      `gorm:"type:text;primary_key" json:"id"`
	WorkspaceID   uuid.UUID      `gorm:"type:text;not null;index:idx_snapshot_set,unique" json:"workspace_id"`
	Workspace     Workspace      `gorm:"foreignKey:WorkspaceID" json:"workspace,omitempty"`
	CreatedByID   uuid.UUID      `gorm:"type:text;not null" json:"created_by_id"`
	CreatedBy     User           `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`
	FileSetHash   string         `gorm:"not null;index:idx_snapshot_set,unique" json:"-"`
	Files         []ReleaseFile  `gorm:"many2many:snapshot_files" json:"files,omitempty"`
	PublishedAt   *time.Time     `json:"published_at,omitempty"`
	PublishedByID *uuid.UUID     `gorm:"type:text" json:"published_by_id,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate hook to generate UUID
func (s *Snapshot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Published reports whether the snapshot has been published. Publication is
// one-way: PublishedAt is stamped once and never cleared.
func (s *Snapshot) Published() bool {
	return s.PublishedAt != nil
}
