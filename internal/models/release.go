package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Manifest maps relative file paths to their declared content digests. It is
// fixed at declaration time and stored as a JSON text column.
type Manifest map[string]string

// Value implements driver.Valuer.
func (m Manifest) Value() (driver.Value, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (m *Manifest) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into models.Manifest", value)
	}
	return json.Unmarshal(data, m)
}

// Release is one backend's declared batch of output files for a workspace.
// Its ID is derived from the workspace and the manifest (hash of the sorted
// path:digest pairs), so re-declaring a file set within a workspace is
// idempotent by construction while the same file set in another workspace is
// a distinct release. Once every manifest entry has been uploaded the release
// is immutable apart from soft deletion of individual files.
type Release struct {
	ID          string         `gorm:"primary_key" json:"id"`
	WorkspaceID uuid.UUID      `gorm:"type:text;not null;index" json:"workspace_id"`
	Workspace   Workspace      `gorm:"foreignKey:WorkspaceID" json:"workspace,omitempty"`
	BackendID   uuid.UUID      `gorm:"type:text;not null;index" json:"backend_id"`
	Backend     Backend        `gorm:"foreignKey:BackendID" json:"backend,omitempty"`
	CreatedByID uuid.UUID      `gorm:"type:text;not null" json:"created_by_id"`
	CreatedBy   User           `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`
	Manifest    Manifest       `gorm:"type:text;not null" json:"manifest"`
	Files       []ReleaseFile  `gorm:"foreignKey:ReleaseID" json:"files,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// UploadedCount returns how many distinct manifest paths have file rows.
func (r *Release) UploadedCount() int {
	uploaded := make(map[string]bool, len(r.Files))
	for _, f := range r.Files {
		uploaded[f.Name] = true
	}
	return len(uploaded)
}

// Complete reports whether every manifest entry has been uploaded.
func (r *Release) Complete() bool {
	return r.UploadedCount() >= len(r.Manifest)
}
