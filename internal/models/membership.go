package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opencohort/outpost/internal/roles"
)

// ProjectMembership links a user to a project with the roles granted there.
// Deleting the row removes only the scoped grant; the user's global roles
// are untouched.
type ProjectMembership struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	UserID    uuid.UUID      `gorm:"type:text;not null;index:idx_project_member,unique" json:"user_id"`
	User      User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	ProjectID uuid.UUID      `gorm:"type:text;not null;index:idx_project_member,unique" json:"project_id"`
	Project   Project        `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	Roles     roles.List     `gorm:"type:text" json:"roles"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeSave rejects roles that cannot be assigned at project scope.
func (m *ProjectMembership) BeforeSave(tx *gorm.DB) error {
	return m.Roles.ValidateAssignment(roles.ScopeProject)
}

// OrgMembership links a user to an org with the roles granted there.
type OrgMembership struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	UserID    uuid.UUID      `gorm:"type:text;not null;index:idx_org_member,unique" json:"user_id"`
	User      User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	OrgID     uuid.UUID      `gorm:"type:text;not null;index:idx_org_member,unique" json:"org_id"`
	Org       Org            `gorm:"foreignKey:OrgID" json:"org,omitempty"`
	Roles     roles.List     `gorm:"type:text" json:"roles"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeSave rejects roles that cannot be assigned at org scope.
func (m *OrgMembership) BeforeSave(tx *gorm.DB) error {
	return m.Roles.ValidateAssignment(roles.ScopeOrg)
}

// BackendMembership marks a user as trusted to act through a backend. It is
// the trust boundary for uploads: the OS-User header must name a member of
// the authenticated backend.
type BackendMembership struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	UserID    uuid.UUID      `gorm:"type:text;not null;index:idx_backend_member,unique" json:"user_id"`
	User      User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	BackendID uuid.UUID      `gorm:"type:text;not null;index:idx_backend_member,unique" json:"backend_id"`
	Backend   Backend        `gorm:"foreignKey:BackendID" json:"backend,omitempty"`
	Roles     roles.List     `gorm:"type:text" json:"roles"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeSave rejects roles that cannot be assigned at backend scope.
func (m *BackendMembership) BeforeSave(tx *gorm.DB) error {
	return m.Roles.ValidateAssignment(roles.ScopeBackend)
}
