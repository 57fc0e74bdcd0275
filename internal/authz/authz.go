// Package authz resolves "can user U perform action A in context C" by
// combining the user's global roles with the roles granted on memberships of
// the entities named in the context.
package authz

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/opencohort/outpost/internal/models"
	"github.com/opencohort/outpost/internal/roles"
)

// Context names the scoping entities an authorization check runs against.
// Nil fields simply contribute no roles.
type Context struct {
	Project *models.Project
	Org     *models.Org
	Backend *models.Backend
}

// requiredScope records which scope a capability must be checked against.
// Asking for a project-scoped capability without a project in the context is
// a programming error, not a denial.
var requiredScope = map[roles.Capability]roles.ScopeKind{
	roles.ReleaseFileView:       roles.ScopeProject,
	roles.ReleaseFileUpload:     roles.ScopeProject,
	roles.ReleaseFileDelete:     roles.ScopeProject,
	roles.SnapshotCreate:        roles.ScopeProject,
	roles.SnapshotPublish:       roles.ScopeProject,
	roles.UnreleasedOutputsView: roles.ScopeProject,
	roles.WorkspaceCreate:       roles.ScopeProject,
	roles.JobRun:                roles.ScopeProject,
	roles.ProjectMembersManage:  roles.ScopeProject,
	roles.OrgMembersManage:      roles.ScopeOrg,
	roles.BackendManage:         roles.ScopeGlobal,
}

// Can reports whether the user may perform the capability in the given
// context. Staff users short-circuit to true. An unresolvable
// capability/context combination returns a non-nil error so callers surface
// it as a server fault rather than a permission denial.
func Can(db *gorm.DB, user *models.User, capability roles.Capability, ctx Context) (bool, error) {
	if user == nil {
		return false, nil
	}
	if user.IsStaff {
		return true, nil
	}

	scope, ok := requiredScope[capability]
	if !ok {
		return false, fmt.Errorf("unknown capability %q", capability)
	}
	if scope == roles.ScopeProject && ctx.Project == nil {
		return false, fmt.Errorf("capability %s requires a project context", capability)
	}
	if scope == roles.ScopeOrg && ctx.Org == nil {
		return false, fmt.Errorf("capability %s requires an org context", capability)
	}

	if roles.GrantsAny(user.Roles, capability) {
		return true, nil
	}

	collected, err := membershipRoles(db, user, ctx)
	if err != nil {
		return false, err
	}
	return roles.GrantsAny(collected, capability), nil
}

// membershipRoles collects the roles granted to the user by memberships of
// the entities in the context. A membership the user does not hold
// contributes nothing; a project role never grants backend capabilities.
func membershipRoles(db *gorm.DB, user *models.User, ctx Context) ([]roles.Role, error) {
	var collected []roles.Role

	if ctx.Project != nil {
		var m models.ProjectMembership
		err := db.Where("user_id = ? AND project_id = ?", user.ID, ctx.Project.ID).First(&m).Error
		if err == nil {
			collected = append(collected, m.Roles...)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("loading project membership: %w", err)
		}
	}

	if ctx.Org != nil {
		var m models.OrgMembership
		err := db.Where("user_id = ? AND org_id = ?", user.ID, ctx.Org.ID).First(&m).Error
		if err == nil {
			collected = append(collected, m.Roles...)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("loading org membership: %w", err)
		}
	}

	if ctx.Backend != nil {
		var m models.BackendMembership
		err := db.Where("user_id = ? AND backend_id = ?", user.ID, ctx.Backend.ID).First(&m).Error
		if err == nil {
			collected = append(collected, m.Roles...)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("loading backend membership: %w", err)
		}
	}

	return collected, nil
}

// IsBackendMember reports whether the user is a current member of the
// backend.
func IsBackendMember(db *gorm.DB, user *models.User, backend *models.Backend) (bool, error) {
	var count int64
	err := db.Model(&models.BackendMembership{}).
		Where("user_id = ? AND backend_id = ?", user.ID, backend.ID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking backend membership: %w", err)
	}
	return count > 0, nil
}
