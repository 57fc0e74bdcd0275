// Package roles defines the closed set of roles users can hold, the
// capabilities each role grants, and the scopes a role may be assigned at.
// Roles are code, not rows: memberships persist only the stable string tag.
package roles

import (
	"fmt"
)

// Role is the stable tag stored on users and membership rows.
type Role string

const (
	ProjectCollaborator    Role = "ProjectCollaborator"
	ProjectDeveloper       Role = "ProjectDeveloper"
	ProjectCoordinator     Role = "ProjectCoordinator"
	OrgCoordinator         Role = "OrgCoordinator"
	OutputChecker          Role = "OutputChecker"
	OutputPublisher        Role = "OutputPublisher"
	StaffAreaAdministrator Role = "StaffAreaAdministrator"
)

// Capability is a single permitted action.
type Capability string

const (
	ReleaseFileView       Capability = "release_file_view"
	ReleaseFileUpload     Capability = "release_file_upload"
	ReleaseFileDelete     Capability = "release_file_delete"
	SnapshotCreate        Capability = "snapshot_create"
	SnapshotPublish       Capability = "snapshot_publish"
	UnreleasedOutputsView Capability = "unreleased_outputs_view"
	WorkspaceCreate       Capability = "workspace_create"
	JobRun                Capability = "job_run"
	ProjectMembersManage  Capability = "project_members_manage"
	OrgMembersManage      Capability = "org_members_manage"
	BackendManage         Capability = "backend_manage"
)

// ScopeKind identifies the kind of entity a role is assigned against.
type ScopeKind string

const (
	ScopeGlobal  ScopeKind = "global"
	ScopeProject ScopeKind = "project"
	ScopeOrg     ScopeKind = "org"
	ScopeBackend ScopeKind = "backend"
)

// capabilities maps each role to the set of actions it grants. The bundles
// are immutable; changing what a role means is a code change, not a data
// migration.
var capabilities = map[Role][]Capability{
	ProjectCollaborator: {
		ReleaseFileView,
	},
	ProjectDeveloper: {
		ReleaseFileView,
		UnreleasedOutputsView,
		SnapshotCreate,
		WorkspaceCreate,
		JobRun,
	},
	ProjectCoordinator: {
		ReleaseFileView,
		ProjectMembersManage,
	},
	OrgCoordinator: {
		OrgMembersManage,
	},
	OutputChecker: {
		ReleaseFileView,
		ReleaseFileUpload,
		ReleaseFileDelete,
	},
	OutputPublisher: {
		ReleaseFileView,
		SnapshotPublish,
	},
	StaffAreaAdministrator: {
		BackendManage,
	},
}

// scopes maps each role to the entity kinds it may be assigned against.
var scopes = map[Role][]ScopeKind{
	ProjectCollaborator:    {ScopeProject},
	ProjectDeveloper:       {ScopeProject},
	ProjectCoordinator:     {ScopeProject},
	OrgCoordinator:         {ScopeOrg},
	OutputChecker:          {ScopeGlobal, ScopeProject},
	OutputPublisher:        {ScopeGlobal, ScopeProject},
	StaffAreaAdministrator: {ScopeGlobal},
}

// Valid reports whether r is a known role tag.
func (r Role) Valid() bool {
	_, ok := capabilities[r]
	return ok
}

// Grants reports whether the role's capability bundle includes c.
func (r Role) Grants(c Capability) bool {
	for _, got := range capabilities[r] {
		if got == c {
			return true
		}
	}
	return false
}

// AssignableTo reports whether the role may be assigned at the given scope.
func (r Role) AssignableTo(kind ScopeKind) bool {
	for _, k := range scopes[r] {
		if k == kind {
			return true
		}
	}
	return false
}

// Capabilities returns a copy of the role's capability bundle.
func (r Role) Capabilities() []Capability {
	caps := capabilities[r]
	out := make([]Capability, len(caps))
	copy(out, caps)
	return out
}

// Parse converts a stored tag back into a Role, rejecting unknown tags so a
// corrupted or stale column surfaces loudly instead of silently granting or
// dropping access.
func Parse(tag string) (Role, error) {
	r := Role(tag)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role tag %q", tag)
	}
	return r, nil
}

// GrantsAny reports whether any role in the set grants the capability.
func GrantsAny(set []Role, c Capability) bool {
	for _, r := range set {
		if r.Grants(c) {
			return true
		}
	}
	return false
}
