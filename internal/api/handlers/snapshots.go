package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/opencohort/outpost/internal/audit"
	"github.com/opencohort/outpost/internal/auth"
	"github.com/opencohort/outpost/internal/releases"
	"github.com/opencohort/outpost/internal/roles"
)

// CreateSnapshot creates an immutable snapshot from a set of file ids.
// POST /api/v2/workspaces/:workspace_name/snapshots
func (h *ReleaseHandler) CreateSnapshot(c *gin.Context) {
	ws, err := h.svc.GetWorkspace(c.Param("workspace_name"))
	if err != nil {
		respondError(c, err)
		return
	}

	user := auth.UserFromContext(c)
	if user == nil {
		respondError(c, releases.ErrForbidden)
		return
	}
	if err := h.requireCapability(user, roles.SnapshotCreate, &ws.Project); err != nil {
		respondError(c, err)
		return
	}

	var body struct {
		FileIDs []string `json:"file_ids"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, &releases.ValidationError{Detail: "malformed snapshot JSON"})
		return
	}

	snapshot, err := h.svc.CreateSnapshot(ws, body.FileIDs, user)
	if err != nil {
		respondError(c, err)
		return
	}

	_ = audit.LogAction(h.db, user.ID, audit.ActionCreateSnapshot,
		"snapshot:"+snapshot.ID.String(), gin.H{"workspace": ws.Name, "files": len(snapshot.Files)})

	c.JSON(http.StatusCreated, gin.H{"snapshot_id": snapshot.ID.String()})
}

// GetSnapshot lists a snapshot's files. Published snapshots are public;
// drafts require the view capability.
// GET /api/v2/workspaces/:workspace_name/snapshots/:snapshot_id
func (h *ReleaseHandler) GetSnapshot(c *gin.Context) {
	ws, err := h.svc.GetWorkspace(c.Param("workspace_name"))
	if err != nil {
		respondError(c, err)
		return
	}

	id, err := uuid.Parse(c.Param("snapshot_id"))
	if err != nil {
		respondError(c, releases.ErrNotFound)
		return
	}
	snapshot, err := h.svc.GetSnapshot(ws, id)
	if err != nil {
		respondError(c, err)
		return
	}

	if !snapshot.Published() {
		user := auth.UserFromContext(c)
		if user == nil {
			respondError(c, releases.ErrForbidden)
			return
		}
		if err := h.requireCapability(user, roles.ReleaseFileView, &ws.Project); err != nil {
			respondError(c, err)
			return
		}
	}

	files := make([]gin.H, 0, len(snapshot.Files))
	for _, f := range snapshot.Files {
		files = append(files, fileJSON(f, f.Name, f.Release.Backend.Name))
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

// PublishSnapshot publishes a snapshot. Idempotent: republishing an
// already-published snapshot succeeds without touching its timestamp.
// POST /api/v2/workspaces/:workspace_name/snapshots/:snapshot_id/publish
func (h *ReleaseHandler) PublishSnapshot(c *gin.Context) {
	ws, err := h.svc.GetWorkspace(c.Param("workspace_name"))
	if err != nil {
		respondError(c, err)
		return
	}

	id, err := uuid.Parse(c.Param("snapshot_id"))
	if err != nil {
		respondError(c, releases.ErrNotFound)
		return
	}
	snapshot, err := h.svc.GetSnapshot(ws, id)
	if err != nil {
		respondError(c, err)
		return
	}

	user := auth.UserFromContext(c)
	if user == nil {
		respondError(c, releases.ErrForbidden)
		return
	}
	if err := h.requireCapability(user, roles.SnapshotPublish, &ws.Project); err != nil {
		respondError(c, err)
		return
	}

	if err := h.svc.PublishSnapshot(snapshot, user); err != nil {
		respondError(c, err)
		return
	}

	_ = audit.LogAction(h.db, user.ID, audit.ActionPublishSnapshot,
		"snapshot:"+snapshot.ID.String(), gin.H{"workspace": ws.Name})

	c.JSON(http.StatusOK, gin.H{"published_at": snapshot.PublishedAt})
}
