package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opencohort/outpost/internal/audit"
	"github.com/opencohort/outpost/internal/auth"
	"github.com/opencohort/outpost/internal/authz"
	"github.com/opencohort/outpost/internal/models"
	"github.com/opencohort/outpost/internal/notify"
	"github.com/opencohort/outpost/internal/releases"
	"github.com/opencohort/outpost/internal/roles"
	"github.com/opencohort/outpost/internal/store"
)

// osUserHeader names the acting user on backend-authenticated requests.
const osUserHeader = "OS-User"

// ReleaseHandler serves the release, snapshot and file endpoints.
type ReleaseHandler struct {
	db       *gorm.DB
	svc      *releases.Service
	store    *store.Store
	notifier notify.Notifier
}

// NewReleaseHandler creates a ReleaseHandler.
func NewReleaseHandler(db *gorm.DB, svc *releases.Service, st *store.Store, notifier notify.Notifier) *ReleaseHandler {
	return &ReleaseHandler{db: db, svc: svc, store: st, notifier: notifier}
}

// authenticateBackend resolves the Authorization header to exactly one
// backend. Any failure collapses to the generic not-authenticated error.
func (h *ReleaseHandler) authenticateBackend(c *gin.Context) (*models.Backend, error) {
	token := c.GetHeader("Authorization")
	if token == "" {
		return nil, releases.ErrNotAuthenticated
	}

	var backend models.Backend
	err := h.db.Where("auth_token = ?", token).First(&backend).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, releases.ErrNotAuthenticated
		}
		return nil, fmt.Errorf("resolving backend token: %w", err)
	}
	return &backend, nil
}

// validateUploadAccess runs the two identity checks for file-bearing
// requests: bearer token → backend, OS-User header → a user who is a member
// of that backend. Both failure modes surface as the same generic error so
// the response never leaks which check failed.
func (h *ReleaseHandler) validateUploadAccess(c *gin.Context) (*models.Backend, *models.User, error) {
	backend, err := h.authenticateBackend(c)
	if err != nil {
		return nil, nil, err
	}

	username := c.GetHeader(osUserHeader)
	if username == "" {
		return nil, nil, releases.ErrNotAuthenticated
	}

	var user models.User
	err = h.db.Where("username = ?", username).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, releases.ErrNotAuthenticated
		}
		return nil, nil, fmt.Errorf("resolving user %s: %w", username, err)
	}

	member, err := authz.IsBackendMember(h.db, &user, backend)
	if err != nil {
		return nil, nil, err
	}
	if !member {
		return nil, nil, releases.ErrNotAuthenticated
	}

	return backend, &user, nil
}

// requireCapability checks the session or upload user against the project.
func (h *ReleaseHandler) requireCapability(user *models.User, capability roles.Capability, project *models.Project) error {
	ok, err := authz.Can(h.db, user, capability, authz.Context{Project: project})
	if err != nil {
		return err
	}
	if !ok {
		return releases.ErrForbidden
	}
	return nil
}

// fileJSON serialises one release file for list responses.
func fileJSON(f models.ReleaseFile, displayName, backendName string) gin.H {
	return gin.H{
		"name":       displayName,
		"id":         f.ID.String(),
		"url":        "/api/v2/releases/file/" + f.ID.String(),
		"user":       f.CreatedBy.Username,
		"date":       f.CreatedAt.UTC().Format(time.RFC3339),
		"size":       f.Size,
		"sha256":     f.FileHash,
		"is_deleted": f.Deleted(),
		"backend":    backendName,
	}
}

// GetRelease lists a release's file metadata.
// GET /api/v2/releases/:release_id
func (h *ReleaseHandler) GetRelease(c *gin.Context) {
	release, err := h.svc.GetRelease(c.Param("release_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	user := auth.UserFromContext(c)
	if user == nil {
		respondError(c, releases.ErrForbidden)
		return
	}
	if err := h.requireCapability(user, roles.ReleaseFileView, &release.Workspace.Project); err != nil {
		respondError(c, err)
		return
	}

	files := make([]gin.H, 0, len(release.Files))
	for _, f := range release.Files {
		files = append(files, fileJSON(f, f.Name, release.Backend.Name))
	}
	c.JSON(http.StatusOK, gin.H{"files": files, "complete": release.Complete()})
}

// UploadFile accepts one file's bytes for a declared release.
// POST /api/v2/releases/:release_id
//
// Checks run cheapest and most generic first: token, user, permission,
// filename, body, already-uploaded, byte integrity. The earliest applicable
// failure is the one reported.
func (h *ReleaseHandler) UploadFile(c *gin.Context) {
	release, err := h.svc.GetRelease(c.Param("release_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	backend, user, err := h.validateUploadAccess(c)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.requireCapability(user, roles.ReleaseFileUpload, &release.Workspace.Project); err != nil {
		respondError(c, err)
		return
	}

	if backend.ID != release.BackendID {
		respondError(c, &releases.ValidationError{
			Detail: fmt.Sprintf("release %s belongs to backend %s, not %s",
				release.ID, release.Backend.Slug, backend.Slug),
		})
		return
	}

	filename, err := dispositionFilename(c.GetHeader("Content-Disposition"))
	if err != nil {
		respondError(c, &releases.ValidationError{Detail: err.Error()})
		return
	}
	if _, ok := release.Manifest[filename]; !ok {
		respondError(c, &releases.ValidationError{
			Detail: fmt.Sprintf("%s is not part of this release", filename),
		})
		return
	}

	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, &releases.ValidationError{Detail: "malformed request body"})
		return
	}
	if len(data) == 0 {
		respondError(c, &releases.ValidationError{Detail: "No data uploaded"})
		return
	}

	file, err := h.svc.UploadFile(release, filename, data, user)
	if err != nil {
		respondError(c, err)
		return
	}

	_ = audit.LogAction(h.db, user.ID, audit.ActionUploadReleaseFile,
		"release:"+release.ID, gin.H{"file": filename, "backend": backend.Slug})

	c.Header("Location", "/api/v2/releases/file/"+file.ID.String())
	c.Header("File-Id", file.ID.String())
	c.JSON(http.StatusCreated, gin.H{"detail": "ok"})
}

// dispositionFilename extracts the declared filename from a
// Content-Disposition header.
func dispositionFilename(header string) (string, error) {
	if header == "" {
		return "", errors.New("Content-Disposition header with a filename is required")
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return "", fmt.Errorf("invalid Content-Disposition header: %s", header)
	}
	filename, ok := params["filename"]
	if !ok || filename == "" {
		return "", errors.New("Content-Disposition header with a filename is required")
	}
	return filename, nil
}

// WorkspaceReleases lists the latest file per name across the workspace's
// releases.
// GET /api/v2/workspaces/:workspace_name/releases
func (h *ReleaseHandler) WorkspaceReleases(c *gin.Context) {
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
	if err := h.requireCapability(user, roles.ReleaseFileView, &ws.Project); err != nil {
		respondError(c, err)
		return
	}

	latest, err := h.svc.WorkspaceFiles(ws)
	if err != nil {
		respondError(c, err)
		return
	}

	files := make([]gin.H, 0, len(latest))
	for _, wf := range latest {
		files = append(files, fileJSON(wf.File, wf.DisplayName, wf.BackendName))
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

// CreateRelease declares a release for a workspace. A JSON body declares a
// manifest for per-file upload; an archive body (legacy flow) carries the
// whole batch in one zip.
// POST /api/v2/workspaces/:workspace_name/releases
func (h *ReleaseHandler) CreateRelease(c *gin.Context) {
	ws, err := h.svc.GetWorkspace(c.Param("workspace_name"))
	if err != nil {
		respondError(c, err)
		return
	}

	backend, user, err := h.validateUploadAccess(c)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.requireCapability(user, roles.ReleaseFileUpload, &ws.Project); err != nil {
		respondError(c, err)
		return
	}

	var release *models.Release
	if strings.HasPrefix(c.ContentType(), "application/json") {
		var body struct {
			Files models.Manifest `json:"files"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, &releases.ValidationError{Detail: "malformed manifest JSON"})
			return
		}
		release, err = h.svc.Declare(ws, backend, user, body.Files)
	} else {
		var data []byte
		data, err = io.ReadAll(c.Request.Body)
		if err != nil {
			respondError(c, &releases.ValidationError{Detail: "malformed request body"})
			return
		}
		release, err = h.svc.CreateFromArchive(ws, backend, user, data)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	_ = audit.LogAction(h.db, user.ID, audit.ActionCreateRelease,
		"release:"+release.ID, gin.H{"workspace": ws.Name, "backend": backend.Slug})

	c.Header("Release-Id", release.ID)
	c.Header("Location", "/api/v2/releases/"+release.ID)
	c.JSON(http.StatusCreated, gin.H{"release_id": release.ID})
}

// WorkspaceStatus reports whether the workspace's project uses the per-file
// release flow. Public: backends poll this before choosing an upload path.
// GET /api/v2/workspaces/:workspace_name/status
func (h *ReleaseHandler) WorkspaceStatus(c *gin.Context) {
	ws, err := h.svc.GetWorkspace(c.Param("workspace_name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uses_new_release_flow": ws.Project.UsesNewReleaseFlow})
}

// GetFile streams one release file's bytes, or delegates delivery to the
// fronting proxy via X-Accel-Redirect when the Releases-Redirect header
// names an internal location.
// GET /api/v2/releases/file/:file_id
func (h *ReleaseHandler) GetFile(c *gin.Context) {
	id, err := uuid.Parse(c.Param("file_id"))
	if err != nil {
		respondError(c, releases.ErrNotFound)
		return
	}
	file, err := h.svc.GetFile(id)
	if err != nil {
		respondError(c, err)
		return
	}

	user := auth.UserFromContext(c)
	if user == nil {
		respondError(c, releases.ErrForbidden)
		return
	}
	if err := h.requireCapability(user, roles.ReleaseFileView, &file.Release.Workspace.Project); err != nil {
		respondError(c, err)
		return
	}

	wsName := file.Release.Workspace.Name
	if file.Deleted() || !h.store.Exists(wsName, file.ReleaseID, file.Name) {
		respondError(c, releases.ErrNotFound)
		return
	}

	ctype := mime.TypeByExtension(filepath.Ext(file.Name))
	if ctype == "" {
		ctype = "application/octet-stream"
	}

	if prefix := c.GetHeader("Releases-Redirect"); prefix != "" {
		c.Header("X-Accel-Redirect",
			fmt.Sprintf("%s/%s/releases/%s/%s", prefix, wsName, file.ReleaseID, file.Name))
		c.Header("Content-Type", ctype)
		c.Status(http.StatusOK)
		return
	}

	f, err := h.store.Open(wsName, file.ReleaseID, file.Name)
	if err != nil {
		respondError(c, releases.ErrNotFound)
		return
	}
	defer f.Close()

	c.DataFromReader(http.StatusOK, file.Size, ctype, f, nil)
}

// DeleteFile removes a file's bytes and stamps the soft-delete metadata.
// DELETE /api/v2/releases/file/:file_id
func (h *ReleaseHandler) DeleteFile(c *gin.Context) {
	id, err := uuid.Parse(c.Param("file_id"))
	if err != nil {
		respondError(c, releases.ErrNotFound)
		return
	}
	file, err := h.svc.GetFile(id)
	if err != nil {
		respondError(c, err)
		return
	}

	user := auth.UserFromContext(c)
	if user == nil {
		respondError(c, releases.ErrForbidden)
		return
	}
	if err := h.requireCapability(user, roles.ReleaseFileDelete, &file.Release.Workspace.Project); err != nil {
		respondError(c, err)
		return
	}

	if err := h.svc.DeleteFile(file, user); err != nil {
		respondError(c, err)
		return
	}

	_ = audit.LogAction(h.db, user.ID, audit.ActionDeleteReleaseFile,
		"release_file:"+file.ID.String(), gin.H{"name": file.Name, "release": file.ReleaseID})

	c.JSON(http.StatusOK, gin.H{"detail": "deleted"})
}

// DownloadRelease streams a zip of a release's surviving files.
// GET /api/v2/releases/:release_id/download
func (h *ReleaseHandler) DownloadRelease(c *gin.Context) {
	release, err := h.svc.GetRelease(c.Param("release_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	user := auth.UserFromContext(c)
	if user == nil {
		respondError(c, releases.ErrForbidden)
		return
	}
	if err := h.requireCapability(user, roles.ReleaseFileView, &release.Workspace.Project); err != nil {
		respondError(c, err)
		return
	}

	entries := make(map[string]string)
	for _, f := range release.Files {
		if f.Deleted() {
			continue
		}
		entries[f.Name] = h.store.FilePath(release.Workspace.Name, release.ID, f.Name)
	}
	if len(entries) == 0 {
		respondError(c, releases.ErrNotFound)
		return
	}

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=release-%s.zip", release.ID))
	c.Status(http.StatusOK)
	if err := store.WriteZip(c.Writer, entries); err != nil {
		slog.Error("failed to stream release zip", "release", release.ID, "error", err)
	}
}

// GetReleaseSub fans out the two-segment GET forms under /releases:
// /releases/file/:file_id serves a single file, /releases/:release_id/download
// streams the whole release.
func (h *ReleaseHandler) GetReleaseSub(c *gin.Context) {
	switch {
	case c.Param("release_id") == "file":
		c.Params = append(c.Params, gin.Param{Key: "file_id", Value: c.Param("action")})
		h.GetFile(c)
	case c.Param("action") == "download":
		h.DownloadRelease(c)
	default:
		respondError(c, releases.ErrNotFound)
	}
}

// DeleteReleaseSub handles DELETE /releases/file/:file_id.
func (h *ReleaseHandler) DeleteReleaseSub(c *gin.Context) {
	if c.Param("release_id") != "file" {
		respondError(c, releases.ErrNotFound)
		return
	}
	c.Params = append(c.Params, gin.Param{Key: "file_id", Value: c.Param("action")})
	h.DeleteFile(c)
}

// Notify posts a release notice to the configured chat webhook. The send is
// fire-and-forget: a downstream failure is logged server-side and the
// response is 201 regardless.
// POST /api/v2/releases/notifications
func (h *ReleaseHandler) Notify(c *gin.Context) {
	if _, err := h.authenticateBackend(c); err != nil {
		respondError(c, err)
		return
	}

	var body struct {
		CreatedBy string   `json:"created_by"`
		Path      string   `json:"path"`
		Files     []string `json:"files"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, &releases.ValidationError{Detail: "malformed notification JSON"})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := h.notifier.ReleaseCreated(ctx, body.CreatedBy, body.Path, body.Files); err != nil {
			slog.Error("Failed to send release notification", "error", err)
		}
	}()

	c.JSON(http.StatusCreated, gin.H{"detail": "notified"})
}
