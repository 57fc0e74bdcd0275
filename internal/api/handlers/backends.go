package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/opencohort/outpost/internal/audit"
	"github.com/opencohort/outpost/internal/auth"
	"github.com/opencohort/outpost/internal/authz"
	"github.com/opencohort/outpost/internal/models"
	"github.com/opencohort/outpost/internal/releases"
	"github.com/opencohort/outpost/internal/roles"
)

// RotateBackendToken replaces a backend's auth token. The swap is atomic:
// the old token stops working the instant the new one is issued.
// POST /api/v2/backends/:backend_slug/token
func (h *ReleaseHandler) RotateBackendToken(c *gin.Context) {
	user := auth.UserFromContext(c)
	if user == nil {
		respondError(c, releases.ErrForbidden)
		return
	}
	ok, err := authz.Can(h.db, user, roles.BackendManage, authz.Context{})
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		respondError(c, releases.ErrForbidden)
		return
	}

	var backend models.Backend
	err = h.db.Where("slug = ?", c.Param("backend_slug")).First(&backend).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, releases.ErrNotFound)
			return
		}
		respondError(c, err)
		return
	}

	if err := backend.RotateToken(h.db); err != nil {
		respondError(c, err)
		return
	}

	_ = audit.LogAction(h.db, user.ID, audit.ActionRotateToken, "backend:"+backend.Slug, nil)

	c.JSON(http.StatusOK, gin.H{"auth_token": backend.AuthToken})
}
