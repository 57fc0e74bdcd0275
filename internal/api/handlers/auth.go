package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/opencohort/outpost/internal/audit"
	"github.com/opencohort/outpost/internal/auth"
)

// Login authenticates a user and returns a session token.
func Login(authenticator *auth.Authenticator, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req auth.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "username and password are required"})
			return
		}

		resp, err := authenticator.Login(req.Username, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				c.JSON(http.StatusUnauthorized, gin.H{"detail": "invalid credentials"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
			return
		}

		_ = audit.LogAction(db, resp.User.ID, audit.ActionLogin, "user:"+resp.User.Username, nil)
		c.JSON(http.StatusOK, resp)
	}
}
