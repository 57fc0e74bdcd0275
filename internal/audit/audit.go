package audit

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opencohort/outpost/internal/models"
)

// LogAction records an audit log entry. A failed write is logged here so
// callers can discard the error without losing the trail of the failure.
func LogAction(db *gorm.DB, userID uuid.UUID, action, resource string, details interface{}) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		detailsJSON = []byte("{}")
	}

	log := models.AuditLog{
		UserID:      userID,
		Action:      action,
		Resource:    resource,
		DetailsJSON: string(detailsJSON),
		Timestamp:   time.Now(),
	}

	if err := db.Create(&log).Error; err != nil {
		slog.Error("Failed to write audit log",
			"action", action,
			"resource", resource,
			"error", err,
		)
		return err
	}
	return nil
}

// Audit actions constants
const (
	ActionLogin             = "login"
	ActionLoginFailed       = "login_failed"
	ActionCreateRelease     = "create_release"
	ActionUploadReleaseFile = "upload_release_file"
	ActionDeleteReleaseFile = "delete_release_file"
	ActionCreateSnapshot    = "create_snapshot"
	ActionPublishSnapshot   = "publish_snapshot"
	ActionRotateToken       = "rotate_backend_token"
)
