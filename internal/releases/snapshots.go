package releases

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"
	"gorm.io/gorm"

	"github.com/opencohort/outpost/internal/models"
)

// fileSetHash derives the digest identifying a snapshot's resolved file set.
// It is computed over the sorted file IDs, so the same selection hashes the
// same regardless of the order the ids arrived in.
func fileSetHash(ids []uuid.UUID) string {
	sorted := make([]string, len(ids))
	for i, id := range ids {
		sorted[i] = id.String()
	}
	sort.Strings(sorted)
	return digest.FromString(strings.Join(sorted, "\n")).Encoded()
}

// CreateSnapshot resolves the requested file ids against the workspace's
// visible (non-deleted) release files and creates an immutable snapshot.
// Unknown or deleted ids are rejected by name; a snapshot whose resolved set
// matches an existing one is rejected as a duplicate. The duplicate check is
// backed by a unique index on (workspace, file set hash), so two concurrent
// creations cannot both slip past it.
func (s *Service) CreateSnapshot(ws *models.Workspace, fileIDs []string, user *models.User) (*models.Snapshot, error) {
	if len(fileIDs) == 0 {
		return nil, validationf("No file IDs provided")
	}

	ids := make([]uuid.UUID, 0, len(fileIDs))
	var unknown []string
	for _, raw := range fileIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			unknown = append(unknown, raw)
			continue
		}
		ids = append(ids, id)
	}

	var files []models.ReleaseFile
	if len(ids) > 0 {
		err := s.db.
			Joins("JOIN releases ON releases.id = release_files.release_id").
			Where("release_files.id IN ?", ids).
			Where("releases.workspace_id = ?", ws.ID).
			Where("release_files.deleted_at IS NULL").
			Find(&files).Error
		if err != nil {
			return nil, fmt.Errorf("resolving snapshot files: %w", err)
		}
	}

	found := make(map[uuid.UUID]bool, len(files))
	for _, f := range files {
		found[f.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			unknown = append(unknown, id.String())
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, validationf("Unknown file IDs: %s", strings.Join(unknown, ", "))
	}

	resolved := make([]uuid.UUID, len(files))
	for i, f := range files {
		resolved[i] = f.ID
	}

	snapshot := &models.Snapshot{
		WorkspaceID: ws.ID,
		CreatedByID: user.ID,
		FileSetHash: fileSetHash(resolved),
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(snapshot).Error; err != nil {
			return err
		}
		return tx.Model(snapshot).Association("Files").Append(files)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, validationf("A snapshot with the current files already exists")
		}
		return nil, fmt.Errorf("creating snapshot: %w", err)
	}

	snapshot.Files = files
	return snapshot, nil
}

// GetSnapshot loads a workspace's snapshot with its files.
func (s *Service) GetSnapshot(ws *models.Workspace, id uuid.UUID) (*models.Snapshot, error) {
	var snapshot models.Snapshot
	err := s.db.Preload("Files").Preload("Files.CreatedBy").
		Preload("Files.Release").Preload("Files.Release.Backend").
		Where("id = ? AND workspace_id = ?", id, ws.ID).
		First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %s: %w", id, err)
	}
	return &snapshot, nil
}

// PublishSnapshot stamps the publish timestamp once. Publishing an
// already-published snapshot is a successful no-op and never changes the
// original timestamp.
func (s *Service) PublishSnapshot(snapshot *models.Snapshot, user *models.User) error {
	if snapshot.Published() {
		return nil
	}

	now := s.db.NowFunc()
	result := s.db.Model(&models.Snapshot{}).
		Where("id = ? AND published_at IS NULL", snapshot.ID).
		Updates(map[string]interface{}{
			"published_at":    now,
			"published_by_id": user.ID,
		})
	if result.Error != nil {
		return fmt.Errorf("publishing snapshot %s: %w", snapshot.ID, result.Error)
	}
	if result.RowsAffected > 0 {
		snapshot.PublishedAt = &now
		snapshot.PublishedByID = &user.ID
	}
	return nil
}
