// Package releases implements the release and snapshot state machine: batch
// declaration, per-file upload, soft deletion, the latest-per-name workspace
// projection, and immutable snapshots.
package releases

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"
	"gorm.io/gorm"

	"github.com/opencohort/outpost/internal/models"
	"github.com/opencohort/outpost/internal/store"
)

// Service coordinates release state between the database and the
// content-addressed store. All cross-request consistency comes from the
// database's transactional guarantees; the service itself is stateless.
type Service struct {
	db    *gorm.DB
	store *store.Store

	// backendPrecedence optionally names backends in priority order. When
	// set, a filename produced by several backends resolves to the first
	// listed backend's copy instead of being slug-prefixed.
	backendPrecedence []string
}

// New returns a Service over the given database and file store.
func New(db *gorm.DB, st *store.Store) *Service {
	return &Service{db: db, store: st}
}

// SetBackendPrecedence configures the collision policy for same-named files
// from different backends.
func (s *Service) SetBackendPrecedence(slugs []string) {
	s.backendPrecedence = slugs
}

// GetWorkspace loads a workspace by name with its project and org.
func (s *Service) GetWorkspace(name string) (*models.Workspace, error) {
	var ws models.Workspace
	err := s.db.Preload("Project").Preload("Project.Org").
		Where("name = ?", name).First(&ws).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading workspace %s: %w", name, err)
	}
	return &ws, nil
}

// GetRelease loads a release by id with its workspace, backend and files.
func (s *Service) GetRelease(id string) (*models.Release, error) {
	var release models.Release
	err := s.db.Preload("Workspace").Preload("Workspace.Project").
		Preload("Backend").Preload("Files").Preload("Files.CreatedBy").
		Where("id = ?", id).First(&release).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading release %s: %w", id, err)
	}
	return &release, nil
}

// GetFile loads a release file with its release, workspace and backend.
func (s *Service) GetFile(id uuid.UUID) (*models.ReleaseFile, error) {
	var file models.ReleaseFile
	err := s.db.Preload("Release").Preload("Release.Workspace").
		Preload("Release.Workspace.Project").Preload("Release.Backend").
		Preload("CreatedBy").
		Where("id = ?", id).First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading release file %s: %w", id, err)
	}
	return &file, nil
}

// ParseManifest validates a declared manifest and returns the parsed
// digests. Every name must be a safe relative path and every digest must be
// a well-formed canonical digest.
func ParseManifest(manifest models.Manifest) (map[string]digest.Digest, error) {
	if len(manifest) == 0 {
		return nil, validationf("release must contain at least one file")
	}

	parsed := make(map[string]digest.Digest, len(manifest))
	for name, declared := range manifest {
		if !store.ValidName(name) {
			return nil, validationf("invalid file name %q", name)
		}
		dgst, err := digest.Parse(declared)
		if err != nil {
			return nil, validationf("invalid digest %q for %s", declared, name)
		}
		parsed[name] = dgst
	}
	return parsed, nil
}

// ReleaseID derives the reproducible release identifier for a workspace's
// manifest.
func ReleaseID(ws *models.Workspace, parsed map[string]digest.Digest) string {
	return releaseIDFor(ws, store.HashManifest(parsed))
}

// releaseIDFor folds the workspace into the content digest: the same file set
// declared in two workspaces yields two distinct releases, while
// re-declaring it within one workspace reproduces the same id.
func releaseIDFor(ws *models.Workspace, content digest.Digest) string {
	return digest.FromString(ws.ID.String() + "\n" + content.String()).Encoded()
}

// Declare creates a release from a manifest. The release id is recomputed
// from the manifest here, never trusted from the client, and a second
// declaration of the same content for the workspace is rejected.
func (s *Service) Declare(ws *models.Workspace, backend *models.Backend, user *models.User, manifest models.Manifest) (*models.Release, error) {
	parsed, err := ParseManifest(manifest)
	if err != nil {
		return nil, err
	}
	id := ReleaseID(ws, parsed)

	release := &models.Release{
		ID:          id,
		WorkspaceID: ws.ID,
		BackendID:   backend.ID,
		CreatedByID: user.ID,
		Manifest:    manifest,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Release{}).
			Where("id = ? AND workspace_id = ?", id, ws.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return validationf("these files have already been uploaded in release %s", id)
		}
		return tx.Create(release).Error
	})
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return nil, err
		}
		// A concurrent declare of the same manifest can slip past the count
		// check; the primary key then reports the duplicate instead.
		if isUniqueViolation(err) {
			return nil, validationf("these files have already been uploaded in release %s", id)
		}
		return nil, fmt.Errorf("creating release: %w", err)
	}

	release.Workspace = *ws
	release.Backend = *backend
	return release, nil
}

// UploadFile stores one file's bytes for a release and commits its metadata
// row. Bytes are written before the row so metadata never references missing
// bytes; the row commit is transactional so readers never observe a
// half-written row. A crash between the two leaves harmless
// content-addressed bytes which a retry reconciles.
func (s *Service) UploadFile(release *models.Release, name string, data []byte, user *models.User) (*models.ReleaseFile, error) {
	declared, ok := release.Manifest[name]
	if !ok {
		return nil, validationf("%s is not part of this release", name)
	}
	dgst, err := digest.Parse(declared)
	if err != nil {
		return nil, validationf("invalid digest %q for %s", declared, name)
	}

	var count int64
	err = s.db.Model(&models.ReleaseFile{}).
		Where("release_id = ? AND name = ?", release.ID, name).
		Count(&count).Error
	if err != nil {
		return nil, fmt.Errorf("checking for existing upload: %w", err)
	}
	if count > 0 {
		return nil, validationf("%s has already been uploaded", name)
	}

	wsName := release.Workspace.Name
	err = s.store.WriteFile(wsName, release.ID, name, data, dgst)
	switch {
	case errors.Is(err, store.ErrIntegrity):
		return nil, &ValidationError{Detail: err.Error()}
	case errors.Is(err, store.ErrExists):
		// Bytes from an earlier interrupted attempt. The metadata row is
		// absent (checked above), so verify the bytes and reuse them.
		if verr := s.store.Verify(wsName, release.ID, name, dgst); verr != nil {
			return nil, &ValidationError{Detail: verr.Error()}
		}
	case err != nil:
		return nil, fmt.Errorf("storing %s: %w", name, err)
	}

	file := &models.ReleaseFile{
		ReleaseID:   release.ID,
		Name:        name,
		FileHash:    dgst.String(),
		Size:        int64(len(data)),
		CreatedByID: user.ID,
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(file).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, validationf("%s has already been uploaded", name)
		}
		return nil, fmt.Errorf("recording %s: %w", name, err)
	}

	file.CreatedBy = *user
	return file, nil
}

// CreateFromArchive ingests a whole batch in one request: the zip is
// extracted atomically into the workspace's content-addressed tree, hashed,
// and the release plus all file rows are committed in a single transaction.
func (s *Service) CreateFromArchive(ws *models.Workspace, backend *models.Backend, user *models.User, archive []byte) (*models.Release, error) {
	if len(archive) == 0 {
		return nil, validationf("No data uploaded")
	}

	batch, digests, err := s.store.ExtractZip(ws.Name, archive)
	if err != nil {
		return nil, validationf("invalid archive: %s", err)
	}

	manifest := make(models.Manifest, len(digests))
	for name, dgst := range digests {
		manifest[name] = dgst.String()
	}

	id := releaseIDFor(ws, batch)
	if err := s.store.AdoptBatch(ws.Name, batch, id); err != nil {
		return nil, fmt.Errorf("adopting extracted archive: %w", err)
	}

	release := &models.Release{
		ID:          id,
		WorkspaceID: ws.ID,
		BackendID:   backend.ID,
		CreatedByID: user.ID,
		Manifest:    manifest,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Release{}).
			Where("id = ? AND workspace_id = ?", id, ws.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return validationf("these files have already been uploaded in release %s", id)
		}
		if err := tx.Create(release).Error; err != nil {
			return err
		}

		releaseDir := s.store.ReleaseDir(ws.Name, id)
		for _, name := range sortedKeys(digests) {
			file := &models.ReleaseFile{
				ReleaseID:   id,
				Name:        name,
				FileHash:    digests[name].String(),
				Size:        fileSize(releaseDir, name),
				CreatedByID: user.ID,
			}
			if err := tx.Create(file).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return nil, err
		}
		if isUniqueViolation(err) {
			return nil, validationf("these files have already been uploaded in release %s", id)
		}
		return nil, fmt.Errorf("creating release from archive: %w", err)
	}

	release.Workspace = *ws
	release.Backend = *backend
	return release, nil
}

// DeleteFile removes a file's on-disk bytes and stamps the soft-delete
// metadata. Bytes already gone surface as not-found rather than a second
// successful delete.
func (s *Service) DeleteFile(file *models.ReleaseFile, user *models.User) error {
	if file.Deleted() {
		return ErrNotFound
	}

	err := s.store.Remove(file.Release.Workspace.Name, file.ReleaseID, file.Name)
	if errors.Is(err, store.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("deleting %s: %w", file.Name, err)
	}

	now := s.db.NowFunc()
	return s.db.Model(file).Updates(map[string]interface{}{
		"deleted_at":    now,
		"deleted_by_id": user.ID,
	}).Error
}

// isUniqueViolation reports whether err is a unique-constraint failure from
// either supported driver.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

func fileSize(dir, name string) int64 {
	info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(name)))
	if err != nil {
		return 0
	}
	return info.Size()
}

// sortedKeys returns the map's keys in sorted order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
