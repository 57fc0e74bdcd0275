package releases

import (
	"fmt"
	"sort"

	"github.com/opencohort/outpost/internal/models"
)

// WorkspaceFile is one entry in the latest-per-name projection of a
// workspace's releases. DisplayName is the filename, prefixed with the
// backend slug when the same name was produced by more than one backend.
type WorkspaceFile struct {
	DisplayName string
	File        models.ReleaseFile
	BackendSlug string
	BackendName string

	relIdx int // position of the owning release, newest first
}

// WorkspaceFiles computes the "latest outputs" projection: a deterministic
// fold over (backend, release, file) tuples ordered by release creation time
// descending, keyed by filename. For each name the most recent non-deleted
// copy per backend survives; names produced by several backends are kept per
// backend and prefixed with the slug, unless a configured backend precedence
// picks a single winner.
func (s *Service) WorkspaceFiles(ws *models.Workspace) ([]WorkspaceFile, error) {
	var rels []models.Release
	err := s.db.Preload("Backend").Preload("Files").Preload("Files.CreatedBy").
		Where("workspace_id = ?", ws.ID).
		Order("created_at DESC").
		Find(&rels).Error
	if err != nil {
		return nil, fmt.Errorf("loading releases for workspace %s: %w", ws.Name, err)
	}

	// name → backend slug → newest surviving copy. Releases arrive newest
	// first, so the first copy seen per (name, backend) wins.
	latest := make(map[string]map[string]WorkspaceFile)
	for i, rel := range rels {
		for _, f := range rel.Files {
			if f.Deleted() {
				continue
			}
			slug := rel.Backend.Slug
			byBackend, ok := latest[f.Name]
			if !ok {
				byBackend = make(map[string]WorkspaceFile)
				latest[f.Name] = byBackend
			}
			if _, seen := byBackend[slug]; seen {
				continue
			}
			byBackend[slug] = WorkspaceFile{
				DisplayName: f.Name,
				File:        f,
				BackendSlug: slug,
				BackendName: rel.Backend.Name,
				relIdx:      i,
			}
		}
	}

	var out []WorkspaceFile
	for name, byBackend := range latest {
		if len(byBackend) == 1 {
			for _, wf := range byBackend {
				out = append(out, wf)
			}
			continue
		}

		if winner, ok := s.pickByPrecedence(byBackend); ok {
			out = append(out, winner)
			continue
		}

		// Same name from several backends: keep each copy, disambiguated
		// by slug prefix.
		for slug, wf := range byBackend {
			wf.DisplayName = slug + "/" + name
			out = append(out, wf)
		}
	}

	// Most recent release first, then by display name.
	sort.Slice(out, func(i, j int) bool {
		if out[i].relIdx != out[j].relIdx {
			return out[i].relIdx < out[j].relIdx
		}
		return out[i].DisplayName < out[j].DisplayName
	})
	return out, nil
}

// pickByPrecedence resolves a collision using the configured backend
// priority order, if any of the colliding backends is listed.
func (s *Service) pickByPrecedence(byBackend map[string]WorkspaceFile) (WorkspaceFile, bool) {
	for _, slug := range s.backendPrecedence {
		if wf, ok := byBackend[slug]; ok {
			return wf, true
		}
	}
	return WorkspaceFile{}, false
}
