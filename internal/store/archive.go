package store

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/opencontainers/go-digest"
)

// ExtractZip unpacks an uploaded archive into the workspace's
// content-addressed tree at {root}/{workspace}/releases/{batch_digest}/;
// AdoptBatch later moves the batch under its release id. The unpack
// is all-or-nothing: entries are extracted into a temp directory which is
// renamed into place only once everything succeeded, so a failed upload
// never leaves a directory that looks complete.
//
// If the batch already exists on disk the extraction is a no-op and the
// existing digests are returned; identical archives are idempotent.
func (s *Store) ExtractZip(workspace string, archive []byte) (digest.Digest, map[string]digest.Digest, error) {
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return "", nil, fmt.Errorf("reading archive: %w", err)
	}

	wsDir := filepath.Join(s.root, workspace)
	if err := os.MkdirAll(wsDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("creating workspace directory: %w", err)
	}

	tmpDir, err := os.MkdirTemp(wsDir, ".extract-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating extraction directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		if !ValidName(entry.Name) {
			return "", nil, fmt.Errorf("invalid archive entry %q", entry.Name)
		}
		if err := extractEntry(tmpDir, entry); err != nil {
			return "", nil, err
		}
	}

	batch, files, err := HashDirectory(tmpDir)
	if err != nil {
		return "", nil, err
	}
	if len(files) == 0 {
		return "", nil, fmt.Errorf("archive contains no files")
	}

	dst := s.ReleaseDir(workspace, batch.Encoded())
	if _, err := os.Stat(dst); err == nil {
		return batch, files, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", nil, fmt.Errorf("committing extracted archive: %w", err)
	}
	if err := os.Rename(tmpDir, dst); err != nil {
		return "", nil, fmt.Errorf("committing extracted archive: %w", err)
	}
	return batch, files, nil
}

func extractEntry(dir string, entry *zip.File) error {
	dst := filepath.Join(dir, filepath.FromSlash(entry.Name))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("extracting %s: %w", entry.Name, err)
	}

	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("extracting %s: %w", entry.Name, err)
	}
	defer src.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("extracting %s: %w", entry.Name, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("extracting %s: %w", entry.Name, err)
	}
	return out.Close()
}

// BatchDir returns the directory an extracted archive batch lives in before
// it is adopted under its release id.
func (s *Store) BatchDir(workspace string, batch digest.Digest) string {
	return s.ReleaseDir(workspace, batch.Encoded())
}

// AdoptBatch renames an extracted batch directory to the release directory
// it was ingested for. If the release directory already exists — a duplicate
// archive, or a retry after a crash — the freshly extracted batch is
// discarded and the existing bytes stand.
func (s *Store) AdoptBatch(workspace string, batch digest.Digest, releaseID string) error {
	src := s.BatchDir(workspace, batch)
	dst := s.ReleaseDir(workspace, releaseID)
	if src == dst {
		return nil
	}
	if _, err := os.Stat(dst); err == nil {
		return os.RemoveAll(src)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("adopting batch %s: %w", batch.Encoded(), err)
	}
	return nil
}

// WriteZip streams a zip of the named files to w, in name order. Each
// entry's source path is read at write time; missing bytes abort the
// archive.
func WriteZip(w io.Writer, entries map[string]string) error {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	zw := zip.NewWriter(w)
	for _, name := range names {
		path := entries[name]
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("archiving %s: %w", name, err)
		}

		entry, err := zw.Create(name)
		if err != nil {
			f.Close()
			return fmt.Errorf("archiving %s: %w", name, err)
		}
		if _, err := io.Copy(entry, f); err != nil {
			f.Close()
			return fmt.Errorf("archiving %s: %w", name, err)
		}
		f.Close()
	}
	return zw.Close()
}
