// Package store lays release files out on disk under a content-addressed
// scheme and owns every digest computation. Writes are temp-then-rename so a
// crash never leaves a path that looks complete.
package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"
)

var (
	// ErrExists is returned when a write would overwrite existing bytes.
	ErrExists = errors.New("file already exists")
	// ErrIntegrity is returned when computed and declared digests disagree.
	ErrIntegrity = errors.New("digest mismatch")
	// ErrNotExist is returned when expected bytes are missing from disk.
	ErrNotExist = errors.New("file does not exist")
)

// Store is a content-addressed file store rooted at a single directory.
// Layout: {root}/{workspace}/releases/{release_id}/{relative path}.
type Store struct {
	root string
}

// New creates the root directory if needed and returns a Store.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating store root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// Digest computes the canonical sha256 digest of data.
func Digest(data []byte) digest.Digest {
	return digest.FromBytes(data)
}

// DigestReader computes the canonical sha256 digest of everything read from
// r, returning the digest and byte count.
func DigestReader(r io.Reader) (digest.Digest, int64, error) {
	digester := digest.Canonical.Digester()
	n, err := io.Copy(digester.Hash(), r)
	if err != nil {
		return "", 0, err
	}
	return digester.Digest(), n, nil
}

// ValidName reports whether name is usable as a release-relative path: no
// absolute paths, no traversal outside the release directory.
func ValidName(name string) bool {
	return name != "" && filepath.IsLocal(filepath.FromSlash(name))
}

// ReleaseDir returns the directory holding a release's files.
func (s *Store) ReleaseDir(workspace, releaseID string) string {
	return filepath.Join(s.root, workspace, "releases", releaseID)
}

// FilePath returns the on-disk path for one file within a release.
func (s *Store) FilePath(workspace, releaseID, name string) string {
	return filepath.Join(s.ReleaseDir(workspace, releaseID), filepath.FromSlash(name))
}

// WriteFile verifies data against the declared digest and writes it under
// the release directory. The bytes land via temp-then-rename and an existing
// file is never overwritten.
func (s *Store) WriteFile(workspace, releaseID, name string, data []byte, declared digest.Digest) error {
	if !ValidName(name) {
		return fmt.Errorf("invalid file name %q", name)
	}

	if computed := Digest(data); computed != declared {
		return fmt.Errorf("%w for %s: declared %s, computed %s", ErrIntegrity, name, declared, computed)
	}

	dst := s.FilePath(workspace, releaseID, name)
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, name)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating release directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("committing %s: %w", name, err)
	}
	return nil
}

// Open opens a release file for reading. Missing bytes surface as
// ErrNotExist regardless of what the metadata says.
func (s *Store) Open(workspace, releaseID, name string) (*os.File, error) {
	f, err := os.Open(s.FilePath(workspace, releaseID, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, name)
		}
		return nil, err
	}
	return f, nil
}

// Exists reports whether the release file's bytes are present on disk.
func (s *Store) Exists(workspace, releaseID, name string) bool {
	info, err := os.Stat(s.FilePath(workspace, releaseID, name))
	return err == nil && info.Mode().IsRegular()
}

// Remove deletes a release file's bytes. Already-absent bytes surface as
// ErrNotExist so a second delete reads as not-found, not success.
func (s *Store) Remove(workspace, releaseID, name string) error {
	path := s.FilePath(workspace, releaseID, name)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotExist, name)
		}
		return fmt.Errorf("removing %s: %w", name, err)
	}
	return nil
}

// Verify recomputes the digest of the stored bytes and compares it to the
// expected value. Used on integrity-sensitive reads.
func (s *Store) Verify(workspace, releaseID, name string, expected digest.Digest) error {
	f, err := s.Open(workspace, releaseID, name)
	if err != nil {
		return err
	}
	defer f.Close()

	computed, _, err := DigestReader(f)
	if err != nil {
		return fmt.Errorf("hashing %s: %w", name, err)
	}
	if computed != expected {
		return fmt.Errorf("%w for %s: expected %s, computed %s", ErrIntegrity, name, expected, computed)
	}
	return nil
}
