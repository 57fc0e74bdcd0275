package store

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opencontainers/go-digest"
)

// HashManifest derives the batch digest for a set of files from their
// relative paths and content digests: the sha256 of the sorted "path:digest"
// lines. It depends on the file set and its contents, never on upload order,
// so identical batches hash identically.
func HashManifest(manifest map[string]digest.Digest) digest.Digest {
	lines := make([]string, 0, len(manifest))
	for name, dgst := range manifest {
		lines = append(lines, name+":"+dgst.String())
	}
	sort.Strings(lines)
	return digest.FromString(strings.Join(lines, "\n"))
}

// HashDirectory walks dir and returns the batch digest plus the per-file
// digests, keyed by slash-separated relative path.
func HashDirectory(dir string) (digest.Digest, map[string]digest.Digest, error) {
	files := make(map[string]digest.Digest)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		dgst, _, err := DigestReader(f)
		if err != nil {
			return fmt.Errorf("hashing %s: %w", rel, err)
		}
		files[filepath.ToSlash(rel)] = dgst
		return nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("hashing directory %s: %w", dir, err)
	}

	return HashManifest(files), files, nil
}
