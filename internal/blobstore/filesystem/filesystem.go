// Package filesystem implements the FileStorePort (spec.md §4.8) on the
// local filesystem: ciphertext blobs are written once (O_EXCL) and opened
// for read as plain *os.File handles: deletion is a separate, explicit
// Delete call driven by the link's burn or the janitor's sweep, not a
// close-time side effect. Grounded directly on
// internal/store/filesystem.BlobStore (haukened-gone), generalized from a
// secret-ID filename to a domain.PathReference and from a fixed hex-ID
// validator to one derived from ids.ParseAs.
package filesystem

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/cinderfile/cinder/internal/domain"
	"github.com/cinderfile/cinder/internal/ids"
)

// ErrNotDirectory is returned by New when root does not exist as a directory.
var ErrNotDirectory = errors.New("blobstore: root is not a directory")

// Store implements the FileStorePort using the local filesystem.
type Store struct {
	root string
}

// New returns a filesystem-backed blob store rooted at root. The directory
// must already exist with restrictive permissions (0700 recommended).
func New(root string) (*Store, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, ErrNotDirectory
	}
	return &Store{root: root}, nil
}

func (s *Store) path(linkID ids.LinkID) string {
	return filepath.Join(s.root, linkID.String()+".blob")
}

// Write stores ciphertext read from r under a path keyed by linkID, failing
// if a blob already exists for that link (O_EXCL: a link's blob is
// write-once). It returns the PathReference to persist alongside the
// SecureFile row.
func (s *Store) Write(_ context.Context, linkID ids.LinkID, r io.Reader) (domain.PathReference, error) {
	p := s.path(linkID)
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", domain.ErrFileStorageError
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		_ = os.Remove(p)
		return "", domain.ErrFileStorageError
	}
	if err := f.Sync(); err != nil {
		return "", domain.ErrFileStorageError
	}
	return domain.PathReference(filepath.Base(p)), nil
}

// Open returns a reader for the blob at ref. Close does not delete the
// file; burn deletion is an explicit, separate Delete call from the
// orchestrator's burn: on AcknowledgeDownload under split burn, or inside
// VerifyDownloadAccess after the blob has been read into memory under
// immediate burn.
func (s *Store) Open(_ context.Context, ref domain.PathReference) (io.ReadCloser, error) {
	p := filepath.Join(s.root, string(ref))
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrFileNotFound
		}
		return nil, domain.ErrFileStorageError
	}
	return f, nil
}

// Delete force-removes the blob at ref. Idempotent: a missing file is not
// an error, since cleanup sweeps may race with a just-completed burn.
func (s *Store) Delete(_ context.Context, ref domain.PathReference) error {
	p := filepath.Join(s.root, string(ref))
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return domain.ErrFileStorageError
	}
	return nil
}

// List returns the base names of every blob currently on disk, for the
// reconciliation sweep's orphan detection.
func (s *Store) List(_ context.Context) ([]domain.PathReference, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var out []domain.PathReference
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) != ".blob" {
			continue
		}
		out = append(out, domain.PathReference(e.Name()))
	}
	return out, nil
}
