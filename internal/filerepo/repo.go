// Package filerepo implements the durable file index port (spec.md §4.7): a
// SQLite-backed record of uploaded files, keyed by link, storing the sealed
// envelope and salt plus the serialized gate box. Because a SQL row cannot
// hold a Go generic value, SecureFile[V] is erased to a kind tag + bytes at
// the storage boundary and reconstructed through a gate.Registry-shaped
// decoder. Grounded on internal/store/sqlite.Index (haukened-gone) for the
// table layout and transaction shape, generalized from a single flat secret
// row to the envelope/salt/gate-box columns spec.md §4.2 requires.
package filerepo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cinderfile/cinder/internal/domain"
	"github.com/cinderfile/cinder/internal/ids"
	"github.com/cinderfile/cinder/internal/orchestrator"
)

// GateDecoder reconstructs a domain.GateVerifier from its persisted kind tag
// and encoded bytes. *gate.Registry satisfies this.
type GateDecoder interface {
	Decode(kind string, data []byte) (domain.GateVerifier, error)
}

// Repo implements the SecureFile index port using SQLite.
type Repo struct {
	db      *sql.DB
	decoder GateDecoder
}

// New returns a Repo backed by db, creating the schema if necessary.
// decoder reconstructs gate boxes by kind tag at read time.
func New(db *sql.DB, decoder GateDecoder) (*Repo, error) {
	r := &Repo{db: db, decoder: decoder}
	if err := r.init(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repo) init() error {
	const schema = `CREATE TABLE IF NOT EXISTS files (
id TEXT PRIMARY KEY,
link_id TEXT NOT NULL UNIQUE,
blob_path TEXT NOT NULL,
sealed_envelope BLOB NOT NULL,
sealed_salt BLOB NOT NULL,
gate_kind TEXT NOT NULL,
gate_box BLOB NOT NULL,
gate_context BLOB,
expiry_seconds INTEGER NOT NULL,
max_attempts INTEGER NOT NULL,
created_at INTEGER NOT NULL,
expiry_date INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_files_expiry ON files(expiry_date);`
	_, err := r.db.Exec(schema)
	return err
}

// Save inserts a new SecureFile row. f.GateBox is erased to its Kind() tag
// and Encode() bytes; f.GateContext is stored as-is (opaque to the server).
func (r *Repo) Save(ctx context.Context, f domain.SecureFile[domain.GateVerifier]) error {
	const q = `INSERT INTO files
(id, link_id, blob_path, sealed_envelope, sealed_salt, gate_kind, gate_box, gate_context, expiry_seconds, max_attempts, created_at, expiry_date)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`
	_, err := r.db.ExecContext(ctx, q,
		f.ID.String(),
		f.LinkID.String(),
		string(f.BlobPath),
		f.SealedEnvelope.MarshalBinary(),
		f.SealedSalt.MarshalBinary(),
		f.GateBox.Kind(),
		f.GateBox.Encode(),
		f.GateContext,
		f.FileSpecs.ExpirySeconds,
		f.FileSpecs.MaxAttempts,
		f.CreatedAt.Unix(),
		f.ExpiryDate.Unix(),
	)
	return err
}

// FindByLinkID reconstructs the SecureFile record for linkID, decoding its
// gate box through the configured GateDecoder.
func (r *Repo) FindByLinkID(ctx context.Context, linkID ids.LinkID) (domain.SecureFile[domain.GateVerifier], error) {
	const q = `SELECT id, blob_path, sealed_envelope, sealed_salt, gate_kind, gate_box, gate_context, expiry_seconds, max_attempts, created_at, expiry_date
FROM files WHERE link_id=?`
	row := r.db.QueryRowContext(ctx, q, linkID.String())
	return r.scan(row, linkID)
}

func (r *Repo) scan(row *sql.Row, linkID ids.LinkID) (domain.SecureFile[domain.GateVerifier], error) {
	var (
		rawID                        string
		blobPath                     string
		sealedEnvelope, sealedSalt   []byte
		gateKind                     string
		gateBox, gateContext         []byte
		expirySeconds                uint32
		maxAttempts                  uint16
		createdAtUnix, expiryDtUnix  int64
	)
	if err := row.Scan(&rawID, &blobPath, &sealedEnvelope, &sealedSalt, &gateKind, &gateBox, &gateContext,
		&expirySeconds, &maxAttempts, &createdAtUnix, &expiryDtUnix); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SecureFile[domain.GateVerifier]{}, domain.ErrFileNotFound
		}
		return domain.SecureFile[domain.GateVerifier]{}, err
	}
	fileID, err := ids.ParseAs(rawID, ids.File)
	if err != nil {
		return domain.SecureFile[domain.GateVerifier]{}, domain.ErrInvalidID
	}
	envelope, err := domain.UnmarshalSealedBlob(sealedEnvelope)
	if err != nil {
		return domain.SecureFile[domain.GateVerifier]{}, domain.ErrInternal
	}
	salt, err := domain.UnmarshalSealedBlob(sealedSalt)
	if err != nil {
		return domain.SecureFile[domain.GateVerifier]{}, domain.ErrInternal
	}
	verifier, err := r.decoder.Decode(gateKind, gateBox)
	if err != nil {
		return domain.SecureFile[domain.GateVerifier]{}, domain.ErrInternal
	}
	return domain.SecureFile[domain.GateVerifier]{
		ID:             fileID,
		LinkID:         linkID,
		BlobPath:       domain.PathReference(blobPath),
		SealedEnvelope: envelope,
		SealedSalt:     salt,
		GateBox:        verifier,
		GateContext:    gateContext,
		FileSpecs:      domain.FileSpecs{ExpirySeconds: expirySeconds, MaxAttempts: maxAttempts},
		CreatedAt:      time.Unix(createdAtUnix, 0).UTC(),
		ExpiryDate:     time.Unix(expiryDtUnix, 0).UTC(),
	}, nil
}

// DeleteByLinkID removes the row for linkID. Idempotent.
func (r *Repo) DeleteByLinkID(ctx context.Context, linkID ids.LinkID) error {
	const q = `DELETE FROM files WHERE link_id=?`
	_, err := r.db.ExecContext(ctx, q, linkID.String())
	return err
}

// ExpiredBefore returns (linkID, blobPath) pairs for files expired as of t,
// for the janitor's blob-store cleanup pass (spec.md §4.9). It does not
// delete rows; CleanupExpired's burn removes the filerepo row, then the
// blob, then the limittracker row.
func (r *Repo) ExpiredBefore(ctx context.Context, t time.Time) ([]orchestrator.ExpiredFile, error) {
	const q = `SELECT link_id, blob_path FROM files WHERE expiry_date < ?`
	rows, err := r.db.QueryContext(ctx, q, t.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []orchestrator.ExpiredFile
	for rows.Next() {
		var rawLinkID, blobPath string
		if err := rows.Scan(&rawLinkID, &blobPath); err != nil {
			return nil, err
		}
		linkID, perr := ids.ParseAs(rawLinkID, ids.Link)
		if perr != nil {
			continue
		}
		out = append(out, orchestrator.ExpiredFile{LinkID: linkID, BlobPath: domain.PathReference(blobPath)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListBlobPaths returns every currently-referenced blob path, for the
// reconciliation sweep's orphan detection (spec.md §9 supplemented feature:
// blob store vs. index reconciliation).
func (r *Repo) ListBlobPaths(ctx context.Context) ([]domain.PathReference, error) {
	const q = `SELECT blob_path FROM files`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.PathReference
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, domain.PathReference(p))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
