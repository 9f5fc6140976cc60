// Package limittracker implements the download-limit port (spec.md §4.6): a
// SQLite-backed counter of remaining download attempts per link, with an
// atomic decrement that is the linearization point for "verify and
// download" (spec.md §5: two concurrent verifiers for the same link must
// not both succeed once only one attempt remains). Grounded on the
// transactional select-then-update shape of the teacher's
// internal/store/sqlite.Index.ConsumeOnce (haukened-gone).
package limittracker

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cinderfile/cinder/internal/domain"
	"github.com/cinderfile/cinder/internal/ids"
)

// Tracker implements the DownloadLimit port using SQLite.
type Tracker struct {
	db *sql.DB
}

// New returns a Tracker backed by db, creating the schema if necessary. The
// caller owns db's lifecycle (WAL mode, busy timeout) per the teacher's
// convention of configuring *sql.DB outside the port implementation.
func New(db *sql.DB) (*Tracker, error) {
	t := &Tracker{db: db}
	if err := t.init(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tracker) init() error {
	const schema = `CREATE TABLE IF NOT EXISTS download_limits (
link_id TEXT PRIMARY KEY,
remaining_attempts INTEGER NOT NULL,
expiry_date INTEGER NOT NULL,
last_attempt_at INTEGER
);`
	_, err := t.db.Exec(schema)
	return err
}

// Create inserts a fresh download-limit row for a newly uploaded link.
func (t *Tracker) Create(ctx context.Context, dl domain.DownloadLimit) error {
	const q = `INSERT INTO download_limits (link_id, remaining_attempts, expiry_date, last_attempt_at) VALUES (?,?,?,NULL)`
	_, err := t.db.ExecContext(ctx, q, dl.LinkID.String(), dl.RemainingAttempts, dl.ExpiryDate.Unix())
	return err
}

// Get returns the current limit record for linkID.
func (t *Tracker) Get(ctx context.Context, linkID ids.LinkID) (domain.DownloadLimit, error) {
	const q = `SELECT remaining_attempts, expiry_date, last_attempt_at FROM download_limits WHERE link_id=?`
	var remaining uint16
	var expiryUnix int64
	var lastAttempt sql.NullInt64
	row := t.db.QueryRowContext(ctx, q, linkID.String())
	if err := row.Scan(&remaining, &expiryUnix, &lastAttempt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DownloadLimit{}, domain.ErrLinkNotFound
		}
		return domain.DownloadLimit{}, err
	}
	dl := domain.DownloadLimit{
		LinkID:            linkID,
		RemainingAttempts: remaining,
		ExpiryDate:        time.Unix(expiryUnix, 0).UTC(),
	}
	if lastAttempt.Valid {
		ts := time.Unix(lastAttempt.Int64, 0).UTC()
		dl.LastAttemptAt = &ts
	}
	return dl, nil
}

// DecrementAttempts atomically checks expiry, checks remaining attempts,
// decrements by one, and stamps last_attempt_at, all within a single
// transaction — the linearization point that prevents two racing verifiers
// from both succeeding against the last remaining attempt.
func (t *Tracker) DecrementAttempts(ctx context.Context, linkID ids.LinkID, now time.Time) (remaining uint16, err error) {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const sel = `SELECT remaining_attempts, expiry_date FROM download_limits WHERE link_id=?`
	var expiryUnix int64
	row := tx.QueryRowContext(ctx, sel, linkID.String())
	if err = row.Scan(&remaining, &expiryUnix); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrLinkNotFound
		}
		return 0, err
	}
	if now.Unix() >= expiryUnix {
		return 0, domain.ErrLinkExpired
	}
	if remaining == 0 {
		return 0, domain.ErrMaxAttemptsExceeded
	}
	remaining--
	const upd = `UPDATE download_limits SET remaining_attempts=?, last_attempt_at=? WHERE link_id=? AND remaining_attempts>0`
	res, uerr := tx.ExecContext(ctx, upd, remaining, now.Unix(), linkID.String())
	if uerr != nil {
		err = uerr
		return 0, err
	}
	n, uerr := res.RowsAffected()
	if uerr != nil {
		err = uerr
		return 0, err
	}
	if n == 0 {
		err = domain.ErrMaxAttemptsExceeded
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return remaining, nil
}

// Delete removes the limit row for linkID. Idempotent.
func (t *Tracker) Delete(ctx context.Context, linkID ids.LinkID) error {
	const q = `DELETE FROM download_limits WHERE link_id=?`
	_, err := t.db.ExecContext(ctx, q, linkID.String())
	return err
}

// ExpireBefore returns link IDs whose expiry has passed as of t and deletes
// their rows, for the janitor's cleanup sweep (spec.md §4.9).
func (t *Tracker) ExpireBefore(ctx context.Context, t2 time.Time) ([]ids.LinkID, error) {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const sel = `SELECT link_id FROM download_limits WHERE expiry_date < ?`
	rows, err := tx.QueryContext(ctx, sel, t2.Unix())
	if err != nil {
		return nil, err
	}
	var out []ids.LinkID
	for rows.Next() {
		var raw string
		if err = rows.Scan(&raw); err != nil {
			rows.Close()
			return nil, err
		}
		linkID, perr := ids.ParseAs(raw, ids.Link)
		if perr != nil {
			continue
		}
		out = append(out, linkID)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}
	const del = `DELETE FROM download_limits WHERE expiry_date < ?`
	if _, err = tx.ExecContext(ctx, del, t2.Unix()); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}
