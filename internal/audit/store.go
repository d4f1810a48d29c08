// internal/audit/store.go
//
// Creation audit log.
//
// Context
// -------
// Every user created through the back-office leaves one row in
// `user_creation_audit`: who was created (role, email, remote id) and from
// where (browser, device, country of the operator's request).  Passwords and
// images never reach this table.
//
// Workflow
// --------
//  1. cmd/web opens a *sqlx.DB when `database.dsn` is configured; the users
//     component lists Schema among its migrations.
//  2. The `audit` post-create action (action.go) calls Insert.
//  3. The HTTP layer lists recent rows through Recent.
//
// Notes
// -----
//   - Column list matches the fields in Record; update both together.
//   - Errors are returned verbatim so callers can wrap them.
package audit

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
)

// Schema creates the audit table.  MySQL / MariaDB dialect.
const Schema = `
CREATE TABLE IF NOT EXISTS user_creation_audit (
    id             BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
    role           VARCHAR(32)     NOT NULL,
    email          VARCHAR(254)    NOT NULL,
    remote_user_id VARCHAR(64)     NULL,
    browser        VARCHAR(64)     NOT NULL DEFAULT '',
    device         VARCHAR(32)     NOT NULL DEFAULT '',
    country        CHAR(2)         NOT NULL DEFAULT '',
    created_at     DATETIME(3)     NOT NULL,
    KEY idx_role_created (role, created_at)
)`

// Record mirrors one audit row.
type Record struct {
	ID           int64          `db:"id" json:"id"`
	Role         string         `db:"role" json:"role"`
	Email        string         `db:"email" json:"email"`
	RemoteUserID sql.NullString `db:"remote_user_id" json:"-"`
	Browser      string         `db:"browser" json:"browser"`
	Device       string         `db:"device" json:"device"`
	Country      string         `db:"country" json:"country"`
	CreatedAt    time.Time      `db:"created_at" json:"createdAt"`
}

// MaxRecent bounds Recent's limit.
const MaxRecent = 200

// Store reads and writes audit rows.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an open pool.
func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

// Insert stores rec and returns the generated id.
func (s *Store) Insert(ctx context.Context, rec Record) (int64, error) {
	const q = `
        INSERT INTO user_creation_audit
               (role, email, remote_user_id, browser, device, country, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q,
		rec.Role, rec.Email, rec.RemoteUserID, rec.Browser, rec.Device, rec.Country, rec.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Recent returns the newest rows, optionally filtered by role.  limit is
// clamped to [1, MaxRecent].
func (s *Store) Recent(ctx context.Context, role string, limit int) ([]Record, error) {
	limit = min(max(limit, 1), MaxRecent)

	const cols = `id, role, email, remote_user_id, browser, device, country, created_at`
	var (
		rows []Record
		err  error
	)
	if role == "" {
		err = s.db.SelectContext(ctx, &rows, `
        SELECT `+cols+`
        FROM   user_creation_audit
        ORDER  BY created_at DESC, id DESC
        LIMIT  ?`, limit)
	} else {
		err = s.db.SelectContext(ctx, &rows, `
        SELECT `+cols+`
        FROM   user_creation_audit
        WHERE  role = ?
        ORDER  BY created_at DESC, id DESC
        LIMIT  ?`, role, limit)
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}
