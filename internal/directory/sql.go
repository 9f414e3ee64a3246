package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kingrea/countersign/internal/signer"
)

// SQL keeps candidates in a sqlite or mysql table.
type SQL struct {
	db     *sql.DB
	driver string
}

// OpenSQL connects, pings and migrates the candidates table.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQL, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("directory: %s dsn must be provided", driver)
	}
	var name string
	switch driver {
	case "sqlite", "sqlite3":
		driver, name = "sqlite", "sqlite3"
	case "mysql":
		name = "mysql"
	default:
		return nil, fmt.Errorf("directory: unsupported driver: %s", driver)
	}
	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("directory: open %s database: %w", driver, err)
	}
	if driver == "sqlite" {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("directory: enable sqlite foreign keys: %w", err)
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("directory: ping database: %w", err)
	}
	store := &SQL{db: db, driver: driver}
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Migrate ensures the candidates table exists.
func (s *SQL) Migrate(ctx context.Context) error {
	var stmt string
	switch s.driver {
	case "mysql":
		stmt = `CREATE TABLE IF NOT EXISTS candidates (
			email VARCHAR(255) NOT NULL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			phone VARCHAR(64) NOT NULL DEFAULT '',
			role VARCHAR(32) NOT NULL,
			ref_kind VARCHAR(16) NOT NULL DEFAULT '',
			ref_id VARCHAR(128) NOT NULL DEFAULT '',
			updated_at DATETIME NOT NULL
		)`
	default:
		stmt = `CREATE TABLE IF NOT EXISTS candidates (
			email TEXT NOT NULL PRIMARY KEY COLLATE NOCASE,
			name TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL,
			ref_kind TEXT NOT NULL DEFAULT '',
			ref_id TEXT NOT NULL DEFAULT '',
			updated_at DATETIME NOT NULL
		)`
	}
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("directory: migrate: %w", err)
	}
	return nil
}

// Upsert inserts or replaces candidates keyed by email.
func (s *SQL) Upsert(ctx context.Context, candidates ...signer.Candidate) error {
	stmt := `INSERT INTO candidates (email, name, phone, role, ref_kind, ref_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET name = excluded.name, phone = excluded.phone,
		role = excluded.role, ref_kind = excluded.ref_kind, ref_id = excluded.ref_id,
		updated_at = excluded.updated_at`
	if s.driver == "mysql" {
		stmt = `INSERT INTO candidates (email, name, phone, role, ref_kind, ref_id, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE name = VALUES(name), phone = VALUES(phone),
			role = VALUES(role), ref_kind = VALUES(ref_kind), ref_id = VALUES(ref_id),
			updated_at = VALUES(updated_at)`
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("directory: begin: %w", err)
	}
	now := time.Now().UTC()
	for _, c := range normalize(candidates) {
		if _, err := tx.ExecContext(ctx, stmt,
			c.Email, c.Name, c.Phone, string(c.Role),
			string(c.Reference.Kind), c.Reference.ID, now,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("directory: upsert %s: %w", c.Email, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("directory: commit: %w", err)
	}
	return nil
}

// Delete removes the candidate with email.
func (s *SQL) Delete(ctx context.Context, email string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM candidates WHERE LOWER(email) = LOWER(?)`, strings.TrimSpace(email))
	if err != nil {
		return fmt.Errorf("directory: delete %s: %w", email, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, email)
	}
	return nil
}

// Candidates implements Directory.
func (s *SQL) Candidates(ctx context.Context) ([]signer.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT email, name, phone, role, ref_kind, ref_id FROM candidates`)
	if err != nil {
		return nil, fmt.Errorf("directory: list: %w", err)
	}
	defer rows.Close()
	var out []signer.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory: list: %w", err)
	}
	return normalize(out), nil
}

// Lookup implements Directory.
func (s *SQL) Lookup(ctx context.Context, email string) (signer.Candidate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT email, name, phone, role, ref_kind, ref_id FROM candidates WHERE LOWER(email) = LOWER(?)`,
		strings.TrimSpace(email))
	c, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return signer.Candidate{}, fmt.Errorf("%w: %s", ErrNotFound, email)
	}
	return c, err
}

// Close releases the database handle.
func (s *SQL) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row scanner) (signer.Candidate, error) {
	var c signer.Candidate
	var role, kind string
	if err := row.Scan(&c.Email, &c.Name, &c.Phone, &role, &kind, &c.Reference.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, err
		}
		return c, fmt.Errorf("directory: scan: %w", err)
	}
	parsed, err := signer.ParseRole(role)
	if err != nil {
		parsed = signer.RoleOther
	}
	c.Role = parsed
	c.Reference.Kind = signer.ReferenceKind(kind)
	return c, nil
}
